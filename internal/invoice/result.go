// Package invoice runs the invoice pipeline over documents and keeps the
// results.
package invoice

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/confidence"
	"github.com/zombor/invoice-tracker/internal/extract"
)

const (
	// UnknownSupplier names the supplier of a result nobody could identify
	UnknownSupplier = "Unknown Supplier"
	// SentinelConfidence is the confidence of the fallback result
	SentinelConfidence = 0.3

	MethodMerged   = "merged"
	MethodFallback = "fallback"
)

var (
	// ErrNoSegments means the text produced no segments at all
	ErrNoSegments = errors.New("no segments found")
	// ErrNothingExtracted means the merged segment had neither supplier nor total
	ErrNothingExtracted = errors.New("nothing extracted from merged segment")
	// ErrNotFound is returned for unknown stored document IDs
	ErrNotFound = errors.New("document not found")
)

// InvoiceResult is one invoice found in a document
type InvoiceResult struct {
	SupplierName  string          `json:"supplier_name"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   string          `json:"invoice_date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Confidence    float64         `json:"confidence"`
	// QualityScore is the confidence prior of the segment the result came from
	QualityScore     float64       `json:"quality_score"`
	SegmentText      string        `json:"segment_text"`
	StartLine        int           `json:"start_line"`
	ProcessingTime   time.Duration `json:"processing_time"`
	ExtractionMethod string        `json:"extraction_method"`
	ValidationPassed bool          `json:"validation_passed"`
	LineItems        []LineItem    `json:"line_items,omitempty"`

	Fields  map[extract.FieldKind]extract.ExtractedField `json:"fields,omitempty"`
	Factors map[confidence.Factor]float64                `json:"factors,omitempty"`
}

// Sentinel is the result returned when nothing else survives
func Sentinel() InvoiceResult {
	return InvoiceResult{
		SupplierName:     UnknownSupplier,
		TotalAmount:      decimal.Zero,
		Confidence:       SentinelConfidence,
		QualityScore:     SentinelConfidence,
		ExtractionMethod: MethodFallback,
		ValidationPassed: false,
	}
}

// Summary describes one document run for operational logging
type Summary struct {
	Segments          int           `json:"segments"`
	ValidatedSegments int           `json:"validated_segments"`
	Results           int           `json:"results"`
	Merged            bool          `json:"merged"`
	Fallback          bool          `json:"fallback"`
	ProcessingTime    time.Duration `json:"processing_time"`
}

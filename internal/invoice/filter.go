package invoice

import (
	"strings"

	"github.com/zombor/invoice-tracker/internal/lexicon"
	"github.com/zombor/invoice-tracker/internal/validate"
)

const (
	DefaultFilterMinConfidence = 0.4
	DefaultFilterMinLength     = 200
	// DefaultRequiredFields is how many of supplier and total must be present
	DefaultRequiredFields = 2
)

// QualityFilter drops results too weak to report
type QualityFilter struct {
	MinConfidence  float64 `yaml:"min_confidence"`
	MinLength      int     `yaml:"min_length"`
	RequiredFields int     `yaml:"required_fields"`
}

// DefaultQualityFilter returns the built-in filter thresholds
func DefaultQualityFilter() QualityFilter {
	return QualityFilter{
		MinConfidence:  DefaultFilterMinConfidence,
		MinLength:      DefaultFilterMinLength,
		RequiredFields: DefaultRequiredFields,
	}
}

// Keep reports whether r is confident enough, long enough and has its
// supplier and total
func (f QualityFilter) Keep(r InvoiceResult) bool {
	if r.Confidence < f.MinConfidence {
		return false
	}
	if lexicon.Length(strings.TrimSpace(r.SegmentText)) < f.MinLength {
		return false
	}
	present := 0
	if !validate.IsMissing(r.SupplierName) {
		present++
	}
	if !r.TotalAmount.IsZero() {
		present++
	}
	return present >= f.RequiredFields
}

// Filter returns the results Keep accepts, in order
func (f QualityFilter) Filter(results []InvoiceResult) []InvoiceResult {
	var kept []InvoiceResult
	for _, r := range results {
		if f.Keep(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

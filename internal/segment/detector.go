package segment

import (
	"strings"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

const (
	// DefaultMinLength is the shortest trimmed text accepted as an invoice
	DefaultMinLength = 100
	// DefaultMinConfidence is the lowest segment confidence accepted
	DefaultMinConfidence = 0.3
)

// Detector accepts or rejects segments as plausible invoices
type Detector struct {
	MinLength     int     `yaml:"min_length"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultDetector returns a Detector with the built-in thresholds
func DefaultDetector() Detector {
	return Detector{
		MinLength:     DefaultMinLength,
		MinConfidence: DefaultMinConfidence,
	}
}

// IsInvoice reports whether seg is long enough, confident enough and carries
// either an invoice indicator or a supplier candidate
func (d Detector) IsInvoice(seg Segment) bool {
	return d.Reject(seg) == ""
}

// Reject returns why seg is not an invoice, or "" when it is
func (d Detector) Reject(seg Segment) string {
	switch {
	case lexicon.Length(strings.TrimSpace(seg.Text)) < d.MinLength:
		return "too short"
	case seg.Confidence < d.MinConfidence:
		return "low confidence"
	case len(seg.InvoiceIndicators) == 0 && len(seg.SupplierCandidates) == 0:
		return "no invoice or supplier signal"
	}
	return ""
}

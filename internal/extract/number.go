package extract

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	labelledNumberConfidence = 0.85
	headingNumberConfidence  = 0.6
)

var (
	numberLabel   = regexp.MustCompile(`(?i)\b(?:invoice\s*(?:number\b|no\b\.?|#)|inv\s*(?:#|no\b\.?))[ \t]*[:.]?[ \t]*([A-Z0-9][A-Z0-9\-/]{0,49})`)
	numberHeading = regexp.MustCompile(`(?i)\binvoice[ \t]+([A-Z0-9][A-Z0-9\-/]{0,49})`)
)

// NumberExtractor finds the invoice number
type NumberExtractor struct{}

// NewNumberExtractor creates a NumberExtractor
func NewNumberExtractor() *NumberExtractor {
	return &NumberExtractor{}
}

// Kind returns InvoiceNumber
func (e *NumberExtractor) Kind() FieldKind { return InvoiceNumber }

// Extract prefers an explicit "Invoice Number:" label over an "INVOICE 123" heading
func (e *NumberExtractor) Extract(text string) Candidate {
	if m := numberLabel.FindStringSubmatch(text); m != nil {
		return Candidate{Value: strings.ToUpper(m[1]), Confidence: labelledNumberConfidence, Method: "explicit_label"}
	}
	for _, m := range numberHeading.FindAllStringSubmatch(text, -1) {
		if strings.IndexFunc(m[1], unicode.IsDigit) >= 0 {
			return Candidate{Value: strings.ToUpper(m[1]), Confidence: headingNumberConfidence, Method: "heading"}
		}
	}
	return miss()
}

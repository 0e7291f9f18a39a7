// Package validate applies per-field business rules to extracted values.
package validate

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/lexicon"
)

const (
	// DefaultMinConfidence applies to fields without a dedicated rule
	DefaultMinConfidence = 0.5

	SupplierMinConfidence = 0.3
	SupplierMinLength     = 3
	SupplierMaxLength     = 100

	TotalMinConfidence = 0.4
	TotalMax           = 1_000_000

	DateMinConfidence = 0.4

	NumberMinConfidence = 0.3
	NumberMinLength     = 2
	NumberMaxLength     = 50
)

var (
	dateShapes = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
		regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`),
	}
	numberShape = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-/]*$`)
	totalMax    = decimal.NewFromInt(TotalMax)
	tableWords  = lexicon.NewWords("qty", "quantity", "code", "item", "description", "unit", "price", "amount", "total")
)

// Rule decides whether a field value is usable
type Rule func(value string, confidence float64) bool

// Validator holds one rule per field kind
type Validator struct {
	rules map[extract.FieldKind]Rule
}

// New creates a Validator with the supplier, total, date and invoice number rules
func New() *Validator {
	return &Validator{rules: map[extract.FieldKind]Rule{
		extract.Supplier:      supplierRule,
		extract.TotalAmount:   totalRule,
		extract.InvoiceDate:   dateRule,
		extract.InvoiceNumber: numberRule,
	}}
}

// SetRule installs or replaces the rule for kind
func (v *Validator) SetRule(kind extract.FieldKind, rule Rule) {
	v.rules[kind] = rule
}

// Validate applies the rule for kind. Kinds without a rule pass when the
// extractor was more than DefaultMinConfidence sure.
func (v *Validator) Validate(kind extract.FieldKind, value string, confidence float64) bool {
	if rule, ok := v.rules[kind]; ok {
		return rule(value, confidence)
	}
	return confidence > DefaultMinConfidence
}

func supplierRule(value string, confidence float64) bool {
	value = strings.TrimSpace(value)
	n := lexicon.Length(value)
	switch {
	case IsMissing(value):
		return false
	case !lexicon.HasLetter(value):
		return false
	case n < SupplierMinLength || n > SupplierMaxLength:
		return false
	case tableWords.Any(value):
		return false
	}
	return confidence > SupplierMinConfidence
}

func totalRule(value string, confidence float64) bool {
	amount, ok := lexicon.ParseAmount(value)
	if !ok || !amount.IsPositive() || amount.GreaterThan(totalMax) {
		return false
	}
	return confidence > TotalMinConfidence
}

func dateRule(value string, confidence float64) bool {
	if !IsDateShape(value) {
		return false
	}
	return confidence > DateMinConfidence
}

func numberRule(value string, confidence float64) bool {
	value = strings.TrimSpace(value)
	n := lexicon.Length(value)
	if IsMissing(value) || n < NumberMinLength || n > NumberMaxLength || !numberShape.MatchString(value) {
		return false
	}
	return confidence > NumberMinConfidence
}

// IsDateShape reports whether value is YYYY-MM-DD, DD/MM/YYYY or DD-MM-YYYY
func IsDateShape(value string) bool {
	value = strings.TrimSpace(value)
	for _, re := range dateShapes {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// IsMissing reports whether value is empty or an extraction-miss placeholder
func IsMissing(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.HasPrefix(value, extract.Unknown)
}

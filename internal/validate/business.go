package validate

import (
	"strings"

	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/lexicon"
)

// Business-rule scores. A field that is present but doubtful scores
// RulePartial rather than failing outright.
const (
	RulePass    = 1.0
	RuleFail    = 0.0
	RulePartial = 0.3
	// RuleTableHeader is the score of a supplier that reads like a table header
	RuleTableHeader = 0.2
)

// BusinessScore grades how well value satisfies the business rules of kind
func BusinessScore(kind extract.FieldKind, value string) float64 {
	value = strings.TrimSpace(value)
	if IsMissing(value) {
		return RuleFail
	}

	switch kind {
	case extract.Supplier:
		n := lexicon.Length(value)
		switch {
		case !lexicon.HasLetter(value):
			return RuleFail
		case n < SupplierMinLength || n > SupplierMaxLength:
			return RulePartial
		case tableWords.Any(value):
			return RuleTableHeader
		}
		return RulePass

	case extract.TotalAmount:
		amount, ok := lexicon.ParseAmount(value)
		switch {
		case !ok || !amount.IsPositive():
			return RuleFail
		case amount.GreaterThan(totalMax):
			return RulePartial
		}
		return RulePass

	case extract.InvoiceDate:
		if IsDateShape(value) {
			return RulePass
		}
		return RulePartial

	case extract.InvoiceNumber:
		n := lexicon.Length(value)
		switch {
		case strings.IndexFunc(value, isAlphanumeric) < 0:
			return RuleFail
		case n < NumberMinLength || n > NumberMaxLength:
			return RulePartial
		}
		return RulePass
	}
	return RulePass
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

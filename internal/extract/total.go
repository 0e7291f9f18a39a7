package extract

import (
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

const (
	explicitTotalConfidence = 0.9
	contextTotalConfidence  = 0.7
	largestTotalConfidence  = 0.5
	amountPattern           = `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`
)

var (
	// explicitTotals are tried in order; the sanity window keeps out
	// account numbers and stray quantities
	explicitTotals = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:total|amount|balance)\s*(?:due|payable|inc\.?\s*vat)\s*:?\s*[£$€]?\s*` + amountPattern),
		regexp.MustCompile(`(?i)\b(?:total|amount|balance)\s*\(inc\.?\s*vat\)\s*:?\s*[£$€]?\s*` + amountPattern),
		regexp.MustCompile(`(?i)\b(?:total|amount|balance)\s*:\s*[£$€]?\s*` + amountPattern),
		regexp.MustCompile(`(?i)[£$€]\s*` + amountPattern + `\s*(?:total|amount|balance)\b`),
	}
	explicitMin = decimal.NewFromInt(10)
	explicitMax = decimal.NewFromInt(10000)
	noiseAmount = decimal.NewFromInt(10)
)

// TotalExtractor finds the invoice total. Its strategies run in strict
// priority order and the first hit wins, even over a later strategy that
// would score higher.
type TotalExtractor struct {
	context lexicon.Words
}

// NewTotalExtractor creates a TotalExtractor
func NewTotalExtractor() *TotalExtractor {
	return &TotalExtractor{
		context: lexicon.NewWords("total", "amount", "balance", "due", "payable"),
	}
}

// Kind returns TotalAmount
func (e *TotalExtractor) Kind() FieldKind { return TotalAmount }

// Extract tries the explicit labels, then total-like lines, then the largest amount
func (e *TotalExtractor) Extract(text string) Candidate {
	if c := explicitTotal(text); c.Found() {
		return c
	}
	if c := e.contextTotal(text); c.Found() {
		return c
	}
	return largestTotal(text)
}

func explicitTotal(text string) Candidate {
	for _, re := range explicitTotals {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			amount, ok := lexicon.ParseAmount(m[1])
			if !ok || !amount.GreaterThan(explicitMin) || !amount.LessThan(explicitMax) {
				continue
			}
			return amountCandidate(amount, explicitTotalConfidence, "explicit_label")
		}
	}
	return miss()
}

func (e *TotalExtractor) contextTotal(text string) Candidate {
	for _, line := range lexicon.Lines(text) {
		if !e.context.Any(line) {
			continue
		}
		for _, amount := range lexicon.CurrencyAmounts(line) {
			if amount.GreaterThan(noiseAmount) {
				return amountCandidate(amount, contextTotalConfidence, "line_context")
			}
		}
	}
	return miss()
}

func largestTotal(text string) Candidate {
	var largest decimal.Decimal
	found := false
	for _, amount := range lexicon.CurrencyAmounts(text) {
		if amount.GreaterThan(noiseAmount) && (!found || amount.GreaterThan(largest)) {
			largest = amount
			found = true
		}
	}
	if !found {
		return miss()
	}
	return amountCandidate(largest, largestTotalConfidence, "largest_amount")
}

func amountCandidate(amount decimal.Decimal, conf float64, method string) Candidate {
	return Candidate{Value: amount.StringFixed(2), Confidence: conf, Method: method}
}

package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

const (
	headerCompanyConfidence = 0.8
	headerFormatConfidence  = 0.6
	patternConfidence       = 0.75
	// DefaultFuzzyThreshold is the minimum similarity for a known-supplier match
	DefaultFuzzyThreshold = 0.6
	headerLines           = 10
)

// DefaultKnownSuppliers seeds the fuzzy matcher when no list is configured
var DefaultKnownSuppliers = []string{
	"Red Dragon Dispense Limited",
	"Wild Horse Brewery",
	"Snowdonia Hospitality",
	"Dispense Solutions",
	"Brewery Services",
}

var (
	supplierLabel   = regexp.MustCompile(`(?im)^[ \t]*(?:from|supplier|vendor)[ \t]*:[ \t]*(\S[^\n]*)$`)
	supplierCompany = regexp.MustCompile(`\b([A-Z][A-Za-z&'. ]*[ ](?:LIMITED|LTD|CO|COMPANY|BREWING|BREWERY|DISPENSE|HYGIENE))\b`)
	headerLabels    = []string{"INVOICE", "BILL TO:", "DELIVER TO:", "DATE:", "TOTAL:"}
)

// SupplierExtractor finds the supplier name
type SupplierExtractor struct {
	known     []string
	threshold float64
	companies lexicon.Words
}

// NewSupplierExtractor creates a SupplierExtractor matching against known
// supplier names at or above threshold similarity
func NewSupplierExtractor(known []string, threshold float64) *SupplierExtractor {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	return &SupplierExtractor{
		known:     known,
		threshold: threshold,
		companies: lexicon.NewWords(
			"limited", "ltd", "co", "company", "brewing", "brewery",
			"dispense", "hygiene", "services", "solutions",
		),
	}
}

// Kind returns Supplier
func (e *SupplierExtractor) Kind() FieldKind { return Supplier }

// Extract returns the most confident supplier across the header scan, the
// explicit patterns and the fuzzy match
func (e *SupplierExtractor) Extract(text string) Candidate {
	best := miss()
	best = better(best, e.fromHeader(text))
	best = better(best, fromPatterns(text))
	best = better(best, e.fromKnown(text))
	return best
}

func (e *SupplierExtractor) fromHeader(text string) Candidate {
	best := miss()
	for _, line := range firstLines(text, headerLines) {
		if isLabelLine(line) {
			continue
		}
		n := lexicon.Length(line)
		switch {
		case n > 5 && e.companies.Any(line):
			best = better(best, Candidate{Value: line, Confidence: headerCompanyConfidence, Method: "header_company"})
		case n > 8 && n < 50 && looksLikeHeader(line):
			best = better(best, Candidate{Value: line, Confidence: headerFormatConfidence, Method: "header_format"})
		}
	}
	return best
}

func fromPatterns(text string) Candidate {
	if m := supplierLabel.FindStringSubmatch(text); m != nil {
		if v := strings.TrimSpace(m[1]); lexicon.Length(v) >= 3 {
			return Candidate{Value: v, Confidence: patternConfidence, Method: "label_pattern"}
		}
	}
	if m := supplierCompany.FindStringSubmatch(text); m != nil {
		return Candidate{Value: strings.TrimSpace(m[1]), Confidence: patternConfidence, Method: "company_pattern"}
	}
	return miss()
}

func (e *SupplierExtractor) fromKnown(text string) Candidate {
	best := miss()
	for _, line := range firstLines(text, -1) {
		lower := strings.ToLower(line)
		for _, name := range e.known {
			ratio := levenshtein.Similarity(lower, strings.ToLower(name), nil)
			if ratio >= e.threshold {
				best = better(best, Candidate{Value: name, Confidence: ratio, Method: "fuzzy_match"})
			}
		}
	}
	return best
}

// firstLines returns up to n trimmed non-blank lines; n < 0 means all
func firstLines(text string, n int) []string {
	var out []string
	for _, line := range lexicon.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

func isLabelLine(line string) bool {
	upper := strings.ToUpper(line)
	for _, label := range headerLabels {
		if strings.Contains(upper, label) {
			return true
		}
	}
	return false
}

// looksLikeHeader wants a capitalised line with at least one all-caps word
func looksLikeHeader(line string) bool {
	first := []rune(line)[0]
	if !unicode.IsUpper(first) {
		return false
	}
	for _, word := range strings.Fields(line) {
		letters, lower := 0, false
		for _, r := range word {
			if unicode.IsLetter(r) {
				letters++
				if unicode.IsLower(r) {
					lower = true
				}
			}
		}
		if letters >= 2 && !lower {
			return true
		}
	}
	return false
}

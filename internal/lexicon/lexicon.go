// Package lexicon holds the word matching and value shapes shared by the
// segmenter, the field extractors and the validators.
package lexicon

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Words matches a vocabulary case-insensitively on word boundaries
type Words struct {
	words []string
	res   []*regexp.Regexp
}

// NewWords compiles a vocabulary. Multi-word entries match with any run of
// whitespace between words.
func NewWords(words ...string) Words {
	w := Words{words: make([]string, 0, len(words)), res: make([]*regexp.Regexp, 0, len(words))}
	for _, word := range words {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		w.words = append(w.words, word)
		w.res = append(w.res, regexp.MustCompile(wordPattern(word)))
	}
	return w
}

func wordPattern(word string) string {
	parts := strings.Fields(word)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	pattern := strings.Join(parts, `\s+`)
	first, _ := utf8.DecodeRuneInString(word)
	last, _ := utf8.DecodeLastRuneInString(word)
	if isWordRune(first) {
		pattern = `\b` + pattern
	}
	if isWordRune(last) {
		pattern += `\b`
	}
	return `(?i)` + pattern
}

func isWordRune(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// Found returns the vocabulary entries present in s, in vocabulary order
func (w Words) Found(s string) []string {
	var found []string
	for i, re := range w.res {
		if re.MatchString(s) {
			found = append(found, w.words[i])
		}
	}
	return found
}

// Any reports whether any entry is present in s
func (w Words) Any(s string) bool {
	for _, re := range w.res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Len returns the vocabulary size
func (w Words) Len() int {
	return len(w.words)
}

var (
	// CurrencyAmount matches a currency symbol followed by an amount
	CurrencyAmount = regexp.MustCompile(`[£$€]\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	// NumericDate matches D/M/Y style dates with / or - separators
	NumericDate = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)
	// ISODate matches YYYY-MM-DD
	ISODate = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// ParseAmount parses an amount, ignoring thousands separators
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// CurrencyAmounts returns every currency amount in text, in order of appearance
func CurrencyAmounts(text string) []decimal.Decimal {
	var amounts []decimal.Decimal
	for _, m := range CurrencyAmount.FindAllStringSubmatch(text, -1) {
		if d, ok := ParseAmount(m[1]); ok {
			amounts = append(amounts, d)
		}
	}
	return amounts
}

// Lines splits text on newlines
func Lines(text string) []string {
	return strings.Split(text, "\n")
}

// Length counts characters, not bytes
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// HasLetter reports whether s contains a letter
func HasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

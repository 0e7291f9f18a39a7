package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

const (
	explicitDateConfidence = 0.9
	contextDateConfidence  = 0.7
	isoLayout              = "2006-01-02"
	// centuryPrefix expands two-digit years
	centuryPrefix = 2000
)

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var (
	dateLabel = regexp.MustCompile(`(?i)\b(?:invoice\s+date|issue\s+date|date)\b[ \t]*:?[ \t]*([^\n]+)`)

	numericShape  = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{2,4})\b`)
	isoShape      = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dayMonthShape = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `)\.?,?\s+(\d{4})\b`)
	monthDayShape = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	weekdayShape  = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday),?\s+(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `),?\s+(\d{4})\b`)

	months = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// DateExtractor finds the invoice date and normalizes it to YYYY-MM-DD
type DateExtractor struct {
	context lexicon.Words
}

// NewDateExtractor creates a DateExtractor
func NewDateExtractor() *DateExtractor {
	return &DateExtractor{context: lexicon.NewWords("date", "issued", "created")}
}

// Kind returns InvoiceDate
func (e *DateExtractor) Kind() FieldKind { return InvoiceDate }

// Extract returns the most confident of the labelled, weekday-prefixed and
// context strategies
func (e *DateExtractor) Extract(text string) Candidate {
	best := miss()
	best = better(best, labelledDate(text))
	best = better(best, weekdayDate(text))
	best = better(best, e.contextDate(text))
	return best
}

func labelledDate(text string) Candidate {
	for _, m := range dateLabel.FindAllStringSubmatch(text, -1) {
		if d, ok := parseDate(m[1], true); ok {
			return Candidate{Value: d.Format(isoLayout), Confidence: explicitDateConfidence, Method: "explicit_label"}
		}
	}
	return miss()
}

func weekdayDate(text string) Candidate {
	m := weekdayShape.FindStringSubmatch(text)
	if m == nil {
		return miss()
	}
	if d, ok := namedDate(m[1], m[2], m[3]); ok {
		return Candidate{Value: d.Format(isoLayout), Confidence: explicitDateConfidence, Method: "weekday_format"}
	}
	return miss()
}

func (e *DateExtractor) contextDate(text string) Candidate {
	for _, line := range lexicon.Lines(text) {
		if !e.context.Any(line) {
			continue
		}
		if d, ok := parseDate(line, false); ok {
			return Candidate{Value: d.Format(isoLayout), Confidence: contextDateConfidence, Method: "line_context"}
		}
	}
	return miss()
}

// parseDate finds a date in s. When leading is set the date must open s.
func parseDate(s string, leading bool) (time.Time, bool) {
	s = strings.TrimSpace(s)
	type shape struct {
		re    *regexp.Regexp
		parse func([]string) (time.Time, bool)
	}
	shapes := []shape{
		{isoShape, func(m []string) (time.Time, bool) { return ymd(m[1], m[2], m[3]) }},
		{numericShape, func(m []string) (time.Time, bool) { return numericDate(m[1], m[2], m[3]) }},
		{weekdayShape, func(m []string) (time.Time, bool) { return namedDate(m[1], m[2], m[3]) }},
		{dayMonthShape, func(m []string) (time.Time, bool) { return namedDate(m[1], m[2], m[3]) }},
		{monthDayShape, func(m []string) (time.Time, bool) { return namedDate(m[2], m[1], m[3]) }},
	}

	bestPos := -1
	var best time.Time
	for _, sh := range shapes {
		loc := sh.re.FindStringIndex(s)
		if loc == nil || (leading && loc[0] != 0) {
			continue
		}
		if bestPos != -1 && loc[0] >= bestPos {
			continue
		}
		m := sh.re.FindStringSubmatch(s)
		if d, ok := sh.parse(m); ok {
			best, bestPos = d, loc[0]
		}
	}
	return best, bestPos != -1
}

// numericDate reads D/M/Y first and falls back to M/D/Y
func numericDate(a, b, y string) (time.Time, bool) {
	year, ok := expandYear(y)
	if !ok {
		return time.Time{}, false
	}
	first, _ := strconv.Atoi(a)
	second, _ := strconv.Atoi(b)
	if d, ok := validDate(year, second, first); ok {
		return d, true
	}
	return validDate(year, first, second)
}

func namedDate(day, month, y string) (time.Time, bool) {
	m, ok := months[strings.ToLower(month)[:3]]
	if !ok {
		return time.Time{}, false
	}
	year, ok := expandYear(y)
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(day)
	return validDate(year, int(m), d)
}

func ymd(y, m, d string) (time.Time, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	return validDate(year, month, day)
}

func expandYear(y string) (int, bool) {
	year, err := strconv.Atoi(y)
	if err != nil {
		return 0, false
	}
	switch len(y) {
	case 2:
		return centuryPrefix + year, true
	case 4:
		return year, true
	}
	return 0, false
}

// validDate rejects dates that time.Date would roll over
func validDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, false
	}
	return d, true
}

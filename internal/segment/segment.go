// Package segment splits document text into candidate invoices and decides
// which candidates look like invoices.
package segment

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/lexicon"
)

// Segment is a contiguous line range hypothesised to be one invoice.
// Segments are values: build them with a Segmenter or Merge and do not
// modify them afterwards.
type Segment struct {
	Text      string `json:"text"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"` // exclusive
	// Confidence is a heuristic prior from indicator counts, not a probability
	Confidence         float64           `json:"confidence"`
	InvoiceIndicators  []string          `json:"invoice_indicators"`
	SupplierCandidates []string          `json:"supplier_candidates"`
	TotalCandidates    []decimal.Decimal `json:"total_candidates"`
	DateCandidates     []string          `json:"date_candidates"`
}

// Vocabulary is the word list the segmenter looks for
type Vocabulary struct {
	InvoiceIndicators  []string `yaml:"invoice_indicators"`
	SupplierIndicators []string `yaml:"supplier_indicators"`
	CompanySuffixes    []string `yaml:"company_suffixes"`
	TableColumns       []string `yaml:"table_columns"`
}

// DefaultVocabulary returns the built-in word lists
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		InvoiceIndicators: []string{
			"invoice", "inv#", "invoice no", "invoice number", "bill", "bill to",
			"amount due", "total due", "date", "issued", "created", "supplier",
		},
		SupplierIndicators: []string{
			"limited", "ltd", "company", "brewing", "dispense", "hospitality", "services", "solutions",
		},
		CompanySuffixes: []string{"limited", "ltd", "co", "company"},
		TableColumns:    []string{"qty", "price", "total", "item", "code"},
	}
}

// Weights are the additive contributions to a segment's confidence
type Weights struct {
	Indicator float64 `yaml:"indicator"`
	Supplier  float64 `yaml:"supplier"`
	Total     float64 `yaml:"total"`
	Date      float64 `yaml:"date"`
	// Richness is added when more than RichnessThreshold candidates were found
	Richness          float64 `yaml:"richness"`
	RichnessThreshold int     `yaml:"richness_threshold"`
}

const (
	IndicatorWeight   = 0.3
	SupplierWeight    = 0.2
	TotalWeight       = 0.2
	DateWeight        = 0.1
	RichnessWeight    = 0.2
	RichnessThreshold = 3
	// MinTotalCandidate discards small currency amounts as noise
	MinTotalCandidate = 10
	// MinSupplierLineLength is the length a line must exceed to name a supplier
	MinSupplierLineLength = 5
)

// DefaultWeights returns the built-in segment confidence weights
func DefaultWeights() Weights {
	return Weights{
		Indicator:         IndicatorWeight,
		Supplier:          SupplierWeight,
		Total:             TotalWeight,
		Date:              DateWeight,
		Richness:          RichnessWeight,
		RichnessThreshold: RichnessThreshold,
	}
}

var (
	separatorLine = regexp.MustCompile(`={10,}|-{10,}|\*{10,}`)
	numberedPage  = regexp.MustCompile(`(?i)\b(?:invoice|page)\s+\d+`)
	minTotal      = decimal.NewFromInt(MinTotalCandidate)
)

// Segmenter splits document text into candidate invoice segments
type Segmenter struct {
	weights    Weights
	indicators lexicon.Words
	suppliers  lexicon.Words
	companies  lexicon.Words
	table      lexicon.Words
}

// NewSegmenter creates a Segmenter from a vocabulary and weights
func NewSegmenter(vocab Vocabulary, weights Weights) *Segmenter {
	return &Segmenter{
		weights:    weights,
		indicators: lexicon.NewWords(vocab.InvoiceIndicators...),
		suppliers:  lexicon.NewWords(vocab.SupplierIndicators...),
		companies:  lexicon.NewWords(vocab.CompanySuffixes...),
		table:      lexicon.NewWords(vocab.TableColumns...),
	}
}

// NewDefaultSegmenter creates a Segmenter with the built-in vocabulary and weights
func NewDefaultSegmenter() *Segmenter {
	return NewSegmenter(DefaultVocabulary(), DefaultWeights())
}

// Segment splits text at boundary lines. It returns no segments only for
// empty input; text without any boundary is a single segment.
func (s *Segmenter) Segment(text string) []Segment {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := lexicon.Lines(text)
	var segments []Segment
	start := 0
	for i, line := range lines {
		if i > start && s.IsBoundary(line) {
			segments = append(segments, s.build(lines, start, i))
			start = i
		}
	}
	return append(segments, s.build(lines, start, len(lines)))
}

// IsBoundary reports whether line starts a new invoice. Supplier words only
// count when the line is not a table header.
func (s *Segmenter) IsBoundary(line string) bool {
	if separatorLine.MatchString(line) || numberedPage.MatchString(line) {
		return true
	}
	if s.indicators.Any(line) {
		return true
	}
	return s.suppliers.Any(line) && !s.table.Any(line)
}

func (s *Segmenter) build(lines []string, start, end int) Segment {
	text := strings.Join(lines[start:end], "\n")
	seg := Segment{
		Text:               text,
		StartLine:          start,
		EndLine:            end,
		InvoiceIndicators:  s.indicators.Found(text),
		SupplierCandidates: s.supplierCandidates(lines[start:end]),
		TotalCandidates:    totalCandidates(text),
		DateCandidates:     dateCandidates(text),
	}
	seg.Confidence = s.confidence(seg)
	return seg
}

func (s *Segmenter) supplierCandidates(lines []string) []string {
	var candidates []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if lexicon.Length(line) <= MinSupplierLineLength {
			continue
		}
		if s.companies.Any(line) || s.suppliers.Any(line) {
			candidates = appendUnique(candidates, line)
		}
	}
	return candidates
}

func totalCandidates(text string) []decimal.Decimal {
	var totals []decimal.Decimal
	seen := map[string]bool{}
	for _, amount := range lexicon.CurrencyAmounts(text) {
		if amount.LessThanOrEqual(minTotal) {
			continue
		}
		key := amount.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		totals = append(totals, amount)
	}
	return totals
}

func dateCandidates(text string) []string {
	var dates []string
	for _, d := range lexicon.NumericDate.FindAllString(text, -1) {
		dates = appendUnique(dates, d)
	}
	for _, d := range lexicon.ISODate.FindAllString(text, -1) {
		dates = appendUnique(dates, d)
	}
	return dates
}

func (s *Segmenter) confidence(seg Segment) float64 {
	w := s.weights
	var conf float64
	if len(seg.InvoiceIndicators) > 0 {
		conf += w.Indicator
	}
	if len(seg.SupplierCandidates) > 0 {
		conf += w.Supplier
	}
	if len(seg.TotalCandidates) > 0 {
		conf += w.Total
	}
	if len(seg.DateCandidates) > 0 {
		conf += w.Date
	}
	count := len(seg.InvoiceIndicators) + len(seg.SupplierCandidates) + len(seg.TotalCandidates) + len(seg.DateCandidates)
	if count > w.RichnessThreshold {
		conf += w.Richness
	}
	return clamp(conf)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

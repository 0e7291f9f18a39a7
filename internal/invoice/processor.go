package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-tracker/internal/confidence"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/lexicon"
	"github.com/zombor/invoice-tracker/internal/recognition"
	"github.com/zombor/invoice-tracker/internal/segment"
)

// DefaultWorkers bounds how many segments are extracted at once
const DefaultWorkers = 4

// Processor turns documents into invoice results
type Processor struct {
	reader    document.Reader
	segmenter *segment.Segmenter
	detector  segment.Detector
	registry  *extract.Registry
	scorer    *confidence.Scorer
	filter    QualityFilter
	workers   int
}

// Option configures a Processor
type Option func(*Processor)

// WithReader sets the document reader
func WithReader(r document.Reader) Option {
	return func(p *Processor) { p.reader = r }
}

// WithSegmenter sets the segmenter
func WithSegmenter(s *segment.Segmenter) Option {
	return func(p *Processor) { p.segmenter = s }
}

// WithDetector sets the segment acceptance thresholds
func WithDetector(d segment.Detector) Option {
	return func(p *Processor) { p.detector = d }
}

// WithRegistry sets the field extractors
func WithRegistry(r *extract.Registry) Option {
	return func(p *Processor) { p.registry = r }
}

// WithScorer sets the confidence scorer
func WithScorer(s *confidence.Scorer) Option {
	return func(p *Processor) { p.scorer = s }
}

// WithFilter sets the quality filter
func WithFilter(f QualityFilter) Option {
	return func(p *Processor) { p.filter = f }
}

// WithWorkers bounds segment parallelism
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewProcessor creates a Processor. Anything not set by an option uses the
// built-in defaults, including a text-only reader.
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{
		reader:    document.NewFileReader(nil),
		segmenter: segment.NewDefaultSegmenter(),
		detector:  segment.DefaultDetector(),
		registry:  extract.NewDefaultRegistry(extract.DefaultKnownSuppliers, extract.DefaultFuzzyThreshold),
		scorer:    confidence.NewDefaultScorer(),
		filter:    DefaultQualityFilter(),
		workers:   DefaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument reads path and processes its text. It always returns at
// least one result; unreadable files produce the sentinel.
func (p *Processor) ProcessDocument(ctx context.Context, path string) ([]InvoiceResult, Summary) {
	start := time.Now()
	doc, err := p.reader.Read(ctx, path)
	if err != nil {
		slog.Warn("Failed to read document", "path", path, "error", err)
		return p.finish(path, []InvoiceResult{Sentinel()}, Summary{Fallback: true}, start)
	}
	results, summary := p.run(ctx, doc.Text(), OCRQuality(doc.Fusions()))
	return p.finish(path, results, summary, start)
}

// ProcessText processes text that needed no recognition
func (p *Processor) ProcessText(ctx context.Context, text string) ([]InvoiceResult, Summary) {
	start := time.Now()
	results, summary := p.run(ctx, document.Normalize(text), confidence.NeutralOCRQuality)
	return p.finish("", results, summary, start)
}

func (p *Processor) finish(path string, results []InvoiceResult, summary Summary, start time.Time) ([]InvoiceResult, Summary) {
	summary.Results = len(results)
	summary.ProcessingTime = time.Since(start)
	slog.Info("Processed document",
		"path", path,
		"segments", summary.Segments,
		"validated_segments", summary.ValidatedSegments,
		"results", summary.Results,
		"merged", summary.Merged,
		"fallback", summary.Fallback,
		"duration", summary.ProcessingTime,
	)
	return results, summary
}

// run maps every pipeline error to its fallback result
func (p *Processor) run(ctx context.Context, text string, ocr float64) ([]InvoiceResult, Summary) {
	results, summary, err := p.pipeline(ctx, text, ocr)
	switch {
	case errors.Is(err, ErrNoSegments), errors.Is(err, ErrNothingExtracted):
		slog.Warn("Falling back to sentinel result", "error", err)
		summary.Fallback = true
		return []InvoiceResult{Sentinel()}, summary
	case err != nil:
		slog.Error("Invoice pipeline failed", "error", err)
		summary.Fallback = true
		return []InvoiceResult{Sentinel()}, summary
	}
	return results, summary
}

func (p *Processor) pipeline(ctx context.Context, text string, ocr float64) ([]InvoiceResult, Summary, error) {
	var summary Summary

	segments := p.segmenter.Segment(text)
	summary.Segments = len(segments)
	if len(segments) == 0 {
		return nil, summary, ErrNoSegments
	}

	var accepted []segment.Segment
	for _, seg := range segments {
		if reason := p.detector.Reject(seg); reason != "" {
			slog.Debug("Segment rejected", "start_line", seg.StartLine, "end_line", seg.EndLine, "reason", reason)
			continue
		}
		accepted = append(accepted, seg)
	}
	summary.ValidatedSegments = len(accepted)

	if len(accepted) > 0 {
		results, err := p.extractSegments(ctx, accepted, ocr)
		if err != nil {
			return nil, summary, err
		}
		if kept := p.filter.Filter(results); len(kept) > 0 {
			return kept, summary, nil
		}
		slog.Info("No results passed the quality filter, merging segments", "results", len(results))
	} else {
		// nothing looked like an invoice on its own; try the whole text as one
		accepted = segments
	}

	summary.Merged = true
	merged := p.extractSegment(segment.Merge(accepted), MethodMerged, ocr)
	if nothingFound(merged) {
		return nil, summary, ErrNothingExtracted
	}
	return []InvoiceResult{merged}, summary, nil
}

func nothingFound(r InvoiceResult) bool {
	return r.SupplierName == UnknownSupplier && r.TotalAmount.IsZero()
}

// extractSegments extracts every segment in parallel and orders the results
// by where their segment starts. Segments not yet started when ctx is done
// are skipped and the context error is returned.
func (p *Processor) extractSegments(ctx context.Context, segments []segment.Segment, ocr float64) ([]InvoiceResult, error) {
	results := make([]InvoiceResult, len(segments))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, seg := range segments {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = p.extractSegment(seg, fmt.Sprintf("segment_%d", i+1), ocr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extracting segments: %w", err)
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].StartLine < results[b].StartLine
	})
	return results, nil
}

func (p *Processor) extractSegment(seg segment.Segment, method string, ocr float64) InvoiceResult {
	start := time.Now()
	fields := p.registry.ExtractAll(seg.Text)
	assessment := p.scorer.Assess(confidence.Evidence{Fields: fields, OCRQuality: ocr})
	usable := func(kind extract.FieldKind) extract.Candidate {
		c := fields[kind]
		if c.Found() && !assessment.Fields[kind].BusinessRuleCompliance {
			slog.Debug("Dropping rejected field value", "field", kind, "value", c.Value, "method", method)
			return extract.Candidate{Value: extract.Unknown}
		}
		return c
	}

	return InvoiceResult{
		SupplierName:     valueOr(usable(extract.Supplier), UnknownSupplier),
		InvoiceNumber:    valueOr(usable(extract.InvoiceNumber), ""),
		InvoiceDate:      valueOr(usable(extract.InvoiceDate), ""),
		TotalAmount:      amountOf(usable(extract.TotalAmount)),
		LineItems:        ParseLineItems(seg.Text),
		Confidence:       assessment.Confidence,
		QualityScore:     seg.Confidence,
		SegmentText:      seg.Text,
		StartLine:        seg.StartLine,
		ProcessingTime:   time.Since(start),
		ExtractionMethod: method,
		ValidationPassed: assessment.ValidationPassed,
		Fields:           assessment.Fields,
		Factors:          assessment.Factors,
	}
}

func valueOr(c extract.Candidate, missing string) string {
	if !c.Found() {
		return missing
	}
	return c.Value
}

func amountOf(c extract.Candidate) decimal.Decimal {
	if !c.Found() {
		return decimal.Zero
	}
	amount, ok := lexicon.ParseAmount(c.Value)
	if !ok {
		return decimal.Zero
	}
	return amount
}

// OCRQuality rates the recognition behind a document. Documents that never
// went through recognition get the neutral score.
func OCRQuality(fusions []recognition.FusionResult) float64 {
	if len(fusions) == 0 {
		return confidence.NeutralOCRQuality
	}
	var sum float64
	for _, f := range fusions {
		sum += confidence.OCRScore(f.AvgConfidence, f.EngineAgreement, f.Responded())
	}
	return sum / float64(len(fusions))
}

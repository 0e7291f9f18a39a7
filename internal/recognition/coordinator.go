package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/agext/levenshtein"
)

const (
	// DefaultBackendTimeout bounds a single backend call
	DefaultBackendTimeout = 30 * time.Second
	// DefaultFragmentFloor drops fragments reported below this confidence
	DefaultFragmentFloor = 0.1
)

// BackendOutput is what one backend contributed to a fusion
type BackendOutput struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// FusionResult combines the outputs of every backend that answered
type FusionResult struct {
	Text            string                   `json:"text"`
	AvgConfidence   float64                  `json:"avg_confidence"`
	EngineAgreement float64                  `json:"engine_agreement"`
	PerBackend      map[string]BackendOutput `json:"per_backend"`
}

// Responded returns how many backends produced text
func (r FusionResult) Responded() int {
	return len(r.PerBackend)
}

// Coordinator fans a page image out to every configured backend
type Coordinator struct {
	backends   []Backend
	timeout    time.Duration
	floor      float64
	preprocess bool
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTimeout sets the per-backend timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithFragmentFloor sets the minimum fragment confidence kept for fusion
func WithFragmentFloor(floor float64) Option {
	return func(c *Coordinator) {
		c.floor = floor
	}
}

// WithPreprocessing enables image enhancement before dispatch
func WithPreprocessing(enabled bool) Option {
	return func(c *Coordinator) {
		c.preprocess = enabled
	}
}

// NewCoordinator creates a Coordinator. Backend order is the registration
// order used when concatenating fused text.
func NewCoordinator(backends []Backend, opts ...Option) (*Coordinator, error) {
	if len(backends) == 0 {
		return nil, ErrNoBackends
	}
	c := &Coordinator{
		backends: backends,
		timeout:  DefaultBackendTimeout,
		floor:    DefaultFragmentFloor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Backends returns the configured backend names in registration order
func (c *Coordinator) Backends() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

type backendOutcome struct {
	fragments []Fragment
	err       error
}

// Fuse sends img to every backend concurrently and fuses whatever answered.
// When no backend produces text the returned result is empty with zero
// confidence and the error is ErrAllBackendsFailed.
func (c *Coordinator) Fuse(ctx context.Context, img Image) (FusionResult, error) {
	prepared, err := c.prepare(img)
	if err != nil {
		return FusionResult{PerBackend: map[string]BackendOutput{}}, fmt.Errorf("preparing image: %w", err)
	}

	outcomes := make([]backendOutcome, len(c.backends))
	var wg sync.WaitGroup
	for i, b := range c.backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			outcomes[i] = c.call(ctx, b, prepared)
		}(i, b)
	}
	wg.Wait()

	outputs := make([]namedOutput, 0, len(c.backends))
	for i, b := range c.backends {
		o := outcomes[i]
		if o.err != nil {
			slog.Warn("Recognition backend failed", "backend", b.Name(), "error", o.err)
			continue
		}
		out, ok := c.accept(o.fragments)
		if !ok {
			slog.Warn("Recognition backend returned no usable text", "backend", b.Name())
			continue
		}
		outputs = append(outputs, namedOutput{name: b.Name(), BackendOutput: out})
	}

	result := fuse(outputs)
	if len(outputs) == 0 {
		return result, ErrAllBackendsFailed
	}
	return result, nil
}

// call runs one backend under its own timeout. A backend that ignores
// cancellation is abandoned once the deadline passes.
func (c *Coordinator) call(ctx context.Context, b Backend, img Image) backendOutcome {
	bctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan backendOutcome, 1)
	go func() {
		fragments, err := b.Recognize(bctx, img)
		done <- backendOutcome{fragments: fragments, err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-bctx.Done():
		return backendOutcome{err: fmt.Errorf("backend %s: %w", b.Name(), bctx.Err())}
	}
}

// accept drops low-confidence fragments and averages the rest
func (c *Coordinator) accept(fragments []Fragment) (BackendOutput, bool) {
	lines := make([]string, 0, len(fragments))
	var sum float64
	for _, f := range fragments {
		text := strings.TrimSpace(f.Text)
		if text == "" || f.Confidence < c.floor {
			continue
		}
		lines = append(lines, text)
		sum += clamp(f.Confidence)
	}
	if len(lines) == 0 {
		return BackendOutput{}, false
	}
	return BackendOutput{
		Text:       strings.Join(lines, "\n"),
		Confidence: sum / float64(len(lines)),
	}, true
}

type namedOutput struct {
	name string
	BackendOutput
}

func fuse(outputs []namedOutput) FusionResult {
	result := FusionResult{PerBackend: make(map[string]BackendOutput, len(outputs))}
	if len(outputs) == 0 {
		return result
	}

	texts := make([]string, 0, len(outputs))
	var confSum float64
	for _, o := range outputs {
		texts = append(texts, o.Text)
		confSum += o.Confidence
		result.PerBackend[o.name] = o.BackendOutput
	}
	result.Text = strings.Join(texts, "\n")
	result.AvgConfidence = confSum / float64(len(outputs))
	result.EngineAgreement = Agreement(texts)
	return result
}

// Agreement is the mean pairwise edit-distance similarity of texts.
// Fewer than two texts agree on nothing.
func Agreement(texts []string) float64 {
	if len(texts) < 2 {
		return 0
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(texts); i++ {
		for j := i + 1; j < len(texts); j++ {
			sum += levenshtein.Similarity(texts[i], texts[j], nil)
			pairs++
		}
	}
	return clamp(sum / float64(pairs))
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

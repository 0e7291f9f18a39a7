// Package config loads the read-only domain settings of the invoice pipeline.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zombor/invoice-tracker/internal/confidence"
	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/recognition"
	"github.com/zombor/invoice-tracker/internal/segment"
)

// Settings are loaded once per process and never modified afterwards
type Settings struct {
	KnownSuppliers []string `yaml:"known_suppliers"`
	FuzzyThreshold float64  `yaml:"fuzzy_threshold"`

	Vocabulary     segment.Vocabulary `yaml:"vocabulary"`
	SegmentWeights segment.Weights    `yaml:"segment_weights"`
	Detector       segment.Detector   `yaml:"detector"`

	Filter    invoice.QualityFilter `yaml:"filter"`
	Weights   confidence.Weights    `yaml:"weights"`
	Penalties confidence.Penalties  `yaml:"penalties"`

	Workers        int           `yaml:"workers"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	FragmentFloor  float64       `yaml:"fragment_floor"`
}

// Defaults returns the built-in settings
func Defaults() Settings {
	return Settings{
		KnownSuppliers: append([]string(nil), extract.DefaultKnownSuppliers...),
		FuzzyThreshold: extract.DefaultFuzzyThreshold,
		Vocabulary:     segment.DefaultVocabulary(),
		SegmentWeights: segment.DefaultWeights(),
		Detector:       segment.DefaultDetector(),
		Filter:         invoice.DefaultQualityFilter(),
		Weights:        confidence.DefaultWeights(),
		Penalties:      confidence.DefaultPenalties(),
		Workers:        invoice.DefaultWorkers,
		BackendTimeout: recognition.DefaultBackendTimeout,
		FragmentFloor:  recognition.DefaultFragmentFloor,
	}
}

// Load reads settings from a YAML file over the defaults. An empty path
// returns the defaults.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return s, nil
}

// Validate checks thresholds and that the scorer weights sum to one
func (s Settings) Validate() error {
	if err := s.Weights.Validate(); err != nil {
		return err
	}
	if err := s.Penalties.Validate(); err != nil {
		return err
	}
	if s.FuzzyThreshold <= 0 || s.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be within (0,1]: %v", s.FuzzyThreshold)
	}
	if s.Detector.MinLength < 0 || s.Filter.MinLength < 0 {
		return fmt.Errorf("minimum lengths must not be negative")
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1: %d", s.Workers)
	}
	if s.BackendTimeout <= 0 {
		return fmt.Errorf("backend_timeout must be positive: %v", s.BackendTimeout)
	}
	return nil
}

// ProcessorOptions builds the pipeline stages these settings describe
func (s Settings) ProcessorOptions() ([]invoice.Option, error) {
	scorer, err := confidence.NewScorer(s.Weights, s.Penalties, nil)
	if err != nil {
		return nil, fmt.Errorf("creating scorer: %w", err)
	}
	return []invoice.Option{
		invoice.WithSegmenter(segment.NewSegmenter(s.Vocabulary, s.SegmentWeights)),
		invoice.WithDetector(s.Detector),
		invoice.WithRegistry(extract.NewDefaultRegistry(s.KnownSuppliers, s.FuzzyThreshold)),
		invoice.WithScorer(scorer),
		invoice.WithFilter(s.Filter),
		invoice.WithWorkers(s.Workers),
	}, nil
}

// CoordinatorOptions returns the recognition settings as coordinator options
func (s Settings) CoordinatorOptions() []recognition.Option {
	return []recognition.Option{
		recognition.WithTimeout(s.BackendTimeout),
		recognition.WithFragmentFloor(s.FragmentFloor),
	}
}

// Package confidence combines recognition, extraction and validation signals
// into one document confidence.
package confidence

import (
	"errors"
	"fmt"
	"math"

	"github.com/zombor/invoice-tracker/internal/extract"
	"github.com/zombor/invoice-tracker/internal/lexicon"
	"github.com/zombor/invoice-tracker/internal/validate"
)

// Factor names one input to the weighted score
type Factor string

const (
	OCRQuality      Factor = "ocr_quality"
	FieldValidation Factor = "field_validation"
	BusinessRules   Factor = "business_rules"
	Consistency     Factor = "consistency"
	UserFeedback    Factor = "user_feedback"
)

// Factors lists every factor in weighting order
var Factors = []Factor{OCRQuality, FieldValidation, BusinessRules, Consistency, UserFeedback}

const (
	DefaultOCRQualityWeight      = 0.30
	DefaultFieldValidationWeight = 0.25
	DefaultBusinessRulesWeight   = 0.25
	DefaultConsistencyWeight     = 0.15
	DefaultUserFeedbackWeight    = 0.05

	MissingSupplierPenalty = 0.7
	MissingTotalPenalty    = 0.8
	MissingDatePenalty     = 0.9

	// NeutralOCRQuality stands in for documents that never went through recognition
	NeutralOCRQuality = 0.5
	// NeutralUserFeedback stands in when nobody has reviewed the result
	NeutralUserFeedback = 0.7
	// NeutralFieldScore is the field validation factor when nothing was extracted
	NeutralFieldScore = 0.5
	// FailedValidationCredit is what a failed field contributes in place of a pass
	FailedValidationCredit = 0.3
	// UnknownDateConsistency is the consistency credit of a result without a date
	UnknownDateConsistency = 0.3

	weightTolerance = 1e-6
)

// ErrWeightSum is returned when factor weights do not add up to one
var ErrWeightSum = errors.New("confidence weights must sum to 1.0")

// Weights are the factor multipliers of the combined score
type Weights struct {
	OCRQuality      float64 `yaml:"ocr_quality"`
	FieldValidation float64 `yaml:"field_validation"`
	BusinessRules   float64 `yaml:"business_rules"`
	Consistency     float64 `yaml:"consistency"`
	UserFeedback    float64 `yaml:"user_feedback"`
}

// DefaultWeights returns the built-in factor weights
func DefaultWeights() Weights {
	return Weights{
		OCRQuality:      DefaultOCRQualityWeight,
		FieldValidation: DefaultFieldValidationWeight,
		BusinessRules:   DefaultBusinessRulesWeight,
		Consistency:     DefaultConsistencyWeight,
		UserFeedback:    DefaultUserFeedbackWeight,
	}
}

// Of returns the weight of f
func (w Weights) Of(f Factor) float64 {
	switch f {
	case OCRQuality:
		return w.OCRQuality
	case FieldValidation:
		return w.FieldValidation
	case BusinessRules:
		return w.BusinessRules
	case Consistency:
		return w.Consistency
	case UserFeedback:
		return w.UserFeedback
	}
	return 0
}

// Validate checks that every weight is non-negative and that they sum to one
func (w Weights) Validate() error {
	var sum float64
	for _, f := range Factors {
		v := w.Of(f)
		if v < 0 {
			return fmt.Errorf("weight %s is negative: %v", f, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: got %.4f", ErrWeightSum, sum)
	}
	return nil
}

// Penalties multiply the score when a critical field is missing
type Penalties struct {
	MissingSupplier float64 `yaml:"missing_supplier"`
	MissingTotal    float64 `yaml:"missing_total"`
	MissingDate     float64 `yaml:"missing_date"`
}

// DefaultPenalties returns the built-in missing-field penalties
func DefaultPenalties() Penalties {
	return Penalties{
		MissingSupplier: MissingSupplierPenalty,
		MissingTotal:    MissingTotalPenalty,
		MissingDate:     MissingDatePenalty,
	}
}

// Validate checks that every penalty is a multiplier in [0,1]
func (p Penalties) Validate() error {
	for name, v := range map[string]float64{
		"missing_supplier": p.MissingSupplier,
		"missing_total":    p.MissingTotal,
		"missing_date":     p.MissingDate,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("penalty %s must be within [0,1]: %v", name, v)
		}
	}
	return nil
}

// Scorer computes factor scores and combines them
type Scorer struct {
	weights   Weights
	penalties Penalties
	validator *validate.Validator
}

// NewScorer creates a Scorer. A nil validator uses validate.New.
func NewScorer(weights Weights, penalties Penalties, validator *validate.Validator) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := penalties.Validate(); err != nil {
		return nil, err
	}
	if validator == nil {
		validator = validate.New()
	}
	return &Scorer{weights: weights, penalties: penalties, validator: validator}, nil
}

// NewDefaultScorer creates a Scorer with the built-in weights and penalties
func NewDefaultScorer() *Scorer {
	s, _ := NewScorer(DefaultWeights(), DefaultPenalties(), nil)
	return s
}

// Score is the weighted sum of the factor scores, clamped. A factor that is
// absent contributes nothing, except UserFeedback which falls back to
// NeutralUserFeedback.
func (s *Scorer) Score(factors map[Factor]float64) float64 {
	var total float64
	for _, f := range Factors {
		v, ok := factors[f]
		if !ok && f == UserFeedback {
			v = NeutralUserFeedback
		}
		total += s.weights.Of(f) * clamp(v)
	}
	return clamp(total)
}

// Evidence is everything known about one extraction
type Evidence struct {
	Fields     map[extract.FieldKind]extract.Candidate
	OCRQuality float64
	// UserFeedback is nil until someone has reviewed the result
	UserFeedback *float64
}

// Assessment is the scored outcome of one extraction
type Assessment struct {
	Confidence       float64                                      `json:"confidence"`
	Factors          map[Factor]float64                           `json:"factors"`
	Fields           map[extract.FieldKind]extract.ExtractedField `json:"fields"`
	ValidationPassed bool                                         `json:"validation_passed"`
}

// Assess validates every field, computes the factors and applies the
// missing-field penalties
func (s *Scorer) Assess(ev Evidence) Assessment {
	fields := make(map[extract.FieldKind]extract.ExtractedField, len(ev.Fields))
	passed := len(ev.Fields) > 0
	for kind, c := range ev.Fields {
		ok := s.validator.Validate(kind, c.Value, c.Confidence)
		passed = passed && ok
		fields[kind] = extract.ExtractedField{
			Kind:                   kind,
			Value:                  c.Value,
			Confidence:             AdjustField(kind, c.Confidence, ok),
			ExtractionMethod:       c.Method,
			ValidationScore:        clamp(c.Confidence),
			BusinessRuleCompliance: ok,
		}
	}

	feedback := NeutralUserFeedback
	if ev.UserFeedback != nil {
		feedback = *ev.UserFeedback
	}
	factors := map[Factor]float64{
		OCRQuality:      clamp(ev.OCRQuality),
		FieldValidation: FieldValidationScore(fields),
		BusinessRules:   BusinessRuleScore(fields),
		Consistency:     ConsistencyScore(ev.Fields),
		UserFeedback:    clamp(feedback),
	}

	return Assessment{
		Confidence:       s.penalize(s.Score(factors), ev.Fields),
		Factors:          factors,
		Fields:           fields,
		ValidationPassed: passed,
	}
}

func (s *Scorer) penalize(score float64, fields map[extract.FieldKind]extract.Candidate) float64 {
	if missing(fields, extract.Supplier) {
		score *= s.penalties.MissingSupplier
	}
	if missing(fields, extract.TotalAmount) {
		score *= s.penalties.MissingTotal
	}
	if missing(fields, extract.InvoiceDate) {
		score *= s.penalties.MissingDate
	}
	return clamp(score)
}

func missing(fields map[extract.FieldKind]extract.Candidate, kind extract.FieldKind) bool {
	c, ok := fields[kind]
	return !ok || !c.Found() || validate.IsMissing(c.Value)
}

// FieldValidationScore averages, per field, the validation outcome with the
// extractor's own confidence
func FieldValidationScore(fields map[extract.FieldKind]extract.ExtractedField) float64 {
	if len(fields) == 0 {
		return NeutralFieldScore
	}
	var sum float64
	for _, f := range fields {
		outcome := FailedValidationCredit
		if f.BusinessRuleCompliance {
			outcome = 1
		}
		sum += (outcome + f.ValidationScore) / 2
	}
	return clamp(sum / float64(len(fields)))
}

// BusinessRuleScore averages the per-field business-rule grades. Kinds
// without dedicated rules score by their validation outcome.
func BusinessRuleScore(fields map[extract.FieldKind]extract.ExtractedField) float64 {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for kind, f := range fields {
		switch kind {
		case extract.Supplier, extract.TotalAmount, extract.InvoiceDate, extract.InvoiceNumber:
			sum += validate.BusinessScore(kind, f.Value)
		default:
			if f.BusinessRuleCompliance {
				sum += validate.RulePass
			}
		}
	}
	return clamp(sum / float64(len(fields)))
}

// ConsistencyScore checks that the core fields hang together: a positive
// total, a known date and a supplier
func ConsistencyScore(fields map[extract.FieldKind]extract.Candidate) float64 {
	total := 0.0
	if amount, ok := lexicon.ParseAmount(fields[extract.TotalAmount].Value); ok && amount.IsPositive() {
		total = 1
	}
	date := UnknownDateConsistency
	if !missing(fields, extract.InvoiceDate) {
		date = 1
	}
	supplier := 0.0
	if !missing(fields, extract.Supplier) {
		supplier = 1
	}
	return clamp((total + date + supplier) / 3)
}

// Adjustment is the bonus for a passing field and the penalty for a failing one
type Adjustment struct {
	Bonus   float64
	Penalty float64
}

// FieldAdjustments scale with how critical a field is
var FieldAdjustments = map[extract.FieldKind]Adjustment{
	extract.Supplier:      {Bonus: 0.10, Penalty: 0.30},
	extract.TotalAmount:   {Bonus: 0.15, Penalty: 0.40},
	extract.InvoiceDate:   {Bonus: 0.05, Penalty: 0.10},
	extract.InvoiceNumber: {Bonus: 0.05, Penalty: 0.10},
}

// DefaultAdjustment applies to kinds missing from FieldAdjustments
var DefaultAdjustment = Adjustment{Bonus: 0.05, Penalty: 0.10}

// AdjustField nudges a field's raw confidence by its validation outcome
func AdjustField(kind extract.FieldKind, raw float64, passed bool) float64 {
	adj, ok := FieldAdjustments[kind]
	if !ok {
		adj = DefaultAdjustment
	}
	if passed {
		return clamp(raw + adj.Bonus)
	}
	return clamp(raw - adj.Penalty)
}

// OCRScore rates recognition quality from the fusion statistics of one page.
// Agreement only counts when at least two backends answered.
func OCRScore(avgConfidence, agreement float64, responded int) float64 {
	if responded >= 2 {
		return clamp((avgConfidence + agreement) / 2)
	}
	return clamp(avgConfidence)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

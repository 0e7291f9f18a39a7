// Package extract pulls individual invoice fields out of segment text.
// Each extractor runs several independent strategies and keeps one winner.
package extract

import "fmt"

// FieldKind names an extractable invoice field
type FieldKind string

const (
	Supplier      FieldKind = "supplier_name"
	TotalAmount   FieldKind = "total_amount"
	InvoiceDate   FieldKind = "invoice_date"
	InvoiceNumber FieldKind = "invoice_number"
)

// Unknown is the value of a field no strategy could find
const Unknown = "Unknown"

// Candidate is one extractor's best guess for a field
type Candidate struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Found reports whether the candidate holds a real value
func (c Candidate) Found() bool {
	return c.Value != Unknown && c.Confidence > 0
}

func miss() Candidate {
	return Candidate{Value: Unknown, Confidence: 0, Method: "none"}
}

// better keeps the first candidate unless the challenger is strictly more confident
func better(best, challenger Candidate) Candidate {
	if challenger.Confidence > best.Confidence {
		return challenger
	}
	return best
}

// ExtractedField is a validated and scored field value
type ExtractedField struct {
	Kind                   FieldKind `json:"kind"`
	Value                  string    `json:"value"`
	Confidence             float64   `json:"confidence"`
	ExtractionMethod       string    `json:"extraction_method"`
	ValidationScore        float64   `json:"validation_score"`
	BusinessRuleCompliance bool      `json:"business_rule_compliance"`
}

// Extractor finds one field in text
type Extractor interface {
	Kind() FieldKind
	Extract(text string) Candidate
}

// Registry maps field kinds to extractors, keeping registration order
type Registry struct {
	order      []FieldKind
	extractors map[FieldKind]Extractor
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[FieldKind]Extractor)}
}

// Register adds e, replacing any extractor already registered for its kind
func (r *Registry) Register(e Extractor) {
	kind := e.Kind()
	if _, ok := r.extractors[kind]; !ok {
		r.order = append(r.order, kind)
	}
	r.extractors[kind] = e
}

// Get returns the extractor for kind
func (r *Registry) Get(kind FieldKind) (Extractor, error) {
	e, ok := r.extractors[kind]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for %s", kind)
	}
	return e, nil
}

// Kinds returns the registered kinds in registration order
func (r *Registry) Kinds() []FieldKind {
	out := make([]FieldKind, len(r.order))
	copy(out, r.order)
	return out
}

// ExtractAll runs every registered extractor over text
func (r *Registry) ExtractAll(text string) map[FieldKind]Candidate {
	out := make(map[FieldKind]Candidate, len(r.order))
	for _, kind := range r.order {
		out[kind] = r.extractors[kind].Extract(text)
	}
	return out
}

// NewDefaultRegistry registers the supplier, total, date and invoice number
// extractors
func NewDefaultRegistry(knownSuppliers []string, fuzzyThreshold float64) *Registry {
	r := NewRegistry()
	r.Register(NewSupplierExtractor(knownSuppliers, fuzzyThreshold))
	r.Register(NewTotalExtractor())
	r.Register(NewDateExtractor())
	r.Register(NewNumberExtractor())
	return r
}

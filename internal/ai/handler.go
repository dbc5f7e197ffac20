package ai

import (
	"context"

	"dealsense.app/coach/internal/prompt"
	"dealsense.app/coach/internal/retrieval"
)

// Request is one AI invocation as received from the API layer.
type Request struct {
	Feature  Feature
	UserID   string
	EntityID string

	// Objection handler only.
	ObjectionText     string
	ObjectionCategory string
	ObjectionSeverity string
}

// Preparation is everything a feature resolved from the CRM before
// generation: the prompt fields, the retrieval query, and any user-authored
// text that must pass moderation.
type Preparation struct {
	// Fields feed the prompt and the cache content hash. A field whose
	// change must invalidate the cached response belongs here.
	Fields   map[string]string
	Query    retrieval.Query
	Filters  retrieval.Filters
	Template prompt.Template

	// UserText is free-form text the user supplied, empty when the request
	// only references CRM records. Only user-authored text is moderated on
	// the way in.
	UserText string

	// Structured, when set, constrains generation to the JSON schema of the
	// value New allocates. Render flattens the decoded value into the text
	// that gets moderated, scored, and returned.
	Structured *StructuredOutput
}

// StructuredOutput describes a schema-constrained generation shape.
type StructuredOutput struct {
	SchemaName string
	New        func() any
	Render     func(v any) string
}

// ValueBand bounds similar-deal retrieval to deals of comparable size,
// expressed as multiples of the subject deal's value. The zero value
// disables the bound.
type ValueBand struct {
	Low  float64
	High float64
}

func (b ValueBand) apply(f *retrieval.Filters, value float64) {
	if b.Low <= 0 || b.High <= 0 || value <= 0 {
		return
	}
	f.ValueMin = b.Low * value
	f.ValueMax = b.High * value
}

// FeatureHandler resolves a request into a Preparation and supplies the
// degraded response used when generation cannot run.
type FeatureHandler interface {
	Feature() Feature
	Prepare(ctx context.Context, req Request) (*Preparation, error)
	Fallback(prep *Preparation) string
}

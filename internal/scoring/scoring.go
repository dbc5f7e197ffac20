package scoring

import (
	"context"
	"log/slog"
	"strings"

	"dealsense.app/coach/internal/retrieval"
)

const (
	// MinConfidence and MaxConfidence bound every score. The clamp is a hard
	// invariant: no code path returns a value outside this range.
	MinConfidence = 10
	MaxConfidence = 95

	baseScore = 50

	// FallbackConfidence is the default for degraded template responses.
	FallbackConfidence = 20
)

// Input is everything the scorer may inspect. It never mutates.
type Input struct {
	Response string
	Context  []retrieval.ContextItem
}

// Rule is one additive scoring signal.
type Rule struct {
	Name    string
	Weight  int
	Applies func(Input) bool
}

// DefaultRules are the bounded increments applied on top of the base score.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "rich_context",
			Weight: 20,
			Applies: func(in Input) bool {
				return len(in.Context) >= 3
			},
		},
		{
			Name:   "strong_match",
			Weight: 15,
			Applies: func(in Input) bool {
				for _, item := range in.Context {
					if item.Similarity > 0.8 {
						return true
					}
				}
				return false
			},
		},
		{
			Name:   "evidentiary_language",
			Weight: 10,
			Applies: func(in Input) bool {
				lower := strings.ToLower(in.Response)
				for _, marker := range []string{"based on", "similar deal", "historically", "in comparable", "the data shows"} {
					if strings.Contains(lower, marker) {
						return true
					}
				}
				return false
			},
		},
		{
			Name:   "ideal_length",
			Weight: 5,
			Applies: func(in Input) bool {
				n := len(in.Response)
				return n >= 200 && n <= 2000
			},
		},
	}
}

// AccuracySource reports the historical positive-feedback ratio for a
// feature, in [0,1], and whether any history exists.
type AccuracySource interface {
	FeatureAccuracy(ctx context.Context, feature string) (ratio float64, ok bool, err error)
}

// Scorer produces a deterministic confidence score by folding rules over the
// input and scaling by the feature's historical accuracy.
type Scorer struct {
	rules    []Rule
	accuracy AccuracySource // nil disables scaling
}

func New(accuracy AccuracySource) *Scorer {
	return &Scorer{rules: DefaultRules(), accuracy: accuracy}
}

// Score folds the rules over in and clamps. The historical-accuracy factor
// compresses toward the base rather than multiplying the whole score, so a
// feature with no feedback history is not penalized to the floor.
func (s *Scorer) Score(ctx context.Context, feature string, in Input) int {
	raw := baseScore
	for _, rule := range s.rules {
		if rule.Applies(in) {
			raw += rule.Weight
		}
	}

	factor := 1.0
	if s.accuracy != nil {
		ratio, ok, err := s.accuracy.FeatureAccuracy(ctx, feature)
		if err != nil {
			slog.WarnContext(ctx, "feature accuracy unavailable, skipping scaling", "error", err, "feature", feature)
		} else if ok {
			// Maps ratio 0 → 0.6 and ratio 1 → 1.1.
			factor = 0.6 + 0.5*ratio
		}
	}

	return Clamp(int(float64(raw) * factor))
}

// Fallback is the confidence for a degraded template response.
func (s *Scorer) Fallback() int {
	return Clamp(FallbackConfidence)
}

// Clamp forces v into [MinConfidence, MaxConfidence].
func Clamp(v int) int {
	if v < MinConfidence {
		return MinConfidence
	}
	if v > MaxConfidence {
		return MaxConfidence
	}
	return v
}

package ai

import "fmt"

// Feature identifies one AI capability exposed by the pipeline.
type Feature string

const (
	FeatureDealCoach        Feature = "deal_coach"
	FeatureObjectionHandler Feature = "objection_handler"
	FeatureContactPersona   Feature = "contact_persona"
	FeatureWinLossExplain   Feature = "win_loss_explain"
)

func ParseFeature(s string) (Feature, error) {
	switch Feature(s) {
	case FeatureDealCoach, FeatureObjectionHandler, FeatureContactPersona, FeatureWinLossExplain:
		return Feature(s), nil
	}
	return "", fmt.Errorf("unknown feature %q", s)
}

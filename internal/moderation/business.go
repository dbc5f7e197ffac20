package moderation

import (
	"context"
	"strings"
)

// businessVocabulary are terms that anchor a text to a sales conversation.
// One hit is enough; the check only exists to reject text that is plainly
// off-topic for the feature it was submitted to.
var businessVocabulary = []string{
	"price", "pricing", "cost", "expensive", "budget", "discount", "quote",
	"contract", "terms", "renewal", "invoice", "payment",
	"product", "feature", "demo", "trial", "integration", "support",
	"vendor", "competitor", "alternative", "solution", "platform",
	"deal", "proposal", "timeline", "decision", "stakeholder", "approval",
	"roi", "value", "implementation", "onboarding", "team", "company",
	"meeting", "call", "follow up", "followup", "sales", "customer", "client",
	"waste", "time", "disappointing", "disappointed", "concern", "risk",
}

const offTopicWordThreshold = 8

func (f *filter) ValidateBusinessContext(_ context.Context, text string, feature string) (Verdict, error) {
	lower := strings.ToLower(text)

	for _, term := range businessVocabulary {
		if strings.Contains(lower, term) {
			return allowed(), nil
		}
	}

	// Short texts get the benefit of the doubt; a terse "too slow" is a
	// legitimate objection with no vocabulary hit.
	if len(strings.Fields(text)) <= offTopicWordThreshold {
		return allowed(), nil
	}

	return Verdict{
		Allowed:    false,
		ReasonCode: "off_topic",
		Severity:   SeverityLow,
		Categories: []string{"off_topic", feature},
	}, nil
}

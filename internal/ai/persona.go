package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/prompt"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
)

const personaInteractionLimit = 20

// ContactPersonaHandler profiles a buying contact from their interaction
// history.
type ContactPersonaHandler struct {
	contacts     store.ContactStore
	interactions store.InteractionStore
	window       time.Duration
}

func NewContactPersonaHandler(contacts store.ContactStore, interactions store.InteractionStore, window time.Duration) *ContactPersonaHandler {
	return &ContactPersonaHandler{contacts: contacts, interactions: interactions, window: window}
}

func (h *ContactPersonaHandler) Feature() Feature {
	return FeatureContactPersona
}

func (h *ContactPersonaHandler) Prepare(ctx context.Context, req Request) (*Preparation, error) {
	contact, err := h.contacts.GetByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("contact")
		}
		return nil, NewUpstream("postgres", err)
	}

	interactions, err := h.interactions.ListByContact(ctx, contact.ID, personaInteractionLimit)
	if err != nil {
		return nil, NewUpstream("postgres", err)
	}
	if len(interactions) == 0 {
		return nil, NewNotEligible("contact has no logged interactions")
	}

	fields := map[string]string{
		"contact_name": contact.Name,
		"title":        contact.Title,
		"company":      contact.Company,
		"industry":     contact.Industry,
		"interactions": interactionDigest(interactions),
	}
	if contact.Notes != nil && *contact.Notes != "" {
		fields["notes"] = *contact.Notes
	}

	return &Preparation{
		Fields: fields,
		Query: retrieval.Query{
			Text:     fmt.Sprintf("%s at %s in %s", contact.Title, contact.Company, contact.Industry),
			Industry: contact.Industry,
		},
		Filters:  retrieval.Filters{Since: time.Now().Add(-h.window)},
		Template: prompt.ContactPersona,
		Structured: &StructuredOutput{
			SchemaName: "persona_profile",
			New:        func() any { return &PersonaProfile{} },
			Render:     renderPersonaProfile,
		},
	}, nil
}

// PersonaProfile is the schema-constrained shape of a persona response.
type PersonaProfile struct {
	CommunicationStyle string   `json:"communication_style"`
	Priorities         []string `json:"priorities"`
	DecisionDrivers    []string `json:"decision_drivers"`
	EngagementTips     []string `json:"engagement_tips"`
}

func renderPersonaProfile(v any) string {
	profile, ok := v.(*PersonaProfile)
	if !ok {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Communication style: %s\n", profile.CommunicationStyle)
	writeProfileSection(&b, "Priorities", profile.Priorities)
	writeProfileSection(&b, "Decision drivers", profile.DecisionDrivers)
	writeProfileSection(&b, "How to engage", profile.EngagementTips)
	return strings.TrimRight(b.String(), "\n")
}

func writeProfileSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func (h *ContactPersonaHandler) Fallback(prep *Preparation) string {
	return "AI persona profiles are temporarily unavailable. Review the contact's " +
		"recent interactions for response speed, preferred channel, and the topics " +
		"they raise unprompted; those are the strongest signals of how they buy."
}

func interactionDigest(interactions []model.Interaction) string {
	var parts []string
	for _, i := range interactions {
		parts = append(parts, fmt.Sprintf("[%s %s] %s",
			i.OccurredAt.Format("2006-01-02"), i.Channel, i.Summary))
	}
	return strings.Join(parts, "\n")
}

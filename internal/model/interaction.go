package model

import "time"

type InteractionChannel string

const (
	InteractionChannelEmail   InteractionChannel = "email"
	InteractionChannelCall    InteractionChannel = "call"
	InteractionChannelMeeting InteractionChannel = "meeting"
	InteractionChannelNote    InteractionChannel = "note"
)

// Interaction is a logged touchpoint with a contact, used to build personas.
type Interaction struct {
	ID         string             `json:"id"`
	ContactID  string             `json:"contact_id"`
	DealID     *string            `json:"deal_id,omitempty"`
	Channel    InteractionChannel `json:"channel"`
	Summary    string             `json:"summary"`
	Sentiment  *float64           `json:"sentiment,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

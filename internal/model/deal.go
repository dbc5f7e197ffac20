package model

import "time"

type DealStage string

const (
	DealStageLead        DealStage = "lead"
	DealStageQualified   DealStage = "qualified"
	DealStageProposal    DealStage = "proposal"
	DealStageNegotiation DealStage = "negotiation"
	DealStageClosedWon   DealStage = "closed_won"
	DealStageClosedLost  DealStage = "closed_lost"
)

type DealOutcome string

const (
	DealOutcomeWon  DealOutcome = "closed_won"
	DealOutcomeLost DealOutcome = "closed_lost"
)

// Deal is a read-only snapshot of a CRM deal. The CRM data layer owns the
// record; the pipeline only reads it.
type Deal struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	ContactID       string       `json:"contact_id"`
	OwnerID         string       `json:"owner_id"`
	Industry        string       `json:"industry"`
	Stage           DealStage    `json:"stage"`
	Value           float64      `json:"value"`
	LossReason      *string      `json:"loss_reason,omitempty"`
	ExpectedCloseAt *time.Time   `json:"expected_close_at,omitempty"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (s DealStage) Closed() bool {
	return s == DealStageClosedWon || s == DealStageClosedLost
}

func (d *Deal) Outcome() (DealOutcome, bool) {
	switch d.Stage {
	case DealStageClosedWon:
		return DealOutcomeWon, true
	case DealStageClosedLost:
		return DealOutcomeLost, true
	default:
		return "", false
	}
}

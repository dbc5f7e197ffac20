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

// DealCoachHandler suggests next steps for an open deal, grounded in
// similar historical deals.
type DealCoachHandler struct {
	deals      store.DealStore
	objections store.ObjectionStore
	window     time.Duration
	band       ValueBand
}

func NewDealCoachHandler(deals store.DealStore, objections store.ObjectionStore, window time.Duration, band ValueBand) *DealCoachHandler {
	return &DealCoachHandler{deals: deals, objections: objections, window: window, band: band}
}

func (h *DealCoachHandler) Feature() Feature {
	return FeatureDealCoach
}

func (h *DealCoachHandler) Prepare(ctx context.Context, req Request) (*Preparation, error) {
	deal, err := h.deals.GetByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("deal")
		}
		return nil, NewUpstream("postgres", err)
	}

	if deal.Stage.Closed() {
		return nil, NewNotEligible("deal is already closed")
	}

	objections, err := h.objections.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, NewUpstream("postgres", err)
	}

	fields := dealFields(deal)
	if s := objectionDigest(objections); s != "" {
		fields["open_objections"] = s
	}

	// Coaching context comes from won deals of comparable size only.
	filters := retrieval.Filters{
		Since:   time.Now().Add(-h.window),
		Outcome: string(model.DealOutcomeWon),
	}
	h.band.apply(&filters, deal.Value)

	return &Preparation{
		Fields: fields,
		Query: retrieval.Query{
			Text:      fmt.Sprintf("%s deal at stage %s in %s", deal.Name, deal.Stage, deal.Industry),
			Industry:  deal.Industry,
			DealValue: deal.Value,
		},
		Filters:  filters,
		Template: prompt.DealCoach,
	}, nil
}

func (h *DealCoachHandler) Fallback(prep *Preparation) string {
	return "AI coaching is temporarily unavailable. In the meantime: confirm the " +
		"decision maker and timeline with your champion, address any open objections " +
		"directly, and agree on a concrete next step before ending your next call."
}

func dealFields(deal *model.Deal) map[string]string {
	fields := map[string]string{
		"deal_name": deal.Name,
		"industry":  deal.Industry,
		"stage":     string(deal.Stage),
		"value":     fmt.Sprintf("$%.0f", deal.Value),
	}
	if deal.ExpectedCloseAt != nil {
		fields["expected_close"] = deal.ExpectedCloseAt.Format("2006-01-02")
	}
	return fields
}

func objectionDigest(objections []model.Objection) string {
	var parts []string
	for _, o := range objections {
		if o.Resolved {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", o.Category, o.Text))
	}
	return strings.Join(parts, "; ")
}

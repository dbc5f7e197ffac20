package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealsense.app/coach/internal/prompt"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
)

// WinLossExplainHandler explains why a closed deal went the way it did.
type WinLossExplainHandler struct {
	deals      store.DealStore
	objections store.ObjectionStore
	window     time.Duration
	band       ValueBand
}

func NewWinLossExplainHandler(deals store.DealStore, objections store.ObjectionStore, window time.Duration, band ValueBand) *WinLossExplainHandler {
	return &WinLossExplainHandler{deals: deals, objections: objections, window: window, band: band}
}

func (h *WinLossExplainHandler) Feature() Feature {
	return FeatureWinLossExplain
}

func (h *WinLossExplainHandler) Prepare(ctx context.Context, req Request) (*Preparation, error) {
	deal, err := h.deals.GetByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("deal")
		}
		return nil, NewUpstream("postgres", err)
	}

	outcome, ok := deal.Outcome()
	if !ok {
		return nil, NewNotEligible("deal is not closed yet")
	}

	objections, err := h.objections.ListByDeal(ctx, deal.ID)
	if err != nil {
		return nil, NewUpstream("postgres", err)
	}

	fields := dealFields(deal)
	fields["outcome"] = string(outcome)
	if deal.LossReason != nil && *deal.LossReason != "" {
		fields["recorded_loss_reason"] = *deal.LossReason
	}
	if s := objectionDigest(objections); s != "" {
		fields["open_objections"] = s
	}

	// Both outcomes are wanted here: the contrast is the analysis.
	filters := retrieval.Filters{Since: time.Now().Add(-h.window)}
	h.band.apply(&filters, deal.Value)

	return &Preparation{
		Fields: fields,
		Query: retrieval.Query{
			Text:      fmt.Sprintf("%s deal %s in %s", outcome, deal.Name, deal.Industry),
			Industry:  deal.Industry,
			DealValue: deal.Value,
		},
		Filters:  filters,
		Template: prompt.WinLossExplain,
	}, nil
}

func (h *WinLossExplainHandler) Fallback(prep *Preparation) string {
	return "AI win/loss analysis is temporarily unavailable. Compare this deal's " +
		"stage durations, objection history, and competitor involvement against " +
		"your recent closed deals in the same industry for the most likely drivers."
}

package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/prompt"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
)

const maxObjectionTextLen = 2000

// ObjectionHandlerFeature drafts responses to a buyer objection raised
// against a deal.
type ObjectionHandlerFeature struct {
	deals  store.DealStore
	window time.Duration
}

func NewObjectionHandler(deals store.DealStore, window time.Duration) *ObjectionHandlerFeature {
	return &ObjectionHandlerFeature{deals: deals, window: window}
}

func (h *ObjectionHandlerFeature) Feature() Feature {
	return FeatureObjectionHandler
}

func (h *ObjectionHandlerFeature) Prepare(ctx context.Context, req Request) (*Preparation, error) {
	text := strings.TrimSpace(req.ObjectionText)
	if text == "" {
		return nil, NewValidation("objection text is required")
	}
	if len(text) > maxObjectionTextLen {
		return nil, NewValidation("objection text exceeds the maximum length")
	}

	// Unknown categories degrade to "other" rather than failing the request.
	category := model.ObjectionCategory(req.ObjectionCategory)
	if !model.KnownObjectionCategory(category) {
		category = model.ObjectionCategoryOther
	}

	deal, err := h.deals.GetByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, NewNotFound("deal")
		}
		return nil, NewUpstream("postgres", err)
	}

	fields := dealFields(deal)
	fields["objection_text"] = text
	fields["objection_category"] = string(category)
	if req.ObjectionSeverity != "" {
		fields["objection_severity"] = req.ObjectionSeverity
	}

	return &Preparation{
		Fields: fields,
		Query: retrieval.Query{
			Text:              text,
			Industry:          deal.Industry,
			DealValue:         deal.Value,
			ObjectionCategory: string(category),
		},
		Filters:  retrieval.Filters{Since: time.Now().Add(-h.window)},
		Template: prompt.ObjectionHandler,
		UserText: text,
	}, nil
}

func (h *ObjectionHandlerFeature) Fallback(prep *Preparation) string {
	return "AI suggestions are temporarily unavailable. A reliable structure: " +
		"acknowledge the concern without conceding, ask what is driving it, then " +
		"respond with the evidence most relevant to their situation and confirm " +
		"whether it resolves the concern."
}

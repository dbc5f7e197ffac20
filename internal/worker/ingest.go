package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
)

// DealIngestor turns closed deals into vector documents so retrieval can
// surface them as historical context.
type DealIngestor struct {
	deals      store.DealStore
	objections store.ObjectionStore
	embedder   retrieval.Embedder
	vectors    retrieval.VectorStore
}

func NewDealIngestor(deals store.DealStore, objections store.ObjectionStore, embedder retrieval.Embedder, vectors retrieval.VectorStore) *DealIngestor {
	return &DealIngestor{
		deals:      deals,
		objections: objections,
		embedder:   embedder,
		vectors:    vectors,
	}
}

func (di *DealIngestor) IngestClosedDeal(ctx context.Context, dealID string) error {
	deal, err := di.deals.GetByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "deal not found, skipping ingest", "deal_id", dealID)
			return nil
		}
		return fmt.Errorf("loading deal: %w", err)
	}

	outcome, ok := deal.Outcome()
	if !ok {
		slog.InfoContext(ctx, "deal not closed, skipping ingest",
			"deal_id", dealID,
			"stage", deal.Stage)
		return nil
	}

	objections, err := di.objections.ListByDeal(ctx, dealID)
	if err != nil {
		return fmt.Errorf("loading objections: %w", err)
	}

	summary := DealSummary(deal, objections)

	vector, err := di.embedder.Embed(ctx, summary)
	if err != nil {
		return fmt.Errorf("embedding deal summary: %w", err)
	}

	closedAt := deal.CreatedAt
	if deal.ClosedAt != nil {
		closedAt = *deal.ClosedAt
	}

	doc := retrieval.Document{
		ID:      deal.ID,
		Vector:  vector,
		Summary: summary,
		Metadata: retrieval.Metadata{
			Industry: deal.Industry,
			Outcome:  string(outcome),
			Value:    deal.Value,
			Category: dominantObjectionCategory(objections),
			ClosedAt: closedAt,
		},
	}

	if err := di.vectors.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("upserting deal document: %w", err)
	}

	slog.InfoContext(ctx, "indexed closed deal",
		"deal_id", deal.ID,
		"outcome", outcome,
		"objections", len(objections))
	return nil
}

// Backfill indexes all deals closed within the window. Upserts are keyed by
// deal ID, so running it repeatedly is safe.
func (di *DealIngestor) Backfill(ctx context.Context, window time.Duration, limit int) (int, error) {
	since := time.Now().Add(-window).Unix()
	deals, err := di.deals.ListClosedSince(ctx, since, limit)
	if err != nil {
		return 0, fmt.Errorf("listing closed deals: %w", err)
	}

	indexed := 0
	for i := range deals {
		if err := di.IngestClosedDeal(ctx, deals[i].ID); err != nil {
			slog.ErrorContext(ctx, "backfill ingest failed",
				"error", err,
				"deal_id", deals[i].ID)
			continue
		}
		indexed++
	}
	return indexed, nil
}

// DealSummary builds the text that gets embedded and shown as retrieved
// context. Kept short and factual so a handful of summaries fits the prompt
// context budget.
func DealSummary(deal *model.Deal, objections []model.Objection) string {
	var b strings.Builder
	outcomeLabel := "open"
	if outcome, ok := deal.Outcome(); ok {
		if outcome == model.DealOutcomeWon {
			outcomeLabel = "won"
		} else {
			outcomeLabel = "lost"
		}
	}

	fmt.Fprintf(&b, "%s deal in %s worth $%.0f (%s).", strings.ToUpper(outcomeLabel[:1])+outcomeLabel[1:], deal.Industry, deal.Value, deal.Name)

	if deal.LossReason != nil && *deal.LossReason != "" {
		fmt.Fprintf(&b, " Loss reason: %s.", *deal.LossReason)
	}

	if len(objections) > 0 {
		var parts []string
		for _, o := range objections {
			status := "unresolved"
			if o.Resolved {
				status = "resolved"
			}
			parts = append(parts, fmt.Sprintf("%s (%s): %s", o.Category, status, o.Text))
		}
		fmt.Fprintf(&b, " Objections raised: %s", strings.Join(parts, "; "))
	}

	return b.String()
}

func dominantObjectionCategory(objections []model.Objection) string {
	if len(objections) == 0 {
		return ""
	}
	counts := make(map[model.ObjectionCategory]int)
	best := objections[0].Category
	for _, o := range objections {
		counts[o.Category]++
		if counts[o.Category] > counts[best] {
			best = o.Category
		}
	}
	return string(best)
}

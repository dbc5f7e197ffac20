package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Embedder converts text into a fixed-dimension vector. Satisfied by
// llm.Client; narrowed here so tests can stub embedding alone.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ContextItem is one retrieved historical record, ordered by effective
// relevance. Items are immutable and consumed once per request; the
// underlying vectors are owned by the vector store.
type ContextItem struct {
	SourceID   string
	Similarity float64
	Summary    string
	Metadata   Metadata
}

// Metadata is the filterable payload stored alongside each vector.
type Metadata struct {
	Industry string
	Outcome  string
	Value    float64
	Category string
	ClosedAt time.Time
}

// Query describes what to retrieve context for. The feature fields drive the
// weighted re-rank on top of raw cosine similarity.
type Query struct {
	Text              string
	Industry          string
	DealValue         float64
	ObjectionCategory string
}

// Filters restrict candidates at the store-query level, not by post-filtering.
type Filters struct {
	Since    time.Time
	Outcome  string
	ValueMin float64
	ValueMax float64
}

// Document is a record upserted into the vector collection.
type Document struct {
	ID       string
	Vector   []float32
	Summary  string
	Metadata Metadata
}

// Hit is a raw store match with cosine similarity in [0,1].
type Hit struct {
	ID       string
	Score    float64
	Summary  string
	Metadata Metadata
}

// VectorStore is the similarity index over historical deal records.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, doc Document) error
	Search(ctx context.Context, vector []float32, k int, filters Filters) ([]Hit, error)
}

// Weights control the feature-category share of effective relevance.
type Weights struct {
	Industry  float64
	DealSize  float64
	Objection float64
}

// Config for the retrieval service.
type Config struct {
	Weights          Weights
	EmbeddingTimeout time.Duration
	VectorTimeout    time.Duration
}

// Service embeds queries and returns weighted-similar historical records.
type Service struct {
	embedder Embedder
	store    VectorStore
	cfg      Config
}

func NewService(embedder Embedder, store VectorStore, cfg Config) *Service {
	if cfg.EmbeddingTimeout == 0 {
		cfg.EmbeddingTimeout = 5 * time.Second
	}
	if cfg.VectorTimeout == 0 {
		cfg.VectorTimeout = 3 * time.Second
	}
	return &Service{embedder: embedder, store: store, cfg: cfg}
}

// Retrieve returns at most k items ordered descending by effective relevance.
// No candidates is not an error: the empty slice signals "insufficient
// context" and downstream components degrade accordingly.
func (s *Service) Retrieve(ctx context.Context, query Query, k int, filters Filters) ([]ContextItem, error) {
	if k <= 0 {
		k = 5
	}

	embedCtx, cancelEmbed := context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
	defer cancelEmbed()

	vector, err := s.embedder.Embed(embedCtx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, s.cfg.VectorTimeout)
	defer cancelSearch()

	// Over-fetch so the re-rank has candidates to reorder.
	hits, err := s.store.Search(searchCtx, vector, k*3, filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	if len(hits) == 0 {
		slog.DebugContext(ctx, "no retrieval candidates", "industry", query.Industry)
		return []ContextItem{}, nil
	}

	items := Rerank(hits, query, s.cfg.Weights)
	if len(items) > k {
		items = items[:k]
	}
	return items, nil
}

// Rerank blends raw cosine similarity with the weighted feature-category
// score: industry match, deal-size proximity, and objection-type match. The
// result stays in [0,1] and orders descending.
func Rerank(hits []Hit, query Query, w Weights) []ContextItem {
	items := make([]ContextItem, 0, len(hits))
	for _, h := range hits {
		feature := w.Industry*industryMatch(h.Metadata.Industry, query.Industry) +
			w.DealSize*sizeProximity(h.Metadata.Value, query.DealValue) +
			w.Objection*categoryMatch(h.Metadata.Category, query.ObjectionCategory)

		effective := 0.5*clamp01(h.Score) + 0.5*clamp01(feature)

		items = append(items, ContextItem{
			SourceID:   h.ID,
			Similarity: effective,
			Summary:    h.Summary,
			Metadata:   h.Metadata,
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Similarity > items[j].Similarity
	})
	return items
}

func industryMatch(got, want string) float64 {
	if want == "" {
		return 0.5
	}
	if got == want {
		return 1
	}
	return 0
}

// sizeProximity is the ratio of the smaller to the larger value, so a deal
// twice the size scores 0.5 and an equal-sized deal scores 1.
func sizeProximity(got, want float64) float64 {
	if want <= 0 || got <= 0 {
		return 0.5
	}
	return math.Min(got, want) / math.Max(got, want)
}

func categoryMatch(got, want string) float64 {
	if want == "" {
		return 0.5
	}
	if got == want {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

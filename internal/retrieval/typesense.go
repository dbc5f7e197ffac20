package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/core/config"
)

// typesenseStore implements VectorStore on a Typesense collection with an
// embedding field. Metadata filters run at the store-query level via
// filter_by, so recency and value-band constraints never require pulling
// candidates into the process.
type typesenseStore struct {
	client     *typesense.Client
	collection string
}

func NewTypesenseStore(cfg config.TypesenseConfig) VectorStore {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	return &typesenseStore{client: client, collection: cfg.Collection}
}

func (s *typesenseStore) EnsureCollection(ctx context.Context) error {
	if _, err := s.client.Collection(s.collection).Retrieve(ctx); err == nil {
		return nil
	}

	schema := &api.CollectionSchema{
		Name: s.collection,
		Fields: []api.Field{
			{Name: "summary", Type: "string"},
			{Name: "embedding", Type: "float[]", NumDim: pointer.Int(llm.EmbeddingDimensions)},
			{Name: "industry", Type: "string", Facet: pointer.True()},
			{Name: "outcome", Type: "string", Facet: pointer.True()},
			{Name: "category", Type: "string", Facet: pointer.True()},
			{Name: "value", Type: "float"},
			{Name: "closed_at", Type: "int64"},
		},
	}

	if _, err := s.client.Collections().Create(ctx, schema); err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

func (s *typesenseStore) Upsert(ctx context.Context, doc Document) error {
	document := map[string]any{
		"id":        doc.ID,
		"summary":   doc.Summary,
		"embedding": doc.Vector,
		"industry":  doc.Metadata.Industry,
		"outcome":   doc.Metadata.Outcome,
		"category":  doc.Metadata.Category,
		"value":     doc.Metadata.Value,
		"closed_at": doc.Metadata.ClosedAt.Unix(),
	}

	if _, err := s.client.Collection(s.collection).Documents().Upsert(ctx, document, &api.DocumentIndexParameters{}); err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *typesenseStore) Search(ctx context.Context, vector []float32, k int, filters Filters) ([]Hit, error) {
	params := &api.SearchCollectionParams{
		Q:             pointer.String("*"),
		QueryBy:       pointer.String("summary"),
		VectorQuery:   pointer.String(vectorQuery(vector, k)),
		PerPage:       pointer.Int(k),
		ExcludeFields: pointer.String("embedding"),
	}
	if filter := filterBy(filters); filter != "" {
		params.FilterBy = pointer.String(filter)
	}

	result, err := s.client.Collection(s.collection).Documents().Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("typesense search: %w", err)
	}

	if result.Hits == nil {
		return nil, nil
	}

	hits := make([]Hit, 0, len(*result.Hits))
	for _, h := range *result.Hits {
		if h.Document == nil {
			continue
		}
		doc := *h.Document

		hit := Hit{
			ID:      stringField(doc, "id"),
			Summary: stringField(doc, "summary"),
			Metadata: Metadata{
				Industry: stringField(doc, "industry"),
				Outcome:  stringField(doc, "outcome"),
				Category: stringField(doc, "category"),
				Value:    floatField(doc, "value"),
			},
		}
		if ts := floatField(doc, "closed_at"); ts > 0 {
			hit.Metadata.ClosedAt = time.Unix(int64(ts), 0)
		}
		if h.VectorDistance != nil {
			// Typesense reports cosine distance; similarity is its complement.
			hit.Score = 1 - float64(*h.VectorDistance)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func vectorQuery(vector []float32, k int) string {
	var b strings.Builder
	b.WriteString("embedding:([")
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	fmt.Fprintf(&b, "], k:%d)", k)
	return b.String()
}

func filterBy(f Filters) string {
	var parts []string
	if !f.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("closed_at:>%d", f.Since.Unix()))
	}
	if f.Outcome != "" {
		parts = append(parts, fmt.Sprintf("outcome:=%s", f.Outcome))
	}
	if f.ValueMax > 0 {
		parts = append(parts, fmt.Sprintf("value:[%g..%g]", f.ValueMin, f.ValueMax))
	}
	return strings.Join(parts, " && ")
}

func stringField(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func floatField(doc map[string]any, key string) float64 {
	switch v := doc[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

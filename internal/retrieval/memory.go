package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryStore is a process-local VectorStore used in development and tests.
// It brute-forces cosine similarity, which is fine at dev-corpus scale.
type memoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() VectorStore {
	return &memoryStore{docs: make(map[string]Document)}
}

func (s *memoryStore) EnsureCollection(_ context.Context) error {
	return nil
}

func (s *memoryStore) Upsert(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *memoryStore) Search(_ context.Context, vector []float32, k int, filters Filters) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Hit
	for _, doc := range s.docs {
		if !matches(doc.Metadata, filters) {
			continue
		}
		hits = append(hits, Hit{
			ID:       doc.ID,
			Score:    cosineSimilarity(vector, doc.Vector),
			Summary:  doc.Summary,
			Metadata: doc.Metadata,
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func matches(m Metadata, f Filters) bool {
	if !f.Since.IsZero() && m.ClosedAt.Before(f.Since) {
		return false
	}
	if f.Outcome != "" && m.Outcome != f.Outcome {
		return false
	}
	if f.ValueMax > 0 && (m.Value < f.ValueMin || m.Value > f.ValueMax) {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

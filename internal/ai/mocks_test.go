package ai_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/moderation"
	"dealsense.app/coach/internal/ratelimit"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/store"
)

type mockLimiter struct {
	admitFn func(ctx context.Context, userID string) (ratelimit.Decision, error)
}

func (m *mockLimiter) Admit(ctx context.Context, userID string) (ratelimit.Decision, error) {
	if m.admitFn != nil {
		return m.admitFn(ctx, userID)
	}
	return ratelimit.Decision{Allowed: true, Remaining: 499, Limit: 500}, nil
}

type mockRetriever struct {
	calls      atomic.Int64
	retrieveFn func(ctx context.Context, query retrieval.Query, k int, filters retrieval.Filters) ([]retrieval.ContextItem, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, query retrieval.Query, k int, filters retrieval.Filters) ([]retrieval.ContextItem, error) {
	m.calls.Add(1)
	if m.retrieveFn != nil {
		return m.retrieveFn(ctx, query, k, filters)
	}
	return []retrieval.ContextItem{}, nil
}

type mockGenerator struct {
	calls          atomic.Int64
	jsonCalls      atomic.Int64
	completeFn     func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	completeJSONFn func(ctx context.Context, req llm.CompletionRequest, result any) (*llm.CompletionResponse, error)
}

func (m *mockGenerator) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.calls.Add(1)
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return &llm.CompletionResponse{Content: "Focus the next call on pricing concerns.", FinishReason: "stop"}, nil
}

const defaultProfileJSON = `{
	"communication_style": "direct and data driven",
	"priorities": ["pricing transparency", "fast implementation"],
	"decision_drivers": ["peer references"],
	"engagement_tips": ["lead with the business case"]
}`

func (m *mockGenerator) CompleteJSON(ctx context.Context, req llm.CompletionRequest, result any) (*llm.CompletionResponse, error) {
	m.jsonCalls.Add(1)
	if m.completeJSONFn != nil {
		return m.completeJSONFn(ctx, req, result)
	}
	if err := json.Unmarshal([]byte(defaultProfileJSON), result); err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{FinishReason: "stop"}, nil
}

func (m *mockGenerator) Model() string {
	return "test-model"
}

type mockModerator struct {
	checkFn    func(ctx context.Context, text string, mctx moderation.Context) (moderation.Verdict, error)
	validateFn func(ctx context.Context, text string, feature string) (moderation.Verdict, error)
}

func (m *mockModerator) Check(ctx context.Context, text string, mctx moderation.Context) (moderation.Verdict, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, text, mctx)
	}
	return moderation.Verdict{Allowed: true}, nil
}

func (m *mockModerator) ValidateBusinessContext(ctx context.Context, text string, feature string) (moderation.Verdict, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, text, feature)
	}
	return moderation.Verdict{Allowed: true}, nil
}

type mockAuditStore struct {
	mu       sync.Mutex
	records  []*model.AIRequestRecord
	recordFn func(ctx context.Context, rec *model.AIRequestRecord) error
}

func (m *mockAuditStore) Record(ctx context.Context, rec *model.AIRequestRecord) error {
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	if m.recordFn != nil {
		return m.recordFn(ctx, rec)
	}
	return nil
}

func (m *mockAuditStore) Records() []*model.AIRequestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.AIRequestRecord(nil), m.records...)
}

func (m *mockAuditStore) UsageSince(ctx context.Context, userID string, since time.Time) (*store.UsageSummary, error) {
	return nil, nil
}

type mockDealStore struct {
	getByIDFn func(ctx context.Context, id string) (*model.Deal, error)
}

func (m *mockDealStore) GetByID(ctx context.Context, id string) (*model.Deal, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockDealStore) ListClosedSince(ctx context.Context, since int64, limit int) ([]model.Deal, error) {
	return nil, nil
}

type mockObjectionStore struct {
	listByDealFn func(ctx context.Context, dealID string) ([]model.Objection, error)
}

func (m *mockObjectionStore) GetByID(ctx context.Context, id string) (*model.Objection, error) {
	return nil, store.ErrNotFound
}

func (m *mockObjectionStore) ListByDeal(ctx context.Context, dealID string) ([]model.Objection, error) {
	if m.listByDealFn != nil {
		return m.listByDealFn(ctx, dealID)
	}
	return nil, nil
}

type mockContactStore struct {
	getByIDFn func(ctx context.Context, id string) (*model.Contact, error)
}

func (m *mockContactStore) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

type mockInteractionStore struct {
	listByContactFn func(ctx context.Context, contactID string, limit int) ([]model.Interaction, error)
}

func (m *mockInteractionStore) ListByContact(ctx context.Context, contactID string, limit int) ([]model.Interaction, error) {
	if m.listByContactFn != nil {
		return m.listByContactFn(ctx, contactID, limit)
	}
	return nil, nil
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dealsense.app/coach/common/id"
	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/common/logger"
	"dealsense.app/coach/internal/cache"
	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/moderation"
	"dealsense.app/coach/internal/prompt"
	"dealsense.app/coach/internal/ratelimit"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/scoring"
	"dealsense.app/coach/internal/store"
)

// ContextRetriever fetches reranked historical context for a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query retrieval.Query, k int, filters retrieval.Filters) ([]retrieval.ContextItem, error)
}

// Generator is the text-generation slice of the LLM client.
type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	CompleteJSON(ctx context.Context, req llm.CompletionRequest, result any) (*llm.CompletionResponse, error)
	Model() string
}

// ConfidenceScorer scores a generated response.
type ConfidenceScorer interface {
	Score(ctx context.Context, feature string, in scoring.Input) int
	Fallback() int
}

// Response is the generated payload. It is what gets cached, so the stored
// confidence is returned verbatim on cache hits.
type Response struct {
	Text        string `json:"text"`
	Confidence  int    `json:"confidence"`
	Degraded    bool   `json:"degraded"`
	ContextUsed int    `json:"context_used"`
	Model       string `json:"model,omitempty"`
}

// Result is the terminal outcome of one request.
type Result struct {
	RequestID string
	Payload   Response
	CacheHit  bool
	RateLimit ratelimit.Decision
}

type Config struct {
	RetrievalK        int
	CacheTTL          time.Duration
	GenerationTimeout time.Duration
}

// Orchestrator runs every AI request through the same sequence: admission,
// moderation, cache, retrieval, generation, output validation, scoring.
// Each terminal outcome writes exactly one audit record.
type Orchestrator struct {
	limiter   ratelimit.Limiter
	moderator moderation.Filter
	retriever ContextRetriever
	generator Generator
	scorer    ConfidenceScorer
	cache     *cache.ResponseCache
	audit     store.AuditStore
	handlers  map[Feature]FeatureHandler
	cfg       Config
}

func NewOrchestrator(
	limiter ratelimit.Limiter,
	moderator moderation.Filter,
	retriever ContextRetriever,
	generator Generator,
	scorer ConfidenceScorer,
	responseCache *cache.ResponseCache,
	audit store.AuditStore,
	cfg Config,
	handlers ...FeatureHandler,
) *Orchestrator {
	byFeature := make(map[Feature]FeatureHandler, len(handlers))
	for _, h := range handlers {
		byFeature[h.Feature()] = h
	}
	return &Orchestrator{
		limiter:   limiter,
		moderator: moderator,
		retriever: retriever,
		generator: generator,
		scorer:    scorer,
		cache:     responseCache,
		audit:     audit,
		handlers:  byFeature,
		cfg:       cfg,
	}
}

// Handle runs one request to a terminal state and records it in the audit
// trail. The returned error, when non-nil, is always an *Error.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Result, error) {
	requestID := id.NewRequestID()
	feature := string(req.Feature)
	start := time.Now()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RequestID: &requestID,
		UserID:    &req.UserID,
		Feature:   &feature,
		EntityID:  &req.EntityID,
		Component: "coach.ai.orchestrator",
	})

	result, err := o.handle(ctx, requestID, req)
	o.recordAudit(ctx, requestID, req, result, err, time.Since(start))

	if err != nil {
		slog.InfoContext(ctx, "request terminated",
			"error_kind", KindOf(err),
			"latency_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	slog.InfoContext(ctx, "request returned",
		"cache_hit", result.CacheHit,
		"confidence", result.Payload.Confidence,
		"degraded", result.Payload.Degraded,
		"latency_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (o *Orchestrator) handle(ctx context.Context, requestID string, req Request) (*Result, error) {
	handler, ok := o.handlers[req.Feature]
	if !ok {
		return nil, NewValidation(fmt.Sprintf("unknown feature %q", req.Feature))
	}
	if req.UserID == "" {
		return nil, NewValidation("user id is required")
	}
	if req.EntityID == "" {
		return nil, NewValidation("entity id is required")
	}

	decision, err := o.limiter.Admit(ctx, req.UserID)
	if err != nil {
		// Storage failure fails closed: no fallback, no free requests.
		return nil, NewLimiterUnavailable(err)
	}
	if !decision.Allowed {
		return nil, NewRateLimited(decision.Limit, decision.Remaining)
	}

	prep, err := handler.Prepare(ctx, req)
	if err != nil {
		return nil, asPipelineError(err)
	}

	if prep.UserText != "" {
		if err := o.moderateInput(ctx, prep.UserText, req.Feature); err != nil {
			if KindOf(err) == KindUpstreamServiceError {
				// The static template carries none of the unchecked input,
				// so degrading is safe here.
				slog.WarnContext(ctx, "input moderation degraded to fallback", "error", err)
				return o.fallbackResult(requestID, handler, prep, decision), nil
			}
			return nil, err
		}
	}

	key, err := cache.NewKey(string(req.Feature), req.EntityID, prep.Fields)
	if err != nil {
		return nil, NewValidation("request fields are not hashable")
	}

	payload, hit, err := o.cache.GetOrCompute(ctx, key, o.cfg.CacheTTL, func(ctx context.Context) (any, error) {
		return o.generate(ctx, req, prep)
	})
	if err != nil {
		if KindOf(err) == KindUpstreamServiceError {
			// Degraded template response. Computed outside the cache so a
			// real generation is attempted again on the next request.
			slog.WarnContext(ctx, "generation degraded to fallback", "error", err)
			return o.fallbackResult(requestID, handler, prep, decision), nil
		}
		return nil, asPipelineError(err)
	}

	resp, ok := payload.(Response)
	if !ok {
		return nil, NewUpstream("cache", fmt.Errorf("unexpected payload type %T", payload))
	}

	return &Result{
		RequestID: requestID,
		Payload:   resp,
		CacheHit:  hit,
		RateLimit: decision,
	}, nil
}

// fallbackResult is the degraded template response for upstream failures.
// It is never cached.
func (o *Orchestrator) fallbackResult(requestID string, handler FeatureHandler, prep *Preparation, decision ratelimit.Decision) *Result {
	return &Result{
		RequestID: requestID,
		Payload: Response{
			Text:       handler.Fallback(prep),
			Confidence: o.scorer.Fallback(),
			Degraded:   true,
		},
		RateLimit: decision,
	}
}

func (o *Orchestrator) moderateInput(ctx context.Context, text string, feature Feature) error {
	verdict, err := o.moderator.Check(ctx, text, moderation.Context{
		Feature: string(feature),
		Kind:    moderation.TextKindInput,
	})
	if err != nil {
		return NewUpstream("moderation", err)
	}
	if !verdict.Allowed {
		return NewContentRejected(verdict)
	}

	verdict, err = o.moderator.ValidateBusinessContext(ctx, text, string(feature))
	if err != nil {
		return NewUpstream("moderation", err)
	}
	if !verdict.Allowed {
		return NewContentRejected(verdict)
	}
	return nil
}

// generate is the cache compute path: retrieval, prompt assembly, the model
// call, output moderation, and scoring. It runs detached from the caller's
// cancellation so a client disconnect does not waste an in-flight generation
// other callers may be waiting on.
func (o *Orchestrator) generate(ctx context.Context, req Request, prep *Preparation) (Response, error) {
	ctx = context.WithoutCancel(ctx)

	items, err := o.retriever.Retrieve(ctx, prep.Query, o.cfg.RetrievalK, prep.Filters)
	if err != nil {
		return Response{}, NewUpstream("retrieval", err)
	}

	p := prompt.Build(prep.Fields, items, prep.Template)

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	var content string
	if prep.Structured != nil {
		out := prep.Structured.New()
		if _, err := o.generator.CompleteJSON(genCtx, llm.CompletionRequest{
			System:     p.System,
			Prompt:     p.Text,
			MaxTokens:  p.MaxTokens,
			SchemaName: prep.Structured.SchemaName,
		}, out); err != nil {
			return Response{}, NewUpstream("openai", err)
		}
		content = prep.Structured.Render(out)
	} else {
		completion, err := o.generator.Complete(genCtx, llm.CompletionRequest{
			System:    p.System,
			Prompt:    p.Text,
			MaxTokens: p.MaxTokens,
		})
		if err != nil {
			return Response{}, NewUpstream("openai", err)
		}
		content = completion.Content
	}

	verdict, err := o.moderator.Check(ctx, content, moderation.Context{
		Feature: string(req.Feature),
		Kind:    moderation.TextKindOutput,
	})
	if err != nil {
		return Response{}, NewUpstream("moderation", err)
	}
	if !verdict.Allowed {
		slog.WarnContext(ctx, "generated output rejected by moderation",
			"reason_code", verdict.ReasonCode,
			"severity", verdict.Severity)
		return Response{}, NewContentRejected(verdict)
	}

	// Generated output passes the same topical gate as input.
	verdict, err = o.moderator.ValidateBusinessContext(ctx, content, string(req.Feature))
	if err != nil {
		return Response{}, NewUpstream("moderation", err)
	}
	if !verdict.Allowed {
		slog.WarnContext(ctx, "generated output rejected as off topic",
			"reason_code", verdict.ReasonCode)
		return Response{}, NewContentRejected(verdict)
	}

	confidence := o.scorer.Score(ctx, string(req.Feature), scoring.Input{
		Response: content,
		Context:  items,
	})

	return Response{
		Text:        content,
		Confidence:  confidence,
		ContextUsed: len(items),
		Model:       o.generator.Model(),
	}, nil
}

func (o *Orchestrator) recordAudit(ctx context.Context, requestID string, req Request, result *Result, handleErr error, latency time.Duration) {
	rec := &model.AIRequestRecord{
		RequestID: requestID,
		UserID:    req.UserID,
		Feature:   string(req.Feature),
		EntityID:  req.EntityID,
		Status:    model.RequestStatusReturned,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: time.Now(),
	}

	if handleErr != nil {
		kind := string(KindOf(handleErr))
		rec.ErrorKind = &kind
		rec.Status = statusForKind(KindOf(handleErr))
	} else {
		rec.CacheHit = result.CacheHit
		rec.Confidence = result.Payload.Confidence
	}

	// Audit uses its own deadline; the request context may already be done.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.audit.Record(auditCtx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to write audit record", "error", err)
	}
}

func statusForKind(kind Kind) model.RequestStatus {
	switch kind {
	case KindRateLimitExceeded, KindContentRejected, KindNotEligible, KindValidationError, KindNotFound:
		return model.RequestStatusRejected
	default:
		return model.RequestStatusFailed
	}
}

// asPipelineError coerces err into an *Error so every terminal error the
// orchestrator returns carries a Kind.
func asPipelineError(err error) error {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return err
	}
	return NewUpstream("internal", err)
}

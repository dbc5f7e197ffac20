package ai_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dealsense.app/coach/common/id"
	"dealsense.app/coach/common/llm"
	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/cache"
	"dealsense.app/coach/internal/model"
	"dealsense.app/coach/internal/moderation"
	"dealsense.app/coach/internal/ratelimit"
	"dealsense.app/coach/internal/retrieval"
	"dealsense.app/coach/internal/scoring"
	"dealsense.app/coach/internal/store"
)

var _ = Describe("Orchestrator", func() {
	var (
		limiter      *mockLimiter
		retriever    *mockRetriever
		generator    *mockGenerator
		audit        *mockAuditStore
		deals        *mockDealStore
		objections   *mockObjectionStore
		contacts     *mockContactStore
		interactions *mockInteractionStore
		orch         *ai.Orchestrator
		ctx          context.Context
	)

	openDeal := func(dealID string) *model.Deal {
		return &model.Deal{
			ID:       dealID,
			Name:     "Deal " + dealID,
			Industry: "software",
			Stage:    model.DealStageNegotiation,
			Value:    50000,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		Expect(id.Init(1)).To(Succeed())

		limiter = &mockLimiter{}
		retriever = &mockRetriever{}
		generator = &mockGenerator{}
		audit = &mockAuditStore{}
		objections = &mockObjectionStore{}
		contacts = &mockContactStore{}
		interactions = &mockInteractionStore{}
		deals = &mockDealStore{
			getByIDFn: func(_ context.Context, dealID string) (*model.Deal, error) {
				return openDeal(dealID), nil
			},
		}

		window := 365 * 24 * time.Hour
		band := ai.ValueBand{Low: 0.5, High: 2}
		orch = ai.NewOrchestrator(
			limiter,
			moderation.New(nil, 0),
			retriever,
			generator,
			scoring.New(nil),
			cache.New(cache.Config{DefaultTTL: time.Minute}),
			audit,
			ai.Config{
				RetrievalK:        5,
				CacheTTL:          time.Minute,
				GenerationTimeout: time.Second,
			},
			ai.NewDealCoachHandler(deals, objections, window, band),
			ai.NewObjectionHandler(deals, window),
			ai.NewContactPersonaHandler(contacts, interactions, window),
			ai.NewWinLossExplainHandler(deals, objections, window, band),
		)
	})

	coachRequest := func(dealID string) ai.Request {
		return ai.Request{
			Feature:  ai.FeatureDealCoach,
			UserID:   "user_1",
			EntityID: dealID,
		}
	}

	Describe("successful generation", func() {
		It("returns the generated response with a bounded confidence", func() {
			result, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Text).To(ContainSubstring("pricing concerns"))
			Expect(result.CacheHit).To(BeFalse())
			Expect(result.Payload.Degraded).To(BeFalse())
			Expect(result.Payload.Confidence).To(SatisfyAll(
				BeNumerically(">=", scoring.MinConfidence),
				BeNumerically("<=", scoring.MaxConfidence),
			))
			Expect(result.RequestID).NotTo(BeEmpty())
		})

		It("writes one returned audit record", func() {
			_, err := orch.Handle(ctx, coachRequest("deal_1"))
			Expect(err).NotTo(HaveOccurred())

			records := audit.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(model.RequestStatusReturned))
			Expect(records[0].Feature).To(Equal("deal_coach"))
			Expect(records[0].CacheHit).To(BeFalse())
			Expect(records[0].ErrorKind).To(BeNil())
		})
	})

	Describe("caching", func() {
		It("serves the second identical request without generating again", func() {
			first, err := orch.Handle(ctx, coachRequest("deal_1"))
			Expect(err).NotTo(HaveOccurred())

			second, err := orch.Handle(ctx, coachRequest("deal_1"))
			Expect(err).NotTo(HaveOccurred())

			Expect(generator.calls.Load()).To(Equal(int64(1)))
			Expect(second.CacheHit).To(BeTrue())
			Expect(second.Payload.Text).To(Equal(first.Payload.Text))
			Expect(second.Payload.Confidence).To(Equal(first.Payload.Confidence))
		})

		It("keeps responses for different deals separate", func() {
			generator.completeFn = func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
				for _, dealID := range []string{"deal_a", "deal_b"} {
					if strings.Contains(req.Prompt, "Deal "+dealID) {
						return &llm.CompletionResponse{Content: "advice for " + dealID}, nil
					}
				}
				return &llm.CompletionResponse{Content: "generic advice"}, nil
			}

			resultA, err := orch.Handle(ctx, coachRequest("deal_a"))
			Expect(err).NotTo(HaveOccurred())
			resultB, err := orch.Handle(ctx, coachRequest("deal_b"))
			Expect(err).NotTo(HaveOccurred())

			Expect(generator.calls.Load()).To(Equal(int64(2)))
			Expect(resultA.Payload.Text).To(Equal("advice for deal_a"))
			Expect(resultB.Payload.Text).To(Equal("advice for deal_b"))
		})

		It("coalesces concurrent identical requests into one generation", func() {
			generator.completeFn = func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				time.Sleep(50 * time.Millisecond)
				return &llm.CompletionResponse{Content: "shared advice"}, nil
			}

			const callers = 20
			var wg sync.WaitGroup
			results := make([]*ai.Result, callers)
			errs := make([]error, callers)

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = orch.Handle(ctx, coachRequest("deal_1"))
				}(i)
			}
			wg.Wait()

			Expect(generator.calls.Load()).To(Equal(int64(1)))
			for i := 0; i < callers; i++ {
				Expect(errs[i]).NotTo(HaveOccurred())
				Expect(results[i].Payload.Text).To(Equal("shared advice"))
			}
			Expect(audit.Records()).To(HaveLen(callers))
		})
	})

	Describe("admission", func() {
		It("rejects when the daily quota is exhausted", func() {
			limiter.admitFn = func(_ context.Context, _ string) (ratelimit.Decision, error) {
				return ratelimit.Decision{Allowed: false, Remaining: 0, Limit: 500}, nil
			}

			_, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(ai.KindOf(err)).To(Equal(ai.KindRateLimitExceeded))
			Expect(generator.calls.Load()).To(BeZero())
			Expect(retriever.calls.Load()).To(BeZero())

			records := audit.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(model.RequestStatusRejected))
			Expect(*records[0].ErrorKind).To(Equal("rate_limit_exceeded"))
		})

		It("fails closed when the limiter storage is down", func() {
			limiter.admitFn = func(_ context.Context, _ string) (ratelimit.Decision, error) {
				return ratelimit.Decision{}, fmt.Errorf("admit: %w", ratelimit.ErrUnavailable)
			}

			result, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(result).To(BeNil())
			Expect(ai.KindOf(err)).To(Equal(ai.KindRateLimiterUnavailable))
			Expect(generator.calls.Load()).To(BeZero())

			records := audit.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(model.RequestStatusFailed))
		})
	})

	Describe("retrieval filtering", func() {
		window := 365 * 24 * time.Hour
		band := ai.ValueBand{Low: 0.5, High: 2}

		It("bounds coaching context to won deals of comparable size", func() {
			handler := ai.NewDealCoachHandler(deals, objections, window, band)

			prep, err := handler.Prepare(ctx, coachRequest("deal_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(prep.Filters.Outcome).To(Equal(string(model.DealOutcomeWon)))
			Expect(prep.Filters.ValueMin).To(BeNumerically("==", 25000))
			Expect(prep.Filters.ValueMax).To(BeNumerically("==", 100000))
			Expect(prep.Filters.Since).To(BeTemporally("~", time.Now().Add(-window), time.Minute))
		})

		It("keeps both outcomes for win/loss analysis but bounds the value band", func() {
			deals.getByIDFn = func(_ context.Context, dealID string) (*model.Deal, error) {
				return &model.Deal{
					ID:       dealID,
					Name:     "Closed deal",
					Industry: "software",
					Stage:    model.DealStageClosedLost,
					Value:    80000,
				}, nil
			}
			handler := ai.NewWinLossExplainHandler(deals, objections, window, band)

			prep, err := handler.Prepare(ctx, ai.Request{
				Feature:  ai.FeatureWinLossExplain,
				UserID:   "user_1",
				EntityID: "deal_closed",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(prep.Filters.Outcome).To(BeEmpty())
			Expect(prep.Filters.ValueMin).To(BeNumerically("==", 40000))
			Expect(prep.Filters.ValueMax).To(BeNumerically("==", 160000))
		})
	})

	Describe("moderation", func() {
		objectionRequest := func(text string) ai.Request {
			return ai.Request{
				Feature:           ai.FeatureObjectionHandler,
				UserID:            "user_1",
				EntityID:          "deal_1",
				ObjectionText:     text,
				ObjectionCategory: "price",
			}
		}

		It("rejects threatening input before any external call", func() {
			_, err := orch.Handle(ctx, objectionRequest("I want to kill everyone in your company"))

			Expect(ai.KindOf(err)).To(Equal(ai.KindContentRejected))
			Expect(retriever.calls.Load()).To(BeZero())
			Expect(generator.calls.Load()).To(BeZero())

			var aiErr *ai.Error
			Expect(errors.As(err, &aiErr)).To(BeTrue())
			Expect(aiErr.Severity).To(Equal(moderation.SeverityCritical))
		})

		It("rejects input with no business context", func() {
			_, err := orch.Handle(ctx, objectionRequest(
				"the weather yesterday was quite lovely and my cat enjoyed sitting near the window all afternoon"))

			var aiErr *ai.Error
			Expect(errors.As(err, &aiErr)).To(BeTrue())
			Expect(aiErr.Kind).To(Equal(ai.KindContentRejected))
			Expect(aiErr.ReasonCode).To(Equal("off_topic"))
		})

		It("accepts a professional objection and generates", func() {
			result, err := orch.Handle(ctx, objectionRequest("this is too expensive for our budget"))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Text).NotTo(BeEmpty())
			Expect(generator.calls.Load()).To(Equal(int64(1)))
		})

		It("rejects generated output with no business context", func() {
			generator.completeFn = func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: "the weather was lovely and my cat sat by the window all afternoon watching birds"}, nil
			}

			_, err := orch.Handle(ctx, coachRequest("deal_1"))

			var aiErr *ai.Error
			Expect(errors.As(err, &aiErr)).To(BeTrue())
			Expect(aiErr.Kind).To(Equal(ai.KindContentRejected))
			Expect(aiErr.ReasonCode).To(Equal("off_topic"))
		})

		It("rejects generated output that fails moderation", func() {
			generator.completeFn = func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return &llm.CompletionResponse{Content: "you should kill everyone who disagrees"}, nil
			}

			_, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(ai.KindOf(err)).To(Equal(ai.KindContentRejected))

			records := audit.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(model.RequestStatusRejected))
		})
	})

	Describe("eligibility and validation", func() {
		It("rejects win/loss analysis of an open deal without touching dependencies", func() {
			_, err := orch.Handle(ctx, ai.Request{
				Feature:  ai.FeatureWinLossExplain,
				UserID:   "user_1",
				EntityID: "deal_1",
			})

			Expect(ai.KindOf(err)).To(Equal(ai.KindNotEligible))
			Expect(retriever.calls.Load()).To(BeZero())
			Expect(generator.calls.Load()).To(BeZero())
		})

		It("rejects persona requests for contacts with no interactions", func() {
			contacts.getByIDFn = func(_ context.Context, contactID string) (*model.Contact, error) {
				return &model.Contact{ID: contactID, Name: "Jo", Industry: "software"}, nil
			}

			_, err := orch.Handle(ctx, ai.Request{
				Feature:  ai.FeatureContactPersona,
				UserID:   "user_1",
				EntityID: "contact_1",
			})

			Expect(ai.KindOf(err)).To(Equal(ai.KindNotEligible))
		})

		It("returns not_found for unknown entities", func() {
			deals.getByIDFn = func(_ context.Context, _ string) (*model.Deal, error) {
				return nil, store.ErrNotFound
			}

			_, err := orch.Handle(ctx, coachRequest("deal_missing"))
			Expect(ai.KindOf(err)).To(Equal(ai.KindNotFound))
		})

		It("rejects requests without a user id", func() {
			_, err := orch.Handle(ctx, ai.Request{
				Feature:  ai.FeatureDealCoach,
				EntityID: "deal_1",
			})
			Expect(ai.KindOf(err)).To(Equal(ai.KindValidationError))
		})

		It("rejects unknown features", func() {
			_, err := orch.Handle(ctx, ai.Request{
				Feature:  ai.Feature("summarize_everything"),
				UserID:   "user_1",
				EntityID: "deal_1",
			})
			Expect(ai.KindOf(err)).To(Equal(ai.KindValidationError))
		})
	})

	Describe("structured generation", func() {
		personaRequest := ai.Request{
			Feature:  ai.FeatureContactPersona,
			UserID:   "user_1",
			EntityID: "contact_1",
		}

		BeforeEach(func() {
			contacts.getByIDFn = func(_ context.Context, contactID string) (*model.Contact, error) {
				return &model.Contact{ID: contactID, Name: "Jo", Title: "VP Finance", Company: "Acme", Industry: "software"}, nil
			}
			interactions.listByContactFn = func(_ context.Context, _ string, _ int) ([]model.Interaction, error) {
				return []model.Interaction{{Channel: "email", Summary: "asked for a pricing breakdown", OccurredAt: time.Now()}}, nil
			}
		})

		It("returns the rendered persona profile from schema-constrained output", func() {
			result, err := orch.Handle(ctx, personaRequest)

			Expect(err).NotTo(HaveOccurred())
			Expect(generator.jsonCalls.Load()).To(Equal(int64(1)))
			Expect(generator.calls.Load()).To(BeZero())
			Expect(result.Payload.Text).To(ContainSubstring("Communication style: direct and data driven"))
			Expect(result.Payload.Text).To(ContainSubstring("Priorities:"))
			Expect(result.Payload.Text).To(ContainSubstring("- pricing transparency"))
			Expect(result.Payload.Text).To(ContainSubstring("How to engage:"))
		})

		It("decodes into the profile the handler declared", func() {
			generator.completeJSONFn = func(_ context.Context, req llm.CompletionRequest, result any) (*llm.CompletionResponse, error) {
				Expect(req.SchemaName).To(Equal("persona_profile"))
				profile, ok := result.(*ai.PersonaProfile)
				Expect(ok).To(BeTrue())
				profile.CommunicationStyle = "brief and skeptical"
				profile.DecisionDrivers = []string{"total cost of ownership"}
				return &llm.CompletionResponse{FinishReason: "stop"}, nil
			}

			result, err := orch.Handle(ctx, personaRequest)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Text).To(ContainSubstring("brief and skeptical"))
			Expect(result.Payload.Text).To(ContainSubstring("- total cost of ownership"))
		})
	})

	Describe("degraded fallback", func() {
		It("returns a template response when generation fails, without caching it", func() {
			generator.completeFn = func(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
				return nil, errors.New("upstream timeout")
			}

			result, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Degraded).To(BeTrue())
			Expect(result.Payload.Confidence).To(Equal(scoring.FallbackConfidence))
			Expect(result.CacheHit).To(BeFalse())
			Expect(result.Payload.Text).To(ContainSubstring("temporarily unavailable"))

			// A later request retries generation instead of reusing the
			// fallback.
			generator.completeFn = nil
			recovered, err := orch.Handle(ctx, coachRequest("deal_1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(recovered.Payload.Degraded).To(BeFalse())
			Expect(generator.calls.Load()).To(Equal(int64(2)))
		})

		It("degrades when the moderation provider is unreachable", func() {
			moderator := &mockModerator{
				checkFn: func(_ context.Context, _ string, mctx moderation.Context) (moderation.Verdict, error) {
					return moderation.Verdict{}, errors.New("moderation provider unreachable")
				},
			}
			window := 365 * 24 * time.Hour
			failing := ai.NewOrchestrator(
				limiter,
				moderator,
				retriever,
				generator,
				scoring.New(nil),
				cache.New(cache.Config{DefaultTTL: time.Minute}),
				audit,
				ai.Config{RetrievalK: 5, CacheTTL: time.Minute, GenerationTimeout: time.Second},
				ai.NewObjectionHandler(deals, window),
			)

			result, err := failing.Handle(ctx, ai.Request{
				Feature:           ai.FeatureObjectionHandler,
				UserID:            "user_1",
				EntityID:          "deal_1",
				ObjectionText:     "this is too expensive for our budget",
				ObjectionCategory: "price",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Degraded).To(BeTrue())
			Expect(result.Payload.Confidence).To(Equal(scoring.FallbackConfidence))
			Expect(result.Payload.Text).To(ContainSubstring("temporarily unavailable"))
			Expect(retriever.calls.Load()).To(BeZero())
			Expect(generator.calls.Load()).To(BeZero())

			records := audit.Records()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal(model.RequestStatusReturned))
		})

		It("degrades when retrieval fails", func() {
			retriever.retrieveFn = func(_ context.Context, _ retrieval.Query, _ int, _ retrieval.Filters) ([]retrieval.ContextItem, error) {
				return nil, errors.New("vector store unreachable")
			}

			result, err := orch.Handle(ctx, coachRequest("deal_1"))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Payload.Degraded).To(BeTrue())
			Expect(generator.calls.Load()).To(BeZero())
		})
	})
})

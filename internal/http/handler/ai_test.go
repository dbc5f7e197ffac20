package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/http/handler"
	"dealsense.app/coach/internal/http/middleware"
	"dealsense.app/coach/internal/queue"
	"dealsense.app/coach/internal/ratelimit"
)

var _ = Describe("AIHandler", func() {
	var (
		router   *gin.Engine
		pipeline *mockPipeline
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		pipeline = &mockPipeline{}
		h := handler.NewAIHandler(pipeline)

		router = gin.New()
		group := router.Group("/ai")
		group.Use(middleware.RequireUser())
		group.GET("/deals/:id/coach", h.CoachDeal)
		group.GET("/deals/:id/explain", h.ExplainDeal)
		group.GET("/contacts/:id/persona", h.ContactPersona)
		group.POST("/objections/handle", h.HandleObjection)
	})

	do := func(method, path string, body []byte, withUser bool) *httptest.ResponseRecorder {
		var req *http.Request
		if body != nil {
			req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		if withUser {
			req.Header.Set("X-User-ID", "user_1")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns the envelope with meta and rate limit headers on success", func() {
		pipeline.handleFn = func(_ context.Context, req ai.Request) (*ai.Result, error) {
			Expect(req.Feature).To(Equal(ai.FeatureDealCoach))
			Expect(req.UserID).To(Equal("user_1"))
			Expect(req.EntityID).To(Equal("deal_1"))
			return &ai.Result{
				RequestID: "req_42",
				Payload:   ai.Response{Text: "advance the deal", Confidence: 70, ContextUsed: 3},
				CacheHit:  true,
				RateLimit: ratelimit.Decision{Allowed: true, Remaining: 12, Limit: 500},
			}, nil
		}

		w := do(http.MethodGet, "/ai/deals/deal_1/coach", nil, true)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Header().Get("X-RateLimit-Remaining")).To(Equal("12"))
		Expect(w.Header().Get("X-RateLimit-Limit")).To(Equal("500"))

		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["success"]).To(BeTrue())
		meta := resp["meta"].(map[string]any)
		Expect(meta["request_id"]).To(Equal("req_42"))
		Expect(meta["cache_hit"]).To(BeTrue())
		Expect(meta["confidence"]).To(BeNumerically("==", 70))
	})

	It("requires the user header", func() {
		w := do(http.MethodGet, "/ai/deals/deal_1/coach", nil, false)
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("maps rate limiting to 429", func() {
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			return nil, ai.NewRateLimited(500, 0)
		}

		w := do(http.MethodGet, "/ai/deals/deal_1/coach", nil, true)

		Expect(w.Code).To(Equal(http.StatusTooManyRequests))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["success"]).To(BeFalse())
		errBody := resp["error"].(map[string]any)
		Expect(errBody["code"]).To(Equal("rate_limit_exceeded"))
	})

	It("maps content rejection to 422 with the reason code", func() {
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			return nil, &ai.Error{
				Kind:       ai.KindContentRejected,
				Message:    "content failed moderation",
				ReasonCode: "explicit_threat",
			}
		}

		body, _ := json.Marshal(map[string]string{"deal_id": "deal_1", "text": "some objection", "category": "price"})
		w := do(http.MethodPost, "/ai/objections/handle", body, true)

		Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
		var resp map[string]any
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		errBody := resp["error"].(map[string]any)
		Expect(errBody["reason_code"]).To(Equal("explicit_threat"))
	})

	It("rejects an objection without text before reaching the pipeline", func() {
		called := false
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			called = true
			return nil, nil
		}

		body, _ := json.Marshal(map[string]string{"deal_id": "deal_1", "category": "price"})
		w := do(http.MethodPost, "/ai/objections/handle", body, true)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(called).To(BeFalse())
	})

	It("forwards objection text and category", func() {
		var captured ai.Request
		pipeline.handleFn = func(_ context.Context, req ai.Request) (*ai.Result, error) {
			captured = req
			return &ai.Result{RequestID: "req_1", Payload: ai.Response{Text: "ok"}}, nil
		}

		body, _ := json.Marshal(map[string]string{"deal_id": "deal_9", "text": "too expensive", "category": "price", "severity": "high"})
		w := do(http.MethodPost, "/ai/objections/handle", body, true)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(captured.Feature).To(Equal(ai.FeatureObjectionHandler))
		Expect(captured.EntityID).To(Equal("deal_9"))
		Expect(captured.ObjectionText).To(Equal("too expensive"))
		Expect(captured.ObjectionCategory).To(Equal("price"))
		Expect(captured.ObjectionSeverity).To(Equal("high"))
	})

	It("maps ineligibility to 409", func() {
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			return nil, ai.NewNotEligible("deal is not closed yet")
		}

		w := do(http.MethodGet, "/ai/deals/deal_1/explain", nil, true)
		Expect(w.Code).To(Equal(http.StatusConflict))
	})

	It("maps missing entities to 404", func() {
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			return nil, ai.NewNotFound("contact")
		}

		w := do(http.MethodGet, "/ai/contacts/contact_1/persona", nil, true)
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("maps limiter outages to 503", func() {
		pipeline.handleFn = func(_ context.Context, _ ai.Request) (*ai.Result, error) {
			return nil, ai.NewLimiterUnavailable(context.DeadlineExceeded)
		}

		w := do(http.MethodGet, "/ai/deals/deal_1/coach", nil, true)
		Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
	})
})

var _ = Describe("EventHandler", func() {
	var (
		router   *gin.Engine
		producer *mockProducer
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		producer = &mockProducer{}
		router = gin.New()
		router.POST("/internal/events", handler.NewEventHandler(producer).Ingest)
	})

	It("accepts a valid entity event", func() {
		var captured queue.EntityEvent
		producer.enqueueFn = func(_ context.Context, event queue.EntityEvent) error {
			captured = event
			return nil
		}

		body, _ := json.Marshal(map[string]string{
			"entity_type": "deal",
			"entity_id":   "deal_1",
			"change_type": "closed",
			"stage":       "closed_won",
		})
		req := httptest.NewRequest(http.MethodPost, "/internal/events", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		Expect(captured.EntityType).To(Equal(queue.EntityTypeDeal))
		Expect(captured.ChangeType).To(Equal(queue.ChangeTypeClosed))
		Expect(captured.Stage).To(Equal("closed_won"))
	})

	It("rejects unknown entity types", func() {
		body, _ := json.Marshal(map[string]string{
			"entity_type": "invoice",
			"entity_id":   "inv_1",
			"change_type": "updated",
		})
		req := httptest.NewRequest(http.MethodPost, "/internal/events", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})

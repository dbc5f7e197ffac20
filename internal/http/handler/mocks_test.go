package handler_test

import (
	"context"

	"dealsense.app/coach/internal/ai"
	"dealsense.app/coach/internal/queue"
)

type mockPipeline struct {
	handleFn func(ctx context.Context, req ai.Request) (*ai.Result, error)
}

func (m *mockPipeline) Handle(ctx context.Context, req ai.Request) (*ai.Result, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, req)
	}
	return &ai.Result{RequestID: "req_1"}, nil
}

type mockProducer struct {
	enqueueFn func(ctx context.Context, event queue.EntityEvent) error
}

func (m *mockProducer) Enqueue(ctx context.Context, event queue.EntityEvent) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, event)
	}
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}

package llm

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by the disabled client used when no provider is
// configured.
var ErrUnavailable = errors.New("llm provider not configured")

type unavailableClient struct{}

// NewUnavailableClient returns a Client whose every call fails with
// ErrUnavailable. It keeps development environments without an API key
// runnable: callers degrade the same way they would on a provider outage.
func NewUnavailableClient() Client {
	return unavailableClient{}
}

func (unavailableClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return nil, ErrUnavailable
}

func (unavailableClient) CompleteJSON(ctx context.Context, req CompletionRequest, result any) (*CompletionResponse, error) {
	return nil, ErrUnavailable
}

func (unavailableClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrUnavailable
}

func (unavailableClient) Classify(ctx context.Context, text string) (*Classification, error) {
	return nil, ErrUnavailable
}

func (unavailableClient) Model() string {
	return "unavailable"
}

package llm

import (
	"context"

	"github.com/invopop/jsonschema"
)

// Client exposes the external model capabilities the pipeline consumes:
// text generation, embedding, and content classification.
type Client interface {
	// Complete generates free-form text for a prompt.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// CompleteJSON generates a response constrained to the JSON schema of
	// result and unmarshals into it.
	CompleteJSON(ctx context.Context, req CompletionRequest, result any) (*CompletionResponse, error)
	// Embed converts text into a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Classify runs the provider's moderation classifier over text.
	Classify(ctx context.Context, text string) (*Classification, error)
	// Model returns the generation model name.
	Model() string
}

// CompletionRequest is a single-turn generation request.
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	// SchemaName labels the response format for CompleteJSON.
	SchemaName string
}

// CompletionResponse carries the generated text and usage accounting.
type CompletionResponse struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Classification is the provider moderation verdict, normalized to
// category names with scores.
type Classification struct {
	Flagged    bool
	Categories []string
	Scores     map[string]float64
}

// EmbeddingDimensions is the vector width produced by the embedding model.
const EmbeddingDimensions = 1536

// GenerateSchemaFrom generates a JSON schema from an instance value, used to
// build the structured-output response format for CompleteJSON.
func GenerateSchemaFrom(v any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(v)
}

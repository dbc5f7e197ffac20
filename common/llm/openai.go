package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"dealsense.app/coach/core/config"
)

type openaiClient struct {
	client          openai.Client
	chatModel       string
	embeddingModel  string
	moderationModel string
}

// NewOpenAIClient creates a Client backed by the OpenAI API.
func NewOpenAIClient(cfg config.OpenAIConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	moderationModel := cfg.ModerationModel
	if moderationModel == "" {
		moderationModel = "omni-moderation-latest"
	}

	return &openaiClient{
		client:          openai.NewClient(opts...),
		chatModel:       chatModel,
		embeddingModel:  embeddingModel,
		moderationModel: moderationModel,
	}, nil
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.completionParams(req))
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	return c.toResponse(ctx, resp)
}

func (c *openaiClient) CompleteJSON(ctx context.Context, req CompletionRequest, result any) (*CompletionResponse, error) {
	params := c.completionParams(req)

	schemaName := req.SchemaName
	if schemaName == "" {
		schemaName = "response"
	}

	var schema shared.FunctionParameters
	data, _ := json.Marshal(GenerateSchemaFrom(result))
	_ = json.Unmarshal(data, &schema)

	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   schemaName,
				Schema: schema,
				Strict: openai.Bool(true),
			},
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai structured completion: %w", err)
	}

	out, err := c.toResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(out.Content), result); err != nil {
		return nil, fmt.Errorf("unmarshaling structured response: %w", err)
	}

	return out, nil
}

func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	slog.DebugContext(ctx, "embedding completed",
		"model", c.embeddingModel,
		"duration_ms", time.Since(start).Milliseconds())

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vector[i] = float32(v)
	}
	return vector, nil
}

func (c *openaiClient) Classify(ctx context.Context, text string) (*Classification, error) {
	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Model: c.moderationModel,
		Input: openai.ModerationNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai moderation: %w", err)
	}

	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no moderation result in response")
	}

	result := resp.Results[0]
	out := &Classification{
		Flagged: result.Flagged,
		Scores:  make(map[string]float64),
	}

	// The SDK exposes categories as a struct of booleans; going through JSON
	// keeps the category names aligned with the wire format.
	var flags map[string]bool
	if data, err := json.Marshal(result.Categories); err == nil {
		_ = json.Unmarshal(data, &flags)
	}
	for name, flagged := range flags {
		if flagged {
			out.Categories = append(out.Categories, name)
		}
	}

	var scores map[string]float64
	if data, err := json.Marshal(result.CategoryScores); err == nil {
		_ = json.Unmarshal(data, &scores)
	}
	for name, score := range scores {
		out.Scores[name] = score
	}

	return out, nil
}

func (c *openaiClient) Model() string {
	return c.chatModel
}

func (c *openaiClient) completionParams(req CompletionRequest) openai.ChatCompletionNewParams {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 800
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               c.chatModel,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	return params
}

func (c *openaiClient) toResponse(ctx context.Context, resp *openai.ChatCompletion) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]

	slog.DebugContext(ctx, "completion finished",
		"model", c.chatModel,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", choice.FinishReason)

	return &CompletionResponse{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

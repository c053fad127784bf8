package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"crewtui/config"
	"crewtui/mcp"
	"crewtui/model"
)

// OpenRouterProvider implements model.Provider against OpenRouter's API,
// which is OpenAI-compatible. The difference from OpenAIProvider is leak
// handling: OpenRouter fronts many models, some of which emit tool calls as
// text instead of through the API.
type OpenRouterProvider struct {
	client       openai.Client
	defaultModel string
	baseURL      string
}

func NewOpenRouterProvider(baseURL, apiKey, defaultModel string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if defaultModel == "" {
		defaultModel = "meta-llama/llama-3.2-90b-instruct"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenRouterProvider{
		client:       client,
		defaultModel: defaultModel,
		baseURL:      baseURL,
	}, nil
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

// shouldSkipToolInstructions checks if a model breaks with explicit tool
// instructions. Some models understand tools natively and leak XML when
// prompted explicitly.
func shouldSkipToolInstructions(modelName string) bool {
	modelLower := strings.ToLower(modelName)

	skipInstructions := []string{
		"qwen",
	}

	for _, prefix := range skipInstructions {
		if strings.Contains(modelLower, prefix) {
			return true
		}
	}

	return false
}

// Chat implements model.Provider.Chat with streaming and leak detection.
func (p *OpenRouterProvider) Chat(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) error {
	modelName := req.Model
	if modelName == "" {
		modelName = p.defaultModel
	}

	messages := req.Messages
	if len(req.Tools) > 0 && !shouldSkipToolInstructions(modelName) {
		toolInstruction := model.Message{
			Role:    "system",
			Content: buildToolInstructions(req.Tools),
		}
		messages = append([]model.Message{toolInstruction}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(modelName),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ToOpenAITools(req.Tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	var apiToolCallsDetected bool
	var contentBuilder strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			apiToolCallsDetected = true
			if callback != nil {
				toolCall := model.ToolCall{
					Name:      tool.Name,
					Arguments: ParseToolArguments(tool.Arguments),
				}
				if err := callback("", []model.ToolCall{toolCall}); err != nil {
					return err
				}
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content := chunk.Choices[0].Delta.Content
			contentBuilder.WriteString(content)
			if callback != nil {
				if err := callback(content, nil); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenRouter streaming error: %w", err)
	}

	// Some models emit tool calls as text instead of through the API
	if !apiToolCallsDetected && callback != nil {
		if leakedCalls := recoverLeakedToolCalls(contentBuilder.String()); len(leakedCalls) > 0 {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[OpenRouter] Model '%s' leaked %d tool calls as text", modelName, len(leakedCalls))
			}
			return callback("", leakedCalls)
		}
	}

	return nil
}

// Ping implements model.Provider.Ping by listing models.
func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

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

// OpenAIProvider implements model.Provider using the official OpenAI SDK.
type OpenAIProvider struct {
	client       openai.Client
	defaultModel string
	baseURL      string
	name         string
}

// NewOpenAIProvider creates an OpenAI provider. baseURL defaults to the
// public API; apiKey is required.
func NewOpenAIProvider(baseURL, apiKey, defaultModel string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client:       client,
		defaultModel: defaultModel,
		baseURL:      baseURL,
		name:         "openai",
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

// Chat implements model.Provider.Chat with streaming support.
func (p *OpenAIProvider) Chat(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) error {
	messages := req.Messages
	if len(req.Tools) > 0 {
		toolInstruction := model.Message{
			Role:    "system",
			Content: buildToolInstructions(req.Tools),
		}
		messages = append([]model.Message{toolInstruction}, messages...)
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.defaultModel
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
			contentBuilder.WriteString(chunk.Choices[0].Delta.Content)
			if callback != nil {
				if err := callback(chunk.Choices[0].Delta.Content, nil); err != nil {
					return err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	// Compatible backends behind a custom base URL can leak tool calls as text.
	if !apiToolCallsDetected && callback != nil {
		if leakedCalls := recoverLeakedToolCalls(contentBuilder.String()); len(leakedCalls) > 0 {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[%s] Model '%s' leaked %d tool calls as text", p.name, modelName, len(leakedCalls))
			}
			return callback("", leakedCalls)
		}
	}

	return nil
}

// Ping implements model.Provider.Ping by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("%s ping failed: %w", p.name, err)
	}
	return nil
}

// toOpenAIMessages converts crew messages to OpenAI chat completion params.
// Tool results are framed as user messages; the strict tool role would
// require replaying the originating assistant tool_calls, which the API
// rejects when absent.
func toOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "assistant":
			result = append(result, openai.AssistantMessage(msg.Content))
		case "tool":
			result = append(result, openai.UserMessage(fmt.Sprintf("[tool result: %s]\n%s", msg.ToolName, msg.Content)))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}

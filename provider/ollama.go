package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"crewtui/config"
	"crewtui/mcp"
	"crewtui/model"
	"crewtui/ollama"
)

// OllamaProvider wraps ollama.Client to implement model.Provider. All
// conversions between crew types and Ollama API types happen here.
type OllamaProvider struct {
	client *ollama.Client
}

func NewOllamaProvider(baseURL, defaultModel string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, defaultModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Chat implements model.Provider.Chat. Models without native tool calling
// get the tools described in the prompt instead, and calls they print into
// the response text are recovered afterwards.
func (p *OllamaProvider) Chat(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) error {
	modelName := req.Model
	if modelName == "" {
		modelName = p.client.GetModel()
	}

	messages := req.Messages
	toolCapable := ollama.ModelSupportsToolCalling(modelName)

	var ollamaTools []api.Tool
	if len(req.Tools) > 0 {
		if toolCapable {
			ollamaTools = mcp.ToOllamaTools(req.Tools)
		} else {
			toolInstruction := model.Message{
				Role:    "system",
				Content: buildToolInstructions(req.Tools),
			}
			messages = append([]model.Message{toolInstruction}, messages...)
		}
	}

	var nativeCalls bool
	var contentBuilder strings.Builder

	ollamaCallback := func(chunk string, ollamaCalls []api.ToolCall) error {
		if len(ollamaCalls) > 0 {
			nativeCalls = true
		}
		contentBuilder.WriteString(chunk)
		if callback == nil {
			return nil
		}
		return callback(chunk, FromOllamaToolCalls(ollamaCalls))
	}

	if err := p.client.ChatWithTools(ctx, modelName, req.Temperature, ToOllamaMessages(messages), ollamaTools, ollamaCallback); err != nil {
		return err
	}

	if len(req.Tools) > 0 && !toolCapable && !nativeCalls && callback != nil {
		if leakedCalls := recoverLeakedToolCalls(contentBuilder.String()); len(leakedCalls) > 0 {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Ollama] Model '%s' leaked %d tool calls as text", modelName, len(leakedCalls))
			}
			return callback("", leakedCalls)
		}
	}

	return nil
}

// Ping implements model.Provider.Ping.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// ListModels returns the models available on the Ollama server.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xxxsen/mtutor/internal/model"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type openAIConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type openAIProvider struct {
	name   string
	apiKey string
	client *openai.Client
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(modelName),
		Input: []string{text},
	})
	if err != nil {
		return nil, unavailable(p.name, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, unavailable(p.name, fmt.Errorf("openai response has no embeddings"))
	}
	raw := resp.Data[0].Embedding
	out := make([]float32, len(raw))
	for i := range raw {
		out[i] = float32(raw[i])
	}
	return out, nil
}

func (p *openAIProvider) Chat(ctx context.Context, modelName string, req *ChatRequest) (string, error) {
	if p.apiKey == "" {
		return "", ErrUnavailable
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := openai.ChatMessageRoleUser
		if msg.Role == model.ChatRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: messages,
	})
	if err != nil {
		return "", unavailable(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", unavailable(p.name, fmt.Errorf("openai response has no choices"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func newOpenAIProvider(name, defaultBaseURL string, args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	return &openAIProvider{
		name:   name,
		apiKey: apiKey,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

func init() {
	RegisterEmbed("openai", func(args interface{}) (IEmbedProvider, error) {
		return newOpenAIProvider("openai", defaultOpenAIBaseURL, args)
	})
	RegisterChat("openai", func(args interface{}) (IChatProvider, error) {
		return newOpenAIProvider("openai", defaultOpenAIBaseURL, args)
	})
}

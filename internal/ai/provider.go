package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xxxsen/mtutor/internal/model"
)

// ErrUnavailable marks a provider call that failed for reasons outside the caller's
// control: missing credentials, network errors, quota, empty responses.
var ErrUnavailable = errors.New("ai provider unavailable")

const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

type IEmbedProvider interface {
	Name() string
	Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error)
}

type IChatProvider interface {
	Name() string
	Chat(ctx context.Context, model string, req *ChatRequest) (string, error)
}

type ChatRequest struct {
	System   string
	Messages []model.ChatMessage
}

type IEmbedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	// ModelName identifies the embedding space, "<provider>:<model>".
	ModelName() string
}

type IGenerator interface {
	Chat(ctx context.Context, req *ChatRequest) (string, error)
}

type embedder struct {
	provider IEmbedProvider
	model    string
}

func NewEmbedder(p IEmbedProvider, model string) IEmbedder {
	return &embedder{provider: p, model: model}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.provider.Embed(ctx, e.model, text, taskType)
}

func (e *embedder) ModelName() string {
	return e.provider.Name() + ":" + e.model
}

type generator struct {
	provider IChatProvider
	model    string
}

func NewGenerator(p IChatProvider, model string) IGenerator {
	return &generator{provider: p, model: model}
}

func (g *generator) Chat(ctx context.Context, req *ChatRequest) (string, error) {
	return g.provider.Chat(ctx, g.model, req)
}

type EmbedProviderFactory func(args interface{}) (IEmbedProvider, error)

type ChatProviderFactory func(args interface{}) (IChatProvider, error)

var (
	registryMu    sync.RWMutex
	embedRegistry = map[string]EmbedProviderFactory{}
	chatRegistry  = map[string]ChatProviderFactory{}
)

func RegisterEmbed(name string, factory EmbedProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	embedRegistry[key] = factory
	registryMu.Unlock()
}

func RegisterChat(name string, factory ChatProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	chatRegistry[key] = factory
	registryMu.Unlock()
}

func NewEmbedProvider(name string, args interface{}) (IEmbedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai embed provider is required")
	}
	registryMu.RLock()
	factory := embedRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported embed provider: %s", name)
	}
	return factory(args)
}

func NewChatProvider(name string, args interface{}) (IChatProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai chat provider is required")
	}
	registryMu.RLock()
	factory := chatRegistry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported chat provider: %s", name)
	}
	return factory(args)
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, provider, err)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

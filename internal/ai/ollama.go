package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaServerURL = "http://localhost:11434"

type ollamaConfig struct {
	ServerURL string `json:"server_url"`
}

// ollamaProvider keeps one langchaingo client per model.
type ollamaProvider struct {
	serverURL string

	mu      sync.Mutex
	clients map[string]*ollama.LLM
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) llm(modelName string) (*ollama.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[modelName]; ok {
		return c, nil
	}
	c, err := ollama.New(ollama.WithModel(modelName), ollama.WithServerURL(p.serverURL))
	if err != nil {
		return nil, err
	}
	p.clients[modelName] = c
	return c, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	c, err := p.llm(modelName)
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	vecs, err := c.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, unavailable(p.Name(), err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, unavailable(p.Name(), fmt.Errorf("no embedding values returned"))
	}
	return vecs[0], nil
}

func createOllamaEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &ollamaConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = defaultOllamaServerURL
	}
	return &ollamaProvider{
		serverURL: serverURL,
		clients:   make(map[string]*ollama.LLM),
	}, nil
}

func init() {
	RegisterEmbed("ollama", createOllamaEmbedFactory)
}

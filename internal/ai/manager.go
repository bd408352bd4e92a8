package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/mtutor/internal/model"
)

const defaultSystemPrompt = `You are a professional Pilates coach. Answer the student's questions in a gentle, professional and encouraging tone.

When a student asks a question:
1. Give accurate Pilates fundamentals and movement technique.
2. Stress the key points such as core engagement and breathing.
3. Remind the student of safety precautions.
4. Give clear practice guidance, for example sets and repetitions.
5. If the question is unrelated to Pilates, fitness or health, gently steer back to Pilates training.

Reply in Markdown and use bold text and lists to make the key points clear.

- When reference material is provided, answer from the material first.
- Link videos as [title](url) and images as ![description](url).`

type ManagerConfig struct {
	Timeout      int
	SystemPrompt string
}

// Manager turns a chat turn plus the retrieved material into a generator call.
type Manager struct {
	generator IGenerator
	cfg       ManagerConfig
}

func NewManager(generator IGenerator, cfg ManagerConfig) *Manager {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Manager{generator: generator, cfg: cfg}
}

// BuildSystemPrompt appends the material block to the base prompt. The no-material hint is
// only added for a non-empty query that matched no fragment.
func (m *Manager) BuildSystemPrompt(material string, query string, hasMaterial bool) string {
	prompt := m.cfg.SystemPrompt + material
	if !hasMaterial && strings.TrimSpace(query) != "" {
		prompt += fmt.Sprintf("\n\n[Current situation]: no teaching material matched %q. Answer from general knowledge and say so; only recommend videos with real links.", query)
	}
	return prompt
}

func (m *Manager) Reply(ctx context.Context, messages []model.ChatMessage, system string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("%w: generator not configured", ErrUnavailable)
	}
	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := m.generator.Chat(ctx, &ChatRequest{System: system, Messages: messages})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty ai response", ErrUnavailable)
	}
	return text, nil
}

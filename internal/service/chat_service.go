package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/ai"
	"github.com/xxxsen/mtutor/internal/guard"
	"github.com/xxxsen/mtutor/internal/model"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
	"github.com/xxxsen/mtutor/internal/search"
)

type ChatReply struct {
	Reply   string   `json:"reply"`
	Sources []Source `json:"sources"`
}

type ChatService struct {
	validator *guard.Validator
	retrieval *RetrievalService
	manager   *ai.Manager
	topK      int
}

func NewChatService(validator *guard.Validator, retrieval *RetrievalService, manager *ai.Manager, topK int) *ChatService {
	if topK <= 0 {
		topK = search.DefaultChatTopK
	}
	return &ChatService{validator: validator, retrieval: retrieval, manager: manager, topK: topK}
}

// CheckQuery bounds a search query by the chat input limit.
func (s *ChatService) CheckQuery(query string) error {
	return s.validator.CheckLength(query)
}

// Chat answers the last message of the conversation. A user message that fails validation
// is returned as *guard.RejectedError before anything else runs.
func (s *ChatService) Chat(ctx context.Context, messages []model.ChatMessage) (*ChatReply, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: messages are required", appErr.ErrInvalid)
	}
	last := messages[len(messages)-1]
	if last.Role == model.ChatRoleUser {
		if err := s.validator.Check(last.Content); err != nil {
			return nil, err
		}
	}
	query := last.Content
	retrieved := s.retrieval.BuildContext(ctx, query, s.topK)
	system := s.manager.BuildSystemPrompt(retrieved.Text, query, retrieved.HasMaterial)
	reply, err := s.manager.Reply(ctx, messages, system)
	if err != nil {
		logutil.GetLogger(ctx).Error("generate reply failed", zap.Error(err))
		return nil, err
	}
	sources := make([]Source, 0, len(retrieved.Sources))
	for _, src := range retrieved.Sources {
		src.Content = ""
		sources = append(sources, src)
	}
	return &ChatReply{Reply: reply, Sources: sources}, nil
}

package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/errcode"
	"github.com/xxxsen/mtutor/internal/pkg/response"
	"github.com/xxxsen/mtutor/internal/search"
	"github.com/xxxsen/mtutor/internal/service"
)

const maxListLimit = 100

type ChatHandler struct {
	chat      *service.ChatService
	retrieval *service.RetrievalService
	documents *service.DocumentService
	listTopK  int
}

func NewChatHandler(chat *service.ChatService, retrieval *service.RetrievalService, documents *service.DocumentService, listTopK int) *ChatHandler {
	if listTopK <= 0 {
		listTopK = search.DefaultListTopK
	}
	return &ChatHandler{chat: chat, retrieval: retrieval, documents: documents, listTopK: listTopK}
}

type chatRequest struct {
	Messages []model.ChatMessage `json:"messages" binding:"required,min=1,dive"`
}

func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	reply, err := h.chat.Chat(c.Request.Context(), req.Messages)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, reply)
}

func (h *ChatHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if err := h.chat.CheckQuery(query); err != nil {
		handleError(c, err)
		return
	}
	limit := h.listTopK
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			response.Error(c, errcode.ErrInvalid, "invalid limit")
			return
		}
		limit = min(v, maxListLimit)
	}
	sources := h.retrieval.Search(c.Request.Context(), query, limit)
	if sources == nil {
		sources = []service.Source{}
	}
	response.Success(c, gin.H{"items": sources})
}

func (h *ChatHandler) IngestStats(c *gin.Context) {
	stats, err := h.documents.Stats(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

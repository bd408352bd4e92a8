package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mtutor/internal/filestore"
	"github.com/xxxsen/mtutor/internal/model"
	"github.com/xxxsen/mtutor/internal/pkg/errcode"
	"github.com/xxxsen/mtutor/internal/pkg/response"
	"github.com/xxxsen/mtutor/internal/service"
)

const (
	materialPrefix = "documents"
	textPrefix     = "texts"
)

type DocumentHandler struct {
	documents *service.DocumentService
	store     filestore.Store
}

func NewDocumentHandler(documents *service.DocumentService, store filestore.Store) *DocumentHandler {
	return &DocumentHandler{documents: documents, store: store}
}

// documentRequest is accepted as JSON, or as a multipart form carrying the material in
// "file" and optional pre-extracted text in "text_file".
type documentRequest struct {
	Title       string             `json:"title" form:"title" binding:"required"`
	Type        model.DocumentType `json:"type" form:"type" binding:"required"`
	Description string             `json:"description" form:"description"`
	Link        string             `json:"link" form:"link"`
	FileKey     string             `json:"file_key" form:"file_key"`
	TextKey     string             `json:"text_key" form:"text_key"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	doc := &model.Document{
		Title:       req.Title,
		Type:        req.Type,
		Description: req.Description,
		Link:        req.Link,
		FileKey:     req.FileKey,
		TextKey:     req.TextKey,
	}
	if file, err := c.FormFile("file"); err == nil {
		key, err := h.save(c, materialPrefix, file)
		if err != nil {
			response.Error(c, errcode.ErrInternal, "failed to store file")
			return
		}
		doc.FileKey = key
		doc.FileName = file.Filename
		doc.FileSize = file.Size
		doc.MimeType = file.Header.Get("Content-Type")
	}
	if file, err := c.FormFile("text_file"); err == nil {
		key, err := h.save(c, textPrefix, file)
		if err != nil {
			response.Error(c, errcode.ErrInternal, "failed to store text")
			return
		}
		doc.TextKey = key
	}
	res, err := h.documents.Register(c.Request.Context(), doc)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *DocumentHandler) save(c *gin.Context, prefix string, file *multipart.FileHeader) (string, error) {
	opened, err := file.Open()
	if err != nil {
		return "", err
	}
	defer opened.Close()
	key := filestore.BuildKey(prefix, file.Filename)
	if err := h.store.Save(c.Request.Context(), key, opened, file.Size); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("store upload failed", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return key, nil
}

func (h *DocumentHandler) List(c *gin.Context) {
	offset, limit := uint(0), uint(maxListLimit)
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			offset = uint(parsed)
		}
	}
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 && parsed < maxListLimit {
			limit = uint(parsed)
		}
	}
	docs, err := h.documents.List(c.Request.Context(), offset, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	if docs == nil {
		docs = []*model.Document{}
	}
	response.Success(c, gin.H{"items": docs})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Reingest(c *gin.Context) {
	queued, err := h.documents.Reingest(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"queued": queued})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}

func (h *DocumentHandler) Videos(c *gin.Context) {
	videos, err := h.documents.Videos(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	items := make([]gin.H, 0, len(videos))
	for _, video := range videos {
		link := video.Link
		if link == "" && video.FileKey != "" {
			link = h.store.URL(video.FileKey)
		}
		items = append(items, gin.H{
			"id":          video.ID,
			"title":       video.Title,
			"description": video.Description,
			"link":        link,
		})
	}
	response.Success(c, gin.H{"items": items})
}

// File streams a stored object. It backs the links handed out for the local store.
func (h *DocumentHandler) File(c *gin.Context) {
	key := trimKey(c.Param("key"))
	if !filestore.ValidKey(key) {
		c.Status(http.StatusBadRequest)
		return
	}
	file, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer file.Close()
	c.Header("Content-Type", contentTypeOf(key))
	if _, err := io.Copy(c.Writer, file); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		logutil.GetLogger(c.Request.Context()).Warn("stream file failed", zap.String("key", key), zap.Error(err))
	}
}

package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mtutor/internal/config"
	"github.com/xxxsen/mtutor/internal/filestore"
	"github.com/xxxsen/mtutor/internal/ingest"
	"github.com/xxxsen/mtutor/internal/middleware"
	"github.com/xxxsen/mtutor/internal/model"
	appErr "github.com/xxxsen/mtutor/internal/pkg/errors"
	"github.com/xxxsen/mtutor/internal/pkg/jwt"
	"github.com/xxxsen/mtutor/internal/ratelimit"
	"github.com/xxxsen/mtutor/internal/service"
)

type memDocs struct {
	mu    sync.Mutex
	items map[string]*model.Document
}

func (m *memDocs) Create(ctx context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[doc.ID] = doc
	return nil
}

func (m *memDocs) GetByID(ctx context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

func (m *memDocs) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *memDocs) List(ctx context.Context, offset, limit uint) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0, len(m.items))
	for _, doc := range m.items {
		out = append(out, doc)
	}
	return out, nil
}

func (m *memDocs) ListByType(ctx context.Context, docType model.DocumentType) ([]*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Document
	for _, doc := range m.items {
		if doc.Type == docType {
			out = append(out, doc)
		}
	}
	return out, nil
}

type recordingQueue struct {
	submitted []string
}

func (q *recordingQueue) Submit(doc *model.Document) error {
	q.submitted = append(q.submitted, doc.ID)
	return nil
}

func (q *recordingQueue) Stats() ingest.Stats { return ingest.Stats{} }

const adminSecret = "admin-secret"

func newDocumentRouter(t *testing.T) (*gin.Engine, *memDocs, *recordingQueue) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	docs := &memDocs{items: map[string]*model.Document{}}
	queue := &recordingQueue{}
	documents := service.NewDocumentService(docs, queue, nil, "hash-256")

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Chat:      NewChatHandler(nil, nil, documents, 0),
		Documents: NewDocumentHandler(documents, store),
		Limiter:   ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.Config{MaxRequests: -1}),
		JWTSecret: []byte(adminSecret),
	})
	return r, docs, queue
}

func adminToken(t *testing.T, role string) string {
	token, err := jwt.GenerateToken("coach", role, []byte(adminSecret), time.Hour)
	require.NoError(t, err)
	return token
}

func TestAdminUploadRegistersAndServesFile(t *testing.T) {
	r, docs, queue := newDocumentRouter(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("title", "Breathing basics"))
	require.NoError(t, mw.WriteField("type", "doc"))
	part, err := mw.CreateFormFile("file", "breathing.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Breathe\n\nInhale through the nose."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.RoleAdmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, queue.submitted, 1)

	doc, err := docs.GetByID(context.Background(), queue.submitted[0])
	require.NoError(t, err)
	require.Equal(t, "breathing.md", doc.FileName)
	require.True(t, strings.HasPrefix(doc.FileKey, "documents/"))
	require.True(t, strings.HasSuffix(doc.FileKey, ".md"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/files/"+doc.FileKey, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Inhale through the nose.")
}

func TestAdminRoutesNeedAdminRole(t *testing.T) {
	r, docs, _ := newDocumentRouter(t)
	payload := `{"title":"Plank","type":"video","link":"https://example.com/plank"}`

	for _, token := range []string{"", adminToken(t, "")} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/documents", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Empty(t, docs.items)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/documents", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+adminToken(t, middleware.RoleAdmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Len(t, docs.items, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Contains(t, w.Body.String(), "https://example.com/plank")
}

func TestFileRejectsTraversal(t *testing.T) {
	r, _, _ := newDocumentRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/a/../../secret", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.NotEqual(t, http.StatusOK, w.Code)
}

package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mtutor/internal/model"
)

func TestOpenRouterChatSendsSystemAndHistory(t *testing.T) {
	var got openrouterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  breathe out on effort "}}]}`))
	}))
	defer srv.Close()

	p, err := NewChatProvider("openrouter", map[string]interface{}{"api_key": "key", "base_url": srv.URL})
	require.NoError(t, err)
	out, err := NewGenerator(p, "some/model").Chat(context.Background(), &ChatRequest{
		System: "coach",
		Messages: []model.ChatMessage{
			{Role: model.ChatRoleUser, Content: "hi"},
			{Role: model.ChatRoleAssistant, Content: "hello"},
			{Role: model.ChatRoleUser, Content: "when do I exhale?"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "breathe out on effort", out)
	require.Equal(t, "some/model", got.Model)
	require.Len(t, got.Messages, 4)
	require.Equal(t, "system", got.Messages[0].Role)
	require.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOpenRouterFailuresAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, err := NewChatProvider("openrouter", map[string]interface{}{"api_key": "key", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "m", &ChatRequest{Messages: []model.ChatMessage{{Role: model.ChatRoleUser, Content: "x"}}})
	require.ErrorIs(t, err, ErrUnavailable)

	p, err = NewChatProvider("openrouter", map[string]interface{}{})
	require.NoError(t, err)
	_, err = p.Chat(context.Background(), "m", &ChatRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}

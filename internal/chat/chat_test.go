package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth, path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  What platforms?  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL+"/api/v1/")
	reply, err := c.Complete(context.Background(), "google/gemini", []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "a todo app"},
	})
	require.NoError(t, err)

	assert.Equal(t, "What platforms?", reply)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/api/v1/chat/completions", path)
	assert.Equal(t, "google/gemini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "a todo app", got.Messages[1].Content)
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer bad" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"no auth","code":401}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", srv.URL).Complete(context.Background(), "m", nil)
	assert.Error(t, err)

	_, err = NewClient("ok", srv.URL).Complete(context.Background(), "m", nil)
	assert.ErrorIs(t, err, ErrNoChoices)
}

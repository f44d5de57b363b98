package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ragchat/internal/domain"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"model":   DefaultModel,
		"choices": []map[string]any{{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func fail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": msg, "code": code}})
}

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("key", Config{BaseURL: srv.URL, MaxRetries: retries, Timeout: 2 * time.Second}, zaptest.NewLogger(t))
}

func TestGenerateMapsRoles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 3)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		reply(w, "hi there")
	}, 0)

	out, err := c.Generate(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "be nice"},
		domain.UserMessage("hello"),
		domain.AIMessage("hello!"),
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestGenerateUnauthorized(t *testing.T) {
	for name, h := range map[string]http.HandlerFunc{
		"401": func(w http.ResponseWriter, r *http.Request) { fail(w, http.StatusUnauthorized, "bad credentials") },
		"gemini 400": func(w http.ResponseWriter, r *http.Request) {
			fail(w, http.StatusBadRequest, "API key not valid. Please pass a valid API key.")
		},
	} {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, h, 2)
			_, err := c.Generate(context.Background(), []domain.ChatMessage{domain.UserMessage("x")})
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrGeneration)
			assert.ErrorIs(t, err, domain.ErrUnauthorized)
		})
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			fail(w, http.StatusInternalServerError, "boom")
			return
		}
		reply(w, "recovered")
	}, 1)

	out, err := c.Generate(context.Background(), []domain.ChatMessage{domain.UserMessage("x")})
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fail(w, http.StatusBadRequest, "malformed")
	}, 3)

	_, err := c.Generate(context.Background(), []domain.ChatMessage{domain.UserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.NotErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateDoesNotRetryEmptyChoices(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "cmpl-1", "object": "chat.completion", "choices": []any{}})
	}, 3)

	_, err := c.Generate(context.Background(), []domain.ChatMessage{domain.UserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	c := NewClient("key", Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zaptest.NewLogger(t))

	_, err := c.Generate(context.Background(), []domain.ChatMessage{domain.UserMessage("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestProbeSendsTrivialPrompt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "Test", req.Messages[0].Content)
		reply(w, "ok")
	}, 0)
	assert.NoError(t, Probe(context.Background(), c))
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.True(t, Retryable(fmt.Errorf("post: %w", refused)))
	assert.False(t, Retryable(errors.New("model returned no choices")))
	assert.Equal(t, 5*time.Second, RetryDelay(10))
	assert.Equal(t, 200*time.Millisecond, RetryDelay(-1))
}

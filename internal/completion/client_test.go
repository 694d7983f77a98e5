package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "console"})
	require.NoError(t, err)
	return log
}

func TestComplete_NonStreaming(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		fmt.Fprint(w, `{"choices":[{"message":{"content":"Paris is the capital of France."}}]}`)
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL}, testLogger(t))
	got, err := client.Complete(context.Background(), Request{Prompt: "capital of France?", Model: "solar-pro"})

	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital of France.", got)
	assert.Equal(t, "solar-pro", gotReq.Model)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)
	assert.Equal(t, "capital of France?", gotReq.Messages[0].Content)
}

func TestComplete_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, testLogger(t))
	_, err := client.Complete(context.Background(), Request{Prompt: "hi", Model: "solar-pro"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestComplete_UnexpectedShapeIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"oops"}`)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, testLogger(t))
	_, err := client.Complete(context.Background(), Request{Prompt: "hi", Model: "solar-pro"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected completion response shape")
}

func TestComplete_Streaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		require.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\", \"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {not valid json}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"world!\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"after done\"}}]}\n\n")
	}))
	defer srv.Close()

	var chunks []string
	client := New(Config{BaseURL: srv.URL}, testLogger(t))
	got, err := client.Complete(context.Background(), Request{
		Prompt: "greet",
		Model:  "solar-pro",
		Stream: true,
		OnUpdate: func(chunk string) {
			chunks = append(chunks, chunk)
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", got)
	assert.Equal(t, []string{"Hello", ", ", "world!"}, chunks)
}

func TestComplete_StreamingWithoutCallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL}, testLogger(t))
	got, err := client.Complete(context.Background(), Request{Prompt: "p", Model: "m", Stream: true})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/citation"
	"github.com/hunkim/solar-search-vercel/internal/completion"
	"github.com/hunkim/solar-search-vercel/internal/memory"
	"github.com/hunkim/solar-search-vercel/internal/orchestrator"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/pkg/workerpool"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

type scriptedCompleter struct {
	necessity string
	answer    string
}

func (s *scriptedCompleter) Complete(ctx context.Context, req completion.Request) (string, error) {
	switch {
	case strings.Contains(req.Prompt, "Answer (Y or N only):"):
		return s.necessity, nil
	case strings.Contains(req.Prompt, "JSON array:"):
		return `["test query"]`, nil
	default:
		if req.Stream && req.OnUpdate != nil {
			req.OnUpdate(s.answer)
		}
		return s.answer, nil
	}
}

type fixedSearcher struct {
	results []websearch.RawResult
}

func (s *fixedSearcher) Enabled() bool { return true }

func (s *fixedSearcher) Search(ctx context.Context, query string, maxResults int) []websearch.RawResult {
	return s.results
}

func newTestHandler(t *testing.T, completer orchestrator.Completer, searcher orchestrator.Searcher) (*Handler, *memory.Manager) {
	t.Helper()

	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "console"})
	require.NoError(t, err)

	pool, err := workerpool.New(workerpool.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	orc := orchestrator.New(completer, searcher, pool, log)
	mem := memory.NewManager(memory.NewFileStore(t.TempDir()+"/memory.json"), memory.Options{}, log)

	return NewHandler(orc, mem, "solar-pro", log), mem
}

func TestHandleMessage_DirectAnswerRecordsMemory(t *testing.T) {
	completer := &scriptedCompleter{necessity: "N", answer: "Photosynthesis converts light into chemical energy."}
	handler, mem := newTestHandler(t, completer, &fixedSearcher{})

	reply := handler.HandleMessage(context.Background(), "what is photosynthesis?", orchestrator.Callbacks{})

	assert.Equal(t, "Photosynthesis converts light into chemical energy.", reply.Text)
	assert.False(t, reply.SearchUsed)
	assert.Empty(t, reply.References)
	assert.Equal(t, 1, mem.Stats().TotalConversations)
}

func TestHandleMessage_ModelMarkersResolved(t *testing.T) {
	completer := &scriptedCompleter{necessity: "Y", answer: "The release shipped yesterday [1]."}
	searcher := &fixedSearcher{results: []websearch.RawResult{
		{Title: "Release notes", URL: "https://example.com/notes", Content: "totally unrelated text"},
	}}
	handler, _ := newTestHandler(t, completer, searcher)

	reply := handler.HandleMessage(context.Background(), "latest release?", orchestrator.Callbacks{})

	assert.True(t, reply.SearchUsed)
	assert.Equal(t, "The release shipped yesterday [1].", reply.Text)
	require.Len(t, reply.References, 1)
	assert.Equal(t, citation.Reference{Number: 1, URL: "https://example.com/notes", Title: "Release notes"}, reply.References[0])
}

func TestHandleMessage_HeuristicBackfillWhenNoMarkers(t *testing.T) {
	completer := &scriptedCompleter{necessity: "Y", answer: "Static binaries make deployment simple."}
	searcher := &fixedSearcher{results: []websearch.RawResult{
		{Title: "Go builds", URL: "https://go.dev", Content: "Static binaries make Go deployment simple and fast."},
	}}
	handler, _ := newTestHandler(t, completer, searcher)

	reply := handler.HandleMessage(context.Background(), "why do people like Go deploys?", orchestrator.Callbacks{})

	assert.Equal(t, "Static binaries make deployment simple.[1]", reply.Text)
	require.Len(t, reply.References, 1)
	assert.Equal(t, "https://go.dev", reply.References[0].URL)
}

func TestHandleMessage_SearchMetadataStored(t *testing.T) {
	completer := &scriptedCompleter{necessity: "Y", answer: "answer"}
	searcher := &fixedSearcher{results: []websearch.RawResult{
		{Title: "t", URL: "https://x.com", Content: "c"},
	}}
	handler, mem := newTestHandler(t, completer, searcher)

	handler.HandleMessage(context.Background(), "query", orchestrator.Callbacks{})

	out, err := mem.Export("")
	require.NoError(t, err)
	assert.Contains(t, out, `"search_used": true`)
}

func TestHandleCommand(t *testing.T) {
	completer := &scriptedCompleter{necessity: "N", answer: "hi"}
	handler, mem := newTestHandler(t, completer, &fixedSearcher{})
	mem.AddConversation(context.Background(), "q", "a", nil, nil)

	t.Run("not a command", func(t *testing.T) {
		_, ok := handler.HandleCommand(context.Background(), "just a question")
		assert.False(t, ok)
	})

	t.Run("stats", func(t *testing.T) {
		out, ok := handler.HandleCommand(context.Background(), "/stats")
		require.True(t, ok)
		assert.Contains(t, out, "Conversations: 1")
	})

	t.Run("export", func(t *testing.T) {
		out, ok := handler.HandleCommand(context.Background(), "/export")
		require.True(t, ok)
		assert.Contains(t, out, `"conversations"`)
	})

	t.Run("clear", func(t *testing.T) {
		out, ok := handler.HandleCommand(context.Background(), "/clear")
		require.True(t, ok)
		assert.Equal(t, "Memory cleared.", out)
		assert.Equal(t, 0, mem.Stats().TotalConversations)
	})

	t.Run("unknown", func(t *testing.T) {
		out, ok := handler.HandleCommand(context.Background(), "/bogus")
		require.True(t, ok)
		assert.Contains(t, out, "Unknown command")
	})
}

func TestRenderReferences(t *testing.T) {
	refs := []citation.Reference{
		{Number: 1, URL: "https://a.com", Title: "Alpha"},
		{Number: 2, URL: "https://b.com", Title: "Beta"},
	}

	assert.Equal(t, "References:\n[1] Alpha - https://a.com\n[2] Beta - https://b.com", RenderReferences(refs))
	assert.Equal(t, "", RenderReferences(nil))
}

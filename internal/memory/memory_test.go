package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

type fakeStore struct {
	data    []byte
	loadErr error
	saveErr error
	saves   int
}

func (s *fakeStore) Load(_ context.Context) ([]byte, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.data, nil
}

func (s *fakeStore) Save(_ context.Context, data []byte) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data = data
	s.saves++
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "console"})
	require.NoError(t, err)
	return log
}

func TestAddConversation_PersistsAndCounts(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, Options{}, testLogger(t))

	m.AddConversation(context.Background(), "hello there", "hi, how can I help", nil, nil)

	assert.Equal(t, 1, store.saves)
	// 2 input words + 5 response words.
	assert.Equal(t, 7, m.WordCount())

	// A fresh manager over the same store sees identical state.
	reloaded := NewManager(store, Options{}, testLogger(t))
	stats := reloaded.Stats()
	assert.Equal(t, 1, stats.TotalConversations)
	assert.Equal(t, 7, stats.WordCount)
	assert.False(t, stats.HasSummary)
	require.NotNil(t, stats.LastUpdated)
}

func TestNewManager_ResetsOnBadState(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"load error", &fakeStore{loadErr: errors.New("disk gone")}},
		{"invalid json", &fakeStore{data: []byte("{truncated")}},
		{"not an object", &fakeStore{data: []byte(`[1, 2, 3]`)}},
		{"missing required field", &fakeStore{data: []byte(`{"conversations":[],"summary":"","word_count":0}`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.store, Options{}, testLogger(t))

			stats := m.Stats()
			assert.Equal(t, 0, stats.TotalConversations)
			assert.Equal(t, 0, stats.WordCount)
			assert.Nil(t, stats.LastUpdated)
		})
	}
}

func TestNewManager_RecountsStoredWordCount(t *testing.T) {
	doc := `{
		"conversations": [{"timestamp":"2025-01-01T00:00:00Z","user_input":"one two three","assistant_response":"four five","sources":[],"metadata":{}}],
		"summary": "six",
		"last_updated": "2025-01-01T00:00:00Z",
		"word_count": 9999
	}`
	m := NewManager(&fakeStore{data: []byte(doc)}, Options{}, testLogger(t))

	// Stored count is advisory; the derived count wins.
	assert.Equal(t, 6, m.WordCount())
}

func TestSummarization_LLMKeepsLastThree(t *testing.T) {
	var gotPrompt string
	store := &fakeStore{}
	m := NewManager(store, Options{
		MaxWords:      10,
		SummaryTarget: 50,
		Summarize: func(ctx context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return "condensed history", nil
		},
	}, testLogger(t))

	ctx := context.Background()
	m.AddConversation(ctx, "first question about turtles", "turtles are reptiles", nil, nil)
	m.AddConversation(ctx, "second question about frogs", "frogs are amphibians", nil, nil)
	m.AddConversation(ctx, "third question about snails", "snails are mollusks", nil, nil)
	m.AddConversation(ctx, "fourth question about crows", "crows are birds", nil, nil)

	stats := m.Stats()
	assert.Equal(t, 3, stats.TotalConversations)
	assert.True(t, stats.HasSummary)
	assert.Equal(t, "condensed history", m.state.Summary)
	// Only history older than the kept tail goes into the prompt.
	assert.Contains(t, gotPrompt, "first question about turtles")
	assert.NotContains(t, gotPrompt, "fourth question about crows")
	assert.Contains(t, gotPrompt, "under 50 words")
}

func TestSummarization_FallsBackToHeuristic(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, Options{
		MaxWords:      1,
		SummaryTarget: 100,
		Summarize: func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}, testLogger(t))

	ctx := context.Background()
	inputs := []string{"alpha topic", "beta topic", "gamma topic", "delta topic", "epsilon topic", "zeta topic"}
	for _, in := range inputs {
		m.AddConversation(ctx, in, "noted", nil, nil)
	}

	stats := m.Stats()
	assert.Equal(t, 5, stats.TotalConversations)
	assert.True(t, stats.HasSummary)
	assert.Contains(t, m.state.Summary, "Topic: alpha topic")
	assert.NotContains(t, m.state.Summary, "zeta")
	assert.Equal(t, "beta topic", m.state.Conversations[0].UserInput)
}

func TestSummarizeHeuristic_TruncatesLongTopics(t *testing.T) {
	m := NewManager(&fakeStore{}, Options{MaxWords: 1, SummaryTarget: 100}, testLogger(t))

	ctx := context.Background()
	long := strings.Repeat("x", 150)
	m.AddConversation(ctx, long, "r", nil, nil)
	for i := 0; i < 5; i++ {
		m.AddConversation(ctx, "short question", "short answer", nil, nil)
	}

	require.True(t, m.Stats().HasSummary)
	assert.Contains(t, m.state.Summary, "Topic: "+strings.Repeat("x", 100))
	assert.NotContains(t, m.state.Summary, strings.Repeat("x", 101))
}

func TestGetContext(t *testing.T) {
	m := NewManager(&fakeStore{}, Options{}, testLogger(t))
	m.state.Summary = "earlier we discussed turtles"

	ctx := context.Background()
	m.AddConversation(ctx, "what about frogs", strings.Repeat("a", 600), nil, nil)

	got := m.GetContext(10000)

	assert.Contains(t, got, "Previous conversation summary:\nearlier we discussed turtles")
	assert.Contains(t, got, "User: what about frogs")
	assert.Contains(t, got, "Assistant: "+strings.Repeat("a", 500)+"...")
	assert.NotContains(t, got, strings.Repeat("a", 501))
}

func TestGetContext_WordBudget(t *testing.T) {
	m := NewManager(&fakeStore{}, Options{}, testLogger(t))
	m.AddConversation(context.Background(), "one two three four five six seven", "eight nine ten", nil, nil)

	got := m.GetContext(4)

	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, strings.Fields(strings.TrimSuffix(got, "...")), 4)
}

func TestGetContext_Empty(t *testing.T) {
	m := NewManager(&fakeStore{}, Options{}, testLogger(t))
	assert.Equal(t, "", m.GetContext(1000))
}

func TestClear(t *testing.T) {
	store := &fakeStore{}
	m := NewManager(store, Options{}, testLogger(t))
	m.AddConversation(context.Background(), "hello", "world", nil, nil)

	m.Clear(context.Background())

	stats := m.Stats()
	assert.Equal(t, 0, stats.TotalConversations)
	assert.Equal(t, 0, stats.WordCount)
	assert.Equal(t, 2, store.saves)

	var state State
	require.NoError(t, json.Unmarshal(store.data, &state))
	assert.Empty(t, state.Conversations)
	assert.Nil(t, state.LastUpdated)
}

func TestExport(t *testing.T) {
	m := NewManager(&fakeStore{}, Options{}, testLogger(t))
	m.AddConversation(context.Background(), "q", "a", []websearch.Result{{ID: 1, URL: "https://x.com"}}, map[string]interface{}{"search_used": true})

	out, err := m.Export("")
	require.NoError(t, err)

	var state map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	for _, key := range []string{"conversations", "summary", "last_updated", "word_count"} {
		assert.Contains(t, state, key)
	}
}

func TestPersistFailureDoesNotLoseState(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("read-only filesystem")}
	m := NewManager(store, Options{}, testLogger(t))

	m.AddConversation(context.Background(), "hello", "world", nil, nil)

	// The write failed but the in-memory state stays authoritative.
	assert.Equal(t, 1, m.Stats().TotalConversations)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/memory.json"
	store := NewFileStore(path)
	ctx := context.Background()

	// Missing file reads as empty state.
	data, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, store.Save(ctx, []byte(`{"k":"v"}`)))

	data, err = store.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"v"}`, string(data))
}

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// nowFunc is a variable so tests can pin the clock.
var nowFunc = time.Now

// Conversation is one (input, response, sources, metadata) exchange.
// Immutable after creation except wholesale removal during summarization.
type Conversation struct {
	Timestamp         string                 `json:"timestamp"`
	UserInput         string                 `json:"user_input"`
	AssistantResponse string                 `json:"assistant_response"`
	Sources           []websearch.Result     `json:"sources"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// State is the full persisted memory document.
type State struct {
	Conversations []Conversation `json:"conversations"`
	Summary       string         `json:"summary"`
	LastUpdated   *string        `json:"last_updated"`
	WordCount     int            `json:"word_count"`
}

func emptyState() State {
	return State{
		Conversations: []Conversation{},
		Summary:       "",
		LastUpdated:   nil,
		WordCount:     0,
	}
}

// Stats summarizes the current memory contents.
type Stats struct {
	TotalConversations int     `json:"total_conversations"`
	WordCount          int     `json:"word_count"`
	HasSummary         bool    `json:"has_summary"`
	LastUpdated        *string `json:"last_updated"`
}

// SummarizeFunc condenses a summarization prompt into a summary via a model.
type SummarizeFunc func(ctx context.Context, prompt string) (string, error)

// Options configures a memory manager.
type Options struct {
	MaxWords      int           // word budget before summarization triggers
	SummaryTarget int           // target word count after summarization
	Summarize     SummarizeFunc // optional LLM-based summarizer
}

const (
	defaultMaxWords      = 5000
	defaultSummaryTarget = 1000

	// Retention during summarization.
	llmKeepLast       = 3
	heuristicKeepLast = 5

	contextRecentConversations = 10
	contextResponseTruncation  = 500
	topicPrefixLength          = 100
)

// Manager is an append-only conversation log with a word-budget enforcement
// policy. It is not designed for concurrent writers: AddConversation runs a
// read-modify-persist cycle with no locking, acceptable for the
// single-process, single-writer deployments this serves.
type Manager struct {
	store   Store
	state   State
	options Options
	logger  *logger.Logger
}

// NewManager creates a manager and loads any previously persisted state.
// Malformed or incomplete stored content is silently discarded; construction
// never fails because of bad state.
func NewManager(store Store, options Options, log *logger.Logger) *Manager {
	if options.MaxWords <= 0 {
		options.MaxWords = defaultMaxWords
	}
	if options.SummaryTarget <= 0 {
		options.SummaryTarget = defaultSummaryTarget
	}

	m := &Manager{
		store:   store,
		state:   emptyState(),
		options: options,
		logger:  log,
	}
	m.load()
	return m
}

// load pulls persisted state, validating the document shape. Anything short
// of a well-formed document with all required keys resets to empty.
func (m *Manager) load() {
	data, err := m.store.Load(context.Background())
	if err != nil {
		m.logger.Warn("failed to load memory, starting fresh", zap.Error(err))
		return
	}
	if data == nil {
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		m.logger.Warn("memory state is malformed, starting fresh", zap.Error(err))
		return
	}
	for _, key := range []string{"conversations", "summary", "last_updated", "word_count"} {
		if _, ok := raw[key]; !ok {
			m.logger.Warn("memory state is missing required field, starting fresh", zap.String("field", key))
			return
		}
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		m.logger.Warn("memory state failed to decode, starting fresh", zap.Error(err))
		return
	}
	if state.Conversations == nil {
		state.Conversations = []Conversation{}
	}

	m.state = state
	m.recountWords()
}

// AddConversation appends an exchange, persists, and summarizes synchronously
// if the word budget is exceeded.
func (m *Manager) AddConversation(ctx context.Context, userInput, assistantResponse string, sources []websearch.Result, metadata map[string]interface{}) {
	if sources == nil {
		sources = []websearch.Result{}
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	ts := nowFunc().Format(time.RFC3339)
	m.state.Conversations = append(m.state.Conversations, Conversation{
		Timestamp:         ts,
		UserInput:         userInput,
		AssistantResponse: assistantResponse,
		Sources:           sources,
		Metadata:          metadata,
	})
	m.state.LastUpdated = &ts
	m.recountWords()

	if m.state.WordCount > m.options.MaxWords {
		m.summarize(ctx)
	}

	m.persist(ctx)
}

// GetContext builds a context block from the summary and the most recent
// conversations, bounded by maxContextWords. Returns the empty string when
// there is no history.
func (m *Manager) GetContext(maxContextWords int) string {
	var parts []string

	if m.state.Summary != "" {
		parts = append(parts, fmt.Sprintf("Previous conversation summary:\n%s\n", m.state.Summary))
	}

	recent := m.state.Conversations
	if len(recent) > contextRecentConversations {
		recent = recent[len(recent)-contextRecentConversations:]
	}
	for _, conv := range recent {
		response := conv.AssistantResponse
		if len(response) > contextResponseTruncation {
			response = response[:contextResponseTruncation]
		}
		parts = append(parts, "User: "+conv.UserInput)
		parts = append(parts, "Assistant: "+response+"...")
		parts = append(parts, "")
	}

	context := strings.Join(parts, "\n")

	if countWords(context) > maxContextWords {
		words := strings.Fields(context)
		context = strings.Join(words[:maxContextWords], " ") + "..."
	}

	return context
}

// Clear resets to the empty state and persists.
func (m *Manager) Clear(ctx context.Context) {
	m.state = emptyState()
	m.persist(ctx)
}

// Export serializes the full state to canonical JSON; when path is non-empty
// the document is also written there.
func (m *Manager) Export(path string) (string, error) {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize memory: %w", err)
	}

	if path != "" {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return "", fmt.Errorf("failed to export memory: %w", err)
		}
	}

	return string(data), nil
}

// Stats reports the current memory statistics.
func (m *Manager) Stats() Stats {
	return Stats{
		TotalConversations: len(m.state.Conversations),
		WordCount:          m.state.WordCount,
		HasSummary:         m.state.Summary != "",
		LastUpdated:        m.state.LastUpdated,
	}
}

// WordCount returns the current derived word count.
func (m *Manager) WordCount() int {
	return m.state.WordCount
}

// persist writes the full state back to storage. A write failure is logged,
// not raised: the in-memory state stays authoritative.
func (m *Manager) persist(ctx context.Context) {
	data, err := json.Marshal(m.state)
	if err != nil {
		m.logger.Error("failed to serialize memory state", zap.Error(err))
		return
	}
	if err := m.store.Save(ctx, data); err != nil {
		m.logger.Error("failed to persist memory state", zap.Error(err))
	}
}

// recountWords recomputes the derived word count from the summary and every
// conversation's texts.
func (m *Manager) recountWords() {
	total := countWords(m.state.Summary)
	for _, conv := range m.state.Conversations {
		total += countWords(conv.UserInput)
		total += countWords(conv.AssistantResponse)
	}
	m.state.WordCount = total
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// summarize compresses older history to bring the word count back under
// budget. The LLM path is attempted first when configured; any failure falls
// back to the heuristic, so summarization never loses data or aborts the
// add path. It runs at most once per AddConversation, no retry loop; a
// single oversized retained conversation can keep the count over budget,
// which is accepted.
func (m *Manager) summarize(ctx context.Context) {
	if len(m.state.Conversations) == 0 {
		return
	}

	if m.options.Summarize != nil {
		if err := m.summarizeWithLLM(ctx); err == nil {
			return
		} else {
			m.logger.Warn("LLM summarization failed, falling back to heuristic", zap.Error(err))
		}
	}

	m.summarizeHeuristic()
}

// summarizeWithLLM condenses everything except the last few conversations
// through the configured model. The state is only mutated on success.
func (m *Manager) summarizeWithLLM(ctx context.Context) error {
	var content []string

	if m.state.Summary != "" {
		content = append(content, "Previous summary: "+m.state.Summary)
	}

	keep := llmKeepLast
	if keep > len(m.state.Conversations) {
		keep = len(m.state.Conversations)
	}
	older := m.state.Conversations[:len(m.state.Conversations)-keep]
	for _, conv := range older {
		content = append(content, "User: "+conv.UserInput)
		content = append(content, "Assistant: "+conv.AssistantResponse)
	}

	if len(content) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(`Please create a concise summary of the following conversation history.
Focus on key topics, important information, and context that would be useful for future conversations.
Keep the summary under %d words.

Conversation History:
%s

Summary:`, m.options.SummaryTarget, strings.Join(content, "\n"))

	summary, err := m.options.Summarize(ctx, prompt)
	if err != nil {
		return err
	}

	m.state.Summary = summary
	m.state.Conversations = m.state.Conversations[len(m.state.Conversations)-keep:]
	m.recountWords()
	return nil
}

// summarizeHeuristic keeps the most recent conversations verbatim and
// compresses everything older into one-line topics.
func (m *Manager) summarizeHeuristic() {
	if len(m.state.Conversations) <= heuristicKeepLast {
		return
	}

	recent := m.state.Conversations[len(m.state.Conversations)-heuristicKeepLast:]
	older := m.state.Conversations[:len(m.state.Conversations)-heuristicKeepLast]

	var parts []string
	if m.state.Summary != "" {
		parts = append(parts, m.state.Summary)
	}
	for _, conv := range older {
		topic := conv.UserInput
		if len(topic) > topicPrefixLength {
			topic = topic[:topicPrefixLength]
		}
		parts = append(parts, "Topic: "+topic)
	}

	summary := strings.Join(parts, " | ")
	words := strings.Fields(summary)
	if len(words) > m.options.SummaryTarget {
		summary = strings.Join(words[:m.options.SummaryTarget], " ") + "..."
	}

	m.state.Summary = summary
	m.state.Conversations = append([]Conversation{}, recent...)
	m.recountWords()
}

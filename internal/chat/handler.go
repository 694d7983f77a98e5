package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/citation"
	"github.com/hunkim/solar-search-vercel/internal/memory"
	"github.com/hunkim/solar-search-vercel/internal/orchestrator"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// Reply is the transport-facing result of answering one message.
type Reply struct {
	Text       string               `json:"text"`
	SearchUsed bool                 `json:"search_used"`
	Sources    []websearch.Result   `json:"sources"`
	References []citation.Reference `json:"references"`
}

// Handler glues the orchestrator, the citation engine and conversation
// memory into one message-answering flow. Transports (webhook server, bot
// loop) call it with streaming callbacks and render the reply themselves.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	memory       *memory.Manager
	model        string
	logger       *logger.Logger
}

// NewHandler creates a message handler.
func NewHandler(orc *orchestrator.Orchestrator, mem *memory.Manager, model string, log *logger.Logger) *Handler {
	return &Handler{
		orchestrator: orc,
		memory:       mem,
		model:        model,
		logger:       log,
	}
}

// HandleMessage answers one user message with streaming, attaches citations,
// and records the exchange in memory.
func (h *Handler) HandleMessage(ctx context.Context, text string, cb orchestrator.Callbacks) Reply {
	requestID := uuid.NewString()
	log := h.logger.With(zap.String("request_id", requestID))
	log.Info("handling message", zap.Int("length", len(text)))

	answer := h.orchestrator.DecideAndAnswer(ctx, text, h.model, true, cb)

	cited := citation.AddCitations(answer.Answer, answer.Sources)
	if len(cited.References) == 0 && answer.SearchUsed {
		// The model did not emit markers itself; back-fill heuristically.
		cited = citation.FillCitationHeuristic(answer.Answer, answer.Sources)
	}

	h.memory.AddConversation(ctx, text, answer.Answer, answer.Sources, map[string]interface{}{
		"search_used": answer.SearchUsed,
	})

	log.Info("message handled",
		zap.Bool("search_used", answer.SearchUsed),
		zap.Int("sources", len(answer.Sources)),
		zap.Int("references", len(cited.References)),
	)

	return Reply{
		Text:       cited.CitedText,
		SearchUsed: answer.SearchUsed,
		Sources:    answer.Sources,
		References: cited.References,
	}
}

// HandleCommand processes a slash command. The second return value reports
// whether the input was a command at all.
func (h *Handler) HandleCommand(ctx context.Context, text string) (string, bool) {
	cmd := strings.TrimSpace(text)
	if !strings.HasPrefix(cmd, "/") {
		return "", false
	}

	switch strings.Fields(cmd)[0] {
	case "/clear":
		h.memory.Clear(ctx)
		return "Memory cleared.", true
	case "/stats":
		stats := h.memory.Stats()
		last := "never"
		if stats.LastUpdated != nil {
			last = *stats.LastUpdated
		}
		return fmt.Sprintf("Conversations: %d\nWords in memory: %d\nHas summary: %t\nLast updated: %s",
			stats.TotalConversations, stats.WordCount, stats.HasSummary, last), true
	case "/export":
		data, err := h.memory.Export("")
		if err != nil {
			h.logger.Error("memory export failed", zap.Error(err))
			return "Export failed: " + err.Error(), true
		}
		return data, true
	default:
		return "Unknown command. Available: /clear, /stats, /export", true
	}
}

// RenderReferences formats a user-facing references block, one numbered line
// per reference. Returns the empty string for no references.
func RenderReferences(refs []citation.Reference) string {
	if len(refs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("References:\n")
	for _, ref := range refs {
		fmt.Fprintf(&b, "[%d] %s - %s\n", ref.Number, ref.Title, ref.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

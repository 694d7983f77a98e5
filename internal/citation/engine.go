package citation

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hunkim/solar-search-vercel/internal/completion"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// Completer is the completion capability the engine needs for the delegated
// citation path.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// Engine delegates citation-insertion judgment to a model. The heuristic
// path (FillCitationHeuristic) is the non-model alternative; callers choose
// one or the other.
type Engine struct {
	completer Completer
	logger    *logger.Logger
}

// NewEngine creates a citation engine backed by the given completer.
func NewEngine(completer Completer, log *logger.Logger) *Engine {
	return &Engine{completer: completer, logger: log}
}

// FillCitation asks the model to insert citation markers and return the
// cited text plus references. Completion errors propagate to the caller; a
// malformed model response falls back to re-deriving references directly
// from the source list with the text unchanged.
func (e *Engine) FillCitation(ctx context.Context, text string, sources []websearch.Result, model string) (Result, error) {
	prompt := buildFillPrompt(text, sources)

	response, err := e.completer.Complete(ctx, completion.Request{
		Prompt: prompt,
		Model:  model,
	})
	if err != nil {
		return Result{}, fmt.Errorf("citation completion failed: %w", err)
	}

	if result, ok := parseFillResponse(response); ok {
		return result, nil
	}

	e.logger.Warn("citation response was not valid JSON, re-deriving references from sources")

	refs := make([]Reference, 0, len(sources))
	for _, s := range sources {
		refs = append(refs, Reference{Number: s.ID, URL: s.URL, Title: s.Title})
	}
	return Result{CitedText: text, References: refs}, nil
}

func buildFillPrompt(text string, sources []websearch.Result) string {
	var b strings.Builder
	b.WriteString("Add citation markers to the following answer using the numbered sources.\n\n")
	b.WriteString("SOURCES:\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "[%d]. %s\n%s\n\n", s.ID, s.Title, s.Content)
	}
	b.WriteString("ANSWER:\n")
	b.WriteString(text)
	b.WriteString("\n\nInsert bracketed citation numbers [n] directly after claims supported by source n. ")
	b.WriteString("Return ONLY a JSON object of the form ")
	b.WriteString(`{"cited_text": "...", "references": [{"number": 1, "url": "...", "title": "..."}]}`)
	b.WriteString(" with one reference per source actually cited.\n")
	return b.String()
}

// parseFillResponse extracts the cited text and references from a model
// response, tolerating prose around the JSON object.
func parseFillResponse(response string) (Result, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}

	doc := response[start : end+1]
	if !gjson.Valid(doc) {
		return Result{}, false
	}

	citedText := gjson.Get(doc, "cited_text")
	if !citedText.Exists() {
		return Result{}, false
	}

	result := Result{CitedText: citedText.String(), References: []Reference{}}
	for _, ref := range gjson.Get(doc, "references").Array() {
		result.References = append(result.References, Reference{
			Number: int(ref.Get("number").Int()),
			URL:    ref.Get("url").String(),
			Title:  ref.Get("title").String(),
		})
	}

	return result, true
}

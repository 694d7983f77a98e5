package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/completion"
	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
	"github.com/hunkim/solar-search-vercel/internal/pkg/workerpool"
	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

const (
	// perQueryResults caps how many records each search query may return.
	perQueryResults = 8
	// maxSources caps the merged, deduplicated source list.
	maxSources = 15
)

// Completer issues prompt-completion requests.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// Searcher issues keyword queries and reports whether a credential is
// configured at all.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) []websearch.RawResult
	Enabled() bool
}

// Callbacks are optional hooks driven during DecideAndAnswer. All of them
// are best-effort: a panic inside a callback is recovered and logged, never
// allowed to abort the flow. Within one call the invocation order is
// OnSearchStart, OnSearchQueriesGenerated, OnSearchDone, then the OnUpdate
// stream.
type Callbacks struct {
	OnUpdate                 func(chunk string)
	OnSearchStart            func()
	OnSearchQueriesGenerated func(queries []string)
	OnSearchDone             func(sources []websearch.Result)
}

// Answer is the result of one orchestrated query.
type Answer struct {
	Answer     string             `json:"answer"`
	SearchUsed bool               `json:"search_used"`
	Sources    []websearch.Result `json:"sources"`
}

// Orchestrator is the central decision pipeline: it judges search necessity,
// extracts search queries, performs grounded retrieval and drives the
// completion client with streaming callbacks.
type Orchestrator struct {
	completer Completer
	searcher  Searcher
	pool      *workerpool.Pool
	logger    *logger.Logger
}

// New creates an orchestrator. The pool bounds both fan-out points (the
// judgment/extraction pair and the per-query search dispatch).
func New(completer Completer, searcher Searcher, pool *workerpool.Pool, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		completer: completer,
		searcher:  searcher,
		pool:      pool,
		logger:    log,
	}
}

// DecideAndAnswer answers the query, deciding on the way whether to ground
// it in live search results. It never returns an error: every failure mode
// degrades to a documented fallback inside the returned answer.
func (o *Orchestrator) DecideAndAnswer(ctx context.Context, query, model string, stream bool, cb Callbacks) Answer {
	// The extraction call is speculative: it is thrown away when the verdict
	// is N, but launching it alongside the judgment makes it free on the
	// search path, which is the latency users actually feel.
	decisionCh := o.pool.SubmitWithResult(func() (interface{}, error) {
		return o.checkSearchNeeded(ctx, query, model), nil
	})
	queriesCh := o.pool.SubmitWithResult(func() (interface{}, error) {
		return o.extractSearchQueries(ctx, query, model), nil
	})

	decision := DecisionDirect
	if res := <-decisionCh; res.Error == nil {
		decision = res.Data.(Decision)
	}

	if decision == DecisionSearch {
		o.invoke("on_search_start", func() { cb.OnSearchStart() }, cb.OnSearchStart == nil)

		queries := []string{query}
		if res := <-queriesCh; res.Error == nil {
			queries = res.Data.([]string)
		}
		o.invoke("on_search_queries_generated", func() { cb.OnSearchQueriesGenerated(queries) }, cb.OnSearchQueriesGenerated == nil)

		answer, sources := o.groundedResponse(ctx, query, queries, model, stream, cb)
		return Answer{Answer: answer, SearchUsed: true, Sources: sources}
	}

	// Verdict N: the speculative extraction keeps running on the pool and
	// its buffered result channel is simply abandoned.
	answer := o.directAnswer(ctx, query, model, stream, cb)
	return Answer{Answer: answer, SearchUsed: false, Sources: []websearch.Result{}}
}

// checkSearchNeeded issues the necessity judgment. Any error fails toward
// the cheaper non-search path.
func (o *Orchestrator) checkSearchNeeded(ctx context.Context, query, model string) Decision {
	response, err := o.completer.Complete(ctx, completion.Request{
		Prompt: searchNeededPrompt(query),
		Model:  model,
	})
	if err != nil {
		o.logger.Warn("search necessity judgment failed, defaulting to direct answer", zap.Error(err))
		return DecisionDirect
	}
	return ParseDecision(response)
}

// extractSearchQueries asks the model for 2-3 web-search-optimized queries.
// Any failure falls back to the original query verbatim.
func (o *Orchestrator) extractSearchQueries(ctx context.Context, query, model string) []string {
	response, err := o.completer.Complete(ctx, completion.Request{
		Prompt: extractQueriesPrompt(query),
		Model:  model,
	})
	if err != nil {
		o.logger.Warn("search query extraction failed, using original query", zap.Error(err))
		return []string{query}
	}
	return ParseQueries(response, query)
}

// directAnswer answers without search. A completion error surfaces as an
// apologetic answer string, never as a raised error.
func (o *Orchestrator) directAnswer(ctx context.Context, query, model string, stream bool, cb Callbacks) string {
	response, err := o.completer.Complete(ctx, completion.Request{
		Prompt:   directAnswerPrompt(query),
		Model:    model,
		Stream:   stream,
		OnUpdate: o.safeOnUpdate(cb),
	})
	if err != nil {
		o.logger.Error("direct answer failed", zap.Error(err))
		return fmt.Sprintf("I apologize, but I encountered an error processing your request: %v", err)
	}
	return response
}

// groundedResponse performs concurrent retrieval for the extracted queries
// and answers from a grounded prompt. OnSearchDone fires after retrieval and
// before the completion call, so a UI can show "found N sources" before the
// answer streams in.
func (o *Orchestrator) groundedResponse(ctx context.Context, query string, queries []string, model string, stream bool, cb Callbacks) (string, []websearch.Result) {
	if !o.searcher.Enabled() {
		o.logger.Warn("no search credential configured, using mock search results")
		sources := []websearch.Result{{
			ID:            1,
			Title:         "Mock Search Result",
			URL:           "https://example.com/mock",
			Content:       "This is a mock search result for testing purposes.",
			Score:         0.9,
			PublishedDate: now().Format("2006-01-02"),
		}}
		o.invoke("on_search_done", func() { cb.OnSearchDone(sources) }, cb.OnSearchDone == nil)

		answer := o.directAnswer(ctx, query, model, stream, cb)
		return answer + " (Note: Using mock data - configure a search API key for real search)", sources
	}

	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	resultChs := make([]<-chan workerpool.TaskResult, 0, len(queries))
	for _, q := range queries {
		q := q
		o.logger.Info("dispatching search", zap.String("query", q))
		resultChs = append(resultChs, o.pool.SubmitWithResult(func() (interface{}, error) {
			return o.searcher.Search(ctx, q, perQueryResults), nil
		}))
	}

	// Collect in submission order so deduplication stays deterministic.
	var merged []websearch.RawResult
	for _, ch := range resultChs {
		res := <-ch
		if res.Error != nil {
			continue
		}
		merged = append(merged, res.Data.([]websearch.RawResult)...)
	}

	unique := websearch.Dedupe(merged)
	if len(unique) > maxSources {
		unique = unique[:maxSources]
	}
	o.logger.Info("search retrieval complete", zap.Int("unique_results", len(unique)))

	sources := make([]websearch.Result, 0, len(unique))
	var searchContext strings.Builder
	for i, raw := range unique {
		src := websearch.NewResult(i+1, raw)
		sources = append(sources, src)
		fmt.Fprintf(&searchContext, "[%d]. %s\n%s\n\n", src.ID, src.Title, src.Content)
	}

	o.invoke("on_search_done", func() { cb.OnSearchDone(sources) }, cb.OnSearchDone == nil)

	response, err := o.completer.Complete(ctx, completion.Request{
		Prompt:   groundedPrompt(query, searchContext.String()),
		Model:    model,
		Stream:   stream,
		OnUpdate: o.safeOnUpdate(cb),
	})
	if err != nil {
		o.logger.Error("grounded response failed, falling back to direct answer", zap.Error(err))
		return o.directAnswer(ctx, query, model, stream, cb), []websearch.Result{}
	}

	return response, sources
}

// safeOnUpdate wraps the caller's OnUpdate so a panicking callback cannot
// abort a stream in flight.
func (o *Orchestrator) safeOnUpdate(cb Callbacks) func(string) {
	if cb.OnUpdate == nil {
		return nil
	}
	return func(chunk string) {
		o.invoke("on_update", func() { cb.OnUpdate(chunk) }, false)
	}
}

// invoke runs a best-effort callback, recovering and logging any panic.
func (o *Orchestrator) invoke(name string, fn func(), skip bool) {
	if skip {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("callback panicked", zap.String("callback", name), zap.Any("panic", r))
		}
	}()
	fn()
}

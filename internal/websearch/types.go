package websearch

// RawResult mirrors one record of the provider's wire response. Optional
// fields arrive inconsistently across providers (content vs raw_content,
// missing published_date), so defaults are resolved once in NewResult and
// nowhere else.
type RawResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"raw_content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// Result is one retrieved document, immutable once constructed. ID is the
// 1-based positional rank within a merged result set.
type Result struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

// NewResult builds a Result from a raw record, applying defaults.
func NewResult(id int, raw RawResult) Result {
	title := raw.Title
	if title == "" {
		title = "No Title"
	}

	content := raw.Content
	if content == "" {
		content = raw.RawContent
	}
	if content == "" {
		content = "No Content"
	}

	date := raw.PublishedDate
	if date == "" {
		date = "No Date"
	}

	return Result{
		ID:            id,
		Title:         title,
		URL:           raw.URL,
		Content:       content,
		Score:         raw.Score,
		PublishedDate: date,
	}
}

// Dedupe removes records whose URL was already seen, keeping the first
// occurrence and preserving order. Records with an empty URL are dropped.
func Dedupe(results []RawResult) []RawResult {
	seen := make(map[string]struct{}, len(results))
	unique := make([]RawResult, 0, len(results))

	for _, r := range results {
		if r.URL == "" {
			continue
		}
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		unique = append(unique, r)
	}

	return unique
}

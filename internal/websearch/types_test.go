package websearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResult_Defaults(t *testing.T) {
	tests := []struct {
		name string
		raw  RawResult
		want Result
	}{
		{
			name: "all fields present",
			raw: RawResult{
				Title:         "Go 1.24 Released",
				URL:           "https://go.dev/blog/go1.24",
				Content:       "The latest Go release.",
				Score:         0.92,
				PublishedDate: "2025-02-11",
			},
			want: Result{
				ID:            1,
				Title:         "Go 1.24 Released",
				URL:           "https://go.dev/blog/go1.24",
				Content:       "The latest Go release.",
				Score:         0.92,
				PublishedDate: "2025-02-11",
			},
		},
		{
			name: "missing title and date",
			raw:  RawResult{URL: "https://example.com/a", Content: "something"},
			want: Result{
				ID:            1,
				Title:         "No Title",
				URL:           "https://example.com/a",
				Content:       "something",
				PublishedDate: "No Date",
			},
		},
		{
			name: "content falls back to raw_content",
			raw:  RawResult{URL: "https://example.com/b", RawContent: "full page text"},
			want: Result{
				ID:            1,
				Title:         "No Title",
				URL:           "https://example.com/b",
				Content:       "full page text",
				PublishedDate: "No Date",
			},
		},
		{
			name: "no content at all",
			raw:  RawResult{Title: "t", URL: "https://example.com/c"},
			want: Result{
				ID:            1,
				Title:         "t",
				URL:           "https://example.com/c",
				Content:       "No Content",
				PublishedDate: "No Date",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewResult(1, tt.raw))
		})
	}
}

func TestDedupe(t *testing.T) {
	results := []RawResult{
		{URL: "https://a.com", Title: "first a"},
		{URL: "https://b.com", Title: "b"},
		{URL: "https://a.com", Title: "second a"},
		{URL: "", Title: "no url"},
		{URL: "https://c.com", Title: "c"},
		{URL: "https://b.com", Title: "second b"},
	}

	unique := Dedupe(results)

	assert.Len(t, unique, 3)
	assert.Equal(t, "https://a.com", unique[0].URL)
	assert.Equal(t, "first a", unique[0].Title)
	assert.Equal(t, "https://b.com", unique[1].URL)
	assert.Equal(t, "https://c.com", unique[2].URL)
}

func TestDedupe_Empty(t *testing.T) {
	assert.Empty(t, Dedupe(nil))
	assert.Empty(t, Dedupe([]RawResult{}))
}

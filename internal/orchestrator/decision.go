package orchestrator

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Decision is the verdict of the search-necessity judgment.
type Decision byte

const (
	DecisionSearch Decision = 'Y'
	DecisionDirect Decision = 'N'
)

// ParseDecision derives a verdict from a free-text model response by
// scanning the first 3 characters of the trimmed, uppercased text left to
// right and taking the first Y or N literal. Ambiguity defaults to N.
func ParseDecision(response string) Decision {
	clean := strings.ToUpper(strings.TrimSpace(response))
	if len(clean) > 3 {
		clean = clean[:3]
	}

	for i := 0; i < len(clean); i++ {
		switch clean[i] {
		case 'Y':
			return DecisionSearch
		case 'N':
			return DecisionDirect
		}
	}

	return DecisionDirect
}

// maxSearchQueries bounds how many extracted queries are dispatched.
const maxSearchQueries = 3

var jsonArrayPattern = regexp.MustCompile(`(?s)\[(.*?)\]`)

// ParseQueries extracts a JSON array of query strings from a model response,
// tolerating wrapping prose. On total failure it falls back to a single
// element holding the original query, so the result always has 1 to 3
// entries.
func ParseQueries(response, originalQuery string) []string {
	fallback := []string{originalQuery}

	match := jsonArrayPattern.FindStringSubmatch(response)
	if match == nil {
		return fallback
	}

	doc := "[" + match[1] + "]"
	if !gjson.Valid(doc) {
		return fallback
	}

	parsed := gjson.Parse(doc)
	if !parsed.IsArray() {
		return fallback
	}

	var queries []string
	for _, v := range parsed.Array() {
		if v.Type != gjson.String {
			continue
		}
		q := strings.TrimSpace(v.String())
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) == maxSearchQueries {
			break
		}
	}

	if len(queries) == 0 {
		return fallback
	}
	return queries
}

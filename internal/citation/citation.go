package citation

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/hunkim/solar-search-vercel/internal/websearch"
)

// Reference is one numbered citation, where Number matches a bracket marker
// [n] appearing in the cited text.
type Reference struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// Result pairs an answer text with the references it cites. CitedText always
// equals the input text when no meaningful citations could be established.
type Result struct {
	CitedText  string      `json:"cited_text"`
	References []Reference `json:"references"`
}

// JSON serializes the result. A marshal failure falls back to a best-effort
// text-only form instead of surfacing an error.
func (r Result) JSON() string {
	data, err := json.Marshal(r)
	if err != nil {
		fallback, _ := json.Marshal(Result{CitedText: r.CitedText, References: []Reference{}})
		return string(fallback)
	}
	return string(data)
}

// markerPattern matches bracket citation markers, including comma-separated
// groups like [1,2,3].
var markerPattern = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)

// AddCitations scans text for citation markers the model already emitted and
// resolves them against sources by ID. The text is returned unchanged; when
// no markers are found the references are empty.
func AddCitations(text string, sources []websearch.Result) Result {
	result := Result{CitedText: text, References: []Reference{}}
	if text == "" || len(sources) == 0 {
		return result
	}

	byID := make(map[int]websearch.Result, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	seen := make(map[int]struct{})
	for _, match := range markerPattern.FindAllStringSubmatch(text, -1) {
		for _, part := range strings.Split(match[1], ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n <= 0 {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			src, ok := byID[n]
			if !ok {
				continue
			}
			seen[n] = struct{}{}
			result.References = append(result.References, Reference{
				Number: n,
				URL:    src.URL,
				Title:  src.Title,
			})
		}
	}

	return result
}

// Heuristic matching thresholds: a sentence cites a source when they share at
// least this many content words. Tried strict-first; relaxed within the same
// call so that some attribution is preferred over none whenever there is any
// genuine lexical signal.
var overlapThresholds = []int{3, 2, 1}

// FillCitationHeuristic back-fills citation markers by lexical overlap
// between answer sentences and source content. It never fabricates: when no
// source shares a single content word with any sentence, the text comes back
// untouched with empty references. Markers are numbered by the order sources
// are first cited, not by their original rank.
func FillCitationHeuristic(text string, sources []websearch.Result) Result {
	empty := Result{CitedText: text, References: []Reference{}}
	if strings.TrimSpace(text) == "" || len(sources) == 0 {
		return empty
	}

	sourceTokens := make([]map[string]struct{}, len(sources))
	for i, s := range sources {
		sourceTokens[i] = tokenize(s.Content)
	}

	sentences := splitSentences(text)

	// matches[i] holds indexes into sources cited by sentence i.
	var matches [][]int
	for _, threshold := range overlapThresholds {
		matches = matchSentences(sentences, sourceTokens, threshold)
		if len(matches) > 0 {
			break
		}
	}
	if len(matches) == 0 {
		return empty
	}

	matched := make(map[int][]int) // sentence index -> source indexes
	for _, m := range matches {
		matched[m[0]] = append(matched[m[0]], m[1])
	}

	// Assign citation numbers in order of first citation.
	assigned := make(map[int]int) // source index -> citation number
	var refs []Reference
	var out strings.Builder

	for i, sentence := range sentences {
		srcIdxs, ok := matched[i]
		if !ok {
			out.WriteString(sentence)
			continue
		}

		// Markers go after the sentence's punctuation, before its trailing
		// whitespace, so the original spacing survives.
		body := strings.TrimRight(sentence, " \t\r\n")
		out.WriteString(body)

		inSentence := make(map[int]struct{})
		for _, si := range srcIdxs {
			if _, dup := inSentence[si]; dup {
				continue
			}
			inSentence[si] = struct{}{}

			num, known := assigned[si]
			if !known {
				num = len(assigned) + 1
				assigned[si] = num
				refs = append(refs, Reference{
					Number: num,
					URL:    sources[si].URL,
					Title:  sources[si].Title,
				})
			}
			out.WriteString("[" + strconv.Itoa(num) + "]")
		}

		out.WriteString(sentence[len(body):])
	}

	return Result{CitedText: out.String(), References: refs}
}

// matchSentences returns (sentence index, source index) pairs whose content
// word overlap meets the threshold.
func matchSentences(sentences []string, sourceTokens []map[string]struct{}, threshold int) [][]int {
	var matches [][]int
	for i, sentence := range sentences {
		words := tokenize(sentence)
		if len(words) == 0 {
			continue
		}
		for si, tokens := range sourceTokens {
			if len(tokens) == 0 {
				continue
			}
			overlap := 0
			for w := range words {
				if _, ok := tokens[w]; ok {
					overlap++
				}
			}
			if overlap >= threshold {
				matches = append(matches, []int{i, si})
			}
		}
	}
	return matches
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// tokenize lowercases text and keeps content words (length > 3).
func tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 3 {
			tokens[w] = struct{}{}
		}
	}
	return tokens
}

var sentenceEnd = regexp.MustCompile(`([.!?])(\s+|$)`)

// splitSentences splits text into sentences, each keeping its terminal
// punctuation and trailing whitespace so the original text reassembles
// byte-for-byte.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		sentences = append(sentences, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		sentences = append(sentences, text[last:])
	}
	return sentences
}

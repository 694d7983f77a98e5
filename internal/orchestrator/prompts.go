package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

// Prompt templates carry the current date so the model can judge recency.
// The clock is a variable so tests can pin it.
var now = time.Now

func currentDate() string  { return now().Format("January 2, 2006") }
func currentYear() int     { return now().Year() }
func currentMonth() string { return now().Format("January 2006") }
func currentTime() string  { return now().Format("3:04 PM MST") }

// searchNeededPrompt asks for a single Y/N verdict on whether the query
// requires current information from web search.
func searchNeededPrompt(query string) string {
	return fmt.Sprintf(`Determine if this user query requires current/recent information from web search to provide a complete and accurate answer.

TODAY'S DATE: %s

User Query: "%s"

Consider:
- Does it ask about recent events, news, or current affairs?
- Does it require real-time data (stock prices, weather, sports scores)?
- Does it ask about recent developments in technology, politics, or other rapidly changing fields?
- Does it require information that might have changed recently?
- Does it use time-sensitive terms like "today", "recent", "latest", "current", "now"?
- Does it ask about events that happened after the model's training data cutoff?

Return ONLY a single character: Y (if web search is needed) or N (if general knowledge is sufficient).

Examples:
- "What is the capital of France?" -> N
- "How do I implement a binary search in Python?" -> N
- "What are the latest developments in AI?" -> Y
- "What is the current stock price of Apple?" -> Y
- "What happened today in the news?" -> Y
- "What's the weather today?" -> Y
- "Who won the recent elections in South Korea?" -> Y
- "Explain quantum computing" -> N
- "What are today's trending topics?" -> Y

Answer (Y or N only):`, currentDate(), query)
}

// extractQueriesPrompt asks for 2-3 web-search-optimized queries as a JSON
// array, framed with the current date for recency.
func extractQueriesPrompt(query string) string {
	year := currentYear()
	month := currentMonth()

	return fmt.Sprintf(`Extract 2-3 concise search queries from this user question that would get the most relevant web search results.

TODAY'S DATE: %s
CURRENT YEAR: %d
CURRENT MONTH: %s

User Question: "%s"

Rules:
- Make queries specific and focused on key terms
- Remove filler words, focus on essential keywords
- Include technical terms and proper nouns
- For comparisons, create separate queries for each item
- Keep queries short but comprehensive
- ADD DATE CONTEXT when relevant:
  * Use "%d" for recent/latest queries
  * Use "today", "recent", "latest" for time-sensitive topics
  * Use current month/year for very recent events
  * Include "news" for current events
  * Add "stock price today" for financial queries
  * Use "current" for real-time data requests

Return ONLY a JSON array: ["query1", "query2", "query3"]

Examples:
- "What are the latest AI developments?" -> ["latest AI developments %d", "artificial intelligence recent advances news", "AI breakthrough %s"]
- "Recent news about Tesla" -> ["Tesla news %d", "Tesla recent developments %s", "Tesla latest news today"]
- "Current Apple stock price" -> ["Apple stock price today", "AAPL current stock price %d", "Apple share price latest"]

JSON array:`, currentDate(), year, month, query, year, year, month, year, month, year)
}

// directAnswerPrompt wraps the query with date context and an explicit
// knowledge-cutoff caveat for time-sensitive topics.
func directAnswerPrompt(query string) string {
	return fmt.Sprintf(`Today's date: %s
Current year: %d
Current time: %s

User question: %s

Please provide a comprehensive answer to the user's question. If the question relates to current events, recent developments, or time-sensitive information, please note that your knowledge has a cutoff date and you may not have the most recent information. For such queries, recommend that the user search for the latest information online.

Answer:`, currentDate(), currentYear(), currentTime(), query)
}

// groundedPrompt embeds the numbered search context and directs the model to
// cite sources with bracketed numbers.
func groundedPrompt(query, searchContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Use the following search results to answer the user's question comprehensively.

TODAY'S DATE: %s
CURRENT YEAR: %d
CURRENT TIME: %s

SEARCH RESULTS:
%s
USER QUESTION: %s

INSTRUCTIONS:
1. Respond in the SAME LANGUAGE as the user's question
2. Be comprehensive but concise - provide complete information without being wordy
3. Use information from the search results to provide current, accurate details
4. Add citation numbers [1], [2], etc. directly after specific facts from the sources
5. Consider the current date when interpreting "recent", "latest", "today", etc.
6. If discussing time-sensitive information, mention when the information was published if available
7. If search results don't contain relevant information, briefly state that
8. For financial data, stock prices, or real-time information, note the time sensitivity

Provide a well-structured, informative answer based on the search results:`,
		currentDate(), currentYear(), currentTime(), searchContext, query)

	return b.String()
}

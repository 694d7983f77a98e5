package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
)

// Config holds search client configuration.
type Config struct {
	APIKey     string
	APIHost    string
	MaxResults int
	Timeout    time.Duration
}

// Client issues keyword queries to a Tavily-compatible search service. It is
// a stateless request issuer and is safe for concurrent use.
//
// Every failure mode degrades to an empty result list: the caller never has
// to distinguish "provider down" from "nothing found".
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a search client.
func NewClient(config Config, log *logger.Logger) *Client {
	if config.APIHost == "" {
		config.APIHost = "https://api.tavily.com"
	}
	if config.MaxResults == 0 {
		config.MaxResults = 8
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: log,
	}
}

// Enabled reports whether a search credential is configured.
func (c *Client) Enabled() bool {
	return c.config.APIKey != ""
}

type searchRequest struct {
	APIKey            string `json:"api_key"`
	Query             string `json:"query"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
}

type searchResponse struct {
	Results []RawResult `json:"results"`
}

// Search executes one keyword query and returns the raw ranked records.
// Transport errors, non-200 responses and malformed bodies all degrade to an
// empty list with a logged warning.
func (c *Client) Search(ctx context.Context, query string, maxResults int) []RawResult {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}

	body, err := json.Marshal(searchRequest{
		APIKey:            c.config.APIKey,
		Query:             query,
		MaxResults:        maxResults,
		IncludeRawContent: true,
	})
	if err != nil {
		c.logger.Warn("failed to marshal search request", zap.Error(err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIHost+"/search", bytes.NewReader(body))
	if err != nil {
		c.logger.Warn("failed to create search request", zap.Error(err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("search request failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		c.logger.Warn("search provider returned non-200",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		c.logger.Warn("failed to decode search response", zap.Error(err))
		return nil
	}

	return searchResp.Results
}

package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hunkim/solar-search-vercel/internal/pkg/logger"
)

// Config holds completion client configuration.
type Config struct {
	APIKey         string
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Request is a single prompt-completion request. When Stream is set, each
// content delta is passed to OnUpdate (if non-nil) as it arrives.
type Request struct {
	Prompt   string
	Model    string
	Stream   bool
	OnUpdate func(chunk string)
}

// Client issues prompt-completion requests to an OpenAI-compatible chat
// endpoint. It is stateless and safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a completion client.
func New(config Config, log *logger.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.upstage.ai/v1/chat/completions"
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 5 * time.Second
	}
	readTimeout := config.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			// No overall timeout: streamed responses legitimately take as
			// long as the model keeps emitting. Connect and per-read limits
			// bound the failure modes instead.
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: connectTimeout,
				}).DialContext,
				ResponseHeaderTimeout: readTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		logger: log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Complete sends the request and returns the full response text. Streaming
// and non-streaming requests surface errors the same way: a non-200 status
// is a hard error carrying the status code and response body.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:   req.Stream,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("completion request failed with status code %d: %s", resp.StatusCode, string(respBody))
	}

	if req.Stream {
		return c.readStream(resp.Body, req.OnUpdate)
	}
	return c.readResponse(resp.Body)
}

// readResponse extracts the text of a non-streaming response.
func (c *Client) readResponse(body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("unexpected completion response shape: %s", string(data))
	}

	return content.String(), nil
}

// readStream consumes a server-sent-event stream of chat chunks, terminated
// by a literal [DONE] event. Each non-empty delta is accumulated and handed
// to onUpdate. Malformed individual chunks are skipped, not fatal.
func (c *Client) readStream(body io.Reader, onUpdate func(string)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var full strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		if !gjson.Valid(data) {
			continue
		}

		delta := gjson.Get(data, "choices.0.delta.content")
		if !delta.Exists() || delta.String() == "" {
			continue
		}

		content := delta.String()
		full.WriteString(content)
		if onUpdate != nil {
			onUpdate(content)
		}
	}

	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("stream read failed: %w", err)
	}

	return full.String(), nil
}

// Package backend talks to the chat server: streaming generation, one-shot
// completions, the function catalogue and function execution.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"tinychat/config"
)

// DefaultBaseURL is the server address used when none is configured
const DefaultBaseURL = "http://localhost:8000"

// DefaultRequestTimeout bounds every request that is not a stream
const DefaultRequestTimeout = 60 * time.Second

// Client is a thread-safe client for the chat server
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	completions    openai.Client
}

// NewClient creates a client for the server at baseURL. Streams are bounded
// only by their context; other requests time out after requestTimeout.
func NewClient(baseURL string, requestTimeout time.Duration) (*Client, error) {
	return NewClientWithHTTPClient(baseURL, requestTimeout, &http.Client{})
}

// NewClientWithHTTPClient is NewClient with a caller-supplied transport
func NewClientWithHTTPClient(baseURL string, requestTimeout time.Duration, httpClient *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid backend URL %q: must start with http:// or https://", baseURL)
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	// The server speaks the OpenAI wire format on /v1/chat/completions.
	// It does not check keys; a placeholder keeps the SDK from reading the environment.
	completions := openai.NewClient(
		option.WithBaseURL(baseURL+"/v1/"),
		option.WithAPIKey("tinychat"),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		completions:    completions,
	}, nil
}

// BaseURL returns the server address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the server is up
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, EndpointHealth, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends a request and returns the response when the status is 2xx.
// Any other status is drained into a StatusError.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Backend] %s %s", method, endpoint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Backend] %s %s returned %d", method, endpoint, resp.StatusCode)
		}
		return nil, NewStatusError(resp.StatusCode, endpoint, string(data))
	}

	return resp, nil
}

// getJSON fetches endpoint and returns the raw body
func (c *Client) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// postJSON posts body to endpoint and decodes the response into out
func (c *Client) postJSON(ctx context.Context, endpoint string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

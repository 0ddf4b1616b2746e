package backend

import (
	"context"
	"io"
	"net/http"
)

// OpenStream starts a streaming generation and returns the live response body.
// The body is a single JSON record whose "choices" array grows one delta
// object per token; it ends when ctx is cancelled or the server finishes.
// The caller must close the body.
func (c *Client) OpenStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, EndpointStream, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

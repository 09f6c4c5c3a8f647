package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/roach88/fedplan/internal/plan"
)

// QueryPath is the gateway route requests are posted to.
const QueryPath = "/v1/query"

// maxErrorBody bounds how much of a failed response is read into the error.
const maxErrorBody = 4 << 10

// HTTPClient sends requests to a remote gateway served by Server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the gateway at baseURL. A nil client
// uses http.DefaultClient.
func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Send posts req as JSON and decodes the response.
func (c *HTTPClient) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return plan.Response{}, fmt.Errorf("http: encode request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+QueryPath, bytes.NewReader(body))
	if err != nil {
		return plan.Response{}, fmt.Errorf("http: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	if req.ID != "" {
		hreq.Header.Set(requestIDHeader, req.ID)
	}

	hresp, err := c.client.Do(hreq)
	if err != nil {
		return plan.Response{}, fmt.Errorf("http: %w", err)
	}
	defer hresp.Body.Close()

	if hresp.StatusCode != http.StatusOK {
		var e ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(hresp.Body, maxErrorBody))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return plan.Response{}, fmt.Errorf("http: gateway returned %d: %s", hresp.StatusCode, e.Error)
	}

	var resp plan.Response
	if err := json.NewDecoder(hresp.Body).Decode(&resp); err != nil {
		return plan.Response{}, fmt.Errorf("http: decode response: %w", err)
	}
	return resp, nil
}

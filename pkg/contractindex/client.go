// Package contractindex provides a client for the contract retrieval index
// service. The index is maintained by the document-indexing pipeline; this
// client only issues ranked-retrieval queries against it.
package contractindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// Client defines the retrieval operations used by the reconciliation engine.
type Client interface {
	// Query runs a ranked retrieval against the index and returns the top
	// matching contract nodes, best first.
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

// QueryRequest is a ranked-retrieval request.
type QueryRequest struct {
	Index string `json:"index"`
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// QueryResponse holds the ranked retrieval results.
type QueryResponse struct {
	Nodes []Node `json:"nodes"`
}

// Node is one retrieved contract passage with its source metadata.
type Node struct {
	ID       string       `json:"id"`
	Score    float64      `json:"score"`
	Text     string       `json:"text"`
	Metadata NodeMetadata `json:"metadata"`
}

// NodeMetadata carries the terms the indexing pipeline derived from the
// contract document. Fields are empty when derivation failed.
type NodeMetadata struct {
	FileName       string `json:"file_name,omitempty"`
	VendorName     string `json:"vendor_name,omitempty"`
	VendorTaxID    string `json:"vendor_tax_id,omitempty"`
	ContractNumber string `json:"contract_number,omitempty"`
	PONumber       string `json:"po_number,omitempty"`
	EffectiveStart string `json:"effective_start,omitempty"`
	EffectiveEnd   string `json:"effective_end,omitempty"`
	PaymentTerms   string `json:"payment_terms,omitempty"`
	TotalValue     string `json:"total_value,omitempty"`
}

// Option configures the index client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default query rate limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new contract index client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.cloud.llamaindex.ai/api/v1/retrieval",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures. The request body is re-sent from payload on each
// attempt. Returns the response body and status code.
func (c *httpClient) retryDo(ctx context.Context, method, url string, payload []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return nil, 0, eris.Wrap(err, "contractindex: create request")
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "contractindex: read response body")
		}

		if resilience.IsTransientHTTPStatus(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("contractindex: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "contractindex: rate limit wait")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "contractindex: marshal query")
	}

	url := fmt.Sprintf("%s/query", c.baseURL)
	body, statusCode, err := c.retryDo(ctx, http.MethodPost, url, payload)
	if err != nil {
		return nil, eris.Wrap(err, "contractindex: query request failed")
	}

	// The index returns 404 for an index with no documents yet. Treat it as
	// an empty result set rather than an error.
	if statusCode == http.StatusNotFound {
		return &QueryResponse{}, nil
	}

	if statusCode != http.StatusOK {
		statusErr := eris.Errorf("contractindex: unexpected status %d: %s", statusCode, string(body))
		if resilience.IsTransientHTTPStatus(statusCode) {
			// Retries inside retryDo are exhausted; classify for the caller.
			return nil, resilience.NewTransientError(statusErr, statusCode)
		}
		return nil, statusErr
	}

	var result QueryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "contractindex: unmarshal response")
	}

	return &result, nil
}

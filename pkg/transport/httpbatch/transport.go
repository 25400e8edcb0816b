// Package httpbatch posts message batches as JSON to a provider endpoint.
package httpbatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukex/mailflow/pkg/transport"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 1 << 10
)

var (
	ErrInvalidEndpoint = errors.New("invalid transport endpoint")
	ErrProviderStatus  = errors.New("provider rejected the batch")
)

type request struct {
	Messages []transport.Message `json:"messages"`
}

type response struct {
	Results []transport.Result `json:"results"`
}

type Transport struct {
	endpoint string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

type Option func(*Transport)

// WithHTTPClient replaces the client; its Timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		t.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.client = &http.Client{Timeout: d}
		}
	}
}

func New(endpoint, token string, logger *slog.Logger, opts ...Option) (*Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	t := &Transport{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger.With("module", "httpbatch_transport"),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// SendBatch submits the batch in one request. Any non-2xx status fails the
// whole batch; otherwise per-message results are read from the body.
func (t *Transport) SendBatch(ctx context.Context, messages []transport.Message) ([]transport.Result, error) {
	body, err := json.Marshal(request{Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderStatus, resp.StatusCode, bytes.TrimSpace(detail))
	}

	var decoded response

	err = json.NewDecoder(resp.Body).Decode(&decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	t.logger.DebugContext(ctx, "Batch submitted", "messages", len(messages), "results", len(decoded.Results))

	return decoded.Results, nil
}

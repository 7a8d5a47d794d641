// Package webhook implements an HTTP POST publisher.
//
// Event records go out as JSON to a configured URL. Transient failures
// (5xx, network errors) retry with exponential backoff; 4xx responses
// fail immediately.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/iox"
	"github.com/pithecene-io/sluice/wire"
)

// Defaults applied by New and the serve flag layer.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// baseBackoff is the delay before the first retry; it doubles per retry.
const baseBackoff = 500 * time.Millisecond

// Config configures the webhook publisher.
type Config struct {
	// URL is the HTTP endpoint to POST to. Required.
	URL string
	// Headers are added to every request.
	Headers map[string]string
	// Timeout bounds each request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Retries is the retry budget after the initial attempt. Zero means
	// publish once.
	Retries int
}

// Publisher forwards event records via HTTP POST.
type Publisher struct {
	cfg    Config
	client *http.Client
}

// New creates a webhook publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook publisher requires a URL")
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Publisher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Publish POSTs the record as JSON, retrying transient failures with
// exponential backoff.
func (p *Publisher) Publish(ctx context.Context, rec *wire.EventRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("webhook: marshal record: %w", err)
	}

	attempts := 1 + p.cfg.Retries
	var lastErr error
	for i := range attempts {
		if i > 0 {
			if err := sleep(ctx, baseBackoff<<(i-1)); err != nil {
				return fmt.Errorf("webhook: context canceled during backoff: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("webhook: context canceled: %w", err)
		}

		if lastErr = p.post(ctx, body); lastErr == nil {
			return nil
		}
		if !retriable(lastErr) {
			return fmt.Errorf("webhook: non-retriable error: %w", lastErr)
		}
	}

	return fmt.Errorf("webhook: failed after %d attempts: %w", attempts, lastErr)
}

// StatusError is returned for non-2xx HTTP responses. It carries the code
// so callers can split retriable (5xx) from non-retriable (4xx) failures.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// retriable reports whether a later attempt may succeed. Client errors
// (4xx) never do.
func retriable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code < 400 || status.Code >= 500
	}
	return true
}

// post performs one HTTP POST and returns nil on a 2xx response.
func (p *Publisher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	// Drain so the connection can be reused.
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close releases idle connections.
func (p *Publisher) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ adapter.Publisher = (*Publisher)(nil)

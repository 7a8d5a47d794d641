// Package redis implements a Redis pub/sub publisher.
//
// Event records go out as JSON via PUBLISH on a configured channel. All
// failures are treated as transient and retry with exponential backoff.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/sluice/adapter"
	"github.com/pithecene-io/sluice/wire"
)

// Defaults applied by New and the serve flag layer.
const (
	DefaultChannel = "sluice:events"
	DefaultTimeout = 5 * time.Second
	DefaultRetries = 3
)

// baseBackoff is the delay before the first retry; it doubles per retry.
const baseBackoff = 500 * time.Millisecond

// Config configures the Redis pub/sub publisher.
type Config struct {
	// URL is the Redis connection URL, in the form
	// redis://[:password@]host:port[/db]. Required.
	URL string
	// Channel is the pub/sub channel name. Defaults to DefaultChannel.
	Channel string
	// Timeout bounds each PUBLISH. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Retries is the retry budget after the initial attempt. Zero means
	// publish once.
	Retries int
}

// Publisher forwards event records via Redis PUBLISH.
type Publisher struct {
	cfg    Config
	client *goredis.Client
}

// New creates a Redis pub/sub publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis publisher requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis publisher: invalid URL: %w", err)
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Publisher{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Publish sends the record as JSON to the configured channel, retrying
// failures with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, rec *wire.EventRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal record: %w", err)
	}

	attempts := 1 + p.cfg.Retries
	var lastErr error
	for i := range attempts {
		if i > 0 {
			if err := sleep(ctx, baseBackoff<<(i-1)); err != nil {
				return fmt.Errorf("redis: context canceled during backoff: %w", err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("redis: context canceled: %w", err)
		}

		if lastErr = p.send(ctx, body); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("redis: failed after %d attempts: %w", attempts, lastErr)
}

// send performs one PUBLISH bounded by the configured timeout.
func (p *Publisher) send(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.client.Publish(ctx, p.cfg.Channel, body).Err()
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

// Close releases the client connection pool.
func (p *Publisher) Close() error {
	return p.client.Close()
}

var _ adapter.Publisher = (*Publisher)(nil)

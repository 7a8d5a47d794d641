package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/wire"
)

// DefaultIntentChannel is the default pub/sub channel for inbound
// intent envelopes.
const DefaultIntentChannel = "sluice:intents"

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: sluice:intents).
	Channel string
	// Sink receives decode diagnostics. Defaults to a nop sink.
	Sink log.Sink
}

// RedisSource subscribes to a Redis pub/sub channel and dispatches the
// JSON intent envelopes published there. Envelopes on this transport
// are message-delimited, so no length-prefix framing applies; a message
// that fails to decode is logged and skipped.
type RedisSource struct {
	cfg    RedisConfig
	client *goredis.Client

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRedisSource validates cfg and returns a RedisSource.
// Returns an error if the URL is empty or invalid.
func NewRedisSource(cfg RedisConfig) (*RedisSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: redis source requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("feed: invalid redis URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultIntentChannel
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}

	return &RedisSource{
		cfg:    cfg,
		client: goredis.NewClient(opts),
		ready:  make(chan struct{}),
	}, nil
}

// Name implements Source.
func (r *RedisSource) Name() string { return "redis:" + r.cfg.Channel }

// Ready is closed once the subscription is confirmed by the server.
// Publishes sent before that point are not delivered.
func (r *RedisSource) Ready() <-chan struct{} { return r.ready }

// Run subscribes and dispatches envelopes until ctx is canceled or the
// subscription ends. The go-redis client reconnects dropped
// subscriptions on its own; Run returns only on cancellation or when
// dispatch fails.
func (r *RedisSource) Run(ctx context.Context, dispatch Dispatcher) error {
	sub := r.client.Subscribe(ctx, r.cfg.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", r.cfg.Channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}

			var env wire.IntentEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.skip(err, "undecodable message")
				continue
			}
			if err := wire.CheckContractVersion(env.ContractVersion); err != nil {
				r.skip(err, "message from incompatible contract")
				continue
			}
			if err := env.Validate(); err != nil {
				r.skip(err, "invalid envelope")
				continue
			}

			if err := dispatch(ctx, env.Materialize()); err != nil {
				return err
			}
		}
	}
}

func (r *RedisSource) skip(err error, what string) {
	r.cfg.Sink.Log(zapcore.WarnLevel, "feed", err, func() string {
		return fmt.Sprintf("%s: skipping %s", r.Name(), what)
	})
}

// Close releases the client connection.
func (r *RedisSource) Close() error {
	return r.client.Close()
}

// Verify RedisSource implements the source interface.
var _ Source = (*RedisSource)(nil)

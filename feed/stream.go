package feed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/wire"
)

// ErrNoReader reports a StreamConfig without a reader.
var ErrNoReader = errors.New("feed: reader required")

// StreamConfig configures a StreamSource.
type StreamConfig struct {
	// Reader is the framed envelope stream. Required.
	Reader io.Reader
	// Name identifies the source in diagnostics. Defaults to "stream".
	Name string
	// Sink receives decode diagnostics. Defaults to a nop sink.
	Sink log.Sink
}

// StreamSource reads length-prefix framed msgpack envelopes from a byte
// stream, typically a pipe or socket fed by sluice-feed.
type StreamSource struct {
	cfg     StreamConfig
	decoder *wire.FrameDecoder
}

// NewStreamSource validates cfg and returns a StreamSource.
func NewStreamSource(cfg StreamConfig) (*StreamSource, error) {
	if cfg.Reader == nil {
		return nil, ErrNoReader
	}
	if cfg.Name == "" {
		cfg.Name = "stream"
	}
	if cfg.Sink == nil {
		cfg.Sink = log.NopSink()
	}
	return &StreamSource{
		cfg:     cfg,
		decoder: wire.NewFrameDecoder(cfg.Reader),
	}, nil
}

// Name implements Source.
func (s *StreamSource) Name() string { return s.cfg.Name }

// Run reads frames until EOF or a fatal framing error. Envelopes that
// fail to decode or validate are logged and skipped; the stream
// continues at the next frame boundary.
//
// The underlying read is not context-aware; cancel the source by closing
// the reader.
func (s *StreamSource) Run(ctx context.Context, dispatch Dispatcher) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := s.decoder.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("feed %s: %w", s.cfg.Name, err)
		}

		env, err := wire.DecodeEnvelope(payload)
		if err != nil {
			s.skip(err, "undecodable frame")
			continue
		}
		if err := wire.CheckContractVersion(env.ContractVersion); err != nil {
			s.skip(err, "frame from incompatible contract")
			continue
		}
		if err := env.Validate(); err != nil {
			s.skip(err, "invalid envelope")
			continue
		}

		if err := dispatch(ctx, env.Materialize()); err != nil {
			return err
		}
	}
}

func (s *StreamSource) skip(err error, what string) {
	s.cfg.Sink.Log(zapcore.WarnLevel, "feed", err, func() string {
		return fmt.Sprintf("%s: skipping %s", s.cfg.Name, what)
	})
}

// Close implements Source. It closes the reader when the reader is a
// Closer; otherwise it is a no-op.
func (s *StreamSource) Close() error {
	if c, ok := s.cfg.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Verify StreamSource implements the source interface.
var _ Source = (*StreamSource)(nil)

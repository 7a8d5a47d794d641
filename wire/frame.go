package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Framing limits. A frame is a 4-byte big-endian payload length followed
// by a msgpack payload.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxFrameSize caps a whole frame, prefix included, at 16 MiB.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize caps the payload portion of a frame.
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
)

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	r io.Reader
}

// NewFrameDecoder creates a frame decoder over r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// ReadFrame reads a single frame and returns its raw msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly on a frame boundary
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		// A clean EOF only happens on a frame boundary; any bytes short
		// of a full prefix mean truncation.
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxPayloadSize {
		return nil, oversized(int(size))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// ReadEnvelope reads one frame and decodes it as an intent envelope.
func (d *FrameDecoder) ReadEnvelope() (*IntentEnvelope, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(payload)
}

// DecodeEnvelope decodes a raw frame payload as an intent envelope.
func DecodeEnvelope(payload []byte) (*IntentEnvelope, error) {
	var env IntentEnvelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode intent envelope", Err: err}
	}
	return &env, nil
}

// EncodeEnvelope encodes an envelope to a raw msgpack payload.
func EncodeEnvelope(env *IntentEnvelope) ([]byte, error) {
	payload, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return nil, oversized(len(payload))
	}
	return payload, nil
}

// WriteFrame writes payload to w with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return oversized(len(payload))
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// WriteEnvelope encodes env and writes it to w as one frame.
func WriteEnvelope(w io.Writer, env *IntentEnvelope) error {
	payload, err := EncodeEnvelope(env)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError carries the failure kind alongside the message so readers
// can split fatal stream errors from per-frame decode errors.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether the stream is unrecoverable past this error.
// Partial and oversized frames leave the reader desynchronized; a decode
// failure is scoped to one well-delimited frame and the stream continues.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError reports whether err wraps a fatal frame error.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.IsFatal()
}

func oversized(n int) *FrameError {
	return &FrameError{
		Kind: FrameErrorTooLarge,
		Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", n, MaxPayloadSize),
	}
}

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func sampleEnvelope(seq int64) *IntentEnvelope {
	return &IntentEnvelope{
		ContractVersion: ContractVersion,
		IntentID:        "int-001",
		Seq:             seq,
		Type:            "cart.add",
		Ts:              "2026-01-15T10:00:00Z",
		Payload: map[string]any{
			"sku": "A-100",
			"qty": 2,
		},
	}
}

func TestFrame_RoundTripSingleEnvelope(t *testing.T) {
	env := sampleEnvelope(1)
	env.Concurrency = ConcurrencyConcurrent

	var buf bytes.Buffer
	if err := WriteEnvelope(&buf, env); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	decoded, err := NewFrameDecoder(&buf).ReadEnvelope()
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}

	if decoded.IntentID != env.IntentID {
		t.Errorf("IntentID = %q, want %q", decoded.IntentID, env.IntentID)
	}
	if decoded.Type != env.Type {
		t.Errorf("Type = %q, want %q", decoded.Type, env.Type)
	}
	if decoded.Seq != env.Seq {
		t.Errorf("Seq = %d, want %d", decoded.Seq, env.Seq)
	}
	if decoded.Concurrency != ConcurrencyConcurrent {
		t.Errorf("Concurrency = %q, want %q", decoded.Concurrency, ConcurrencyConcurrent)
	}
	if decoded.Payload["sku"] != "A-100" {
		t.Errorf("Payload sku = %v, want %q", decoded.Payload["sku"], "A-100")
	}
}

func TestFrameDecoder_MultipleEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	for seq := int64(1); seq <= 3; seq++ {
		if err := WriteEnvelope(&buf, sampleEnvelope(seq)); err != nil {
			t.Fatalf("WriteEnvelope failed: %v", err)
		}
	}

	decoder := NewFrameDecoder(&buf)
	var seqs []int64
	for {
		env, err := decoder.ReadEnvelope()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadEnvelope failed: %v", err)
		}
		seqs = append(seqs, env.Seq)
	}

	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Errorf("expected seqs [1 2 3], got %v", seqs)
	}
}

func TestFrameDecoder_EmptyStream(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader(nil))
	if _, err := decoder.ReadFrame(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestFrameDecoder_TruncatedPrefix(t *testing.T) {
	decoder := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))

	_, err := decoder.ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("expected truncated prefix to be fatal")
	}
}

func TestFrameDecoder_TruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 100)
	buf.Write(lengthBuf[:])
	buf.Write([]byte("short"))

	_, err := NewFrameDecoder(&buf).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("expected truncated payload to be fatal")
	}
}

func TestFrameDecoder_OversizedRejected(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxPayloadSize+1)
	buf.Write(lengthBuf[:])

	_, err := NewFrameDecoder(&buf).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected oversized frame error, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("expected oversized frame to be fatal")
	}
}

func TestDecodeEnvelope_GarbageNotFatal(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{0xc1, 0xff, 0x00}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	payload, err := NewFrameDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	_, err = DecodeEnvelope(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if IsFatalFrameError(err) {
		t.Error("expected a scoped decode failure to be non-fatal")
	}
}

func TestWriteFrame_OversizedRejected(t *testing.T) {
	err := WriteFrame(io.Discard, make([]byte, MaxPayloadSize+1))
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected oversized frame error, got %v", err)
	}
}

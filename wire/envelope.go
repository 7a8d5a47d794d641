// Package wire defines the intent ingestion wire format: msgpack-encoded,
// length-prefix framed envelopes, plus the record schemas shared by the
// event publishers and the journal.
package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/sluice/types"
)

// ContractVersion is the ingestion wire contract version. Frames carrying
// a different major version are rejected at the feed boundary.
const ContractVersion = "1.0.0"

// Concurrency hint values carried by intent envelopes.
const (
	// ConcurrencyNone leaves the intent untagged; it routes to the
	// grouped fallback lane under the hybrid strategy.
	ConcurrencyNone = ""
	// ConcurrencyConcurrent tags the intent for the parallel lane.
	ConcurrencyConcurrent = "concurrent"
	// ConcurrencySequential tags the intent for the global FIFO lane.
	ConcurrencySequential = "sequential"
	// ConcurrencyBoth carries contradictory tags; the pipeline logs a
	// conflict per occurrence and uses the grouped fallback lane.
	ConcurrencyBoth = "both"
)

// IntentEnvelope is the wire form of one dispatched intent. Framed
// transports carry it as msgpack; message-delimited transports (Redis
// pub/sub) carry it as JSON.
type IntentEnvelope struct {
	// ContractVersion is the semantic version of the ingestion contract.
	ContractVersion string `msgpack:"contract_version" json:"contract_version"`
	// IntentID is a unique identifier for this intent, scoped to the feed.
	IntentID string `msgpack:"intent_id" json:"intent_id"`
	// Seq is the feed's monotonic sequence number, starts at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Type is the intent type discriminator; it is also the default
	// grouping key for untagged intents.
	Type string `msgpack:"type" json:"type"`
	// Ts is the intent timestamp in ISO 8601 UTC format.
	Ts string `msgpack:"ts" json:"ts"`
	// Concurrency is the lane hint: "", "concurrent", "sequential", or
	// "both".
	Concurrency string `msgpack:"concurrency,omitempty" json:"concurrency,omitempty"`
	// Payload is the type-specific payload.
	Payload map[string]any `msgpack:"payload" json:"payload"`
}

// Validate checks the envelope's required fields and concurrency hint.
func (e *IntentEnvelope) Validate() error {
	if e.ContractVersion == "" {
		return errors.New("wire: missing contract_version")
	}
	if e.IntentID == "" {
		return errors.New("wire: missing intent_id")
	}
	if e.Type == "" {
		return errors.New("wire: missing type")
	}
	if e.Seq < 1 {
		return fmt.Errorf("wire: seq %d out of range", e.Seq)
	}
	switch e.Concurrency {
	case ConcurrencyNone, ConcurrencyConcurrent, ConcurrencySequential, ConcurrencyBoth:
		return nil
	default:
		return fmt.Errorf("wire: unknown concurrency hint %q", e.Concurrency)
	}
}

// RemoteIntent is an envelope materialized as a pipeline intent. The
// concrete wrapper type carries the envelope's concurrency hint as
// capability tags.
type RemoteIntent struct {
	Env IntentEnvelope
}

// ConcurrentRemote is a RemoteIntent tagged for the parallel lane.
type ConcurrentRemote struct{ RemoteIntent }

// ConcurrentIntent marks ConcurrentRemote for the parallel lane.
func (ConcurrentRemote) ConcurrentIntent() {}

// SequentialRemote is a RemoteIntent tagged for the global FIFO lane.
type SequentialRemote struct{ RemoteIntent }

// SequentialIntent marks SequentialRemote for the sequential lane.
func (SequentialRemote) SequentialIntent() {}

// AmbiguousRemote carries both capability tags. Classification reports a
// conflict for every occurrence and falls back to the grouped lane.
type AmbiguousRemote struct{ RemoteIntent }

// ConcurrentIntent marks AmbiguousRemote as concurrent-capable.
func (AmbiguousRemote) ConcurrentIntent() {}

// SequentialIntent marks AmbiguousRemote as sequential-capable.
func (AmbiguousRemote) SequentialIntent() {}

// Materialize wraps the envelope in the intent type matching its
// concurrency hint.
func (e *IntentEnvelope) Materialize() types.Intent {
	base := RemoteIntent{Env: *e}
	switch e.Concurrency {
	case ConcurrencyConcurrent:
		return ConcurrentRemote{base}
	case ConcurrencySequential:
		return SequentialRemote{base}
	case ConcurrencyBoth:
		return AmbiguousRemote{base}
	default:
		return base
	}
}

// EnvelopeOf extracts the wire envelope from a materialized remote
// intent. It returns false for intents that did not arrive over the wire.
func EnvelopeOf(it types.Intent) (IntentEnvelope, bool) {
	switch v := it.(type) {
	case RemoteIntent:
		return v.Env, true
	case ConcurrentRemote:
		return v.Env, true
	case SequentialRemote:
		return v.Env, true
	case AmbiguousRemote:
		return v.Env, true
	default:
		return IntentEnvelope{}, false
	}
}

// GroupKeyOf is the grouped-lane routing key for remote intents: the
// envelope's type discriminator, or the runtime type name for local
// intents.
func GroupKeyOf(it types.Intent) string {
	if env, ok := EnvelopeOf(it); ok {
		return env.Type
	}
	return fmt.Sprintf("%T", it)
}

// StateRecord is the journaled form of one folded snapshot.
type StateRecord struct {
	ContractVersion string         `msgpack:"contract_version" json:"contract_version"`
	RunID           string         `msgpack:"run_id" json:"run_id"`
	Seq             int64          `msgpack:"seq" json:"seq"`
	Ts              string         `msgpack:"ts" json:"ts"`
	State           map[string]any `msgpack:"state" json:"state"`
	// EventType is set when this snapshot carried a one-shot event.
	EventType string `msgpack:"event_type,omitempty" json:"event_type,omitempty"`
}

// EventRecord is the published and journaled form of one one-shot event.
type EventRecord struct {
	ContractVersion string         `msgpack:"contract_version" json:"contract_version"`
	RunID           string         `msgpack:"run_id" json:"run_id"`
	Seq             int64          `msgpack:"seq" json:"seq"`
	Ts              string         `msgpack:"ts" json:"ts"`
	Type            string         `msgpack:"type" json:"type"`
	Payload         map[string]any `msgpack:"payload" json:"payload"`
}

// Timestamp formats t in the wire timestamp format.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// CheckContractVersion validates a frame's contract version. Mismatched
// frames are rejected at the feed boundary before materialization.
func CheckContractVersion(v string) error {
	if v != ContractVersion {
		return fmt.Errorf("wire: contract version mismatch: expected %s, got %s", ContractVersion, v)
	}
	return nil
}

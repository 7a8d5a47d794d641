package runtime

import (
	"context"
	"maps"

	"github.com/pithecene-io/sluice/dispatch"
	"github.com/pithecene-io/sluice/state"
	"github.com/pithecene-io/sluice/types"
	"github.com/pithecene-io/sluice/wire"
)

// State is the folded run state: a flat document patched by intents.
type State map[string]any

// Event is a one-shot notification emitted by a handler. Unlike state,
// events are not retained in snapshots; subscribers see each at most once.
type Event struct {
	Type    string
	Payload map[string]any
}

// Remote intent payload vocabulary. An envelope payload may carry any
// combination of these keys; everything else is treated as a plain
// document merge.
const (
	payloadKeySet   = "set"
	payloadKeyUnset = "unset"
	payloadKeyEvent = "event"
)

// NewServeRegistry builds the registry used by the serve daemon: every
// remote intent shape resolves to the patch handler, so wire traffic
// needs no per-type registration.
func NewServeRegistry() *dispatch.Registry[State, Event] {
	reg := dispatch.NewRegistry[State, Event]()
	dispatch.Register[wire.RemoteIntent](reg, remoteHandler)
	dispatch.Register[wire.ConcurrentRemote](reg, remoteHandler)
	dispatch.Register[wire.SequentialRemote](reg, remoteHandler)
	dispatch.Register[wire.AmbiguousRemote](reg, remoteHandler)
	return reg
}

func remoteHandler(ctx context.Context, it types.Intent, emit func(state.Change[State, Event])) error {
	return handleRemote(it, emit)
}

// handleRemote folds a remote envelope's payload into the run state.
//
// Recognized payload keys:
//
//	set:   object merged into the state
//	unset: list of keys removed from the state
//	event: {type, payload} emitted as a one-shot Event
//
// A payload carrying none of these keys is merged wholesale. A nil or
// empty payload emits nothing. A malformed event block is dropped while
// the state patch still applies; data errors in one envelope must not
// poison the run.
func handleRemote(it types.Intent, emit func(state.Change[State, Event])) error {
	env, ok := wire.EnvelopeOf(it)
	if !ok {
		return nil
	}
	if len(env.Payload) == 0 {
		return nil
	}

	set, unset, hasPatch := patchOf(env.Payload)
	ev, hasEvent := eventOf(env.Payload)

	switch {
	case hasPatch && hasEvent:
		emit(state.UpdateWith(ev, func(s State) State {
			return applyPatch(s, set, unset)
		}))
	case hasPatch:
		emit(state.Update[State, Event](func(s State) State {
			return applyPatch(s, set, unset)
		}))
	case hasEvent:
		emit(state.Event[State](ev))
	}
	return nil
}

// patchOf extracts the state patch from a payload. When the payload uses
// none of the vocabulary keys, the whole payload is the patch.
func patchOf(payload map[string]any) (set map[string]any, unset []string, ok bool) {
	_, hasSet := payload[payloadKeySet]
	_, hasUnset := payload[payloadKeyUnset]
	_, hasEvent := payload[payloadKeyEvent]

	if !hasSet && !hasUnset {
		if hasEvent {
			return nil, nil, false
		}
		return payload, nil, true
	}

	if m, isMap := payload[payloadKeySet].(map[string]any); isMap {
		set = m
	}
	unset = stringsOf(payload[payloadKeyUnset])
	return set, unset, len(set) > 0 || len(unset) > 0
}

// eventOf extracts the event block. Blocks without a type are dropped.
func eventOf(payload map[string]any) (Event, bool) {
	block, isMap := payload[payloadKeyEvent].(map[string]any)
	if !isMap {
		return Event{}, false
	}
	typ, isString := block["type"].(string)
	if !isString || typ == "" {
		return Event{}, false
	}
	ev := Event{Type: typ}
	if p, isMap := block["payload"].(map[string]any); isMap {
		ev.Payload = p
	}
	return ev, true
}

// applyPatch returns a new state with set entries merged and unset keys
// removed. The input state is shared with earlier snapshots and is never
// mutated.
func applyPatch(s State, set map[string]any, unset []string) State {
	next := make(State, len(s)+len(set))
	maps.Copy(next, s)
	for k, v := range set {
		next[k] = v
	}
	for _, k := range unset {
		delete(next, k)
	}
	return next
}

// stringsOf coerces a decoded unset list. Msgpack and JSON both yield
// []any for arrays; []string covers callers constructing payloads in Go.
func stringsOf(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, isString := item.(string); isString {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

package store

import (
	"sync/atomic"
	"testing"
	"time"
)

func recvOne[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed", what)
		}
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("%s: timed out", what)
	}
	panic("unreachable")
}

func TestBroadcast_DeliversToAllSubscribers(t *testing.T) {
	b := newBroadcast[int](4, false, nil)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	if n := b.Publish(7); n != 2 {
		t.Fatalf("expected 2 subscribers reached, got %d", n)
	}
	if v := recvOne(t, ch1, "ch1"); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
	if v := recvOne(t, ch2, "ch2"); v != 7 {
		t.Errorf("expected 7, got %d", v)
	}
}

func TestBroadcast_ReplayLastOnAttach(t *testing.T) {
	b := newBroadcast[string](4, true, nil)
	b.Seed("initial")

	_, early := b.Subscribe()
	if v := recvOne(t, early, "early"); v != "initial" {
		t.Errorf("expected seeded value, got %q", v)
	}

	b.Publish("updated")
	recvOne(t, early, "early")

	_, late := b.Subscribe()
	if v := recvOne(t, late, "late"); v != "updated" {
		t.Errorf("expected latest published value, got %q", v)
	}
}

func TestBroadcast_PrepReplayRewritesAttachValueOnly(t *testing.T) {
	b := newBroadcast[string](4, true, nil)
	b.prepReplay = func(string) string { return "scrubbed" }

	_, live := b.Subscribe()
	b.Publish("published")
	if v := recvOne(t, live, "live"); v != "published" {
		t.Errorf("expected live delivery untouched, got %q", v)
	}

	_, late := b.Subscribe()
	if v := recvOne(t, late, "late"); v != "scrubbed" {
		t.Errorf("expected rewritten replay, got %q", v)
	}
}

func TestBroadcast_LastTrackedWithoutSubscribers(t *testing.T) {
	b := newBroadcast[int](4, true, nil)
	b.Publish(1)
	b.Publish(2)

	_, ch := b.Subscribe()
	if v := recvOne(t, ch, "ch"); v != 2 {
		t.Errorf("expected 2 replayed, got %d", v)
	}
}

func TestBroadcast_NoReplayWhenDisabled(t *testing.T) {
	b := newBroadcast[int](4, false, nil)
	b.Publish(1)

	_, ch := b.Subscribe()
	select {
	case v := <-ch:
		t.Fatalf("expected no replay, got %d", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroadcast_SlowSubscriberShedsOldest(t *testing.T) {
	var drops atomic.Int64
	b := newBroadcast[int](2, false, func() { drops.Add(1) })
	_, ch := b.Subscribe()

	for n := 1; n <= 5; n++ {
		b.Publish(n)
	}
	b.Close()

	var got []int
	for v := range ch {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("expected the 2 newest values [4 5], got %v", got)
	}
	if n := drops.Load(); n != 3 {
		t.Errorf("expected 3 sheds, got %d", n)
	}
}

func TestBroadcast_UnsubscribeClosesChannel(t *testing.T) {
	b := newBroadcast[int](4, false, nil)
	id, ch := b.Subscribe()

	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if n := b.Publish(1); n != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", n)
	}
}

func TestBroadcast_CloseEndsAllSubscribers(t *testing.T) {
	b := newBroadcast[int](4, false, nil)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()
	b.Close()

	if _, ok := <-ch1; ok {
		t.Error("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Error("expected ch2 closed")
	}
}

func TestBroadcast_SubscribeAfterClose(t *testing.T) {
	b := newBroadcast[int](4, true, nil)
	b.Publish(1)
	b.Close()

	id, ch := b.Subscribe()
	if id != 0 {
		t.Errorf("expected zero id after close, got %d", id)
	}
	if _, ok := <-ch; ok {
		t.Error("expected an already-closed channel, got a value")
	}
}

func TestBroadcast_PublishAfterCloseDiscarded(t *testing.T) {
	b := newBroadcast[int](4, false, nil)
	b.Close()
	if n := b.Publish(1); n != 0 {
		t.Errorf("expected publish after close to reach nobody, got %d", n)
	}
}

package group

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRouter_RequiresConsume(t *testing.T) {
	_, err := NewRouter(Config[int]{})
	if !errors.Is(err, ErrNoConsumer) {
		t.Fatalf("expected ErrNoConsumer, got %v", err)
	}
}

func TestNewRouter_Defaults(t *testing.T) {
	r, err := NewRouter(Config[int]{
		Consume: func(context.Context, string, <-chan int) {},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.cfg.Capacity != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, r.cfg.Capacity)
	}
	if r.cfg.OnClosedSend != RecreateOnClosedSend {
		t.Errorf("expected recreate policy, got %q", r.cfg.OnClosedSend)
	}
	if r.cfg.Tag == nil || r.cfg.Sink == nil {
		t.Error("expected default tag function and sink")
	}
}

func TestRouter_PerTagOrder(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]int)

	r, err := NewRouter(Config[int]{
		Tag: func(n int) string {
			if n%2 == 0 {
				return "even"
			}
			return "odd"
		},
		Consume: func(_ context.Context, tag string, items <-chan int) {
			for n := range items {
				mu.Lock()
				got[tag] = append(got[tag], n)
				mu.Unlock()
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	for n := 1; n <= 10; n++ {
		in <- n
	}
	close(in)

	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wantEven := []int{2, 4, 6, 8, 10}
	wantOdd := []int{1, 3, 5, 7, 9}
	assertIntSeq(t, got["even"], wantEven)
	assertIntSeq(t, got["odd"], wantOdd)
}

func TestRouter_OneConsumerPerTag(t *testing.T) {
	var starts atomic.Int64

	r, err := NewRouter(Config[int]{
		Tag: func(int) string { return "all" },
		Consume: func(_ context.Context, _ string, items <-chan int) {
			starts.Add(1)
			for range items {
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	for n := 0; n < 50; n++ {
		in <- n
	}
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if n := starts.Load(); n != 1 {
		t.Errorf("expected 1 consumer start, got %d", n)
	}
}

func TestRouter_TagsProcessIndependently(t *testing.T) {
	release := make(chan struct{})
	fastDone := make(chan struct{})

	r, err := NewRouter(Config[string]{
		Capacity: 4,
		Tag:      func(s string) string { return s[:4] },
		Consume: func(_ context.Context, tag string, items <-chan string) {
			for range items {
				if tag == "slow" {
					<-release
				}
			}
			if tag == "fast" {
				close(fastDone)
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan string)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	in <- "slow-1"
	in <- "fast-1"
	in <- "fast-2"
	close(in)

	select {
	case <-fastDone:
	case <-time.After(5 * time.Second):
		t.Fatal("fast tag blocked behind slow tag")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRouter_BackpressureOnFullQueue(t *testing.T) {
	release := make(chan struct{})
	var received atomic.Int64

	r, err := NewRouter(Config[int]{
		Capacity: 1,
		Tag:      func(int) string { return "one" },
		Consume: func(_ context.Context, _ string, items <-chan int) {
			<-release
			for range items {
				received.Add(1)
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	go func() {
		for n := 0; n < 3; n++ {
			in <- n
		}
		close(in)
	}()

	select {
	case err := <-done:
		t.Fatalf("run returned before consumer drained: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if n := received.Load(); n != 3 {
		t.Errorf("expected 3 items received, got %d", n)
	}
}

func TestRouter_DetachedQueueDropsItem(t *testing.T) {
	var starts atomic.Int64
	detached := make(chan struct{})

	r, err := NewRouter(Config[int]{
		Capacity:     1,
		Tag:          func(int) string { return "flaky" },
		OnClosedSend: DropOnClosedSend,
		Consume: func(_ context.Context, _ string, items <-chan int) {
			starts.Add(1)
			<-items
			close(detached)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	in <- 1
	<-detached
	// Give the consumer goroutine a moment to fully return so the next
	// send observes the detach instead of landing in the buffer.
	time.Sleep(50 * time.Millisecond)

	in <- 2
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if n := starts.Load(); n != 1 {
		t.Errorf("expected no consumer restart under drop policy, got %d starts", n)
	}
	if n := r.Live(); n != 0 {
		t.Errorf("expected detached entry evicted, got %d live", n)
	}
}

func TestRouter_DetachedQueueRecreates(t *testing.T) {
	var mu sync.Mutex
	var generations [][]int
	detached := make(chan struct{})

	r, err := NewRouter(Config[int]{
		Capacity:     1,
		Tag:          func(int) string { return "flaky" },
		OnClosedSend: RecreateOnClosedSend,
		Consume: func(_ context.Context, _ string, items <-chan int) {
			mu.Lock()
			generations = append(generations, nil)
			gen := len(generations) - 1
			mu.Unlock()
			for n := range items {
				mu.Lock()
				generations[gen] = append(generations[gen], n)
				mu.Unlock()
				if gen == 0 {
					close(detached)
					return
				}
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	in <- 1
	<-detached
	time.Sleep(50 * time.Millisecond)

	in <- 2
	in <- 3
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(generations) != 2 {
		t.Fatalf("expected 2 consumer generations, got %d", len(generations))
	}
	assertIntSeq(t, generations[0], []int{1})
	assertIntSeq(t, generations[1], []int{2, 3})
}

func TestRouter_CompletionClosesAllQueues(t *testing.T) {
	var closedQueues atomic.Int64

	r, err := NewRouter(Config[int]{
		Tag: func(n int) string {
			return []string{"a", "b", "c"}[n%3]
		},
		Consume: func(_ context.Context, _ string, items <-chan int) {
			for range items {
			}
			closedQueues.Add(1)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	for n := 0; n < 9; n++ {
		in <- n
	}
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if n := closedQueues.Load(); n != 3 {
		t.Errorf("expected 3 queues closed, got %d", n)
	}
	if n := r.Live(); n != 0 {
		t.Errorf("expected no live entries after completion, got %d", n)
	}
}

func TestRouter_CancelReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	var finished atomic.Int64
	r, err := NewRouter(Config[int]{
		Tag: func(int) string { return "only" },
		Consume: func(_ context.Context, _ string, items <-chan int) {
			for range items {
			}
			finished.Add(1)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan int)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, in) }()

	in <- 1
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := finished.Load(); n != 1 {
		t.Errorf("expected consumer to finish before Run returned, got %d", n)
	}
}

func TestRouter_DefaultTagIsTypeName(t *testing.T) {
	var mu sync.Mutex
	tags := make(map[string]int)

	r, err := NewRouter(Config[any]{
		Consume: func(_ context.Context, tag string, items <-chan any) {
			for range items {
				mu.Lock()
				tags[tag]++
				mu.Unlock()
			}
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := make(chan any)
	done := make(chan error, 1)
	go func() { done <- r.Run(t.Context(), in) }()

	in <- 42
	in <- "hello"
	in <- 7
	close(in)
	if err := <-done; err != nil {
		t.Fatalf("run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if tags["int"] != 2 {
		t.Errorf("expected 2 items tagged int, got %d", tags["int"])
	}
	if tags["string"] != 1 {
		t.Errorf("expected 1 item tagged string, got %d", tags["string"])
	}
}

func assertIntSeq(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

package iox

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// closeSpy counts Close calls and always fails, since every helper must
// swallow the error.
type closeSpy struct {
	io.Reader
	closes int
}

func (c *closeSpy) Close() error {
	c.closes++
	return errors.New("close failed")
}

func TestDiscardClose(t *testing.T) {
	spy := &closeSpy{}
	DiscardClose(spy)
	if spy.closes != 1 {
		t.Fatalf("closes = %d, want 1", spy.closes)
	}
}

func TestDrainClose(t *testing.T) {
	body := strings.NewReader("leftover body bytes")
	spy := &closeSpy{Reader: body}

	DrainClose(spy)

	if spy.closes != 1 {
		t.Fatalf("closes = %d, want 1", spy.closes)
	}
	if body.Len() != 0 {
		t.Fatalf("reader not drained, %d bytes left", body.Len())
	}
}

func TestCloseFunc(t *testing.T) {
	spy := &closeSpy{}
	fn := CloseFunc(spy)

	if spy.closes != 0 {
		t.Fatal("Close ran before the returned func was invoked")
	}
	fn()
	if spy.closes != 1 {
		t.Fatalf("closes = %d, want 1", spy.closes)
	}
}

func TestDiscardErr(t *testing.T) {
	calls := 0
	DiscardErr(func() error {
		calls++
		return errors.New("flush failed")
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

package servicebus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"simkernel/internal/envelope"
	"simkernel/internal/simerr"
)

func payload(t *testing.T, v float64) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New("caller", map[string]any{"v": v}, 0)
	if err != nil {
		t.Fatalf("envelope.New() returned error: %v", err)
	}
	return env
}

func TestCallUnavailableWithNoResponder(t *testing.T) {
	bus := New()
	_, err := bus.Call("robot-a", "robot-b", "ping", payload(t, 1), 0, 1, 0)
	if !errors.Is(err, simerr.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
}

func TestCallRoundTripsThroughProcessRequests(t *testing.T) {
	bus := New()
	bus.Register("robot-b", func(method string, req *envelope.Envelope, now float32) (*envelope.Envelope, error) {
		v := req.PayloadMap()["v"].(float64)
		return envelope.New("robot-b", map[string]any{"v": v + 1}, now)
	})

	var wg sync.WaitGroup
	var reply *envelope.Envelope
	var callErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		reply, callErr = bus.Call("robot-a", "robot-b", "increment", payload(t, 1), 0, 5, 0)
	}()

	// give the caller goroutine a chance to enqueue its request
	time.Sleep(10 * time.Millisecond)
	if n := bus.ProcessRequests("robot-b", 0); n != 1 {
		t.Fatalf("ProcessRequests() = %d, want 1", n)
	}
	wg.Wait()

	if callErr != nil {
		t.Fatalf("Call() returned error: %v", callErr)
	}
	if got := reply.PayloadMap()["v"]; got != 2.0 {
		t.Fatalf("expected reply v=2, got %v", got)
	}
}

func TestCallTimesOutAfterRetriesExhausted(t *testing.T) {
	bus := New()
	bus.Register("robot-b", func(method string, req *envelope.Envelope, now float32) (*envelope.Envelope, error) {
		return nil, nil // never actually invoked: ProcessRequests is never called in this test
	})

	done := make(chan error, 1)
	go func() {
		_, err := bus.Call("robot-a", "robot-b", "ping", payload(t, 1), 0, 1, 1)
		done <- err
	}()

	time.Sleep(5 * time.Millisecond)
	bus.AdvanceTime(1) // first deadline elapses, one retry consumed
	time.Sleep(5 * time.Millisecond)
	bus.AdvanceTime(3) // second attempt's deadline (now=1, timeout=1 -> deadline=2) also elapses

	select {
	case err := <-done:
		if !errors.Is(err, simerr.ErrServiceTimeout) {
			t.Fatalf("expected ErrServiceTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Call() did not return after retries exhausted")
	}
}

func TestCloseFailsPendingAndFutureCalls(t *testing.T) {
	bus := New()
	bus.Register("robot-b", func(method string, req *envelope.Envelope, now float32) (*envelope.Envelope, error) {
		return nil, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := bus.Call("robot-a", "robot-b", "ping", payload(t, 1), 0, 10, 0)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	bus.Close("robot-b")

	select {
	case err := <-done:
		if !errors.Is(err, simerr.ErrServiceClosed) {
			t.Fatalf("expected ErrServiceClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Call() did not return after Close")
	}

	if _, err := bus.Call("robot-a", "robot-b", "ping", payload(t, 1), 0, 1, 0); !errors.Is(err, simerr.ErrServiceClosed) {
		t.Fatalf("expected ErrServiceClosed on a call to a closed peer, got %v", err)
	}
}

func TestNextTimeReflectsEarliestDeadline(t *testing.T) {
	bus := New()
	bus.Register("robot-b", func(method string, req *envelope.Envelope, now float32) (*envelope.Envelope, error) {
		return nil, nil
	})
	if _, ok := bus.NextTime(); ok {
		t.Fatalf("expected no next time on an empty bus")
	}

	go bus.Call("robot-a", "robot-b", "ping", payload(t, 1), 0, 2, 0)
	time.Sleep(10 * time.Millisecond)

	ts, ok := bus.NextTime()
	if !ok || ts != 0 {
		t.Fatalf("NextTime() = %v, %v; want 0 (emission time), true", ts, ok)
	}
}

package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// expireRecorder counts expiry calls and can fail the first n of them.
type expireRecorder struct {
	mu       sync.Mutex
	calls    []string
	failures int
	fired    chan string
}

func newExpireRecorder(failures int) *expireRecorder {
	return &expireRecorder{failures: failures, fired: make(chan string, 16)}
}

func (r *expireRecorder) expire(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sessionID)
	if r.failures > 0 {
		r.failures--
		return errors.New("store unavailable")
	}
	r.fired <- sessionID
	return nil
}

func (r *expireRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSchedulerFiresAtDeadline(t *testing.T) {
	rec := newExpireRecorder(0)
	s := NewScheduler(rec.expire)
	defer s.Close()

	s.Schedule("s-1", time.Now().Add(20*time.Millisecond))

	select {
	case id := <-rec.fired:
		if id != "s-1" {
			t.Fatalf("expected s-1, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}
}

func TestSchedulerPastDeadlineFiresImmediately(t *testing.T) {
	rec := newExpireRecorder(0)
	s := NewScheduler(rec.expire)
	defer s.Close()

	s.Schedule("s-overdue", time.Now().Add(-time.Hour))

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("overdue session never expired")
	}
}

func TestSchedulerCancelDisarms(t *testing.T) {
	rec := newExpireRecorder(0)
	s := NewScheduler(rec.expire)
	defer s.Close()

	s.Schedule("s-1", time.Now().Add(50*time.Millisecond))
	s.Cancel("s-1")

	select {
	case id := <-rec.fired:
		t.Fatalf("cancelled timer fired for %s", id)
	case <-time.After(200 * time.Millisecond):
	}
	if rec.callCount() != 0 {
		t.Fatalf("expected no expiry calls, got %d", rec.callCount())
	}
}

func TestSchedulerRetriesFailedExpiry(t *testing.T) {
	rec := newExpireRecorder(2)
	s := NewScheduler(rec.expire)
	defer s.Close()

	s.Schedule("s-flaky", time.Now())

	select {
	case <-rec.fired:
	case <-time.After(10 * time.Second):
		t.Fatal("expiry never succeeded despite retries")
	}
	if rec.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", rec.callCount())
	}
}

func TestSchedulerRescheduleReplacesTimer(t *testing.T) {
	rec := newExpireRecorder(0)
	s := NewScheduler(rec.expire)
	defer s.Close()

	s.Schedule("s-1", time.Now().Add(time.Hour))
	s.Schedule("s-1", time.Now().Add(20*time.Millisecond))

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("rescheduled timer never fired")
	}
	// The replaced hour-long timer must not produce a second call.
	time.Sleep(100 * time.Millisecond)
	if rec.callCount() != 1 {
		t.Fatalf("expected a single expiry call, got %d", rec.callCount())
	}
}

func TestSchedulerCloseStopsPendingTimers(t *testing.T) {
	rec := newExpireRecorder(0)
	s := NewScheduler(rec.expire)

	s.Schedule("s-1", time.Now().Add(50*time.Millisecond))
	s.Close()

	select {
	case id := <-rec.fired:
		t.Fatalf("timer fired after close for %s", id)
	case <-time.After(200 * time.Millisecond):
	}
}

// Package clock schedules authoritative session expiry. A session's deadline
// is computed once at start; nothing in the system decrements stored
// countdown state, and any observer derives remaining time from the deadline.
package clock

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wartelsys/wartel/internal/metrics"
)

// ExpireFunc terminates a session on behalf of the system. It must be
// idempotent: the scheduled expiry can race a human hang-up and both may run.
type ExpireFunc func(ctx context.Context, sessionID string) error

// Retry pacing for failed expiry writes. An un-terminated expired session is
// a durability bug, so the scheduler keeps retrying until the store accepts
// the write or the scheduler shuts down.
const (
	retryInitial = time.Second
	retryMax     = 30 * time.Second
)

// Scheduler owns one timer per active session.
type Scheduler struct {
	expire ExpireFunc

	mu     sync.Mutex
	timers map[string]*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler constructs a Scheduler firing into the given ExpireFunc.
func NewScheduler(expire ExpireFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		expire: expire,
		timers: make(map[string]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule arms (or re-arms) the expiry timer for a session. A deadline in
// the past fires immediately; that happens when the service restarts with
// overdue active sessions in the store.
func (s *Scheduler) Schedule(sessionID string, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if existing, ok := s.timers[sessionID]; ok {
		existing.Stop()
	}
	s.timers[sessionID] = time.AfterFunc(delay, func() {
		s.fire(sessionID)
	})
}

// Cancel disarms the timer for a session. Explicit termination calls this;
// a timer that already fired makes the expiry path a no-op instead.
func (s *Scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[sessionID]; ok {
		timer.Stop()
		delete(s.timers, sessionID)
	}
}

// Close stops all timers and waits for in-flight expiry calls.
func (s *Scheduler) Close() {
	s.cancel()
	s.mu.Lock()
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) fire(sessionID string) {
	s.mu.Lock()
	delete(s.timers, sessionID)
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()

	backoff := retryInitial
	for {
		err := s.expire(s.ctx, sessionID)
		if err == nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		metrics.ExpiryRetries.Inc()
		log.Warnf("clock: expiry of session %s failed, retrying in %s: %v", sessionID, backoff, err)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > retryMax {
			backoff = retryMax
		}
	}
}

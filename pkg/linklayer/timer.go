package linklayer

import (
	"sync/atomic"
	"time"
)

// Timer is the one-shot, signal-free retransmission timer. The reference
// protocol arms a SIGALRM and lets the handler retransmit from inside
// interrupt context; here the handler is restricted to flipping a flag,
// exactly as the design notes require, and retransmission happens in the
// caller's own poll loop.
type Timer struct {
	timeout            time.Duration
	maxRetransmissions int

	timer   *time.Timer
	expired atomic.Bool
	count   int
}

// NewTimer builds a Timer for the given per-attempt timeout and retry budget.
func NewTimer(timeout time.Duration, maxRetransmissions int) *Timer {
	return &Timer{timeout: timeout, maxRetransmissions: maxRetransmissions}
}

// Arm (re)starts the timer and clears the expired flag. It does not reset
// the retry counter — that only happens at the start of each Send and
// each supervisory exchange, via Reset.
func (t *Timer) Arm() {
	t.expired.Store(false)
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.timeout, func() {
		t.expired.Store(true)
	})
}

// Disarm stops the timer. Called on success or on exhausting retries.
func (t *Timer) Disarm() {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.expired.Store(false)
}

// Expired reports whether the timer fired since the last Arm.
func (t *Timer) Expired() bool {
	return t.expired.Load()
}

// Reset clears the retry counter for a new operation.
func (t *Timer) Reset() {
	t.count = 0
}

// Retries reports how many retransmissions have been attempted so far
// in the current operation.
func (t *Timer) Retries() int {
	return t.count
}

// NextRetry bumps the retry counter and reports whether another
// retransmission is within budget. When it returns false the operation
// must fail with ErrTimeoutExceeded.
func (t *Timer) NextRetry() bool {
	t.count++
	return t.count <= t.maxRetransmissions
}

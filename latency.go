package payonce

import (
	"sync/atomic"
	"time"
)

// DefaultSimulatedDelay is the blocking wait injected on every other applied
// payment. Five seconds comfortably outlasts the demo client's short timeout
// while staying inside its retry timeout.
const DefaultSimulatedDelay = 5 * time.Second

// SleepFunc blocks for the given duration. Tests substitute a recording
// function so pacing behavior is assertable without real time elapsing.
type SleepFunc func(time.Duration)

// Pacer injects a simulated processing delay on every other invocation,
// decided by the parity of a monotonically increasing counter owned by the
// Pacer (the first invocation sleeps). It exists so a first payment attempt
// plausibly outlives a short client timeout while the mutation still commits
// server-side.
//
// A Pacer is owned by one server instance and safe for concurrent use; the
// wait blocks only the calling goroutine.
type Pacer struct {
	delay time.Duration
	sleep SleepFunc
	calls atomic.Uint64
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithSleepFunc replaces the blocking wait, used by tests to observe pacing
// without sleeping.
func WithSleepFunc(fn SleepFunc) PacerOption {
	return func(p *Pacer) {
		p.sleep = fn
	}
}

// NewPacer creates a Pacer that sleeps delay on even-indexed invocations.
// A zero or negative delay disables pacing.
func NewPacer(delay time.Duration, opts ...PacerOption) *Pacer {
	p := &Pacer{
		delay: delay,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pace consumes one counter slot and blocks when this invocation's index is
// even. It returns the injected delay (zero when this invocation did not
// sleep). Pace deliberately takes no context: a dispatched unit of work runs
// to completion regardless of client abandonment.
func (p *Pacer) Pace() time.Duration {
	n := p.calls.Add(1) - 1
	if p.delay <= 0 || n%2 != 0 {
		return 0
	}
	p.sleep(p.delay)
	return p.delay
}

// Calls returns how many invocations have paced so far.
func (p *Pacer) Calls() uint64 {
	return p.calls.Load()
}

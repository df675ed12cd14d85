// Package backoff provides the poll scheduling policy for long-running jobs:
// the inter-poll interval, the transient-error ceiling and the total wait
// budget. The policy is a plain value so lifecycles can be driven with a fake
// clock in tests, without real delays.
package backoff

import "time"

// Policy is the poll schedule for one job.
type Policy struct {
	// Interval is the delay between consecutive status polls.
	Interval time.Duration
	// WaitBudget is the total time allowed from submission to a terminal
	// poll result. Exceeding it fails the job as timed out.
	WaitBudget time.Duration
	// TransientCeiling is how many consecutive transient poll errors are
	// absorbed before escalating to a failure.
	TransientCeiling int
}

// DefaultPolicy returns the schedule used when a variant supplies no timing
// of its own: poll every 5 seconds, give up after 5 minutes, tolerate 3
// consecutive transient errors.
func DefaultPolicy() Policy {
	return Policy{
		Interval:         5 * time.Second,
		WaitBudget:       5 * time.Minute,
		TransientCeiling: 3,
	}
}

// Expired reports whether the elapsed time has exhausted the wait budget.
func (p Policy) Expired(elapsed time.Duration) bool {
	return elapsed >= p.WaitBudget
}

// Clock abstracts time for the poll loop so tests can inject a virtual
// clock. The real implementation delegates to the time package.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that delivers after the duration elapses.
	After(d time.Duration) <-chan time.Time
}

// realClock is the production Clock backed by the time package.
type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NewClock returns the real, wall-time Clock.
func NewClock() Clock {
	return realClock{}
}

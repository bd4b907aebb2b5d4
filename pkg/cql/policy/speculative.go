package policy

import "time"

// SpeculativeExecutionPolicy decides whether (and when) Request Execution
// should fan out an additional attempt against the next host in the query
// plan while the first attempt is still outstanding, per spec.md §4.4/§9.
type SpeculativeExecutionPolicy interface {
	// Delay returns the wait before starting attempt number attemptIndex
	// (1-based: the index of the *next* speculative attempt to start, the
	// first/original attempt is index 0 and always starts immediately) and
	// whether a further attempt should be started at all.
	Delay(attemptIndex int) (delay time.Duration, ok bool)
}

// NoSpeculativeExecution disables speculative execution entirely: only the
// one original attempt ever runs.
type NoSpeculativeExecution struct{}

func (NoSpeculativeExecution) Delay(int) (time.Duration, bool) { return 0, false }

// ConstantSpeculativeExecution starts up to MaxAttempts-1 additional
// attempts, each Delay apart from the previous one's start.
type ConstantSpeculativeExecution struct {
	Delay_      time.Duration
	MaxAttempts int
}

func NewConstantSpeculativeExecution(delay time.Duration, maxAttempts int) ConstantSpeculativeExecution {
	return ConstantSpeculativeExecution{Delay_: delay, MaxAttempts: maxAttempts}
}

func (c ConstantSpeculativeExecution) Delay(attemptIndex int) (time.Duration, bool) {
	if attemptIndex >= c.MaxAttempts {
		return 0, false
	}
	return c.Delay_, true
}

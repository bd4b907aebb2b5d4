package policy

import (
	"testing"
	"time"
)

func TestConstantReconnectionIsFixed(t *testing.T) {
	p := ConstantReconnection{Delay: 5 * time.Second}
	for attempt := 0; attempt < 4; attempt++ {
		if got := p.NextDelay(attempt); got != 5*time.Second {
			t.Fatalf("attempt %d: got %v, want 5s", attempt, got)
		}
	}
}

func TestExponentialReconnectionDoublesUpToMax(t *testing.T) {
	p := NewExponentialReconnection(100*time.Millisecond, time.Second, 0)
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // clamped
		time.Second, // clamped
	}
	for attempt, w := range want {
		if got := p.NextDelay(attempt); got != w {
			t.Fatalf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}

func TestExponentialReconnectionJitterStaysNonNegativeAndBounded(t *testing.T) {
	p := NewExponentialReconnection(100*time.Millisecond, time.Second, 0.5)
	for attempt := 0; attempt < 10; attempt++ {
		d := p.NextDelay(attempt)
		if d < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, d)
		}
		if d > 2*time.Second {
			t.Fatalf("attempt %d: delay %v implausibly large for base=100ms max=1s jitter=0.5", attempt, d)
		}
	}
}

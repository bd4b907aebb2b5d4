package policy

import (
	"testing"
	"time"
)

func TestNoSpeculativeExecutionNeverFiresAgain(t *testing.T) {
	p := NoSpeculativeExecution{}
	if _, ok := p.Delay(1); ok {
		t.Fatalf("NoSpeculativeExecution should never authorize a further attempt")
	}
}

func TestConstantSpeculativeExecutionCapsAtMaxAttempts(t *testing.T) {
	p := NewConstantSpeculativeExecution(10*time.Millisecond, 3)
	for i := 1; i < 3; i++ {
		delay, ok := p.Delay(i)
		if !ok {
			t.Fatalf("attempt %d: expected ok=true", i)
		}
		if delay != 10*time.Millisecond {
			t.Fatalf("attempt %d: delay = %v, want 10ms", i, delay)
		}
	}
	if _, ok := p.Delay(3); ok {
		t.Fatalf("attempt 3 exceeds MaxAttempts=3, expected ok=false")
	}
}

package throttle

import (
	"testing"
	"time"
)

// fixedClock returns a controllable clock starting at a fixed instant.
func fixedClock() (*time.Time, func() time.Time) {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &t, func() time.Time { return t }
}

func TestNewLimiter_CoercesBadValues(t *testing.T) {
	l := NewLimiter(0, 0)
	if l.windowDur != time.Minute {
		t.Fatalf("windowDur = %v, want 1m", l.windowDur)
	}
	if l.max != 1 {
		t.Fatalf("max = %d, want 1", l.max)
	}
}

func TestAllow_AdmitsUpToMaxThenDenies(t *testing.T) {
	now, clock := fixedClock()
	l := NewLimiter(time.Minute, 10)
	l.now = clock

	for i := 0; i < 10; i++ {
		*now = now.Add(time.Second)
		if !l.Allow("alice") {
			t.Fatalf("message %d: denied, want admitted", i+1)
		}
	}
	*now = now.Add(time.Second)
	if l.Allow("alice") {
		t.Fatalf("message 11: admitted, want denied")
	}
}

func TestAllow_DenialsDoNotExtendWindow(t *testing.T) {
	now, clock := fixedClock()
	l := NewLimiter(time.Minute, 1)
	l.now = clock

	if !l.Allow("bob") {
		t.Fatalf("first message denied")
	}
	// Hammer denials right up to the window edge.
	for i := 0; i < 5; i++ {
		*now = now.Add(10 * time.Second)
		if l.Allow("bob") {
			t.Fatalf("denial %d: admitted inside window", i+1)
		}
	}
	// 60s after the window started it must roll over despite the denials.
	*now = now.Add(10 * time.Second)
	if !l.Allow("bob") {
		t.Fatalf("message after window rollover denied")
	}
}

func TestAllow_WindowRollsOverAfterDuration(t *testing.T) {
	now, clock := fixedClock()
	l := NewLimiter(time.Minute, 2)
	l.now = clock

	l.Allow("carol")
	l.Allow("carol")
	if l.Allow("carol") {
		t.Fatalf("third message admitted, want denied")
	}

	*now = now.Add(time.Minute)
	if !l.Allow("carol") {
		t.Fatalf("fresh window: denied, want admitted")
	}
}

func TestAllow_AuthorsAreIndependent(t *testing.T) {
	l := NewLimiter(time.Minute, 1)

	if !l.Allow("a") {
		t.Fatalf("author a denied")
	}
	if l.Allow("a") {
		t.Fatalf("author a second message admitted")
	}
	if !l.Allow("b") {
		t.Fatalf("author b denied; windows must be per author")
	}
}

func TestSweep_EvictsIdleWindowsOnly(t *testing.T) {
	now, clock := fixedClock()
	l := NewLimiter(time.Minute, 10)
	l.now = clock

	l.Allow("idle")
	*now = now.Add(30 * time.Second)
	l.Allow("active")

	if got := l.Sweep(now.Add(45 * time.Second)); got != 1 {
		t.Fatalf("Sweep removed %d, want 1", got)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", l.Len())
	}
}

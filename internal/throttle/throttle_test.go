package throttle

import "testing"

func TestBelowThresholdAlwaysAllows(t *testing.T) {
	th := New()
	for i := 0; i < 10; i++ {
		if !th.Allow(100 * 1024) {
			t.Fatal("expected allow below threshold")
		}
		th.RecordSent(100 * 1024)
	}
}

func TestAboveThresholdGatesOnBucket(t *testing.T) {
	th := New()
	th.RecordSent(DefaultThreshold + 1)
	// Bucket starts full (BurstCap); a chunk within burst should pass once.
	if !th.Allow(BurstCap) {
		t.Fatal("expected first chunk within burst cap to pass")
	}
	// Immediately following large chunk should be rejected (bucket drained).
	if th.Allow(BurstCap) {
		t.Fatal("expected second large chunk to be throttled")
	}
}

func TestResetRefillsAndClearsCounter(t *testing.T) {
	th := New()
	th.RecordSent(DefaultThreshold + 1)
	th.Allow(BurstCap) // drain bucket
	th.Reset()
	if th.sentBytes != 0 {
		t.Fatal("expected sentBytes cleared")
	}
	if !th.Allow(100 * 1024) {
		t.Fatal("expected allow below threshold after reset")
	}
}

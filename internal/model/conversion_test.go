package model

import (
	"testing"
	"time"
)

func TestNewPendingConversion(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	conv := NewPendingConversion("c1", []byte(`{}`), 5000, "BRL", "s1", "feed down", 5*time.Minute, now)

	if conv.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", conv.AttemptCount)
	}
	if conv.PermanentlyFailed {
		t.Error("new conversion must not be permanently failed")
	}
	if conv.NextRetryAt == nil {
		t.Fatal("NextRetryAt is nil")
	}
	if want := now.Add(5 * time.Minute); !conv.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", conv.NextRetryAt, want)
	}
}

func TestIncrementAttemptBackoff(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	initialDelay := 5 * time.Minute

	conv := NewPendingConversion("c1", []byte(`{}`), 5000, "BRL", "s1", "feed down", initialDelay, now)

	// Delay doubles each failure: 10m after the 2nd, 20m after the 3rd.
	wantDelays := []time.Duration{10 * time.Minute, 20 * time.Minute, 40 * time.Minute}
	for i, want := range wantDelays {
		conv.IncrementAttempt("still down", initialDelay, 10, now)

		if conv.AttemptCount != i+2 {
			t.Fatalf("AttemptCount = %d, want %d", conv.AttemptCount, i+2)
		}
		if conv.NextRetryAt == nil {
			t.Fatalf("NextRetryAt is nil after attempt %d", conv.AttemptCount)
		}
		if got := conv.NextRetryAt.Sub(now); got != want {
			t.Errorf("attempt %d delay = %v, want %v", conv.AttemptCount, got, want)
		}
	}
}

func TestIncrementAttemptTerminal(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	conv := NewPendingConversion("c1", []byte(`{}`), 5000, "BRL", "s1", "feed down", 5*time.Minute, now)
	for i := 0; i < 9; i++ {
		conv.IncrementAttempt("still down", 5*time.Minute, 10, now)
	}

	if conv.AttemptCount != 10 {
		t.Fatalf("AttemptCount = %d, want 10", conv.AttemptCount)
	}
	if !conv.PermanentlyFailed {
		t.Error("conversion should be permanently failed at max attempts")
	}
	if conv.NextRetryAt != nil {
		t.Errorf("NextRetryAt = %v, want nil for a terminal record", conv.NextRetryAt)
	}
	if conv.LastError != "still down" {
		t.Errorf("LastError = %q", conv.LastError)
	}
}

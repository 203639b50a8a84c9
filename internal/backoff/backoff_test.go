package backoff

import (
	"context"
	"testing"
	"time"
)

func TestReconnectScheduleDoublesToCap(t *testing.T) {
	b := Reconnect.New()
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		if got := b.Next(); got != w*time.Second {
			t.Fatalf("step %d: expected %s, got %s", i, w*time.Second, got)
		}
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("expected reset to base, got %s", got)
	}
}

func TestRetryJitterBounds(t *testing.T) {
	b := Retry.New()
	base := Retry.Base
	for i := 0; i < 6; i++ {
		got := b.Next()
		lo := time.Duration(float64(base) * 0.89)
		hi := time.Duration(float64(base) * 1.11)
		if got < lo || got > hi {
			t.Fatalf("step %d: %s outside [%s, %s]", i, got, lo, hi)
		}
		base = time.Duration(float64(base) * Retry.Multiplier)
		if base > Retry.Max {
			base = Retry.Max
		}
	}
}

func TestPolicyNormalizes(t *testing.T) {
	b := Policy{}.New()
	if got := b.Next(); got != Retry.Base {
		t.Fatalf("expected default base, got %s", got)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := Sleep(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not return promptly")
	}
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

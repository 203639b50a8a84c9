package gateway

import "testing"

func TestConnLimiterCap(t *testing.T) {
	lim := newConnLimiter(1)
	if !lim.acquire("1.2.3.4") {
		t.Fatalf("expected first conn acquire")
	}
	if lim.acquire("1.2.3.4") {
		t.Fatalf("expected conn cap")
	}
	lim.release("1.2.3.4")
	if !lim.acquire("1.2.3.4") {
		t.Fatalf("expected acquire after release")
	}
}

func TestConnLimiterSeparateIPs(t *testing.T) {
	lim := newConnLimiter(1)
	if !lim.acquire("1.2.3.4") || !lim.acquire("2.3.4.5") {
		t.Fatalf("expected separate ip conns")
	}
	if lim.active() != 2 {
		t.Fatalf("expected 2 active, got %d", lim.active())
	}
}

func TestConnLimiterUnlimitedAndStrayRelease(t *testing.T) {
	lim := newConnLimiter(0)
	for i := 0; i < 10; i++ {
		if !lim.acquire("1.2.3.4") {
			t.Fatalf("expected unlimited acquire")
		}
	}
	lim.release("9.9.9.9")
	if lim.active() != 10 {
		t.Fatalf("stray release changed count to %d", lim.active())
	}
}

package debuglog

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func capture(t *testing.T) *lockedBuffer {
	t.Helper()
	buf := &lockedBuffer{}
	SetOutput(buf)
	prev := Enabled()
	SetEnabled(false)
	t.Cleanup(func() {
		SetOutput(nil)
		SetEnabled(prev)
	})
	return buf
}

func TestDebugfGatedByToggle(t *testing.T) {
	buf := capture(t)
	Debugf("hidden %d", 1)
	if buf.String() != "" {
		t.Fatalf("expected no output when disabled, got %q", buf.String())
	}
	Logf("visible %d", 2)
	if !strings.Contains(buf.String(), "visible 2") {
		t.Fatalf("expected Logf output, got %q", buf.String())
	}
}

func TestRateLimitedfSuppressesRepeats(t *testing.T) {
	buf := capture(t)
	key := "test-" + t.Name()
	RateLimitedf(key, time.Hour, "first")
	RateLimitedf(key, time.Hour, "second")
	out := buf.String()
	if !strings.Contains(out, "first") || strings.Contains(out, "second") {
		t.Fatalf("expected only first line, got %q", out)
	}
}

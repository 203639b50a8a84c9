package debuglog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const queueSize = 2048

type logger struct {
	once sync.Once
	ch   chan string
}

var (
	global  logger
	out     atomic.Value // io.Writer
	verbose atomic.Bool

	rlMu    sync.Mutex
	rlLast  = make(map[string]time.Time)
	rlSweep = time.Now()
)

func init() {
	out.Store(io.Writer(os.Stderr))
	verbose.Store(os.Getenv("GATEWAY_DEBUG") == "1")
}

// SetEnabled overrides the GATEWAY_DEBUG toggle read at startup.
func SetEnabled(on bool) {
	verbose.Store(on)
}

func Enabled() bool {
	return verbose.Load()
}

// SetOutput redirects log output; tests use it to capture lines.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	out.Store(w)
}

func write(msg string) {
	_, _ = io.WriteString(out.Load().(io.Writer), msg)
}

func (l *logger) start() {
	l.once.Do(func() {
		l.ch = make(chan string, queueSize)
		go func() {
			for msg := range l.ch {
				write(msg)
			}
		}()
	})
}

func Logf(format string, args ...any) {
	msg := time.Now().UTC().Format("2006-01-02T15:04:05.000Z ") + fmt.Sprintf(format+"\n", args...)
	if !Enabled() {
		write(msg)
		return
	}
	global.start()
	select {
	case global.ch <- msg:
	default:
		// Drop when saturated so stream and socket goroutines never block on logging.
	}
}

func Debugf(format string, args ...any) {
	if !Enabled() {
		return
	}
	Logf(format, args...)
}

// RateLimitedf logs at most once per interval for each key. Unlike Debugf it
// is not gated on GATEWAY_DEBUG: it covers noisy production paths such as
// decode failures and reconnect attempts.
func RateLimitedf(key string, interval time.Duration, format string, args ...any) {
	if key == "" {
		return
	}
	now := time.Now()
	rlMu.Lock()
	last := rlLast[key]
	if now.Sub(last) < interval {
		rlMu.Unlock()
		return
	}
	rlLast[key] = now
	if now.Sub(rlSweep) > 2*interval {
		for k, ts := range rlLast {
			if now.Sub(ts) > 4*interval {
				delete(rlLast, k)
			}
		}
		rlSweep = now
	}
	rlMu.Unlock()
	Logf(format, args...)
}

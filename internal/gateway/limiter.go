package gateway

import "sync"

// connLimiter caps concurrent client connections per IP.
type connLimiter struct {
	mu       sync.Mutex
	maxConns int
	counts   map[string]int
	total    int
}

func newConnLimiter(maxConns int) *connLimiter {
	return &connLimiter{
		maxConns: maxConns,
		counts:   make(map[string]int),
	}
}

func (l *connLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxConns > 0 && l.counts[ip] >= l.maxConns {
		return false
	}
	l.counts[ip]++
	l.total++
	return true
}

func (l *connLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.counts[ip] == 0 {
		return
	}
	l.total--
	if l.counts[ip] == 1 {
		delete(l.counts, ip)
		return
	}
	l.counts[ip]--
}

func (l *connLimiter) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

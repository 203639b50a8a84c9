package session

import (
	"sync"
	"time"
)

// creationLimiter is a sliding-window limit on session creation per client
// IP. Exceeding points within window blocks the IP for block.
type creationLimiter struct {
	mu      sync.Mutex
	points  int
	window  time.Duration
	block   time.Duration
	buckets map[string]*creationBucket
}

type creationBucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

func newCreationLimiter(points int, window, block time.Duration) *creationLimiter {
	if window <= 0 {
		window = time.Hour
	}
	if block <= 0 {
		block = window
	}
	return &creationLimiter{
		points:  points,
		window:  window,
		block:   block,
		buckets: make(map[string]*creationBucket),
	}
}

func (l *creationLimiter) Allow(ip string, now time.Time) bool {
	if l == nil || ip == "" || l.points <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[ip]
	if ok && now.Before(b.blockedUntil) {
		return false
	}
	if !ok || now.Sub(b.windowStart) >= l.window {
		b = &creationBucket{windowStart: now}
		l.buckets[ip] = b
	}
	b.count++
	if b.count > l.points {
		b.blockedUntil = now.Add(l.block)
		return false
	}
	return true
}

// prune drops buckets whose window and block have both passed.
func (l *creationLimiter) prune(now time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if now.Sub(b.windowStart) >= l.window && !now.Before(b.blockedUntil) {
			delete(l.buckets, ip)
		}
	}
}

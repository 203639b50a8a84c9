package forward

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/sha3"

	"casinogw/internal/backoff"
	"casinogw/internal/debuglog"
	apperrors "casinogw/internal/errors"
	"casinogw/internal/metrics"
	"casinogw/internal/network"
	"casinogw/internal/nonce"
	"casinogw/internal/telemetry"
)

const (
	DefaultMaxRetries = 3
	DefaultEntryTTL   = 5 * time.Minute

	tracerName = "casinogw/forward"
)

// Submitter sends one encoded submission. *network.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, body []byte, opts network.SubmitOptions) network.SubmitResult
}

type Options struct {
	MaxRetries int
	Backoff    backoff.Policy
	EntryTTL   time.Duration
	// Sleep waits between attempts; backoff.Sleep when nil.
	Sleep   func(ctx context.Context, d time.Duration) error
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Request scopes one forward. Fingerprint, when set, replaces the payload as
// the content hashed for idempotency, so a request rebuilt at a new nonce
// still matches its key.
type Request struct {
	SessionID      string
	IdempotencyKey string
	SkipRetries    bool
	Fingerprint    []byte
}

type Result struct {
	Accepted       bool
	Error          string
	Code           apperrors.Code
	IdempotencyKey string
	Deduplicated   bool
	RetryCount     int
}

type entry struct {
	hash    [32]byte
	pending bool
	result  Result
	expires time.Time
}

// Forwarder submits with bounded retries and deduplicates by
// (session, idempotency key).
type Forwarder struct {
	sub     Submitter
	opts    Options
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
}

func New(sub Submitter, opts Options) *Forwarder {
	// Negative disables retries.
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff == (backoff.Policy{}) {
		opts.Backoff = backoff.Retry
	}
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = DefaultEntryTTL
	}
	if opts.Sleep == nil {
		opts.Sleep = backoff.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Forwarder{sub: sub, opts: opts, metrics: opts.Metrics, entries: make(map[string]*entry)}
}

func entryKey(sessionID, key string) string {
	return sessionID + "\x00" + key
}

// Forward submits payload. A request without an idempotency key gets a fresh
// one and is never deduplicated.
func (f *Forwarder) Forward(ctx context.Context, payload []byte, req Request) Result {
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "forward.forward")
	defer span.End()

	if req.IdempotencyKey == "" {
		res := f.attempt(ctx, payload, req)
		res.IdempotencyKey = uuid.NewString()
		return res
	}
	span.SetAttributes(attribute.String("idempotency.key", req.IdempotencyKey))
	content := req.Fingerprint
	if content == nil {
		content = payload
	}
	hash := sha3.Sum256(content)
	k := entryKey(req.SessionID, req.IdempotencyKey)

	f.mu.Lock()
	if e, ok := f.entries[k]; ok && (e.pending || f.opts.Now().Before(e.expires)) {
		var res Result
		switch {
		case e.hash != hash:
			f.metrics.IncForwardKeyReused()
			res = Result{Error: "idempotency key reuse", Code: apperrors.CodeIdempotencyKeyReused}
		case e.pending:
			f.metrics.IncForwardInProgress()
			res = Result{Error: "request in progress", Code: apperrors.CodeInProgress}
		default:
			f.metrics.IncForwardDeduplicated()
			res = e.result
			res.Deduplicated = true
		}
		f.mu.Unlock()
		res.IdempotencyKey = req.IdempotencyKey
		span.SetAttributes(attribute.String("forward.outcome", string(res.Code)))
		return res
	}
	e := &entry{hash: hash, pending: true}
	f.entries[k] = e
	f.mu.Unlock()

	res := f.attempt(ctx, payload, req)
	res.IdempotencyKey = req.IdempotencyKey

	f.mu.Lock()
	if ctx.Err() != nil && !res.Accepted {
		// Abandoned by the caller; the key stays usable.
		if f.entries[k] == e {
			delete(f.entries, k)
		}
	} else {
		e.pending = false
		e.result = res
		e.expires = f.opts.Now().Add(f.opts.EntryTTL)
	}
	f.mu.Unlock()
	if !res.Accepted {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

func (f *Forwarder) attempt(ctx context.Context, payload []byte, req Request) Result {
	retries := max(f.opts.MaxRetries, 0)
	if req.SkipRetries {
		retries = 0
	}
	bo := f.opts.Backoff.New()
	var last network.SubmitResult
	for i := 0; ; i++ {
		last = f.sub.Submit(ctx, payload, network.SubmitOptions{})
		if last.Accepted {
			return Result{Accepted: true, RetryCount: i}
		}
		if i >= retries || !IsRetryable(last) || ctx.Err() != nil {
			return Result{Error: last.Error, Code: Classify(last), RetryCount: i}
		}
		f.metrics.IncForwardRetry()
		d := bo.Next()
		debuglog.Debugf("forward retry session=%s attempt=%d delay=%s err=%s", req.SessionID, i+1, d, last.Error)
		if err := f.opts.Sleep(ctx, d); err != nil {
			return Result{Error: last.Error, Code: Classify(last), RetryCount: i}
		}
	}
}

var retryableText = []string{
	"timeout",
	"connection reset",
	"connection refused",
	"eof",
	"502",
	"503",
	"504",
	"bad gateway",
	"service unavailable",
}

// IsRetryable reports whether a failed attempt may succeed if repeated
// unchanged: timeouts, dropped connections and 5xx responses.
func IsRetryable(r network.SubmitResult) bool {
	if r.Accepted {
		return false
	}
	if r.Timeout || r.Status >= 500 {
		return true
	}
	if r.Status != 0 && r.Status < 500 {
		return false
	}
	text := strings.ToLower(r.Error)
	for _, s := range retryableText {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// Classify maps a failed attempt to the code reported to clients.
func Classify(r network.SubmitResult) apperrors.Code {
	switch {
	case r.Timeout:
		return apperrors.CodeTimeout
	case r.Status == http.StatusRequestEntityTooLarge:
		return apperrors.CodePayloadTooLarge
	case nonce.IsNonceRejection(r.Error):
		return apperrors.CodeNonceConflict
	case IsRetryable(r):
		return apperrors.CodeUnavailable
	}
	return apperrors.CodeRejected
}

// Forget drops one entry so the key can be reused with new content.
func (f *Forwarder) Forget(sessionID, key string) {
	f.mu.Lock()
	delete(f.entries, entryKey(sessionID, key))
	f.mu.Unlock()
}

// ClearSession drops every entry of a session.
func (f *Forwarder) ClearSession(sessionID string) {
	prefix := sessionID + "\x00"
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
		}
	}
}

// Sweep removes completed entries that expired before now.
func (f *Forwarder) Sweep(now time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k, e := range f.entries {
		if !e.pending && !now.Before(e.expires) {
			delete(f.entries, k)
			n++
		}
	}
	return n
}

func (f *Forwarder) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Run sweeps every interval until ctx is done.
func (f *Forwarder) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := f.Sweep(f.opts.Now()); n > 0 {
				debuglog.Debugf("idempotency sweep removed=%d", n)
			}
		}
	}
}

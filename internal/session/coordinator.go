package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"casinogw/internal/debuglog"
	apperrors "casinogw/internal/errors"
	"casinogw/internal/forward"
	"casinogw/internal/metrics"
	"casinogw/internal/network"
	"casinogw/internal/nonce"
	"casinogw/internal/proto"
)

const (
	DefaultEventWait   = 30 * time.Second
	DefaultIdleTimeout = 30 * time.Minute
	DefaultSweepEvery  = time.Minute
)

// StreamClient is the per-session view of the event stream.
// *stream.Client satisfies it.
type StreamClient interface {
	Connect(ctx context.Context, f proto.Filter) error
	Disconnect()
	WaitForEvent(ctx context.Context, target, kind string, timeout time.Duration) (proto.Event, error)
}

type Deps struct {
	Submitter    forward.Submitter
	Accounts     nonce.AccountSource
	Sequencer    *nonce.Sequencer
	Forwarder    *forward.Forwarder
	Streams      func() StreamClient
	Instructions proto.InstructionBuilder
	Metrics      *metrics.Metrics
}

type Options struct {
	InitialDeposit uint64
	EventWait      time.Duration
	IdleTimeout    time.Duration
	SweepEvery     time.Duration
	RatePoints     int
	RateWindow     time.Duration
	RateBlock      time.Duration
	KeyGen         KeyGen
	Now            func() time.Time
}

type CreateOptions struct {
	Name string
}

// Coordinator owns the live sessions and their indices.
type Coordinator struct {
	deps    Deps
	opts    Options
	limiter *creationLimiter

	mu    sync.Mutex
	byID  map[string]*Session
	byPub map[string]*Session
}

func New(deps Deps, opts Options) *Coordinator {
	if deps.Instructions == nil {
		deps.Instructions = proto.CasinoInstructions{}
	}
	if opts.EventWait <= 0 {
		opts.EventWait = DefaultEventWait
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = DefaultSweepEvery
	}
	if opts.KeyGen == nil {
		opts.KeyGen = defaultKeyGen
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		deps:    deps,
		opts:    opts,
		limiter: newCreationLimiter(opts.RatePoints, opts.RateWindow, opts.RateBlock),
		byID:    make(map[string]*Session),
		byPub:   make(map[string]*Session),
	}
}

// CreateSession allocates a session with a fresh keypair for conn.
func (c *Coordinator) CreateSession(_ context.Context, conn Conn, opts CreateOptions, clientIP string) (*Session, error) {
	now := c.opts.Now()
	if !c.limiter.Allow(clientIP, now) {
		c.deps.Metrics.IncSessionRateLimited()
		debuglog.RateLimitedf("session-rate-"+clientIP, time.Minute, "session creation rate limited ip=%s", clientIP)
		return nil, apperrors.New(apperrors.CodeRateLimited, "too many sessions from this address")
	}
	name := opts.Name
	if name == "" {
		name = "player"
	}
	for i := 0; i < maxUniqueAttempts; i++ {
		pub, priv, err := generateKey(c.opts.KeyGen)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, "key generation failed", err)
		}
		s := &Session{
			ID:           uuid.NewString(),
			Name:         name,
			PublicKey:    pub,
			PublicKeyHex: publicHex(pub),
			ClientIP:     clientIP,
			CreatedAt:    now,
			Conn:         conn,
			priv:         priv,
			lastActive:   now,
		}
		c.mu.Lock()
		if _, taken := c.byPub[s.PublicKeyHex]; taken {
			c.mu.Unlock()
			continue
		}
		c.byID[s.ID] = s
		c.byPub[s.PublicKeyHex] = s
		c.mu.Unlock()
		c.deps.Metrics.IncSessionCreated()
		debuglog.Debugf("session created id=%s pub=%s ip=%s", s.ID, s.PublicKeyHex[:12], clientIP)
		return s, nil
	}
	return nil, apperrors.New(apperrors.CodeInternal, "could not allocate a unique key")
}

func (c *Coordinator) Get(id string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	return s, ok
}

func (c *Coordinator) ByPublicKey(pubHex string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byPub[pubHex]
	return s, ok
}

func (c *Coordinator) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byID)
}

// Touch marks client activity on a session.
func (c *Coordinator) Touch(s *Session) {
	s.touch(c.opts.Now())
}

// DestroySession tears a session down. It is safe to call more than once.
func (c *Coordinator) DestroySession(id string) bool {
	c.mu.Lock()
	s, ok := c.byID[id]
	if ok {
		delete(c.byID, id)
		if c.byPub[s.PublicKeyHex] == s {
			delete(c.byPub, s.PublicKeyHex)
		}
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	st := s.stream
	s.stream = nil
	s.mu.Unlock()
	s.wipe()
	if st != nil {
		st.Disconnect()
	}
	if c.deps.Forwarder != nil {
		c.deps.Forwarder.ClearSession(s.ID)
	}
	if c.deps.Sequencer != nil {
		c.deps.Sequencer.Forget(s.PublicKeyHex)
	}
	c.deps.Metrics.IncSessionDestroyed()
	debuglog.Debugf("session destroyed id=%s", id)
	return true
}

// CleanupIdleSessions destroys sessions idle longer than maxIdle and closes
// their connections.
func (c *Coordinator) CleanupIdleSessions(maxIdle time.Duration) int {
	now := c.opts.Now()
	c.mu.Lock()
	var idle []*Session
	for _, s := range c.byID {
		if now.Sub(s.LastActive()) > maxIdle {
			idle = append(idle, s)
		}
	}
	c.mu.Unlock()
	n := 0
	for _, s := range idle {
		if !c.DestroySession(s.ID) {
			continue
		}
		n++
		if s.Conn != nil {
			_ = s.Conn.Close()
		}
	}
	c.limiter.prune(now)
	c.deps.Metrics.AddSessionsIdleSwept(n)
	return n
}

// Run sweeps idle sessions until ctx is done.
func (c *Coordinator) Run(ctx context.Context) {
	t := time.NewTicker(c.opts.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.CleanupIdleSessions(c.opts.IdleTimeout); n > 0 {
				debuglog.Logf("idle sweep removed %d sessions", n)
			}
		}
	}
}

// RefreshBalance reads the account from the ledger and caches the balance.
func (c *Coordinator) RefreshBalance(ctx context.Context, s *Session) (network.Account, error) {
	acct := c.deps.Accounts.GetAccount(ctx, s.PublicKeyHex)
	if acct == nil {
		return network.Account{}, apperrors.New(apperrors.CodeUnavailable, "account unavailable")
	}
	s.mu.Lock()
	s.balance = acct.Balance
	s.mu.Unlock()
	return *acct, nil
}

package nonce

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"casinogw/internal/debuglog"
	"casinogw/internal/metrics"
	"casinogw/internal/network"
)

// AccountSource supplies the ledger's authoritative account state.
// *network.Client satisfies it.
type AccountSource interface {
	GetAccount(ctx context.Context, publicKeyHex string) *network.Account
}

// nonceRejections are the ledger's rejection phrases that mean the local
// nonce is out of step.
var nonceRejections = []string{
	"nonce too low",
	"nonce too high",
	"invalid nonce",
	"nonce mismatch",
	"stale nonce",
	"expected nonce",
}

var errUnknownAccount = errors.New("account not found")

type accountState struct {
	nonce  uint64
	synced bool
	// lock is a one-slot semaphore held for the duration of a submission.
	lock chan struct{}
}

// Sequencer tracks the next nonce per account and serializes submissions for
// one account. Different accounts never wait on each other.
type Sequencer struct {
	src     AccountSource
	metrics *metrics.Metrics

	mu       sync.Mutex
	accounts map[string]*accountState
	syncs    singleflight.Group
}

func New(src AccountSource, m *metrics.Metrics) *Sequencer {
	return &Sequencer{
		src:      src,
		metrics:  m,
		accounts: make(map[string]*accountState),
	}
}

func (s *Sequencer) state(account string) *accountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[account]
	if !ok {
		st = &accountState{lock: make(chan struct{}, 1)}
		s.accounts[account] = st
	}
	return st
}

// WithLock runs fn with exclusive use of account's nonce. State is synced from
// the ledger on first use; an unknown account starts at nonce 0.
func (s *Sequencer) WithLock(ctx context.Context, account string, fn func(nonce uint64) error) error {
	st := s.state(account)
	select {
	case st.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-st.lock }()

	s.mu.Lock()
	synced := st.synced
	s.mu.Unlock()
	if !synced {
		if _, ok := s.SyncFromBackend(ctx, account); !ok {
			s.mu.Lock()
			st.synced = true
			s.mu.Unlock()
		}
	}
	s.mu.Lock()
	n := st.nonce
	s.mu.Unlock()
	return fn(n)
}

// SetCurrentNonce records next as the account's next nonce. It never moves
// the nonce backwards; only a ledger sync can do that.
func (s *Sequencer) SetCurrentNonce(account string, next uint64) {
	st := s.state(account)
	s.mu.Lock()
	defer s.mu.Unlock()
	if next > st.nonce {
		st.nonce = next
	}
	st.synced = true
}

// IsNonceRejection reports whether errText is one of the ledger's nonce
// rejection messages.
func IsNonceRejection(errText string) bool {
	text := strings.ToLower(errText)
	for _, p := range nonceRejections {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// HandleRejection classifies a ledger rejection. Nonce-related rejections
// mark the account for resync and return true.
func (s *Sequencer) HandleRejection(account, errText string) bool {
	if !IsNonceRejection(errText) {
		return false
	}
	s.metrics.IncNonceRejection()
	st := s.state(account)
	s.mu.Lock()
	st.synced = false
	s.mu.Unlock()
	return true
}

// SyncFromBackend overwrites local state with the ledger's. Concurrent calls
// for one account share a single request.
func (s *Sequencer) SyncFromBackend(ctx context.Context, account string) (network.Account, bool) {
	v, err, _ := s.syncs.Do(account, func() (any, error) {
		acct := s.src.GetAccount(ctx, account)
		if acct == nil {
			return nil, errUnknownAccount
		}
		st := s.state(account)
		s.mu.Lock()
		st.nonce = acct.Nonce
		st.synced = true
		s.mu.Unlock()
		s.metrics.IncNonceResync()
		debuglog.Debugf("nonce sync account=%s nonce=%d", short(account), acct.Nonce)
		return *acct, nil
	})
	if err != nil {
		return network.Account{}, false
	}
	return v.(network.Account), true
}

// Observe raises the stored nonce past a transaction seen committed on the
// stream. It never lowers it.
func (s *Sequencer) Observe(account string, txNonce uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[account]
	if !ok {
		return
	}
	if txNonce+1 > st.nonce {
		st.nonce = txNonce + 1
		s.metrics.IncNonceObserved()
	}
}

func (s *Sequencer) Current(account string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.accounts[account]
	if !ok {
		return 0, false
	}
	return st.nonce, true
}

// Forget drops an account's state. A holder of its lock keeps working on the
// detached state.
func (s *Sequencer) Forget(account string) {
	s.mu.Lock()
	delete(s.accounts, account)
	s.mu.Unlock()
}

func short(account string) string {
	if len(account) > 12 {
		return account[:12]
	}
	return account
}

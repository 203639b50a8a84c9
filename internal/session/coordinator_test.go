package session

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	apperrors "casinogw/internal/errors"
	"casinogw/internal/forward"
	"casinogw/internal/gamestate"
	"casinogw/internal/metrics"
	"casinogw/internal/nonce"
	"casinogw/internal/testutil"
)

type harness struct {
	ledger  *fakeLedger
	coord   *Coordinator
	seq     *nonce.Sequencer
	streams []*fakeStream
	now     time.Time
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{ledger: newFakeLedger(), now: time.Unix(1_700_000_000, 0), metrics: metrics.New()}
	h.seq = nonce.New(h.ledger, h.metrics)
	fwd := forward.New(h.ledger, forward.Options{Sleep: func(context.Context, time.Duration) error { return nil }, Metrics: h.metrics})
	if opts.EventWait == 0 {
		opts.EventWait = time.Second
	}
	opts.Now = func() time.Time { return h.now }
	h.coord = New(Deps{
		Submitter: h.ledger,
		Accounts:  h.ledger,
		Sequencer: h.seq,
		Forwarder: fwd,
		Streams: func() StreamClient {
			s := newFakeStream(h.ledger)
			h.streams = append(h.streams, s)
			return s
		},
		Metrics: h.metrics,
	}, opts)
	return h
}

func (h *harness) player(t *testing.T) *Session {
	t.Helper()
	s, err := h.coord.CreateSession(context.Background(), &fakeConn{}, CreateOptions{Name: "alice"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := h.coord.InitializePlayer(context.Background(), s); err != nil {
		t.Fatalf("InitializePlayer failed: %v", err)
	}
	return s
}

func TestInitializePlayerRegistersThenDeposits(t *testing.T) {
	h := newHarness(t, Options{InitialDeposit: 100})
	s := h.player(t)
	if !s.Registered() || s.Balance() != 100 {
		t.Fatalf("expected registered with 100 chips, got registered=%v balance=%d", s.Registered(), s.Balance())
	}
	if !h.ledger.attachedAtRegister[s.PublicKeyHex] {
		t.Fatalf("expected stream subscribed before registration")
	}
	if len(h.ledger.txs) != 2 || h.ledger.txs[0].Nonce != 0 || h.ledger.txs[1].Nonce != 1 {
		t.Fatalf("expected nonces 0 and 1, got %+v", h.ledger.txs)
	}
}

func TestDepositRequiresRegistration(t *testing.T) {
	h := newHarness(t, Options{})
	s, _ := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "")
	if _, err := h.coord.DepositChips(context.Background(), s, 5); apperrors.CodeOf(err) != apperrors.CodeNotRegistered {
		t.Fatalf("expected NOT_REGISTERED, got %v", err)
	}
	if _, err := h.coord.StartGame(context.Background(), s, gamestate.HiLo, 5, ""); apperrors.CodeOf(err) != apperrors.CodeNotRegistered {
		t.Fatalf("expected NOT_REGISTERED, got %v", err)
	}
}

func TestCasinoErrorFailsDeposit(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.player(t)
	h.ledger.failDeposit = true
	_, err := h.coord.DepositChips(context.Background(), s, 50)
	if apperrors.CodeOf(err) != apperrors.CodeRejected || err.Error() == "" {
		t.Fatalf("expected REJECTED, got %v", err)
	}
}

func TestStartGameAndMoves(t *testing.T) {
	h := newHarness(t, Options{InitialDeposit: 100})
	s := h.player(t)
	up, err := h.coord.StartGame(context.Background(), s, gamestate.HiLo, 10, "start-1")
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	hilo, ok := up.State.(*gamestate.HiLoState)
	if !ok || hilo.Card != 5 || hilo.Accumulator != 10 {
		t.Fatalf("expected decoded hilo state, got %+v", up.State)
	}
	id, _, ok := s.ActiveGame()
	if !ok || id != up.GameID {
		t.Fatalf("expected active game %d", up.GameID)
	}

	moved, err := h.coord.MakeMove(context.Background(), s, []byte{1}, "move-1")
	if err != nil || moved.Balances == nil || moved.Balances.Chips != 90 {
		t.Fatalf("unexpected move result %+v %v", moved, err)
	}
	done, err := h.coord.MakeMove(context.Background(), s, []byte{0xFF}, "move-2")
	if err != nil || done.Payout != 20 || s.Balance() != 120 {
		t.Fatalf("unexpected completion %+v %v", done, err)
	}
	if _, _, ok := s.ActiveGame(); ok {
		t.Fatalf("expected game cleared after completion")
	}
	if _, err := h.coord.MakeMove(context.Background(), s, []byte{1}, ""); apperrors.CodeOf(err) != apperrors.CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST without a game, got %v", err)
	}
}

func TestDuplicateStartIsDeduplicated(t *testing.T) {
	h := newHarness(t, Options{InitialDeposit: 100})
	s := h.player(t)
	first, err := h.coord.StartGame(context.Background(), s, gamestate.HiLo, 10, "k")
	if err != nil {
		t.Fatalf("StartGame failed: %v", err)
	}
	before := h.ledger.txCount()
	nextNonce, _ := h.seq.Current(s.PublicKeyHex)
	second, err := h.coord.StartGame(context.Background(), s, gamestate.HiLo, 10, "k")
	if err != nil {
		t.Fatalf("duplicate StartGame failed: %v", err)
	}
	if !second.Deduplicated || second.GameID != first.GameID {
		t.Fatalf("expected deduplicated replay of game %d, got %+v", first.GameID, second)
	}
	if h.ledger.txCount() != before {
		t.Fatalf("expected no new transaction")
	}
	if n, _ := h.seq.Current(s.PublicKeyHex); n != nextNonce {
		t.Fatalf("expected nonce %d unchanged, got %d", nextNonce, n)
	}
	_, err = h.coord.StartGame(context.Background(), s, gamestate.HiLo, 25, "k")
	if apperrors.CodeOf(err) != apperrors.CodeIdempotencyKeyReused {
		t.Fatalf("expected key reuse, got %v", err)
	}
}

func TestStaleNonceIsResynced(t *testing.T) {
	h := newHarness(t, Options{InitialDeposit: 100})
	s := h.player(t)
	// Another writer advanced the account.
	h.ledger.setNonce(s.PublicKeyHex, 7)
	if _, err := h.coord.StartGame(context.Background(), s, gamestate.HiLo, 10, "k"); err != nil {
		t.Fatalf("expected resync and retry to succeed: %v", err)
	}
	last := h.ledger.txs[len(h.ledger.txs)-1]
	if last.Nonce != 7 {
		t.Fatalf("expected retry at nonce 7, got %d", last.Nonce)
	}
	if n, _ := h.seq.Current(s.PublicKeyHex); n != 8 {
		t.Fatalf("expected next nonce 8, got %d", n)
	}
}

func TestCreateSessionRateLimit(t *testing.T) {
	h := newHarness(t, Options{RatePoints: 2, RateWindow: time.Hour, RateBlock: 2 * time.Hour})
	for i := 0; i < 2; i++ {
		if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "1.2.3.4"); err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "1.2.3.4"); apperrors.CodeOf(err) != apperrors.CodeRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "5.6.7.8"); err != nil {
		t.Fatalf("other ip should be allowed: %v", err)
	}
	h.now = h.now.Add(90 * time.Minute)
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "1.2.3.4"); err == nil {
		t.Fatalf("expected block to outlast the window")
	}
	h.now = h.now.Add(time.Hour)
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "1.2.3.4"); err != nil {
		t.Fatalf("expected allowed after block: %v", err)
	}
}

func TestCreateSessionRejectsDegenerateKeys(t *testing.T) {
	good := testutil.Key(9)
	zero := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	calls := 0
	h := newHarness(t, Options{KeyGen: func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
		calls++
		if calls < 3 {
			return zero.Public().(ed25519.PublicKey), zero, nil
		}
		return good.Public().(ed25519.PublicKey), good, nil
	}})
	s, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "")
	if err != nil || !bytes.Equal(s.PublicKey, good.Public().(ed25519.PublicKey)) {
		t.Fatalf("expected third key to be used, got %v", err)
	}

	h = newHarness(t, Options{KeyGen: func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
		return zero.Public().(ed25519.PublicKey), zero, nil
	}})
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, ""); !errors.Is(err, errWeakKey) {
		t.Fatalf("expected weak key error, got %v", err)
	}
}

func TestCreateSessionKeepsKeysUnique(t *testing.T) {
	key := testutil.Key(2)
	h := newHarness(t, Options{KeyGen: func() (ed25519.PublicKey, ed25519.PrivateKey, error) {
		return key.Public().(ed25519.PublicKey), key, nil
	}})
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, ""); err != nil {
		t.Fatalf("first session failed: %v", err)
	}
	if _, err := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, ""); apperrors.CodeOf(err) != apperrors.CodeInternal {
		t.Fatalf("expected duplicate key to fail, got %v", err)
	}
}

func TestDestroySessionIsIdempotent(t *testing.T) {
	h := newHarness(t, Options{})
	s := h.player(t)
	if !h.coord.DestroySession(s.ID) {
		t.Fatalf("expected first destroy to remove session")
	}
	if h.coord.DestroySession(s.ID) {
		t.Fatalf("expected second destroy to be a no-op")
	}
	if _, ok := h.coord.Get(s.ID); ok {
		t.Fatalf("expected session gone by id")
	}
	if _, ok := h.coord.ByPublicKey(s.PublicKeyHex); ok {
		t.Fatalf("expected session gone by key")
	}
	if h.streams[0].disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", h.streams[0].disconnects)
	}
	if _, ok := h.seq.Current(s.PublicKeyHex); ok {
		t.Fatalf("expected nonce state dropped")
	}
	if err := h.coord.RegisterPlayer(context.Background(), s); apperrors.CodeOf(err) != apperrors.CodeSessionNotFound {
		t.Fatalf("expected closed session error, got %v", err)
	}
}

func TestCleanupIdleSessions(t *testing.T) {
	h := newHarness(t, Options{})
	idleConn := &fakeConn{}
	idle, _ := h.coord.CreateSession(context.Background(), idleConn, CreateOptions{}, "")
	h.now = h.now.Add(20 * time.Minute)
	active, _ := h.coord.CreateSession(context.Background(), &fakeConn{}, CreateOptions{}, "")
	h.now = h.now.Add(15 * time.Minute)
	h.coord.Touch(active)

	if n := h.coord.CleanupIdleSessions(30 * time.Minute); n != 1 {
		t.Fatalf("expected one idle session removed, got %d", n)
	}
	if !idleConn.closed {
		t.Fatalf("expected idle connection closed")
	}
	if _, ok := h.coord.Get(idle.ID); ok {
		t.Fatalf("expected idle session removed")
	}
	if h.coord.Count() != 1 {
		t.Fatalf("expected active session kept")
	}
	if h.metrics.Snapshot().Sessions.IdleSwept != 1 {
		t.Fatalf("expected sweep counted")
	}
}

func TestRefreshBalance(t *testing.T) {
	h := newHarness(t, Options{InitialDeposit: 40})
	s := h.player(t)
	acct, err := h.coord.RefreshBalance(context.Background(), s)
	if err != nil || acct.Balance != 40 || acct.Nonce != 2 {
		t.Fatalf("unexpected account %+v %v", acct, err)
	}
	other, _ := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "")
	if _, err := h.coord.RefreshBalance(context.Background(), other); apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Fatalf("expected UNAVAILABLE for unknown account, got %v", err)
	}
}

func TestDestroyWipesSigningKey(t *testing.T) {
	h := newHarness(t, Options{})
	s, _ := h.coord.CreateSession(context.Background(), nil, CreateOptions{}, "")
	h.coord.DestroySession(s.ID)
	if !degenerate(s.priv) {
		t.Fatalf("expected private key zeroed")
	}
	if _, err := s.sign(0, []byte{1}); apperrors.CodeOf(err) != apperrors.CodeSessionNotFound {
		t.Fatalf("expected closed session, got %v", err)
	}
}

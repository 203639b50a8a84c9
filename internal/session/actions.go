package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"casinogw/internal/debuglog"
	apperrors "casinogw/internal/errors"
	"casinogw/internal/forward"
	"casinogw/internal/gamestate"
	"casinogw/internal/network"
	"casinogw/internal/nonce"
	"casinogw/internal/proto"
	"casinogw/internal/stream"
)

// GameUpdate is the decoded outcome of a game action.
type GameUpdate struct {
	GameID     uint64
	Kind       string
	GameType   gamestate.GameType
	MoveNumber uint32
	RawState   []byte
	// State is nil when the blob does not match a known layout.
	State      gamestate.State
	Logs       []string
	Payout     int64
	FinalChips uint64
	Balances   *proto.BalanceSnapshot
	// Deduplicated is set when the action replayed an earlier request; no
	// new state is available.
	Deduplicated bool
}

var errSessionClosed = apperrors.New(apperrors.CodeSessionNotFound, "session closed")

// InitializePlayer subscribes the session's account stream, registers the
// player and makes the initial deposit. The stream is connected first so the
// registration event cannot be missed.
func (c *Coordinator) InitializePlayer(ctx context.Context, s *Session) error {
	if err := c.ensureStream(ctx, s); err != nil {
		return err
	}
	if err := c.RegisterPlayer(ctx, s); err != nil {
		return err
	}
	if c.opts.InitialDeposit > 0 {
		if _, err := c.DepositChips(ctx, s, c.opts.InitialDeposit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) ensureStream(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return errSessionClosed
	}
	if s.stream != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	f, err := proto.AccountFilter(s.PublicKey)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, "account filter", err)
	}
	st := c.deps.Streams()
	if err := st.Connect(ctx, f); err != nil {
		return apperrors.Wrap(apperrors.CodeUnavailable, "event stream unavailable", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.stream != nil {
		st.Disconnect()
		if s.destroyed {
			return errSessionClosed
		}
		return nil
	}
	s.stream = st
	return nil
}

func (c *Coordinator) RegisterPlayer(ctx context.Context, s *Session) error {
	if err := c.ensureStream(ctx, s); err != nil {
		return err
	}
	ins, err := c.deps.Instructions.Register(s.Name)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid name", err)
	}
	if err := c.submitDirect(ctx, s, ins); err != nil {
		return err
	}
	if _, err := c.waitFor(ctx, s, s.PublicKeyHex, proto.KindPlayerRegistered); err != nil {
		return err
	}
	s.mu.Lock()
	s.registered = true
	s.mu.Unlock()
	debuglog.Debugf("player registered session=%s", s.ID)
	return nil
}

// DepositChips returns the chip balance reported by the ledger.
func (c *Coordinator) DepositChips(ctx context.Context, s *Session, amount uint64) (uint64, error) {
	if !s.Registered() {
		return 0, apperrors.New(apperrors.CodeNotRegistered, "player not registered")
	}
	ins, err := c.deps.Instructions.Deposit(amount)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid deposit", err)
	}
	if err := c.submitDirect(ctx, s, ins); err != nil {
		return 0, err
	}
	e, err := c.waitFor(ctx, s, s.PublicKeyHex, proto.KindDeposited)
	if err != nil {
		return 0, err
	}
	chips := e.(proto.Deposited).NewChips
	s.mu.Lock()
	s.balance = chips
	s.mu.Unlock()
	return chips, nil
}

func (c *Coordinator) StartGame(ctx context.Context, s *Session, game gamestate.GameType, bet uint64, idemKey string) (*GameUpdate, error) {
	if !s.Registered() {
		return nil, apperrors.New(apperrors.CodeNotRegistered, "player not registered")
	}
	if !game.Valid() {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "unknown game type")
	}
	gameID := gameIDFor(s.ID, idemKey)
	ins, err := c.deps.Instructions.StartGame(uint8(game), bet, gameID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid start", err)
	}
	fp := fmt.Appendf(nil, "start:%d:%d", game, bet)
	res, err := c.forwardAction(ctx, s, ins, idemKey, fp)
	if err != nil {
		return nil, err
	}
	if res.Deduplicated {
		return &GameUpdate{GameID: gameID, Kind: proto.KindGameStarted, GameType: game, Deduplicated: true}, nil
	}
	s.mu.Lock()
	s.game = &activeGame{id: gameID, kind: game}
	s.mu.Unlock()
	e, err := c.waitFor(ctx, s, proto.GameTarget(gameID), proto.KindGameStarted, proto.KindGameCompleted)
	if err != nil {
		c.endGame(s, gameID)
		return nil, err
	}
	return c.gameUpdate(s, game, e), nil
}

func (c *Coordinator) MakeMove(ctx context.Context, s *Session, payload []byte, idemKey string) (*GameUpdate, error) {
	gameID, game, ok := s.ActiveGame()
	if !ok {
		return nil, apperrors.New(apperrors.CodeInvalidRequest, "no game in progress")
	}
	ins, err := c.deps.Instructions.Move(gameID, payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid move", err)
	}
	fp := fmt.Appendf(nil, "move:%d:%x", gameID, payload)
	res, err := c.forwardAction(ctx, s, ins, idemKey, fp)
	if err != nil {
		return nil, err
	}
	if res.Deduplicated {
		return &GameUpdate{GameID: gameID, Kind: proto.KindGameMoved, GameType: game, Deduplicated: true}, nil
	}
	e, err := c.waitFor(ctx, s, proto.GameTarget(gameID), proto.KindGameMoved, proto.KindGameCompleted)
	if err != nil {
		return nil, err
	}
	return c.gameUpdate(s, game, e), nil
}

func (c *Coordinator) endGame(s *Session, gameID uint64) {
	s.mu.Lock()
	if s.game != nil && s.game.id == gameID {
		s.game = nil
	}
	s.mu.Unlock()
}

func (c *Coordinator) gameUpdate(s *Session, game gamestate.GameType, e proto.Event) *GameUpdate {
	u := &GameUpdate{Kind: e.Kind(), GameType: game}
	switch ev := e.(type) {
	case proto.GameStarted:
		u.GameID = ev.GameID
		u.RawState = ev.InitialState
	case proto.GameMoved:
		u.GameID = ev.GameID
		u.MoveNumber = ev.MoveNumber
		u.RawState = ev.NewState
		u.Logs = ev.Logs
		u.Balances = &ev.Balances
		s.mu.Lock()
		s.balance = ev.Balances.Chips
		s.mu.Unlock()
	case proto.GameCompleted:
		u.GameID = ev.GameID
		u.Payout = ev.Payout
		u.FinalChips = ev.FinalChips
		u.Logs = ev.Logs
		u.Balances = &ev.Balances
		s.mu.Lock()
		s.balance = ev.FinalChips
		s.mu.Unlock()
		c.endGame(s, ev.GameID)
	}
	if len(u.RawState) > 0 {
		if st, ok := gamestate.Parse(game, u.RawState); ok {
			u.State = st
		}
	}
	return u
}

func gameIDFor(sessionID, idemKey string) uint64 {
	if idemKey == "" {
		id := uuid.New()
		return binary.BigEndian.Uint64(id[:8])
	}
	sum := sha3.Sum256([]byte(sessionID + "\x00" + idemKey))
	return binary.BigEndian.Uint64(sum[:8])
}

func (c *Coordinator) encode(s *Session, n uint64, ins []byte) ([]byte, error) {
	tx, err := s.sign(n, ins)
	if err != nil {
		return nil, err
	}
	return proto.EncodeSubmission(tx)
}

// submitDirect sends an account-management instruction straight to the
// ledger under the nonce policy.
func (c *Coordinator) submitDirect(ctx context.Context, s *Session, ins []byte) error {
	var last network.SubmitResult
	out, err := c.deps.Sequencer.Submit(ctx, s.PublicKeyHex, func(ctx context.Context, n uint64, _ bool) nonce.Attempt {
		body, err := c.encode(s, n, ins)
		if err != nil {
			last = network.SubmitResult{Error: err.Error()}
			return nonce.Attempt{Error: err.Error()}
		}
		last = c.deps.Submitter.Submit(ctx, body, network.SubmitOptions{})
		return nonce.Attempt{Accepted: last.Accepted, Error: last.Error}
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTimeout, "submission interrupted", err)
	}
	if !out.Accepted {
		return c.rejected(s, forward.Classify(last), out.Error)
	}
	return nil
}

// forwardAction sends a client action through the idempotent forwarder
// under the nonce policy.
func (c *Coordinator) forwardAction(ctx context.Context, s *Session, ins []byte, key string, fp []byte) (forward.Result, error) {
	var last forward.Result
	out, err := c.deps.Sequencer.Submit(ctx, s.PublicKeyHex, func(ctx context.Context, n uint64, retry bool) nonce.Attempt {
		body, err := c.encode(s, n, ins)
		if err != nil {
			last = forward.Result{Error: err.Error(), Code: apperrors.CodeInternal}
			return nonce.Attempt{Error: err.Error()}
		}
		if retry && key != "" {
			// The rejected attempt is cached under the key.
			c.deps.Forwarder.Forget(s.ID, key)
		}
		last = c.deps.Forwarder.Forward(ctx, body, forward.Request{SessionID: s.ID, IdempotencyKey: key, Fingerprint: fp})
		return nonce.Attempt{Accepted: last.Accepted, Error: last.Error, Replayed: last.Deduplicated}
	})
	if err != nil {
		return last, apperrors.Wrap(apperrors.CodeTimeout, "submission interrupted", err)
	}
	if !out.Accepted {
		code := last.Code
		if code == "" {
			code = apperrors.CodeRejected
		}
		return last, c.rejected(s, code, out.Error)
	}
	return last, nil
}

func (c *Coordinator) rejected(s *Session, code apperrors.Code, msg string) error {
	c.deps.Metrics.RecordRejection(s.PublicKeyHex, string(code), msg)
	return apperrors.New(code, msg)
}

// waitFor waits for the next event on target whose kind is one of kinds. A
// casino error on the target fails the wait; other kinds are skipped.
func (c *Coordinator) waitFor(ctx context.Context, s *Session, target string, kinds ...string) (proto.Event, error) {
	st := s.streamClient()
	if st == nil {
		return nil, errSessionClosed
	}
	deadline := time.Now().Add(c.opts.EventWait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, apperrors.New(apperrors.CodeTimeout, "timed out waiting for "+kinds[0])
		}
		e, err := st.WaitForEvent(ctx, target, "", remaining)
		if err != nil {
			if errors.Is(err, stream.ErrWaitTimeout) {
				return nil, apperrors.Wrap(apperrors.CodeTimeout, "timed out waiting for "+kinds[0], err)
			}
			return nil, apperrors.Wrap(apperrors.CodeTimeout, "wait interrupted", err)
		}
		if ce, ok := e.(proto.CasinoError); ok {
			c.deps.Metrics.RecordRejection(s.PublicKeyHex, string(apperrors.CodeRejected), ce.Message)
			return nil, apperrors.New(apperrors.CodeRejected, ce.Message)
		}
		if slices.Contains(kinds, e.Kind()) {
			return e, nil
		}
		debuglog.Debugf("skipping %s for %s while waiting for %v", e.Kind(), target, kinds)
	}
}

package session

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"casinogw/internal/network"
	"casinogw/internal/proto"
	"casinogw/internal/stream"
)

// fakeLedger checks nonces and signatures like the ledger and emits the
// matching events to attached streams.
type fakeLedger struct {
	mu      sync.Mutex
	nonces  map[string]uint64
	chips   map[string]uint64
	streams map[string]*fakeStream
	txs     []proto.Transaction
	// attachedAtRegister records whether a stream listened when each
	// account registered.
	attachedAtRegister map[string]bool
	// failDeposit makes deposits emit a casino error.
	failDeposit bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		nonces:             make(map[string]uint64),
		chips:              make(map[string]uint64),
		streams:            make(map[string]*fakeStream),
		attachedAtRegister: make(map[string]bool),
	}
}

func (l *fakeLedger) Submit(_ context.Context, body []byte, _ network.SubmitOptions) network.SubmitResult {
	txs, err := proto.DecodeSubmission(body)
	if err != nil || len(txs) != 1 || !txs[0].Verify() {
		return network.SubmitResult{Error: "bad submission", Status: 400}
	}
	tx := txs[0]
	pub := tx.PublicHex()
	l.mu.Lock()
	expected := l.nonces[pub]
	if tx.Nonce != expected {
		l.mu.Unlock()
		if tx.Nonce < expected {
			return network.SubmitResult{Error: "nonce too low", Status: 400}
		}
		return network.SubmitResult{Error: "nonce too high", Status: 400}
	}
	l.nonces[pub] = expected + 1
	l.txs = append(l.txs, tx)
	st := l.streams[pub]
	ins := tx.Instruction
	var ev proto.Event
	switch ins[0] {
	case proto.TagCasinoRegister:
		l.attachedAtRegister[pub] = st != nil
		ev = proto.PlayerRegistered{Player: tx.Public, Name: "p"}
	case proto.TagCasinoDeposit:
		amount := binary.BigEndian.Uint64(ins[1:9])
		if l.failDeposit {
			ev = proto.CasinoError{Player: tx.Public, ErrorCode: 1, Message: "deposit limit"}
			break
		}
		l.chips[pub] += amount
		ev = proto.Deposited{Player: tx.Public, Amount: amount, NewChips: l.chips[pub]}
	case proto.TagCasinoStartGame:
		id := binary.BigEndian.Uint64(ins[10:18])
		ev = proto.GameStarted{GameID: id, Player: tx.Public, GameType: ins[1], Bet: binary.BigEndian.Uint64(ins[2:10]),
			InitialState: []byte{5, 0, 0, 0, 0, 0, 0, 0, 10}}
	case proto.TagCasinoGameMove:
		id := binary.BigEndian.Uint64(ins[1:9])
		// Tag, game id and a one-byte length prefix.
		payload := ins[10:]
		if payload[0] == 0xFF {
			ev = proto.GameCompleted{GameID: id, Player: tx.Public, GameType: 5, Payout: 20, FinalChips: 120}
		} else {
			ev = proto.GameMoved{GameID: id, MoveNumber: 1, NewState: []byte{7, 0, 0, 0, 0, 0, 0, 0, 20},
				Balances: proto.BalanceSnapshot{Chips: 90}}
		}
	}
	l.mu.Unlock()
	if st != nil && ev != nil {
		st.deliver(ev)
	}
	return network.SubmitResult{Accepted: true, Status: 200}
}

func (l *fakeLedger) GetAccount(_ context.Context, pub string) *network.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nonces[pub]
	if !ok {
		return nil
	}
	return &network.Account{Nonce: n, Balance: l.chips[pub]}
}

func (l *fakeLedger) setNonce(pub string, n uint64) {
	l.mu.Lock()
	l.nonces[pub] = n
	l.mu.Unlock()
}

func (l *fakeLedger) txCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

type fakeStream struct {
	ledger *fakeLedger

	mu          sync.Mutex
	events      []proto.Event
	notify      chan struct{}
	disconnects int
}

func newFakeStream(l *fakeLedger) *fakeStream {
	return &fakeStream{ledger: l, notify: make(chan struct{}, 1)}
}

func (s *fakeStream) Connect(_ context.Context, f proto.Filter) error {
	if f.Kind != proto.FilterAccount {
		return errors.New("expected account filter")
	}
	s.ledger.mu.Lock()
	s.ledger.streams[hex.EncodeToString(f.Account[:])] = s
	s.ledger.mu.Unlock()
	return nil
}

func (s *fakeStream) Disconnect() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
}

func (s *fakeStream) deliver(e proto.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *fakeStream) take(target string) (proto.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if e.TargetID() == target {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return e, true
		}
	}
	return nil, false
}

func (s *fakeStream) WaitForEvent(ctx context.Context, target, _ string, timeout time.Duration) (proto.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if e, ok := s.take(target); ok {
			return e, nil
		}
		select {
		case <-s.notify:
		case <-timer.C:
			return nil, stream.ErrWaitTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type fakeConn struct {
	closed bool
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

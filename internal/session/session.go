package session

import (
	"crypto/ed25519"
	"encoding/hex"
	"sync"
	"time"

	"casinogw/internal/gamestate"
	"casinogw/internal/proto"
)

// Conn is the client connection that owns a session.
type Conn interface {
	Close() error
}

// Session is one connected player and their ephemeral ledger identity.
type Session struct {
	ID           string
	Name         string
	PublicKey    ed25519.PublicKey
	PublicKeyHex string
	ClientIP     string
	CreatedAt    time.Time
	Conn         Conn

	priv ed25519.PrivateKey

	mu         sync.Mutex
	stream     StreamClient
	lastActive time.Time
	registered bool
	balance    uint64
	game       *activeGame
	destroyed  bool
}

type activeGame struct {
	id   uint64
	kind gamestate.GameType
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *Session) Balance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// ActiveGame returns the game in progress, if any.
func (s *Session) ActiveGame() (uint64, gamestate.GameType, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return 0, 0, false
	}
	return s.game.id, s.game.kind, true
}

func (s *Session) streamClient() StreamClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// sign signs at nonce n. A destroyed session's key is wiped and cannot sign.
func (s *Session) sign(n uint64, ins []byte) (proto.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return proto.Transaction{}, errSessionClosed
	}
	return proto.SignTransaction(s.priv, n, ins)
}

func (s *Session) wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	clear(s.priv)
}

func publicHex(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

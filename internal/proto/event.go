package proto

import (
	"encoding/hex"
	"strconv"
	"unicode/utf8"
)

// Event tags emitted by the ledger's casino handlers.
const (
	TagPlayerRegistered uint8 = 20
	TagGameStarted      uint8 = 21
	TagGameMoved        uint8 = 22
	TagGameCompleted    uint8 = 23
	TagCasinoError      uint8 = 29
	TagDeposited        uint8 = 41
)

// Stable event kinds used for correlation.
const (
	KindPlayerRegistered = "player_registered"
	KindDeposited        = "deposited"
	KindGameStarted      = "game_started"
	KindGameMoved        = "game_moved"
	KindGameCompleted    = "game_completed"
	KindCasinoError      = "casino_error"
)

const (
	MaxStateBlob  = 4096
	MaxLogEntries = 64
	MaxLogLength  = 4096
	maxGameType   = 9
)

// Event is a decoded ledger event. The set of implementations is closed.
type Event interface {
	Kind() string
	// TargetID is the correlation key waiters use: the game id in decimal for
	// game events, otherwise the player's public key hex.
	TargetID() string
	isEvent()
}

type BalanceSnapshot struct {
	Chips             uint64  `json:"chips"`
	VUSDTBalance      uint64  `json:"vusdtBalance"`
	Shields           uint32  `json:"shields"`
	Doubles           uint32  `json:"doubles"`
	TournamentChips   uint64  `json:"tournamentChips"`
	TournamentShields uint32  `json:"tournamentShields"`
	TournamentDoubles uint32  `json:"tournamentDoubles"`
	ActiveTournament  *uint64 `json:"activeTournament,omitempty"`
}

type PlayerRegistered struct {
	Player [PublicKeySize]byte
	Name   string
}

type Deposited struct {
	Player   [PublicKeySize]byte
	Amount   uint64
	NewChips uint64
}

type GameStarted struct {
	GameID       uint64
	Player       [PublicKeySize]byte
	GameType     uint8
	Bet          uint64
	InitialState []byte
}

type GameMoved struct {
	GameID     uint64
	MoveNumber uint32
	NewState   []byte
	Logs       []string
	Balances   BalanceSnapshot
}

type GameCompleted struct {
	GameID      uint64
	Player      [PublicKeySize]byte
	GameType    uint8
	Payout      int64
	FinalChips  uint64
	WasShielded bool
	WasDoubled  bool
	Logs        []string
	Balances    BalanceSnapshot
}

type CasinoError struct {
	Player    [PublicKeySize]byte
	GameID    *uint64
	ErrorCode uint8
	Message   string
}

func (PlayerRegistered) isEvent() {}
func (Deposited) isEvent()        {}
func (GameStarted) isEvent()      {}
func (GameMoved) isEvent()        {}
func (GameCompleted) isEvent()    {}
func (CasinoError) isEvent()      {}

func (PlayerRegistered) Kind() string { return KindPlayerRegistered }
func (Deposited) Kind() string        { return KindDeposited }
func (GameStarted) Kind() string      { return KindGameStarted }
func (GameMoved) Kind() string        { return KindGameMoved }
func (GameCompleted) Kind() string    { return KindGameCompleted }
func (CasinoError) Kind() string      { return KindCasinoError }

func (e PlayerRegistered) TargetID() string { return hex.EncodeToString(e.Player[:]) }
func (e Deposited) TargetID() string        { return hex.EncodeToString(e.Player[:]) }
func (e GameStarted) TargetID() string      { return GameTarget(e.GameID) }
func (e GameMoved) TargetID() string        { return GameTarget(e.GameID) }
func (e GameCompleted) TargetID() string    { return GameTarget(e.GameID) }

func (e CasinoError) TargetID() string {
	if e.GameID != nil {
		return GameTarget(*e.GameID)
	}
	return hex.EncodeToString(e.Player[:])
}

func GameTarget(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func readEvent(r *Reader) (Event, error) {
	tag, ok := r.ReadU8()
	if !ok {
		return nil, ErrTruncated
	}
	var (
		ev  Event
		err error
	)
	switch tag {
	case TagPlayerRegistered:
		var e PlayerRegistered
		r.ReadFixed(e.Player[:])
		e.Name, err = readString(r, MaxNameLength)
		ev = e
	case TagDeposited:
		var e Deposited
		r.ReadFixed(e.Player[:])
		e.Amount, _ = r.ReadU64()
		e.NewChips, _ = r.ReadU64()
		ev = e
	case TagGameStarted:
		var e GameStarted
		e.GameID, _ = r.ReadU64()
		r.ReadFixed(e.Player[:])
		e.GameType, err = readGameType(r)
		e.Bet, _ = r.ReadU64()
		if err == nil {
			e.InitialState, err = readBlob(r)
		}
		ev = e
	case TagGameMoved:
		var e GameMoved
		e.GameID, _ = r.ReadU64()
		e.MoveNumber, _ = r.ReadU32()
		e.NewState, err = readBlob(r)
		if err == nil {
			e.Logs, err = readLogs(r)
		}
		if err == nil {
			e.Balances, err = readBalances(r)
		}
		ev = e
	case TagGameCompleted:
		var e GameCompleted
		e.GameID, _ = r.ReadU64()
		r.ReadFixed(e.Player[:])
		e.GameType, err = readGameType(r)
		e.Payout, _ = r.ReadI64()
		e.FinalChips, _ = r.ReadU64()
		e.WasShielded, _ = r.ReadBool()
		e.WasDoubled, _ = r.ReadBool()
		if err == nil {
			e.Logs, err = readLogs(r)
		}
		if err == nil {
			e.Balances, err = readBalances(r)
		}
		ev = e
	case TagCasinoError:
		var e CasinoError
		r.ReadFixed(e.Player[:])
		e.GameID, err = readOptionalU64(r)
		e.ErrorCode, _ = r.ReadU8()
		if err == nil {
			e.Message, err = readString(r, MaxLogLength)
		}
		ev = e
	default:
		return nil, ErrInvalidTag
	}
	if err != nil {
		return nil, err
	}
	if !r.Ok() {
		return nil, ErrTruncated
	}
	return ev, nil
}

func readGameType(r *Reader) (uint8, error) {
	gt, ok := r.ReadU8()
	if !ok {
		return 0, ErrTruncated
	}
	if gt > maxGameType {
		return 0, ErrInvalidTag
	}
	return gt, nil
}

func readString(r *Reader, max int) (string, error) {
	n, ok := r.ReadU32()
	if !ok {
		return "", ErrTruncated
	}
	if uint64(n) > uint64(max) {
		return "", ErrCountOverflow
	}
	b, ok := r.ReadBytes(int(n))
	if !ok {
		return "", ErrTruncated
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidTag
	}
	return string(b), nil
}

func readBlob(r *Reader) ([]byte, error) {
	n, err := r.ReadLen(MaxStateBlob)
	if err != nil {
		return nil, err
	}
	b, ok := r.ReadBytes(n)
	if !ok {
		return nil, ErrTruncated
	}
	return append([]byte(nil), b...), nil
}

func readLogs(r *Reader) ([]string, error) {
	n, ok := r.ReadU32()
	if !ok {
		return nil, ErrTruncated
	}
	if n > MaxLogEntries {
		return nil, ErrCountOverflow
	}
	logs := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r, MaxLogLength)
		if err != nil {
			return nil, err
		}
		logs = append(logs, s)
	}
	return logs, nil
}

func readOptionalU64(r *Reader) (*uint64, error) {
	present, ok := r.ReadBool()
	if !ok {
		return nil, ErrTruncated
	}
	if !present {
		return nil, nil
	}
	v, ok := r.ReadU64()
	if !ok {
		return nil, ErrTruncated
	}
	return &v, nil
}

func readBalances(r *Reader) (BalanceSnapshot, error) {
	var b BalanceSnapshot
	b.Chips, _ = r.ReadU64()
	b.VUSDTBalance, _ = r.ReadU64()
	b.Shields, _ = r.ReadU32()
	b.Doubles, _ = r.ReadU32()
	b.TournamentChips, _ = r.ReadU64()
	b.TournamentShields, _ = r.ReadU32()
	b.TournamentDoubles, _ = r.ReadU32()
	active, err := readOptionalU64(r)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	b.ActiveTournament = active
	if !r.Ok() {
		return BalanceSnapshot{}, ErrTruncated
	}
	return b, nil
}

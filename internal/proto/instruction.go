package proto

import (
	"errors"
	"unicode/utf8"
)

// Instruction tags understood by the ledger's casino handlers.
const (
	TagCasinoRegister  uint8 = 10
	TagCasinoDeposit   uint8 = 11
	TagCasinoStartGame uint8 = 12
	TagCasinoGameMove  uint8 = 13
)

const (
	MaxNameLength  = 32
	MaxMovePayload = 4096
)

// InstructionBuilder produces opaque instruction bytes for a player action.
// The gateway never inspects what it builds beyond handing it to a
// transaction.
type InstructionBuilder interface {
	Register(name string) ([]byte, error)
	Deposit(amount uint64) ([]byte, error)
	StartGame(gameType uint8, bet uint64, gameID uint64) ([]byte, error)
	Move(gameID uint64, payload []byte) ([]byte, error)
}

// CasinoInstructions encodes the four casino instruction tags.
type CasinoInstructions struct{}

var _ InstructionBuilder = CasinoInstructions{}

func (CasinoInstructions) Register(name string) ([]byte, error) {
	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return nil, errors.New("invalid player name")
	}
	w := NewWriter(1 + 4 + len(name))
	w.U8(TagCasinoRegister).U32(uint32(len(name))).Raw([]byte(name))
	return w.Bytes(), nil
}

func (CasinoInstructions) Deposit(amount uint64) ([]byte, error) {
	if amount == 0 {
		return nil, errors.New("deposit amount must be positive")
	}
	return NewWriter(9).U8(TagCasinoDeposit).U64(amount).Bytes(), nil
}

func (CasinoInstructions) StartGame(gameType uint8, bet uint64, gameID uint64) ([]byte, error) {
	if bet == 0 {
		return nil, errors.New("bet must be positive")
	}
	return NewWriter(18).U8(TagCasinoStartGame).U8(gameType).U64(bet).U64(gameID).Bytes(), nil
}

func (CasinoInstructions) Move(gameID uint64, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxMovePayload {
		return nil, errors.New("invalid move payload")
	}
	w := NewWriter(1 + 8 + 5 + len(payload))
	w.U8(TagCasinoGameMove).U64(gameID).VarBytes(payload)
	return w.Bytes(), nil
}

// skipInstruction advances r past one encoded instruction and returns its
// bytes. Unknown tags cannot be skipped because their length is unknown.
func skipInstruction(r *Reader) ([]byte, error) {
	start := r.Offset()
	tag, ok := r.ReadU8()
	if !ok {
		return nil, ErrTruncated
	}
	switch tag {
	case TagCasinoRegister:
		n, ok := r.ReadU32()
		if !ok {
			return nil, ErrTruncated
		}
		if n > MaxNameLength {
			return nil, ErrCountOverflow
		}
		if _, ok := r.ReadBytes(int(n)); !ok {
			return nil, ErrTruncated
		}
	case TagCasinoDeposit:
		if _, ok := r.ReadU64(); !ok {
			return nil, ErrTruncated
		}
	case TagCasinoStartGame:
		r.ReadU8()
		r.ReadU64()
		if _, ok := r.ReadU64(); !ok {
			return nil, ErrTruncated
		}
	case TagCasinoGameMove:
		r.ReadU64()
		n, err := r.ReadLen(MaxMovePayload)
		if err != nil {
			return nil, err
		}
		if _, ok := r.ReadBytes(n); !ok {
			return nil, ErrTruncated
		}
	default:
		return nil, ErrInvalidTag
	}
	end := r.Offset()
	raw := make([]byte, end-start)
	copy(raw, r.buf[start:end])
	return raw, nil
}

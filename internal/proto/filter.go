package proto

import (
	"encoding/hex"
	"fmt"
)

type FilterKind uint8

const (
	FilterAll     FilterKind = 0
	FilterAccount FilterKind = 1
	FilterSession FilterKind = 2
)

// Filter narrows the updates a stream connection receives.
type Filter struct {
	Kind      FilterKind
	Account   [PublicKeySize]byte
	SessionID uint64
}

func AllFilter() Filter {
	return Filter{Kind: FilterAll}
}

func AccountFilter(pub []byte) (Filter, error) {
	if len(pub) != PublicKeySize {
		return Filter{}, fmt.Errorf("account filter: bad key size %d", len(pub))
	}
	f := Filter{Kind: FilterAccount}
	copy(f.Account[:], pub)
	return f, nil
}

func SessionFilter(id uint64) Filter {
	return Filter{Kind: FilterSession, SessionID: id}
}

func (f Filter) Encode() []byte {
	switch f.Kind {
	case FilterAccount:
		return NewWriter(1 + PublicKeySize).U8(uint8(FilterAccount)).Raw(f.Account[:]).Bytes()
	case FilterSession:
		return NewWriter(9).U8(uint8(FilterSession)).U64(f.SessionID).Bytes()
	default:
		return []byte{uint8(FilterAll)}
	}
}

// Hex is the form carried in the /updates/{hex-filter} path.
func (f Filter) Hex() string {
	return hex.EncodeToString(f.Encode())
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterAccount:
		return "account:" + hex.EncodeToString(f.Account[:])
	case FilterSession:
		return fmt.Sprintf("session:%d", f.SessionID)
	default:
		return "all"
	}
}

func DecodeFilter(b []byte) (Filter, error) {
	r := NewReader(b)
	kind, ok := r.ReadU8()
	if !ok {
		return Filter{}, ErrTruncated
	}
	f := Filter{Kind: FilterKind(kind)}
	switch f.Kind {
	case FilterAll:
	case FilterAccount:
		if !r.ReadFixed(f.Account[:]) {
			return Filter{}, ErrTruncated
		}
	case FilterSession:
		id, ok := r.ReadU64()
		if !ok {
			return Filter{}, ErrTruncated
		}
		f.SessionID = id
	default:
		return Filter{}, ErrInvalidTag
	}
	if r.Remaining() != 0 {
		return Filter{}, ErrTrailingBytes
	}
	return f, nil
}

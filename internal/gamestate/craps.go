package gamestate

import "casinogw/internal/proto"

const (
	crapsMinBlob      = 8
	crapsV2HeaderLen  = 9
	crapsV2BetLen     = 19
	crapsV1HeaderLen  = 8
	crapsV1BetLen     = 11
	crapsLegacyLen    = 9
	crapsMaxBets      = 20
	crapsMaxBetType   = 17
	crapsMaxBetStatus = 1
)

type CrapsBet struct {
	Type   uint8  `json:"type"`
	Target uint8  `json:"target"`
	Status uint8  `json:"status"`
	Amount uint64 `json:"amount"`
	Odds   uint64 `json:"odds,omitempty"`
}

// CrapsState covers the three craps layouts. Version is 0 for the
// unversioned legacy record, which carries a single bet.
type CrapsState struct {
	Version    uint8      `json:"version"`
	Phase      uint8      `json:"phase"`
	Point      uint8      `json:"point"`
	Dice       [2]uint8   `json:"dice"`
	MadePoints uint16     `json:"madePoints"`
	EpochPoint bool       `json:"epochPoint"`
	Bets       []CrapsBet `json:"bets"`
}

func (*CrapsState) Game() GameType { return Craps }

func validPoint(p uint8) bool {
	switch p {
	case 0, 4, 5, 6, 8, 9, 10:
		return true
	}
	return false
}

func validDice(d1, d2 uint8) bool {
	return d1 <= 6 && d2 <= 6
}

func isCrapsV2(b []byte) bool {
	if len(b) < crapsV2HeaderLen || b[0] != 2 {
		return false
	}
	n := int(b[8])
	return b[1] <= 2 && b[7] <= 1 && n <= crapsMaxBets &&
		len(b) == crapsV2HeaderLen+n*crapsV2BetLen &&
		validPoint(b[2]) && validDice(b[3], b[4])
}

func isCrapsV1(b []byte) bool {
	if len(b) < crapsV1HeaderLen || b[0] != 1 {
		return false
	}
	n := int(b[7])
	return b[1] <= 1 && n <= crapsMaxBets &&
		len(b) == crapsV1HeaderLen+n*crapsV1BetLen &&
		validPoint(b[2]) && validDice(b[3], b[4])
}

func isCrapsLegacy(b []byte) bool {
	return len(b) == crapsLegacyLen && b[0] <= 1 && b[4] <= 1 &&
		validPoint(b[1]) && validDice(b[2], b[3])
}

// ParseCraps tries the v2 layout, then v1, then the legacy record.
func ParseCraps(blob []byte) (*CrapsState, bool) {
	if len(blob) < crapsMinBlob {
		return nil, false
	}
	switch {
	case isCrapsV2(blob):
		return parseCrapsVersioned(blob, true)
	case isCrapsV1(blob):
		return parseCrapsVersioned(blob, false)
	case isCrapsLegacy(blob):
		r := proto.NewReader(blob)
		st := &CrapsState{}
		st.Phase, _ = r.ReadU8()
		st.Point, _ = r.ReadU8()
		r.ReadFixed(st.Dice[:])
		bt, _ := r.ReadU8()
		amt, ok := r.ReadU32()
		if !ok {
			return nil, false
		}
		st.Bets = []CrapsBet{{Type: bt, Amount: uint64(amt)}}
		return st, true
	}
	return nil, false
}

func parseCrapsVersioned(blob []byte, v2 bool) (*CrapsState, bool) {
	r := proto.NewReader(blob)
	st := &CrapsState{}
	st.Version, _ = r.ReadU8()
	st.Phase, _ = r.ReadU8()
	st.Point, _ = r.ReadU8()
	r.ReadFixed(st.Dice[:])
	st.MadePoints, _ = r.ReadU16()
	if v2 {
		st.EpochPoint, _ = r.ReadBool()
	}
	n, ok := r.ReadU8()
	if !ok {
		return nil, false
	}
	st.Bets = make([]CrapsBet, 0, n)
	for i := uint8(0); i < n; i++ {
		var b CrapsBet
		b.Type, _ = r.ReadU8()
		b.Target, _ = r.ReadU8()
		b.Status, _ = r.ReadU8()
		b.Amount, _ = r.ReadU64()
		if v2 {
			b.Odds, _ = r.ReadU64()
		}
		if b.Type > crapsMaxBetType || b.Status > crapsMaxBetStatus {
			return nil, false
		}
		st.Bets = append(st.Bets, b)
	}
	if !r.Ok() || r.Remaining() != 0 {
		return nil, false
	}
	return st, true
}

func (s *CrapsState) Encode() []byte {
	w := proto.NewWriter(crapsV2HeaderLen + len(s.Bets)*crapsV2BetLen)
	if s.Version == 0 {
		var b CrapsBet
		if len(s.Bets) > 0 {
			b = s.Bets[0]
		}
		w.U8(s.Phase).U8(s.Point).Raw(s.Dice[:]).U8(b.Type).U32(uint32(b.Amount))
		return w.Bytes()
	}
	w.U8(s.Version).U8(s.Phase).U8(s.Point).Raw(s.Dice[:]).U16(s.MadePoints)
	if s.Version >= 2 {
		w.Bool(s.EpochPoint)
	}
	w.U8(uint8(len(s.Bets)))
	for _, b := range s.Bets {
		w.U8(b.Type).U8(b.Target).U8(b.Status).U64(b.Amount)
		if s.Version >= 2 {
			w.U64(b.Odds)
		}
	}
	return w.Bytes()
}

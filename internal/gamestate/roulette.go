package gamestate

import "casinogw/internal/proto"

const (
	rouletteV2HeaderLen = 19
	rouletteBetLen      = 10
	rouletteMaxBets     = 20
	rouletteMaxBetType  = 13
	rouletteMaxZeroRule = 4
	rouletteAmerican    = 4
	rouletteDoubleZero  = 37
)

type RouletteBet struct {
	Type   uint8  `json:"type"`
	Number uint8  `json:"number"`
	Amount uint64 `json:"amount"`
}

type RouletteState struct {
	Legacy        bool          `json:"legacy"`
	ZeroRule      uint8         `json:"zeroRule"`
	Phase         uint8         `json:"phase"`
	TotalWagered  uint64        `json:"totalWagered"`
	PendingReturn uint64        `json:"pendingReturn"`
	Bets          []RouletteBet `json:"bets"`
	Result        *uint8        `json:"result,omitempty"`
}

func (*RouletteState) Game() GameType { return Roulette }

// rouletteTail reports whether the bytes after the bets are empty or a
// single result byte.
func rouletteTail(total, header, count int) bool {
	rest := total - header - count*rouletteBetLen
	return rest == 0 || rest == 1
}

func isRouletteV2(b []byte) bool {
	if len(b) < rouletteV2HeaderLen {
		return false
	}
	n := int(b[0])
	return n <= rouletteMaxBets && b[1] <= rouletteMaxZeroRule && b[2] <= 1 &&
		rouletteTail(len(b), rouletteV2HeaderLen, n)
}

// ParseRoulette accepts the v2 layout first and falls back to the headerless
// legacy layout. An empty blob is a fresh table.
func ParseRoulette(blob []byte) (*RouletteState, bool) {
	if len(blob) == 0 {
		return &RouletteState{}, true
	}
	if isRouletteV2(blob) {
		if st, ok := parseRoulette(blob, false); ok {
			return st, true
		}
	}
	n := int(blob[0])
	if n > rouletteMaxBets || !rouletteTail(len(blob), 1, n) {
		return nil, false
	}
	return parseRoulette(blob, true)
}

func parseRoulette(blob []byte, legacy bool) (*RouletteState, bool) {
	r := proto.NewReader(blob)
	st := &RouletteState{Legacy: legacy}
	n, _ := r.ReadU8()
	if !legacy {
		st.ZeroRule, _ = r.ReadU8()
		st.Phase, _ = r.ReadU8()
		st.TotalWagered, _ = r.ReadU64()
		st.PendingReturn, _ = r.ReadU64()
	}
	st.Bets = make([]RouletteBet, 0, n)
	for i := uint8(0); i < n; i++ {
		var b RouletteBet
		b.Type, _ = r.ReadU8()
		b.Number, _ = r.ReadU8()
		b.Amount, _ = r.ReadU64()
		if b.Type > rouletteMaxBetType || b.Amount == 0 {
			return nil, false
		}
		st.Bets = append(st.Bets, b)
	}
	if r.Remaining() == 1 {
		res, _ := r.ReadU8()
		max := uint8(36)
		if st.ZeroRule == rouletteAmerican {
			max = rouletteDoubleZero
		}
		if res > max {
			return nil, false
		}
		st.Result = &res
	}
	if !r.Ok() || r.Remaining() != 0 {
		return nil, false
	}
	return st, true
}

func (s *RouletteState) Encode() []byte {
	w := proto.NewWriter(rouletteV2HeaderLen + len(s.Bets)*rouletteBetLen + 1)
	w.U8(uint8(len(s.Bets)))
	if !s.Legacy {
		w.U8(s.ZeroRule).U8(s.Phase).U64(s.TotalWagered).U64(s.PendingReturn)
	}
	for _, b := range s.Bets {
		w.U8(b.Type).U8(b.Number).U64(b.Amount)
	}
	if s.Result != nil {
		w.U8(*s.Result)
	}
	return w.Bytes()
}

package gamestate

import "casinogw/internal/proto"

const (
	hiloV1Len     = 11
	hiloLegacyLen = 9
)

type HiLoState struct {
	Version     uint8 `json:"version"`
	Card        uint8 `json:"card"`
	Accumulator int64 `json:"accumulator"`
	RulesFlags  uint8 `json:"rulesFlags"`
}

func (*HiLoState) Game() GameType { return HiLo }

func ParseHiLo(blob []byte) (*HiLoState, bool) {
	r := proto.NewReader(blob)
	st := &HiLoState{}
	switch len(blob) {
	case hiloV1Len:
		st.Version, _ = r.ReadU8()
		if st.Version != 1 {
			return nil, false
		}
		st.Card, _ = r.ReadU8()
		st.Accumulator, _ = r.ReadI64()
		st.RulesFlags, _ = r.ReadU8()
	case hiloLegacyLen:
		st.Card, _ = r.ReadU8()
		st.Accumulator, _ = r.ReadI64()
	default:
		return nil, false
	}
	if !r.Ok() || !validCard(st.Card) {
		return nil, false
	}
	return st, true
}

func (s *HiLoState) Encode() []byte {
	w := proto.NewWriter(hiloV1Len)
	if s.Version == 0 {
		return w.U8(s.Card).I64(s.Accumulator).Bytes()
	}
	return w.U8(s.Version).U8(s.Card).I64(s.Accumulator).U8(s.RulesFlags).Bytes()
}

package gamestate

import "casinogw/internal/proto"

const (
	casinoWarVersion  = 1
	casinoWarLen      = 12
	casinoWarMaxStage = 2
)

type CasinoWarState struct {
	Stage      uint8  `json:"stage"`
	PlayerCard uint8  `json:"playerCard"`
	DealerCard uint8  `json:"dealerCard"`
	TieBet     uint64 `json:"tieBet"`
}

func (*CasinoWarState) Game() GameType { return CasinoWar }

func ParseCasinoWar(blob []byte) (*CasinoWarState, bool) {
	if len(blob) != casinoWarLen || blob[0] != casinoWarVersion {
		return nil, false
	}
	r := proto.NewReader(blob[1:])
	st := &CasinoWarState{}
	st.Stage, _ = r.ReadU8()
	st.PlayerCard, _ = r.ReadU8()
	st.DealerCard, _ = r.ReadU8()
	st.TieBet, _ = r.ReadU64()
	if !r.Ok() || st.Stage > casinoWarMaxStage || !validCard(st.PlayerCard) || !validCard(st.DealerCard) {
		return nil, false
	}
	return st, true
}

func (s *CasinoWarState) Encode() []byte {
	return proto.NewWriter(casinoWarLen).U8(casinoWarVersion).U8(s.Stage).
		U8(s.PlayerCard).U8(s.DealerCard).U64(s.TieBet).Bytes()
}

package gamestate

import "casinogw/internal/proto"

const (
	blackjackMaxHands    = 4
	blackjackMaxHandSize = 11
	blackjackRulesLen    = 2
	blackjackUIExtraLen  = 3

	blackjackStageComplete = 3
	blackjackStagePlayer   = 1
	blackjackMaxStatus     = 4

	// Rules[1] is the deck-count discriminant: 1, 2, 4, 6 or 8 decks.
	blackjackMaxDecks = 4
)

type BlackjackHand struct {
	BetMult uint8   `json:"betMult"`
	Status  uint8   `json:"status"`
	Split   bool    `json:"split"`
	Cards   []uint8 `json:"cards"`
}

type BlackjackState struct {
	Version      uint8           `json:"version"`
	Stage        uint8           `json:"stage"`
	SideBets     []uint64        `json:"sideBets"`
	InitialCards [2]uint8        `json:"initialCards"`
	ActiveHand   uint8           `json:"activeHand"`
	Hands        []BlackjackHand `json:"hands"`
	Dealer       []uint8         `json:"dealer"`
	HasRules     bool            `json:"hasRules"`
	Rules        [2]uint8        `json:"rules"`
	HasUIExtra   bool            `json:"hasUiExtra"`
	UIExtra      [3]uint8        `json:"uiExtra"`
}

func (*BlackjackState) Game() GameType { return Blackjack }

func blackjackSideBets(version uint8) int {
	switch version {
	case 2:
		return 1
	case 3:
		return 4
	case 4:
		return 5
	}
	return -1
}

func ParseBlackjack(blob []byte) (*BlackjackState, bool) {
	r := proto.NewReader(blob)
	st := &BlackjackState{}
	st.Version, _ = r.ReadU8()
	sides := blackjackSideBets(st.Version)
	if sides < 0 || len(blob) < 2+8*sides+4 {
		return nil, false
	}
	st.Stage, _ = r.ReadU8()
	if st.Stage > blackjackStageComplete {
		return nil, false
	}
	st.SideBets = make([]uint64, sides)
	for i := range st.SideBets {
		st.SideBets[i], _ = r.ReadU64()
	}
	r.ReadFixed(st.InitialCards[:])
	for _, c := range st.InitialCards {
		if !validCard(c) {
			return nil, false
		}
	}
	st.ActiveHand, _ = r.ReadU8()
	count, ok := r.ReadU8()
	if !ok || count > blackjackMaxHands {
		return nil, false
	}
	switch {
	case count == 0:
		if st.ActiveHand != 0 {
			return nil, false
		}
	case st.Stage == blackjackStagePlayer:
		if st.ActiveHand >= count {
			return nil, false
		}
	case st.ActiveHand > count:
		return nil, false
	}
	st.Hands = make([]BlackjackHand, 0, count)
	for i := uint8(0); i < count; i++ {
		var h BlackjackHand
		h.BetMult, _ = r.ReadU8()
		h.Status, _ = r.ReadU8()
		split, _ := r.ReadU8()
		h.Split = split != 0
		cards, ok := readCards(r)
		if !ok || h.Status > blackjackMaxStatus {
			return nil, false
		}
		h.Cards = cards
		st.Hands = append(st.Hands, h)
	}
	dealer, ok := readCards(r)
	if !ok {
		return nil, false
	}
	st.Dealer = dealer
	if r.Remaining() >= blackjackRulesLen {
		st.HasRules = r.ReadFixed(st.Rules[:])
		if st.HasRules && st.Rules[1] > blackjackMaxDecks {
			return nil, false
		}
	}
	if r.Remaining() == blackjackUIExtraLen {
		st.HasUIExtra = r.ReadFixed(st.UIExtra[:])
	}
	if !r.Ok() || r.Remaining() != 0 {
		return nil, false
	}
	return st, true
}

// readCards reads a u8 count followed by that many face-up cards.
func readCards(r *proto.Reader) ([]uint8, bool) {
	n, ok := r.ReadU8()
	if !ok || int(n) > blackjackMaxHandSize {
		return nil, false
	}
	b, ok := r.ReadBytes(int(n))
	if !ok {
		return nil, false
	}
	for _, c := range b {
		if c >= 52 {
			return nil, false
		}
	}
	return append([]uint8{}, b...), true
}

func (s *BlackjackState) Encode() []byte {
	w := proto.NewWriter(64)
	w.U8(s.Version).U8(s.Stage)
	for _, b := range s.SideBets {
		w.U64(b)
	}
	w.Raw(s.InitialCards[:]).U8(s.ActiveHand).U8(uint8(len(s.Hands)))
	for _, h := range s.Hands {
		w.U8(h.BetMult).U8(h.Status).Bool(h.Split).U8(uint8(len(h.Cards))).Raw(h.Cards)
	}
	w.U8(uint8(len(s.Dealer))).Raw(s.Dealer)
	if s.HasRules {
		w.Raw(s.Rules[:])
		if s.HasUIExtra {
			w.Raw(s.UIExtra[:])
		}
	}
	return w.Bytes()
}

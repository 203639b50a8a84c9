package gamestate

import "strings"

type GameType uint8

const (
	Baccarat GameType = iota
	Blackjack
	CasinoWar
	Craps
	VideoPoker
	HiLo
	Roulette
	SicBo
	ThreeCard
	UltimateHoldem
)

var gameNames = [...]string{
	Baccarat:       "baccarat",
	Blackjack:      "blackjack",
	CasinoWar:      "casino_war",
	Craps:          "craps",
	VideoPoker:     "video_poker",
	HiLo:           "hilo",
	Roulette:       "roulette",
	SicBo:          "sic_bo",
	ThreeCard:      "three_card",
	UltimateHoldem: "ultimate_holdem",
}

func (g GameType) Valid() bool {
	return int(g) < len(gameNames)
}

func (g GameType) String() string {
	if !g.Valid() {
		return "unknown"
	}
	return gameNames[g]
}

// ParseGameType accepts the lowercase names used on the client socket.
func ParseGameType(s string) (GameType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range gameNames {
		if name == s {
			return GameType(i), true
		}
	}
	return 0, false
}

// CardHidden marks a face-down card.
const CardHidden uint8 = 0xFF

func validCard(c uint8) bool {
	return c < 52 || c == CardHidden
}

// State is a decoded game state blob.
type State interface {
	Game() GameType
	Encode() []byte
}

// Parse decodes blob according to the game's schema family. It returns false
// for malformed input and for games without a known schema; it never panics.
func Parse(game GameType, blob []byte) (s State, ok bool) {
	defer func() {
		if recover() != nil {
			s, ok = nil, false
		}
	}()
	switch game {
	case Blackjack:
		if st, ok := ParseBlackjack(blob); ok {
			return st, true
		}
	case CasinoWar:
		if st, ok := ParseCasinoWar(blob); ok {
			return st, true
		}
	case Craps:
		if st, ok := ParseCraps(blob); ok {
			return st, true
		}
	case HiLo:
		if st, ok := ParseHiLo(blob); ok {
			return st, true
		}
	case Roulette:
		if st, ok := ParseRoulette(blob); ok {
			return st, true
		}
	}
	return nil, false
}

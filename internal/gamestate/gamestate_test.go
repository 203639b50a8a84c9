package gamestate

import (
	"bytes"
	"testing"
)

func TestCrapsRejectsShortBlob(t *testing.T) {
	if _, ok := Parse(Craps, []byte{2, 0}); ok {
		t.Fatalf("expected 2-byte craps blob to be rejected")
	}
	if _, ok := ParseCraps(make([]byte, 7)); ok {
		t.Fatalf("expected 7-byte craps blob to be rejected")
	}
}

func TestCrapsVersionDetection(t *testing.T) {
	v2 := &CrapsState{Version: 2, Phase: 1, Point: 6, Dice: [2]uint8{3, 3}, MadePoints: 2, EpochPoint: true,
		Bets: []CrapsBet{{Type: 0, Status: 1, Amount: 50, Odds: 100}, {Type: 8, Target: 6, Amount: 5}}}
	blob := v2.Encode()
	if len(blob) != 9+2*19 {
		t.Fatalf("unexpected v2 length %d", len(blob))
	}
	got, ok := ParseCraps(blob)
	if !ok || got.Version != 2 || len(got.Bets) != 2 || got.Bets[0].Odds != 100 || !got.EpochPoint {
		t.Fatalf("v2 parse mismatch: %+v", got)
	}
	if !bytes.Equal(got.Encode(), blob) {
		t.Fatalf("v2 re-encode mismatch")
	}

	v1 := []byte{1, 0, 0, 0, 0, 0, 0, 0}
	got, ok = ParseCraps(v1)
	if !ok || got.Version != 1 || len(got.Bets) != 0 {
		t.Fatalf("v1 empty parse mismatch: %+v ok=%v", got, ok)
	}

	legacy := []byte{1, 8, 5, 3, 1, 0, 0, 0, 25}
	got, ok = ParseCraps(legacy)
	if !ok || got.Version != 0 || got.Point != 8 || len(got.Bets) != 1 || got.Bets[0].Amount != 25 || got.Bets[0].Type != 1 {
		t.Fatalf("legacy parse mismatch: %+v ok=%v", got, ok)
	}
	if !bytes.Equal(got.Encode(), legacy) {
		t.Fatalf("legacy re-encode mismatch")
	}
}

func TestCrapsRejectsImplausible(t *testing.T) {
	cases := map[string][]byte{
		"v2 length mismatch": append((&CrapsState{Version: 2, Bets: []CrapsBet{{Amount: 1}}}).Encode(), 0),
		"bad point":          {1, 0, 7, 0, 0, 0, 0, 0},
		"bad die":            {1, 0, 0, 9, 0, 0, 0, 0},
		"legacy bad phase":   {2, 0, 0, 0, 0, 0, 0, 0, 1},
		"too many bets":      {1, 0, 0, 0, 0, 0, 0, 21},
	}
	for name, b := range cases {
		if _, ok := ParseCraps(b); ok {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func blackjackV2Fixture() []byte {
	return []byte{
		2, 1, // version, stage
		0, 0, 0, 0, 0, 0, 0, 10, // 21+3 side bet
		4, 17, // initial cards
		0, 1, // active hand, hand count
		1, 0, 0, 2, 4, 17, // hand: mult, status, split, 2 cards
		1, 30, // dealer: 1 card
	}
}

func TestBlackjackRoundTrip(t *testing.T) {
	blob := blackjackV2Fixture()
	st, ok := ParseBlackjack(blob)
	if !ok {
		t.Fatalf("expected v2 blob to parse")
	}
	if st.SideBets[0] != 10 || len(st.Hands) != 1 || len(st.Dealer) != 1 || st.HasRules {
		t.Fatalf("unexpected state: %+v", st)
	}
	if !bytes.Equal(st.Encode(), blob) {
		t.Fatalf("re-encode mismatch")
	}

	withExtras := append(append([]byte{}, blob...), 1, 0, 7, 7, 7)
	st, ok = ParseBlackjack(withExtras)
	if !ok || !st.HasRules || !st.HasUIExtra {
		t.Fatalf("expected rules and ui extra: %+v ok=%v", st, ok)
	}
	if !bytes.Equal(st.Encode(), withExtras) {
		t.Fatalf("re-encode with extras mismatch")
	}
}

func TestBlackjackVersions(t *testing.T) {
	for version, sides := range map[uint8]int{3: 4, 4: 5} {
		st := &BlackjackState{Version: version, Stage: 0, SideBets: make([]uint64, sides)}
		got, ok := ParseBlackjack(st.Encode())
		if !ok || got.Version != version || len(got.SideBets) != sides {
			t.Fatalf("v%d parse mismatch: %+v ok=%v", version, got, ok)
		}
	}
}

func TestBlackjackRejectsMalformed(t *testing.T) {
	base := blackjackV2Fixture()
	mutate := func(i int, v byte) []byte {
		b := append([]byte{}, base...)
		b[i] = v
		return b
	}
	cases := map[string][]byte{
		"unknown version": mutate(0, 5),
		"bad stage":       mutate(1, 4),
		"bad initial":     mutate(10, 60),
		"active past end": mutate(12, 1),
		"too many hands":  mutate(13, 5),
		"bad status":      mutate(15, 5),
		"hidden in hand":  mutate(18, 0xFF),
		"hand too large":  mutate(17, 12),
		"trailing byte":   append(append([]byte{}, base...), 0, 0, 0),
		"bad decks":       append(append([]byte{}, base...), 0, 200),
		"bad decks extra": append(append([]byte{}, base...), 0, 5, 7, 7, 7),
		"truncated":       base[:len(base)-1],
		"empty":           nil,
	}
	for name, b := range cases {
		if _, ok := ParseBlackjack(b); ok {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func TestRouletteLayouts(t *testing.T) {
	res := uint8(37)
	v2 := &RouletteState{ZeroRule: 4, Phase: 0, TotalWagered: 30,
		Bets: []RouletteBet{{Type: 0, Number: 17, Amount: 10}, {Type: 1, Amount: 20}}, Result: &res}
	blob := v2.Encode()
	got, ok := ParseRoulette(blob)
	if !ok || got.Legacy || got.Result == nil || *got.Result != 37 || len(got.Bets) != 2 {
		t.Fatalf("v2 parse mismatch: %+v ok=%v", got, ok)
	}
	if !bytes.Equal(got.Encode(), blob) {
		t.Fatalf("v2 re-encode mismatch")
	}

	legacy := []byte{1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 5, 12}
	got, ok = ParseRoulette(legacy)
	if !ok || !got.Legacy || got.Bets[0].Amount != 5 || got.Result == nil || *got.Result != 12 {
		t.Fatalf("legacy parse mismatch: %+v ok=%v", got, ok)
	}

	if st, ok := ParseRoulette(nil); !ok || len(st.Bets) != 0 {
		t.Fatalf("expected empty blob to be a fresh table")
	}

	european := &RouletteState{Bets: []RouletteBet{{Amount: 1}}, Result: &res}
	if _, ok := ParseRoulette(european.Encode()); ok {
		t.Fatalf("expected double zero rejected without american rule")
	}
	zero := &RouletteState{Bets: []RouletteBet{{Type: 1, Amount: 0}}}
	if _, ok := ParseRoulette(zero.Encode()); ok {
		t.Fatalf("expected zero-amount bet rejected")
	}
}

func TestHiLoAndCasinoWar(t *testing.T) {
	v1 := &HiLoState{Version: 1, Card: 12, Accumulator: -300, RulesFlags: 3}
	got, ok := ParseHiLo(v1.Encode())
	if !ok || *got != *v1 {
		t.Fatalf("hilo v1 mismatch: %+v", got)
	}
	legacy := &HiLoState{Card: 51, Accumulator: 10000}
	got, ok = ParseHiLo(legacy.Encode())
	if !ok || *got != *legacy {
		t.Fatalf("hilo legacy mismatch: %+v", got)
	}
	if _, ok := ParseHiLo([]byte{60, 0, 0, 0, 0, 0, 0, 0, 0}); ok {
		t.Fatalf("expected invalid card rejected")
	}

	war := &CasinoWarState{Stage: 1, PlayerCard: 3, DealerCard: CardHidden, TieBet: 25}
	gotWar, ok := ParseCasinoWar(war.Encode())
	if !ok || *gotWar != *war {
		t.Fatalf("casino war mismatch: %+v", gotWar)
	}
	if _, ok := ParseCasinoWar(append(war.Encode(), 0)); ok {
		t.Fatalf("expected trailing byte rejected")
	}
}

func TestParseDispatch(t *testing.T) {
	st, ok := Parse(HiLo, (&HiLoState{Card: 1}).Encode())
	if !ok || st.Game() != HiLo {
		t.Fatalf("expected hilo dispatch")
	}
	if _, ok := Parse(Baccarat, []byte{1, 2, 3}); ok {
		t.Fatalf("expected unknown schema to return false")
	}
	if _, ok := Parse(GameType(99), nil); ok {
		t.Fatalf("expected invalid game type to return false")
	}
	if g, ok := ParseGameType(" Blackjack "); !ok || g != Blackjack {
		t.Fatalf("expected blackjack name to parse")
	}
	if Roulette.String() != "roulette" || GameType(42).String() != "unknown" {
		t.Fatalf("unexpected game names")
	}
}

package gamestate

import (
	"testing"

	"casinogw/internal/testutil"
)

func FuzzParse(f *testing.F) {
	f.Add(uint8(Blackjack), blackjackV2Fixture())
	f.Add(uint8(Craps), []byte{1, 0, 0, 0, 0, 0, 0, 0})
	f.Add(uint8(Roulette), []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	f.Fuzz(func(t *testing.T, game uint8, data []byte) {
		data = testutil.CapBytes(data, testutil.DefaultMaxFuzzBytes)
		testutil.WithTimeout(t, testutil.DefaultFuzzTimeout, func() {
			st, ok := Parse(GameType(game), data)
			if !ok {
				return
			}
			again, ok := Parse(GameType(game), st.Encode())
			if !ok || again.Game() != st.Game() {
				t.Fatalf("re-encoded %s state failed to parse", st.Game())
			}
		})
	})
}

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"casinogw/internal/gamestate"
	"casinogw/internal/proto"
	"casinogw/internal/testutil"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDecodeUpdateCommand(t *testing.T) {
	up := proto.NewEventsUpdate(3,
		proto.OutputEvent{Event: proto.GameStarted{GameID: 9, GameType: 5, Bet: 1, InitialState: []byte{1}}},
		proto.OutputCommit{Height: 2, Start: 3},
	)
	out, err := execute(t, "", "update", hex.EncodeToString(proto.EncodeUpdate(up)))
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	var got updateOut
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if got.Type != "events" || len(got.Ops) != 2 || got.Ops[0].Target != "9" || got.Ops[1].Type != "commit" {
		t.Fatalf("unexpected output %+v", got)
	}
}

func TestDecodeUpdateFromStdinWithEnvelope(t *testing.T) {
	frame, err := proto.EncodeEnvelope(1, proto.EncodeUpdate(&proto.Seed{View: 4}))
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	out, err := execute(t, hex.EncodeToString(frame)+"\n", "update", "--envelope")
	if err != nil || !strings.Contains(out, `"seed"`) {
		t.Fatalf("unexpected output %q %v", out, err)
	}
}

func TestDecodeSubmissionCommand(t *testing.T) {
	ins, _ := proto.CasinoInstructions{}.Deposit(5)
	tx, _ := proto.SignTransaction(testutil.Key(1), 8, ins)
	body, _ := proto.EncodeSubmission(tx)
	out, err := execute(t, "", "submission", hex.EncodeToString(body))
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	var got []txView
	if err := json.Unmarshal([]byte(out), &got); err != nil || len(got) != 1 || got[0].Nonce != 8 || !got[0].Valid {
		t.Fatalf("unexpected output %s %v", out, err)
	}
}

func TestDecodeFilterAndState(t *testing.T) {
	out, err := execute(t, "", "filter", "020000000000000102")
	if err != nil || !strings.Contains(out, "session:258") {
		t.Fatalf("unexpected filter output %q %v", out, err)
	}
	st := &gamestate.HiLoState{Card: 4, Accumulator: 7}
	out, err = execute(t, "", "state", "--game", "hilo", hex.EncodeToString(st.Encode()))
	if err != nil || !strings.Contains(out, `"accumulator": 7`) {
		t.Fatalf("unexpected state output %q %v", out, err)
	}
	if _, err := execute(t, "", "state", "--game", "chess", "00"); err == nil {
		t.Fatalf("expected unknown game error")
	}
	if _, err := execute(t, "", "filter", "zz"); err == nil {
		t.Fatalf("expected hex error")
	}
}

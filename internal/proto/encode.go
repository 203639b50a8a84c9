package proto

// Encoders mirror the ledger's writers. The gateway only decodes in
// production; these exist for fixtures and the wiredecode tool.

func EncodeEvent(e Event) []byte {
	w := NewWriter(64)
	switch ev := e.(type) {
	case PlayerRegistered:
		w.U8(TagPlayerRegistered).Raw(ev.Player[:]).U32(uint32(len(ev.Name))).Raw([]byte(ev.Name))
	case Deposited:
		w.U8(TagDeposited).Raw(ev.Player[:]).U64(ev.Amount).U64(ev.NewChips)
	case GameStarted:
		w.U8(TagGameStarted).U64(ev.GameID).Raw(ev.Player[:]).U8(ev.GameType).U64(ev.Bet).VarBytes(ev.InitialState)
	case GameMoved:
		w.U8(TagGameMoved).U64(ev.GameID).U32(ev.MoveNumber).VarBytes(ev.NewState)
		writeLogs(w, ev.Logs)
		writeBalances(w, ev.Balances)
	case GameCompleted:
		w.U8(TagGameCompleted).U64(ev.GameID).Raw(ev.Player[:]).U8(ev.GameType).I64(ev.Payout).
			U64(ev.FinalChips).Bool(ev.WasShielded).Bool(ev.WasDoubled)
		writeLogs(w, ev.Logs)
		writeBalances(w, ev.Balances)
	case CasinoError:
		w.U8(TagCasinoError).Raw(ev.Player[:])
		writeOptionalU64(w, ev.GameID)
		w.U8(ev.ErrorCode).U32(uint32(len(ev.Message))).Raw([]byte(ev.Message))
	}
	return w.Bytes()
}

func writeLogs(w *Writer, logs []string) {
	w.U32(uint32(len(logs)))
	for _, l := range logs {
		w.U32(uint32(len(l))).Raw([]byte(l))
	}
}

func writeOptionalU64(w *Writer, v *uint64) {
	if v == nil {
		w.Bool(false)
		return
	}
	w.Bool(true).U64(*v)
}

func writeBalances(w *Writer, b BalanceSnapshot) {
	w.U64(b.Chips).U64(b.VUSDTBalance).U32(b.Shields).U32(b.Doubles).
		U64(b.TournamentChips).U32(b.TournamentShields).U32(b.TournamentDoubles)
	writeOptionalU64(w, b.ActiveTournament)
}

func EncodeOutput(o Output) []byte {
	w := NewWriter(64)
	switch out := o.(type) {
	case OutputEvent:
		w.U8(outputTagEvent).Raw(EncodeEvent(out.Event))
	case OutputTransaction:
		w.U8(outputTagTransaction).Raw(out.Transaction.Encode())
	case OutputCommit:
		w.U8(outputTagCommit).U64(out.Height).U64(out.Start)
	}
	return w.Bytes()
}

func EncodeUpdate(u Update) []byte {
	switch up := u.(type) {
	case *Seed:
		return NewWriter(1 + 8 + BLSSignatureSize).U8(updateTagSeed).U64(up.View).Raw(up.Signature[:]).Bytes()
	case *Events:
		w := NewWriter(1 + ProgressSize + CertificateSize + 64)
		if up.Filtered {
			w.U8(updateTagFilteredEvents)
		} else {
			w.U8(updateTagEvents)
		}
		p := up.Progress
		w.U64(p.View).U64(p.Height).Raw(p.BlockDigest[:]).Raw(p.StateRoot[:]).
			U64(p.StateStartOp).U64(p.StateEndOp).Raw(p.EventsRoot[:]).
			U64(p.EventsStartOp).U64(p.EventsEndOp)
		c := up.Certificate
		w.U64(c.View).Raw(c.Digest[:]).Raw(c.Signature[:])
		w.U64(up.Proof.Size).Uvarint(uint32(len(up.Proof.Digests)))
		for _, d := range up.Proof.Digests {
			w.Raw(d[:])
		}
		w.Uvarint(uint32(len(up.Ops)))
		for _, op := range up.Ops {
			w.U64(op.Location).Raw(EncodeOutput(op.Output))
		}
		return w.Bytes()
	}
	return nil
}

// NewEventsUpdate is a convenience for building an Events update whose ops are
// numbered from start.
func NewEventsUpdate(start uint64, outputs ...Output) *Events {
	ev := &Events{}
	for i, o := range outputs {
		ev.Ops = append(ev.Ops, Op{Location: start + uint64(i), Output: o})
	}
	ev.Progress.EventsStartOp = start
	ev.Progress.EventsEndOp = start + uint64(len(outputs))
	return ev
}

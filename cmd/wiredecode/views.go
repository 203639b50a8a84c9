package main

import (
	"encoding/hex"

	"casinogw/internal/proto"
)

type txView struct {
	Public      string `json:"public"`
	Nonce       uint64 `json:"nonce"`
	Instruction string `json:"instruction"`
	Valid       bool   `json:"signatureValid"`
}

func newTxView(tx proto.Transaction) txView {
	return txView{
		Public:      tx.PublicHex(),
		Nonce:       tx.Nonce,
		Instruction: hex.EncodeToString(tx.Instruction),
		Valid:       tx.Verify(),
	}
}

type opView struct {
	Location    uint64  `json:"location"`
	Type        string  `json:"type"`
	Kind        string  `json:"kind,omitempty"`
	Target      string  `json:"target,omitempty"`
	Event       any     `json:"event,omitempty"`
	Transaction *txView `json:"transaction,omitempty"`
	Height      uint64  `json:"height,omitempty"`
	Start       uint64  `json:"start,omitempty"`
}

type updateOut struct {
	Type     string          `json:"type"`
	View     uint64          `json:"view,omitempty"`
	Progress *proto.Progress `json:"progress,omitempty"`
	Ops      []opView        `json:"ops,omitempty"`
}

func updateView(u proto.Update) updateOut {
	switch up := u.(type) {
	case *proto.Seed:
		return updateOut{Type: "seed", View: up.View}
	case *proto.Events:
		out := updateOut{Type: "events", Progress: &up.Progress}
		if up.Filtered {
			out.Type = "filtered_events"
		}
		for _, op := range up.Ops {
			v := opView{Location: op.Location}
			switch o := op.Output.(type) {
			case proto.OutputEvent:
				v.Type = "event"
				v.Kind = o.Event.Kind()
				v.Target = o.Event.TargetID()
				v.Event = o.Event
			case proto.OutputTransaction:
				v.Type = "transaction"
				tv := newTxView(o.Transaction)
				v.Transaction = &tv
			case proto.OutputCommit:
				v.Type = "commit"
				v.Height = o.Height
				v.Start = o.Start
			}
			out.Ops = append(out.Ops, v)
		}
		return out
	}
	return updateOut{Type: "unknown"}
}

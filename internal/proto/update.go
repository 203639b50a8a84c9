package proto

import "fmt"

const (
	updateTagSeed           uint8 = 0
	updateTagEvents         uint8 = 1
	updateTagFilteredEvents uint8 = 2

	outputTagEvent       uint8 = 0
	outputTagTransaction uint8 = 1
	outputTagCommit      uint8 = 2

	DigestSize       = 32
	BLSSignatureSize = 48

	// ProgressSize is view, height, block digest, state root, state start/end,
	// events root, events start/end.
	ProgressSize    = 8 + 8 + DigestSize + DigestSize + 8 + 8 + DigestSize + 8 + 8
	CertificateSize = 8 + DigestSize + BLSSignatureSize

	MaxProofDigests = 500
	MaxUpdateOps    = 500

	// MaxUpdateSize bounds one update message read from the stream.
	MaxUpdateSize = 4 << 20
)

// Update is the server-to-client stream message. Implementations: *Seed,
// *Events (covering both Events and FilteredEvents).
type Update interface {
	isUpdate()
}

// Output is one entry of an events proof. Implementations: OutputEvent,
// OutputTransaction, OutputCommit.
type Output interface {
	isOutput()
}

type Seed struct {
	View      uint64
	Signature [BLSSignatureSize]byte
}

type Progress struct {
	View          uint64
	Height        uint64
	BlockDigest   [DigestSize]byte
	StateRoot     [DigestSize]byte
	StateStartOp  uint64
	StateEndOp    uint64
	EventsRoot    [DigestSize]byte
	EventsStartOp uint64
	EventsEndOp   uint64
}

type Certificate struct {
	View      uint64
	Digest    [DigestSize]byte
	Signature [BLSSignatureSize]byte
}

type Proof struct {
	Size    uint64
	Digests [][DigestSize]byte
}

type Op struct {
	Location uint64
	Output   Output
}

// Events carries an events proof. Filtered is set for the FilteredEvents
// variant, which has the same layout but a multi-proof.
type Events struct {
	Filtered    bool
	Progress    Progress
	Certificate Certificate
	Proof       Proof
	Ops         []Op
}

type OutputEvent struct {
	Event Event
}

type OutputTransaction struct {
	Transaction Transaction
}

type OutputCommit struct {
	Height uint64
	Start  uint64
}

func (*Seed) isUpdate()   {}
func (*Events) isUpdate() {}

func (OutputEvent) isOutput()       {}
func (OutputTransaction) isOutput() {}
func (OutputCommit) isOutput()      {}

// GameEvents returns the Event-tagged entries in arrival order.
func (e *Events) GameEvents() []Event {
	out := make([]Event, 0, len(e.Ops))
	for _, op := range e.Ops {
		if oe, ok := op.Output.(OutputEvent); ok {
			out = append(out, oe.Event)
		}
	}
	return out
}

// Transactions returns the Transaction-tagged entries in arrival order.
func (e *Events) Transactions() []Transaction {
	var out []Transaction
	for _, op := range e.Ops {
		if ot, ok := op.Output.(OutputTransaction); ok {
			out = append(out, ot.Transaction)
		}
	}
	return out
}

// DecodeUpdate decodes one stream message. It never panics; malformed input
// yields a nil Update and an error describing the first failure.
func DecodeUpdate(b []byte) (u Update, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			u, err = nil, fmt.Errorf("decode update: %v", rec)
		}
	}()
	if len(b) > MaxUpdateSize {
		return nil, ErrTooLarge
	}
	r := NewReader(b)
	tag, ok := r.ReadU8()
	if !ok {
		return nil, ErrTruncated
	}
	switch tag {
	case updateTagSeed:
		s := &Seed{}
		s.View, _ = r.ReadU64()
		if !r.ReadFixed(s.Signature[:]) {
			return nil, ErrTruncated
		}
		u = s
	case updateTagEvents, updateTagFilteredEvents:
		ev, err := readEvents(r)
		if err != nil {
			return nil, err
		}
		ev.Filtered = tag == updateTagFilteredEvents
		u = ev
	default:
		return nil, fmt.Errorf("%w: update %d", ErrInvalidTag, tag)
	}
	if r.Remaining() != 0 {
		return nil, ErrTrailingBytes
	}
	return u, nil
}

func readEvents(r *Reader) (*Events, error) {
	ev := &Events{}
	p := &ev.Progress
	p.View, _ = r.ReadU64()
	p.Height, _ = r.ReadU64()
	r.ReadFixed(p.BlockDigest[:])
	r.ReadFixed(p.StateRoot[:])
	p.StateStartOp, _ = r.ReadU64()
	p.StateEndOp, _ = r.ReadU64()
	r.ReadFixed(p.EventsRoot[:])
	p.EventsStartOp, _ = r.ReadU64()
	p.EventsEndOp, _ = r.ReadU64()

	c := &ev.Certificate
	c.View, _ = r.ReadU64()
	r.ReadFixed(c.Digest[:])
	r.ReadFixed(c.Signature[:])

	ev.Proof.Size, _ = r.ReadU64()
	if !r.Ok() {
		return nil, ErrTruncated
	}
	nd, err := r.ReadLen(MaxProofDigests)
	if err != nil {
		return nil, err
	}
	if r.Remaining() < nd*DigestSize {
		return nil, ErrTruncated
	}
	ev.Proof.Digests = make([][DigestSize]byte, nd)
	for i := range ev.Proof.Digests {
		r.ReadFixed(ev.Proof.Digests[i][:])
	}

	nops, err := r.ReadLen(MaxUpdateOps)
	if err != nil {
		return nil, err
	}
	ev.Ops = make([]Op, 0, nops)
	for i := 0; i < nops; i++ {
		loc, ok := r.ReadU64()
		if !ok {
			return nil, ErrTruncated
		}
		out, err := readOutput(r)
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		ev.Ops = append(ev.Ops, Op{Location: loc, Output: out})
	}
	return ev, nil
}

func readOutput(r *Reader) (Output, error) {
	tag, ok := r.ReadU8()
	if !ok {
		return nil, ErrTruncated
	}
	switch tag {
	case outputTagEvent:
		e, err := readEvent(r)
		if err != nil {
			return nil, err
		}
		return OutputEvent{Event: e}, nil
	case outputTagTransaction:
		tx, err := readTransaction(r)
		if err != nil {
			return nil, err
		}
		return OutputTransaction{Transaction: tx}, nil
	case outputTagCommit:
		h, _ := r.ReadU64()
		s, ok := r.ReadU64()
		if !ok {
			return nil, ErrTruncated
		}
		return OutputCommit{Height: h, Start: s}, nil
	}
	return nil, fmt.Errorf("%w: output %d", ErrInvalidTag, tag)
}

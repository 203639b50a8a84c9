package proto

import (
	"encoding/binary"
	"math"
)

// Reader is a bounds-checked cursor over a byte slice. The first short read
// marks the reader failed; every later read returns the zero value.
type Reader struct {
	buf    []byte
	off    int
	failed bool
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func (r *Reader) Remaining() int {
	if r.failed || r.off >= len(r.buf) {
		return 0
	}
	return len(r.buf) - r.off
}

func (r *Reader) Offset() int {
	return r.off
}

// Ok reports whether every read so far was in bounds.
func (r *Reader) Ok() bool {
	return !r.failed
}

func (r *Reader) take(n int) ([]byte, bool) {
	if r.failed || n < 0 || r.Remaining() < n {
		r.failed = true
		return nil, false
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, true
}

func (r *Reader) ReadU8() (uint8, bool) {
	b, ok := r.take(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *Reader) ReadBool() (bool, bool) {
	v, ok := r.ReadU8()
	if !ok {
		return false, false
	}
	switch v {
	case 0:
		return false, true
	case 1:
		return true, true
	}
	r.failed = true
	return false, false
}

func (r *Reader) ReadU16() (uint16, bool) {
	b, ok := r.take(2)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(b), true
}

func (r *Reader) ReadU32() (uint32, bool) {
	b, ok := r.take(4)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(b), true
}

func (r *Reader) ReadU64() (uint64, bool) {
	b, ok := r.take(8)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

func (r *Reader) ReadI64() (int64, bool) {
	v, ok := r.ReadU64()
	return int64(v), ok
}

// ReadBytes returns a sub-slice of the underlying buffer; callers that keep it
// past the lifetime of the input must copy.
func (r *Reader) ReadBytes(n int) ([]byte, bool) {
	return r.take(n)
}

func (r *Reader) ReadFixed(dst []byte) bool {
	b, ok := r.take(len(dst))
	if !ok {
		return false
	}
	copy(dst, b)
	return true
}

// ReadUvarint reads an unsigned LEB128 value no wider than 32 bits, which is
// the encoding the ledger uses for collection lengths.
func (r *Reader) ReadUvarint() (uint32, bool) {
	if r.failed {
		return 0, false
	}
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 || v > math.MaxUint32 {
		r.failed = true
		return 0, false
	}
	r.off += n
	return uint32(v), true
}

// ReadLen reads a uvarint length and rejects it when it exceeds max
// (ErrCountOverflow) or the bytes left in the buffer (ErrTruncated), so it can
// be used to size allocations. Every length-prefixed item is at least one byte.
func (r *Reader) ReadLen(max int) (int, error) {
	v, ok := r.ReadUvarint()
	if !ok {
		return 0, ErrTruncated
	}
	if uint64(v) > uint64(max) {
		r.failed = true
		return 0, ErrCountOverflow
	}
	if uint64(v) > uint64(r.Remaining()) {
		r.failed = true
		return 0, ErrTruncated
	}
	return int(v), nil
}

// Writer is the append-only counterpart used by encoders and tests.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) I64(v int64) *Writer {
	return w.U64(uint64(v))
}

func (w *Writer) Uvarint(v uint32) *Writer {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
	return w
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// VarBytes writes a uvarint length prefix followed by b.
func (w *Writer) VarBytes(b []byte) *Writer {
	return w.Uvarint(uint32(len(b))).Raw(b)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

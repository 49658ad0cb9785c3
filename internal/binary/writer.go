// Package binary implements the cursor-based big-endian packet buffer used
// by every wire codec in the bot core. All multi-byte integers are
// big-endian. Length prefixes are described by a Prefix descriptor that
// selects the prefix width and whether the encoded length counts the prefix
// bytes themselves.
package binary

import (
	goBinary "encoding/binary"
)

// Prefix describes a length prefix: the low three bits select the width
// (0, 1, 2 or 4 bytes) and bit 3 selects whether the encoded length
// includes the prefix itself.
type Prefix uint8

const (
	PrefixNone   Prefix = 0b000
	PrefixU8     Prefix = 0b001
	PrefixU16    Prefix = 0b010
	PrefixU32    Prefix = 0b100
	PrefixLength Prefix = 0b1000 // length counts the prefix bytes too
)

// Width returns the prefix width in bytes.
func (p Prefix) Width() int {
	switch p & 0b111 {
	case PrefixU8:
		return 1
	case PrefixU16:
		return 2
	case PrefixU32:
		return 4
	default:
		return 0
	}
}

// IncludesSelf reports whether the encoded length counts the prefix bytes.
func (p Prefix) IncludesSelf() bool { return p&PrefixLength != 0 }

// Writer is a growing byte buffer with helpers for back-patching reserved
// header regions. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// NewWriterF runs fn against a fresh Writer and returns the written bytes.
func NewWriterF(fn func(*Writer)) []byte {
	w := NewWriter()
	fn(w)
	return w.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes. The slice aliases the internal buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Write appends raw bytes. It implements io.Writer and never fails.
func (w *Writer) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteU8 appends one byte.
func (w *Writer) WriteU8(v uint8) { w.buf = append(w.buf, v) }

// WriteU16 appends a big-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	w.buf = goBinary.BigEndian.AppendUint16(w.buf, v)
}

// WriteU32 appends a big-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	w.buf = goBinary.BigEndian.AppendUint32(w.buf, v)
}

// WriteU64 appends a big-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	w.buf = goBinary.BigEndian.AppendUint64(w.buf, v)
}

// WriteI8 appends one signed byte.
func (w *Writer) WriteI8(v int8) { w.WriteU8(uint8(v)) }

// WriteI16 appends a big-endian int16.
func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

// WriteI32 appends a big-endian int32. Sequence numbers cross this boundary
// as a lossless bit cast from uint32.
func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

// WriteI64 appends a big-endian int64.
func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

// WriteBool appends 0x01 or 0x00.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

// Skip reserves n zero bytes for later back-patching and returns their
// offset.
func (w *Writer) Skip(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

// WriteU8At patches a previously reserved byte.
func (w *Writer) WriteU8At(off int, v uint8) { w.buf[off] = v }

// WriteU16At patches a previously reserved uint16 region.
func (w *Writer) WriteU16At(off int, v uint16) {
	goBinary.BigEndian.PutUint16(w.buf[off:], v)
}

// WriteU32At patches a previously reserved uint32 region.
func (w *Writer) WriteU32At(off int, v uint32) {
	goBinary.BigEndian.PutUint32(w.buf[off:], v)
}

// WriteU64At patches a previously reserved uint64 region.
func (w *Writer) WriteU64At(off int, v uint64) {
	goBinary.BigEndian.PutUint64(w.buf[off:], v)
}

// WriteLenBytes appends b behind a length prefix described by p.
func (w *Writer) WriteLenBytes(p Prefix, b []byte) {
	n := len(b)
	if p.IncludesSelf() {
		n += p.Width()
	}
	switch p.Width() {
	case 1:
		w.WriteU8(uint8(n))
	case 2:
		w.WriteU16(uint16(n))
	case 4:
		w.WriteU32(uint32(n))
	}
	w.WriteBytes(b)
}

// WriteLenString appends s behind a length prefix described by p.
func (w *Writer) WriteLenString(p Prefix, s string) {
	w.WriteLenBytes(p, []byte(s))
}

// WithLengthPrefix reserves width bytes, runs fn, then patches the written
// length (plus adjust, plus the prefix itself when includeSelf is set) into
// the reserved region. Width must be 1, 2, 4 or 8.
func (w *Writer) WithLengthPrefix(width int, includeSelf bool, adjust int, fn func(*Writer)) {
	off := w.Skip(width)
	fn(w)
	n := w.Len() - off - width + adjust
	if includeSelf {
		n += width
	}
	switch width {
	case 1:
		w.WriteU8At(off, uint8(n))
	case 2:
		w.WriteU16At(off, uint16(n))
	case 4:
		w.WriteU32At(off, uint32(n))
	case 8:
		w.WriteU64At(off, uint64(n))
	default:
		panic("binary: length prefix width must be 1, 2, 4 or 8")
	}
}

// WriteTlv appends a single u16-length-prefixed value, the framing used by
// wt-login TLV bodies.
func (w *Writer) WriteTlv(b []byte) { w.WriteLenBytes(PrefixU16, b) }

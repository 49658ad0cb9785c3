package binary

import (
	goBinary "encoding/binary"
	"fmt"
)

// ShortReadError reports a read past the end of the buffer.
type ShortReadError struct {
	Requested int
	Available int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("binary: short read: requested %d bytes, %d available", e.Requested, e.Available)
}

// Reader walks a byte buffer with an internal cursor. The first failed read
// latches an error; subsequent reads return zero values so decode sequences
// can run unchecked and test Err once at the end.
type Reader struct {
	buf []byte
	pos int
	err error
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the cursor position.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Len() < n {
		r.err = &ShortReadError{Requested: n, Available: r.Len()}
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

// ReadU8 reads one byte.
func (r *Reader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadU16 reads a big-endian uint16.
func (r *Reader) ReadU16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return goBinary.BigEndian.Uint16(b)
}

// ReadU32 reads a big-endian uint32.
func (r *Reader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return goBinary.BigEndian.Uint32(b)
}

// ReadU64 reads a big-endian uint64.
func (r *Reader) ReadU64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return goBinary.BigEndian.Uint64(b)
}

// ReadI8 reads one signed byte.
func (r *Reader) ReadI8() int8 { return int8(r.ReadU8()) }

// ReadI16 reads a big-endian int16.
func (r *Reader) ReadI16() int16 { return int16(r.ReadU16()) }

// ReadI32 reads a big-endian int32.
func (r *Reader) ReadI32() int32 { return int32(r.ReadU32()) }

// ReadI64 reads a big-endian int64.
func (r *Reader) ReadI64() int64 { return int64(r.ReadU64()) }

// ReadBytes reads n bytes into a fresh slice.
func (r *Reader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadAvailable reads every remaining byte.
func (r *Reader) ReadAvailable() []byte { return r.ReadBytes(r.Len()) }

// SkipBytes advances the cursor without copying.
func (r *Reader) SkipBytes(n int) { r.take(n) }

// PeekU32 reads a big-endian uint32 without advancing the cursor.
func (r *Reader) PeekU32() uint32 {
	if r.err != nil || r.Len() < 4 {
		return 0
	}
	return goBinary.BigEndian.Uint32(r.buf[r.pos:])
}

// ReadLenBytes reads a value behind a length prefix described by p.
func (r *Reader) ReadLenBytes(p Prefix) []byte {
	var n int
	switch p.Width() {
	case 1:
		n = int(r.ReadU8())
	case 2:
		n = int(r.ReadU16())
	case 4:
		n = int(r.ReadU32())
	}
	if r.err != nil {
		return nil
	}
	if p.IncludesSelf() {
		n -= p.Width()
	}
	if n < 0 {
		r.err = &ShortReadError{Requested: n, Available: r.Len()}
		return nil
	}
	return r.ReadBytes(n)
}

// ReadLenString reads a string behind a length prefix described by p.
func (r *Reader) ReadLenString(p Prefix) string {
	return string(r.ReadLenBytes(p))
}

// ReadTlv reads a single u16-length-prefixed value.
func (r *Reader) ReadTlv() []byte { return r.ReadLenBytes(PrefixU16) }

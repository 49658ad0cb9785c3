// Package tlv implements the Tag-Length-Value sub-format used inside
// wt-login payloads. Entries are (u16 tag, u16-length-prefixed body) and a
// collection is framed by a leading u16 count, optionally preceded by a u16
// command when the collection itself forms an outer command body.
package tlv

import (
	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/errs"
)

// Builder assembles an ordered TLV collection. The entry count is
// back-patched into the reserved header when Bytes is called.
type Builder struct {
	w        *binary.Writer
	countPos int
	count    uint16
}

// NewBuilder starts a collection with just the count header.
func NewBuilder() *Builder {
	w := binary.NewWriter()
	return &Builder{w: w, countPos: w.Skip(2)}
}

// NewCommandBuilder starts a collection prefixed by an outer command word,
// the framing wtlogin.login bodies use.
func NewCommandBuilder(command uint16) *Builder {
	w := binary.NewWriter()
	w.WriteU16(command)
	return &Builder{w: w, countPos: w.Skip(2)}
}

// Tlv appends one entry whose body is produced by fn.
func (b *Builder) Tlv(tag uint16, fn func(w *binary.Writer)) *Builder {
	b.w.WriteU16(tag)
	b.w.WithLengthPrefix(2, false, 0, fn)
	b.count++
	return b
}

// TlvBytes appends one entry with a literal body.
func (b *Builder) TlvBytes(tag uint16, body []byte) *Builder {
	return b.Tlv(tag, func(w *binary.Writer) { w.WriteBytes(body) })
}

// Count returns the number of entries appended so far.
func (b *Builder) Count() uint16 { return b.count }

// Bytes finalizes the collection, patching the entry count.
func (b *Builder) Bytes() []byte {
	b.w.WriteU16At(b.countPos, b.count)
	return b.w.Bytes()
}

// Values is a parsed TLV collection. Duplicate tags resolve
// last-write-wins, matching deployed peers.
type Values map[uint16][]byte

// Parse reads a count-framed collection from r.
func Parse(r *binary.Reader) (Values, error) {
	count := int(r.ReadU16())
	values := make(Values, count)
	for i := 0; i < count; i++ {
		tag := r.ReadU16()
		body := r.ReadTlv()
		if err := r.Err(); err != nil {
			return nil, errs.Parse("tlv %d/%d: %v", i+1, count, err)
		}
		values[tag] = body
	}
	return values, nil
}

// ParseBytes reads a count-framed collection from a byte slice.
func ParseBytes(data []byte) (Values, error) {
	return Parse(binary.NewReader(data))
}

// Get returns the body for tag.
func (v Values) Get(tag uint16) ([]byte, bool) {
	body, ok := v[tag]
	return body, ok
}

// Has reports whether tag is present.
func (v Values) Has(tag uint16) bool {
	_, ok := v[tag]
	return ok
}

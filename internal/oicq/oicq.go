// Package oicq implements the outer envelope wrapping every wt-login body.
// A message travels as 0x02, a u16 total length that counts itself, a fixed
// head, the sealed body and a trailing 0x03. The body seal is selected by
// the encryption method: an ECDH exchange against the well-known server key,
// or a session-ticket key carried by the caller.
package oicq

import (
	"crypto/rand"

	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/crypto"
	"github.com/nanoim/botcore/internal/errs"
)

// EncryptionMethod selects how the body of a wt-login message is sealed.
type EncryptionMethod uint8

const (
	// EmEcdh seals with the ECDH shared key and packs our public key into
	// the encrypt head.
	EmEcdh EncryptionMethod = 0x07
	// EmSt seals with a session-ticket key supplied per message.
	EmSt EncryptionMethod = 0x45
	// EmEcdhSt is the ECDH seal carrying the session-ticket marker bit.
	EmEcdhSt EncryptionMethod = 0x87
)

// Message is one wt-login exchange unit.
type Message struct {
	Uin     uint32
	Command uint16
	Method  EncryptionMethod

	// Key seals EmSt messages; ignored for the ECDH methods.
	Key []byte

	Body []byte
}

// serverPublicKey is the well-known secp192k1 public key login servers
// present; the shared secret is md5-folded to the 16-byte TEA key.
var serverPublicKey = []byte{
	0x04,
	0x92, 0x8d, 0x88, 0x50, 0x67, 0x30, 0x88, 0xb3,
	0x43, 0x26, 0x4e, 0x0c, 0x6b, 0xac, 0xb8, 0x49,
	0x6d, 0x69, 0x77, 0x99, 0xf3, 0x72, 0x11, 0xde,
	0xb2, 0x5b, 0xb7, 0x39, 0x06, 0xcb, 0x08, 0x9f,
	0xea, 0x96, 0x39, 0xb4, 0xe0, 0x26, 0x04, 0x98,
	0xb5, 0x1a, 0x99, 0x2d, 0x50, 0x81, 0x3d, 0xa8,
}

// Codec seals and opens wt-login messages for one connection. The ECDH key
// pair and the random key live for the lifetime of the codec.
type Codec struct {
	ecdh      *crypto.ECDHKey
	shareKey  []byte
	randomKey [16]byte
}

// NewCodec generates a fresh ECDH key pair and agrees with the default
// server public key.
func NewCodec() (*Codec, error) {
	key, err := crypto.GenerateECDHKey(crypto.Secp192K1)
	if err != nil {
		return nil, err
	}
	share, err := key.SharedKey(serverPublicKey, true)
	if err != nil {
		return nil, err
	}
	c := &Codec{ecdh: key, shareKey: share}
	if _, err := rand.Read(c.randomKey[:]); err != nil {
		return nil, errs.Crypto("random key: %v", err)
	}
	return c, nil
}

// ShareKey exposes the agreed TEA key; login responses sealed with the
// exchange key are opened with it.
func (c *Codec) ShareKey() []byte { return c.shareKey }

// Marshal seals m into its wire form.
func (c *Codec) Marshal(m *Message) ([]byte, error) {
	sealed, err := c.sealBody(m)
	if err != nil {
		return nil, err
	}

	w := binary.NewWriter()
	w.WriteU8(0x02)
	// Total length counts every byte including the 0x02 and 0x03 marks.
	w.WithLengthPrefix(2, true, 1+1, func(w *binary.Writer) {
		w.WriteU16(8001)
		w.WriteU16(m.Command)
		w.WriteU16(1) // sequence within the exchange
		w.WriteU32(m.Uin)
		w.WriteU8(3)
		w.WriteU8(uint8(m.Method))
		w.WriteU8(0)
		w.WriteU32(2)
		w.WriteU32(0) // app client version, carried in the TLVs
		w.WriteU32(0)
		w.WriteBytes(sealed)
	})
	w.WriteU8(0x03)
	return w.Bytes(), nil
}

func (c *Codec) sealBody(m *Message) ([]byte, error) {
	switch m.Method {
	case EmEcdh, EmEcdhSt:
		enc, err := crypto.TEAEncrypt(c.shareKey, m.Body)
		if err != nil {
			return nil, err
		}
		return binary.NewWriterF(func(w *binary.Writer) {
			w.WriteU8(0x02)
			w.WriteU8(0x01)
			w.WriteBytes(c.randomKey[:])
			w.WriteU16(0x0131)
			w.WriteU16(0x0001) // public key version
			w.WriteTlv(c.ecdh.PublicBytes(false))
			w.WriteBytes(enc)
		}), nil
	case EmSt:
		if len(m.Key) < 16 {
			return nil, errs.Build("oicq: session-ticket seal needs a 16-byte key")
		}
		enc, err := crypto.TEAEncrypt(m.Key, m.Body)
		if err != nil {
			return nil, err
		}
		return binary.NewWriterF(func(w *binary.Writer) {
			w.WriteU8(0x01)
			w.WriteU8(0x03)
			w.WriteBytes(c.randomKey[:])
			w.WriteU16(0x0102)
			w.WriteU16(0x0000)
			w.WriteBytes(enc)
		}), nil
	default:
		return nil, errs.Build("oicq: unknown encryption method %#x", uint8(m.Method))
	}
}

// Unmarshal opens a sealed wt-login response. sessionKey opens bodies the
// server sealed with the session-ticket key; pass nil when no ticket
// exchange is in flight.
func (c *Codec) Unmarshal(data []byte, sessionKey []byte) (*Message, error) {
	r := binary.NewReader(data)
	if flag := r.ReadU8(); flag != 0x02 {
		return nil, errs.Parse("oicq: leading mark %#x, want 0x02", flag)
	}
	total := int(r.ReadU16())
	if r.Err() == nil && total != len(data) {
		return nil, errs.Parse("oicq: declared length %d, frame is %d", total, len(data))
	}
	r.ReadU16() // version, 8001
	m := &Message{}
	m.Command = r.ReadU16()
	r.ReadU16() // sequence
	m.Uin = r.ReadU32()
	r.ReadU8() // flag
	encryptType := r.ReadU8()
	r.ReadU8()
	if r.Err() == nil && r.Len() < 1 {
		return nil, errs.Parse("oicq: truncated frame: no body or trailing mark")
	}
	body := r.ReadBytes(r.Len() - 1)
	if mark := r.ReadU8(); r.Err() == nil && mark != 0x03 {
		return nil, errs.Parse("oicq: trailing mark %#x, want 0x03", mark)
	}
	if err := r.Err(); err != nil {
		return nil, errs.Parse("oicq: %v", err)
	}

	switch encryptType {
	case 0:
		plain, err := crypto.TEADecrypt(c.shareKey, body)
		if err != nil {
			return nil, errs.Crypto("oicq: share-key open: %v", err)
		}
		m.Method = EmEcdh
		m.Body = plain
	case 3:
		if len(sessionKey) < 16 {
			return nil, errs.Parse("oicq: session-sealed response without a session key")
		}
		plain, err := crypto.TEADecrypt(sessionKey, body)
		if err != nil {
			return nil, errs.Crypto("oicq: session-key open: %v", err)
		}
		m.Method = EmSt
		m.Body = plain
	default:
		return nil, errs.Parse("oicq: unknown encrypt type %d", encryptType)
	}
	return m, nil
}

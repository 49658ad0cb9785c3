package packet

import (
	"strconv"

	"github.com/nanoim/botcore/internal/binary"
	"github.com/nanoim/botcore/internal/crypto"
	"github.com/nanoim/botcore/internal/errs"
)

// Protocol values carried in the service head. Login-class commands ride
// protocol 12 with the full SSO head; established-session commands ride 13.
const (
	ProtocolLogin   int32 = 12
	ProtocolService int32 = 13
)

// EncryptType selects the service-layer cipher.
type EncryptType uint8

const (
	// EncryptNone sends the SSO frame in the clear.
	EncryptNone EncryptType = 0
	// EncryptD2Key seals with the session D2 key.
	EncryptD2Key EncryptType = 1
	// EncryptEmptyKey seals with sixteen zero bytes, used before a session
	// exists.
	EncryptEmptyKey EncryptType = 2
)

var emptyKey = make([]byte, 16)

// BuildService wraps an encoded SSO frame in the outer service envelope.
func (c *Codec) BuildService(sso []byte, protocol int32, encrypt EncryptType) ([]byte, error) {
	const lp = binary.PrefixU32 | binary.PrefixLength

	var cipher []byte
	switch encrypt {
	case EncryptNone:
		cipher = sso
	case EncryptEmptyKey:
		enc, err := crypto.TEAEncrypt(emptyKey, sso)
		if err != nil {
			return nil, err
		}
		cipher = enc
	case EncryptD2Key:
		key := c.Store.D2Key()
		enc, err := crypto.TEAEncrypt(key[:], sso)
		if err != nil {
			return nil, err
		}
		cipher = enc
	default:
		return nil, errs.Build("service: unknown encrypt type %d", encrypt)
	}

	uin := strconv.FormatUint(c.Store.Uin(), 10)
	return binary.NewWriterF(func(w *binary.Writer) {
		w.WithLengthPrefix(4, true, 0, func(w *binary.Writer) {
			w.WriteI32(protocol)
			w.WriteU8(uint8(encrypt))
			if protocol == ProtocolLogin {
				if encrypt == EncryptD2Key {
					w.WriteLenBytes(lp, c.Store.D2())
				} else {
					w.WriteU32(4) // empty ticket slot, length counts itself
				}
			}
			w.WriteU8(0)
			w.WriteLenString(lp, uin)
			w.WriteBytes(cipher)
		})
	}), nil
}

// ParseService unwraps one inbound service envelope and decodes the SSO
// frame inside it. data must be a whole frame including the leading length.
func (c *Codec) ParseService(data []byte) (*SsoPacket, error) {
	const lp = binary.PrefixU32 | binary.PrefixLength

	r := binary.NewReader(data)
	total := int(r.ReadU32())
	if r.Err() == nil && total != len(data) {
		return nil, errs.Parse("service frame: declared %d bytes, got %d", total, len(data))
	}
	protocol := r.ReadI32()
	encrypt := EncryptType(r.ReadU8())
	if protocol == ProtocolLogin {
		r.ReadLenBytes(lp) // ticket slot
	}
	r.ReadU8()         // reserved
	r.ReadLenBytes(lp) // uin string
	cipher := r.ReadAvailable()
	if err := r.Err(); err != nil {
		return nil, errs.Parse("service head: %v", err)
	}

	var sso []byte
	switch encrypt {
	case EncryptNone:
		sso = cipher
	case EncryptEmptyKey:
		plain, err := crypto.TEADecrypt(emptyKey, cipher)
		if err != nil {
			return nil, errs.Crypto("service empty-key open: %v", err)
		}
		sso = plain
	case EncryptD2Key:
		key := c.Store.D2Key()
		plain, err := crypto.TEADecrypt(key[:], cipher)
		if err != nil {
			return nil, errs.Crypto("service d2-key open: %v", err)
		}
		sso = plain
	default:
		return nil, errs.Parse("service: unknown auth flag %d", encrypt)
	}
	return c.ParseSso(sso)
}

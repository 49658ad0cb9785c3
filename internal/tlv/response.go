package tlv

import (
	"github.com/nanoim/botcore/internal/crypto"
	"github.com/nanoim/botcore/internal/errs"
	"github.com/nanoim/botcore/internal/proto"

	"github.com/nanoim/botcore/internal/binary"
)

// DecryptT119 opens the sealed ticket collection from a login response. The
// caller selects the key by sub-command; every flow here (fresh login and
// the 0x0f exchange) seals it with the tgtgt key.
func DecryptT119(body []byte, key [16]byte) (Values, error) {
	plain, err := crypto.TEADecrypt(key[:], body)
	if err != nil {
		return nil, errs.Crypto("t119 decrypt: %v", err)
	}
	return ParseBytes(plain)
}

// ErrorInfo is the operator-facing failure description carried by TLV 0x146.
type ErrorInfo struct {
	Title   string
	Message string
}

// ParseT146 reads the error title and message of a failed login.
func ParseT146(body []byte) (ErrorInfo, error) {
	r := binary.NewReader(body)
	r.ReadU16() // version
	r.ReadU16() // code
	info := ErrorInfo{
		Title:   r.ReadLenString(binary.PrefixU16),
		Message: r.ReadLenString(binary.PrefixU16),
	}
	if err := r.Err(); err != nil {
		return ErrorInfo{}, errs.Parse("t146: %v", err)
	}
	return info, nil
}

// UserInfo is the profile summary carried by TLV 0x11A.
type UserInfo struct {
	Face   uint16
	Age    uint8
	Gender uint8
	Nick   string
}

// ParseT11A reads the profile summary of a successful login.
func ParseT11A(body []byte) (UserInfo, error) {
	r := binary.NewReader(body)
	info := UserInfo{
		Face:   r.ReadU16(),
		Age:    r.ReadU8(),
		Gender: r.ReadU8(),
		Nick:   r.ReadLenString(binary.PrefixU8),
	}
	if err := r.Err(); err != nil {
		return UserInfo{}, errs.Parse("t11a: %v", err)
	}
	return info, nil
}

// PsKey is one per-domain web ticket pair from TLV 0x512.
type PsKey struct {
	PsKey    []byte
	Pt4Token []byte
}

// ParseT512 reads the per-domain web tickets.
func ParseT512(body []byte) (map[string]PsKey, error) {
	r := binary.NewReader(body)
	count := int(r.ReadU16())
	out := make(map[string]PsKey, count)
	for i := 0; i < count; i++ {
		domain := r.ReadLenString(binary.PrefixU16)
		key := PsKey{
			PsKey:    r.ReadLenBytes(binary.PrefixU16),
			Pt4Token: r.ReadLenBytes(binary.PrefixU16),
		}
		if err := r.Err(); err != nil {
			return nil, errs.Parse("t512 entry %d/%d: %v", i+1, count, err)
		}
		out[domain] = key
	}
	return out, nil
}

type t543Inner struct {
	Uid string `proto:"1"`
}

type t543Layer struct {
	Inner *t543Inner `proto:"11"`
}

type t543Body struct {
	Layer *t543Layer `proto:"9"`
}

// ParseT543 extracts the opaque string account id from its protobuf shell.
func ParseT543(body []byte) (string, error) {
	var msg t543Body
	if err := proto.Unmarshal(body, &msg); err != nil {
		return "", errs.Parse("t543: %v", err)
	}
	if msg.Layer == nil || msg.Layer.Inner == nil {
		return "", errs.Parse("t543: uid layers missing")
	}
	return msg.Layer.Inner.Uid, nil
}

// ParseT01E reads the replacement tgtgt key handed out during QR login.
func ParseT01E(body []byte) ([16]byte, error) {
	var key [16]byte
	if len(body) != 16 {
		return key, errs.Parse("t01e: key length %d, want 16", len(body))
	}
	copy(key[:], body)
	return key, nil
}

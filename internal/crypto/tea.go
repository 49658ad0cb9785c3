// Package crypto implements the cipher glue used by the packet stack:
// the 16-cycle TEA construction that protects every envelope, AES-GCM for
// the key-exchange payloads, and ECDH over secp192k1 and prime256v1.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	goBinary "encoding/binary"

	"golang.org/x/crypto/tea"

	"github.com/nanoim/botcore/internal/errs"
)

// teaRounds selects 16 Feistel cycles (two half-rounds each) in the
// x/crypto block core, matching the wire protocol.
const teaRounds = 32

// TEA is the protocol's TEA construction: the 16-cycle block cipher under a
// chained mode where each block is XORed with the previous ciphertext before
// encryption and with the previous plaintext-input after.
type TEA struct {
	block cipher.Block
}

// NewTEA builds a TEA cipher from a key of at least 16 bytes. Longer keys
// are truncated to their first 16 bytes.
func NewTEA(key []byte) (*TEA, error) {
	if len(key) < 16 {
		return nil, errs.Crypto("tea key too short: %d bytes", len(key))
	}
	block, err := tea.NewCipherWithRounds(key[:16], teaRounds)
	if err != nil {
		return nil, errs.Crypto("tea cipher: %v", err)
	}
	return &TEA{block: block}, nil
}

// Encrypt pads and encrypts src. The padding prepends fill random bytes,
// where fill = 10 - ((len+1) & 7), encodes (fill-3)|0xF8 into the first
// byte, and appends seven zero bytes. The ciphertext length is always a
// multiple of 8 and at least 16.
func (t *TEA) Encrypt(src []byte) []byte {
	fill := 10 - (len(src)+1)%8
	dst := make([]byte, fill+len(src)+7)
	_, _ = rand.Read(dst[:fill])
	dst[0] = byte(fill-3) | 0xF8
	copy(dst[fill:], src)

	var iv1, iv2, holder uint64
	var scratch [8]byte
	for i := 0; i < len(dst); i += 8 {
		block := goBinary.BigEndian.Uint64(dst[i:])
		holder = block ^ iv1
		goBinary.BigEndian.PutUint64(scratch[:], holder)
		t.block.Encrypt(scratch[:], scratch[:])
		iv1 = goBinary.BigEndian.Uint64(scratch[:]) ^ iv2
		iv2 = holder
		goBinary.BigEndian.PutUint64(dst[i:], iv1)
	}
	return dst
}

// Decrypt reverses Encrypt and strips the padding.
func (t *TEA) Decrypt(data []byte) ([]byte, error) {
	if len(data) < 16 || len(data)%8 != 0 {
		return nil, errs.Crypto("tea ciphertext length %d invalid", len(data))
	}

	dst := make([]byte, len(data))
	var iv1, iv2, holder uint64
	var scratch [8]byte
	for i := 0; i < len(data); i += 8 {
		block := goBinary.BigEndian.Uint64(data[i:])
		goBinary.BigEndian.PutUint64(scratch[:], block^iv2)
		t.block.Decrypt(scratch[:], scratch[:])
		tmp := goBinary.BigEndian.Uint64(scratch[:])
		iv2 = tmp
		holder = tmp ^ iv1
		iv1 = block
		goBinary.BigEndian.PutUint64(dst[i:], holder)
	}

	fill := int(dst[0]&7) + 3
	if fill+7 > len(dst) {
		return nil, errs.Crypto("tea padding out of range")
	}
	for _, b := range dst[len(dst)-7:] {
		if b != 0 {
			return nil, errs.Crypto("tea padding corrupted")
		}
	}
	return dst[fill : len(dst)-7], nil
}

// TEAEncrypt is a one-shot helper for callers that hold a raw key.
func TEAEncrypt(key, src []byte) ([]byte, error) {
	t, err := NewTEA(key)
	if err != nil {
		return nil, err
	}
	return t.Encrypt(src), nil
}

// TEADecrypt is a one-shot helper for callers that hold a raw key.
func TEADecrypt(key, data []byte) ([]byte, error) {
	t, err := NewTEA(key)
	if err != nil {
		return nil, err
	}
	return t.Decrypt(data)
}

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/nanoim/botcore/internal/errs"
)

// AESGCMSeal encrypts plaintext with AES-GCM under key (16 bytes for
// AES-128, 32 for AES-256). The random 12-byte nonce is prepended to the
// ciphertext+tag, mirroring the key-exchange payload layout.
func AESGCMSeal(key, plaintext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Crypto("gcm nonce: %v", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// AESGCMOpen decrypts data produced by AESGCMSeal.
func AESGCMOpen(key, data []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aead.NonceSize() {
		return nil, errs.Crypto("gcm ciphertext too short: %d bytes", len(data))
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errs.Crypto("gcm open: %v", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 16 && len(key) != 32 {
		return nil, errs.Crypto("aes key length %d invalid", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Crypto("aes cipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.Crypto("gcm mode: %v", err)
	}
	return aead, nil
}

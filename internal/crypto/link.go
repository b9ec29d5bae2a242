// Package crypto: per-peer link keys (HKDF from the pre-shared key) and
// ChaCha20-Poly1305 sealing for encrypted unicast on the radio link.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"dev.c0redev.nowgate/internal/ident"
)

const (
	// KeySize is the link key size (32 bytes).
	KeySize = chacha20poly1305.KeySize
	// NonceSize for ChaCha20-Poly1305.
	NonceSize = chacha20poly1305.NonceSize
	// MinPMKSize: shortest accepted pre-shared key.
	MinPMKSize = 16
)

var ErrShortPMK = errors.New("pre-shared key shorter than 16 bytes")

const linkInfo = "nowgate link key v1"

// DeriveKey link key for the pair (gateway, node): HKDF-SHA256(pmk, salt=node mac).
// Both ends derive the same key from the node's identity.
func DeriveKey(pmk []byte, node ident.MAC) ([]byte, error) {
	if len(pmk) < MinPMKSize {
		return nil, ErrShortPMK
	}
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, pmk, node[:], []byte(linkInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

// KeyFunc returns a deriver bound to pmk.
func KeyFunc(pmk []byte) func(ident.MAC) ([]byte, error) {
	return func(id ident.MAC) ([]byte, error) { return DeriveKey(pmk, id) }
}

// Seal encrypts with key; prepends nonce to result. Random nonce if len(nonce) != NonceSize.
func Seal(key []byte, nonce []byte, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.New("key size must be 32")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		nonce = make([]byte, NonceSize)
		if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
			return nil, err
		}
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts (first NonceSize = nonce) with key.
func Open(key []byte, ciphertext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.New("key size must be 32")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < NonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ct := ciphertext[:NonceSize], ciphertext[NonceSize:]
	return aead.Open(nil, nonce, ct, nil)
}

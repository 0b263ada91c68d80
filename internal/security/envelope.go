package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// envelope encryption for credential material at rest, adapted from
// r3e-network-service_layer's infrastructure/crypto.EncryptEnvelope: a
// per-venue key is derived from a master key via HMAC-SHA256 so no two
// venues' ciphertexts are interchangeable, then sealed with AES-GCM.
// Standard library only: no pack repo wires an external KMS/vault client
// for this and the spec gives no persistence requirement beyond "ciphertext
// only at rest" (spec §3), so a self-contained envelope is sufficient; see
// DESIGN.md.

func deriveKey(masterKey, venueID []byte) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("security: master key must be 32 bytes, got %d", len(masterKey))
	}
	mac := hmac.New(sha256.New, masterKey)
	_, _ = mac.Write(venueID)
	return mac.Sum(nil), nil
}

func encrypt(masterKey, venueID, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey, venueID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: new gcm: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("security: read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, venueID)
	return []byte(base64.RawURLEncoding.EncodeToString(sealed)), nil
}

func decrypt(masterKey, venueID, ciphertext []byte) ([]byte, error) {
	key, err := deriveKey(masterKey, venueID)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(string(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: new gcm: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("security: ciphertext too short")
	}
	nonce, body := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, venueID)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt: %w", err)
	}
	return plaintext, nil
}

package credstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Sealer encrypts values at rest. The key name is bound as additional data,
// so a sealed session token cannot be replayed as the biometric token.
type Sealer struct {
	aead cipher.AEAD
}

// NewSalt returns fresh random salt for NewSealer.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("credstore: generate salt: %w", err)
	}
	return salt, nil
}

// NewSealer derives the AEAD key from passphrase and salt with scrypt.
func NewSealer(passphrase string, salt []byte) (*Sealer, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrNoPassphrase
	}
	if len(salt) < saltSize {
		return nil, fmt.Errorf("credstore: salt must be at least %d bytes", saltSize)
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("credstore: derive key: %w", err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("credstore: init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal returns base64(nonce || ciphertext).
func (s *Sealer) Seal(key Key, plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("credstore: generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plaintext), []byte(key))
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Tampered values, a wrong passphrase and values sealed
// under another key all fail with ErrSealCorrupted.
func (s *Sealer) Open(key Key, sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrSealCorrupted
	}
	ns := s.aead.NonceSize()
	if len(raw) < ns+s.aead.Overhead() {
		return "", ErrSealCorrupted
	}
	plain, err := s.aead.Open(nil, raw[:ns], raw[ns:], []byte(key))
	if err != nil {
		return "", ErrSealCorrupted
	}
	return string(plain), nil
}

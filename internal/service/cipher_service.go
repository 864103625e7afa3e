package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"paygate/pkg/apperror"

	"golang.org/x/crypto/argon2"
)

// Envelope layout: salt(16B) : iv(12B) : tag(16B) : ciphertext, each group
// lowercase hex, colon-joined. The AES-256 key is derived from the master
// secret with Argon2id using the envelope's own salt, fresh on every call,
// so no derived key is ever cached.
const (
	cipherSaltLen = 16
	cipherIVLen   = 12
	cipherTagLen  = 16

	kdfTime    = 1
	kdfMemory  = 64 * 1024 // KiB
	kdfThreads = 4
	kdfKeyLen  = 32
)

var envelopeShape = regexp.MustCompile(
	`(?i)^[0-9a-f]{32}:[0-9a-f]{24}:[0-9a-f]{32}:[0-9a-f]*$`,
)

// EnvelopeCipher implements ports.CredentialCipher.
type EnvelopeCipher struct {
	master []byte
}

// NewEnvelopeCipher creates a cipher keyed on the process-wide master secret.
func NewEnvelopeCipher(masterSecret string) (*EnvelopeCipher, error) {
	if len(masterSecret) < 16 {
		return nil, fmt.Errorf("cipher master secret must be at least 16 characters, got %d", len(masterSecret))
	}
	return &EnvelopeCipher{master: []byte(masterSecret)}, nil
}

// IsEncrypted reports whether s already has the envelope shape.
func (c *EnvelopeCipher) IsEncrypted(s string) bool {
	return envelopeShape.MatchString(s)
}

// Encrypt seals plaintext into an envelope. Input that already looks like an
// envelope is returned unchanged, preventing double-encryption on repeated
// writes.
func (c *EnvelopeCipher) Encrypt(plaintext string) (string, error) {
	if c.IsEncrypted(plaintext) {
		return plaintext, nil
	}

	salt := make([]byte, cipherSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", apperror.Encryption(fmt.Errorf("generating salt: %w", err))
	}
	iv := make([]byte, cipherIVLen)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", apperror.Encryption(fmt.Errorf("generating iv: %w", err))
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", apperror.Encryption(err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	// GCM appends the authentication tag to the ciphertext.
	ct, tag := sealed[:len(sealed)-cipherTagLen], sealed[len(sealed)-cipherTagLen:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens an envelope. Malformed envelopes and failed tag verification
// (tamper or corruption) both yield a decryption error.
func (c *EnvelopeCipher) Decrypt(envelope string) (string, error) {
	if !c.IsEncrypted(envelope) {
		return "", apperror.Decryption(fmt.Errorf("malformed envelope"))
	}

	parts := strings.Split(envelope, ":")
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", apperror.Decryption(fmt.Errorf("decoding salt: %w", err))
	}
	iv, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", apperror.Decryption(fmt.Errorf("decoding iv: %w", err))
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", apperror.Decryption(fmt.Errorf("decoding tag: %w", err))
	}
	ct, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", apperror.Decryption(fmt.Errorf("decoding ciphertext: %w", err))
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", apperror.Decryption(err)
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", apperror.Decryption(fmt.Errorf("authentication failed: %w", err))
	}
	return string(plaintext), nil
}

// aead derives the per-call key and builds the AES-256-GCM AEAD.
func (c *EnvelopeCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(c.master, salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aead, nil
}

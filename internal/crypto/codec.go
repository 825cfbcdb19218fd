// Package crypto encrypts provider access tokens at rest.
//
// Each value is sealed with AES-256-GCM under a key derived from the
// configured secret with PBKDF2-SHA512 and a fresh random salt. The stored
// form is "salt:iv:tag:ciphertext" with every part hex encoded.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 64
	ivLength   = 16
	tagLength  = 16
	keyLength  = 32
	iterations = 100000
)

var (
	// ErrMalformedCiphertext is returned when a stored value is not four hex parts.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrAuthenticationFailure is returned when the GCM tag does not verify,
	// either because the value was altered or the secret is wrong.
	ErrAuthenticationFailure = errors.New("ciphertext authentication failed")
	// ErrEmptySecret is returned by NewCodec for an empty secret.
	ErrEmptySecret = errors.New("encryption secret must not be empty")
)

// Codec encrypts and decrypts strings with a fixed secret.
type Codec struct {
	secret []byte
}

// NewCodec returns a Codec for the given secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext and returns "salt:iv:tag:ciphertext" in hex.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	body, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(body),
	}, ":"), nil
}

// Decrypt reverses Encrypt.
func (c *Codec) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 4 {
		return "", ErrMalformedCiphertext
	}

	decoded := make([][]byte, len(parts))
	for i, p := range parts {
		b, err := hex.DecodeString(p)
		if err != nil {
			return "", ErrMalformedCiphertext
		}
		decoded[i] = b
	}
	salt, iv, tag, body := decoded[0], decoded[1], decoded[2], decoded[3]
	if len(salt) == 0 || len(iv) != ivLength || len(tag) != tagLength {
		return "", ErrMalformedCiphertext
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, iv, append(body, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailure
	}
	return string(plaintext), nil
}

func (c *Codec) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, salt, iterations, keyLength, sha512.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}

package fetch

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// Encrypted document envelope: magic || 16-byte salt || 12-byte nonce || ciphertext.
// The key is derived from the password with PBKDF2-SHA256.
var envelopeMagic = []byte("FBENC1")

const (
	saltLen       = 16
	nonceLen      = 12
	keyLen        = 32
	pbkdf2Iters   = 10000
	minEnvelopeSz = 6 + saltLen + nonceLen + 16
)

// IsEnvelope reports whether data starts with the encrypted-document magic.
func IsEnvelope(data []byte) bool {
	return len(data) >= len(envelopeMagic) && bytes.Equal(data[:len(envelopeMagic)], envelopeMagic)
}

// Encrypt wraps plaintext in the envelope format using the given password.
func Encrypt(plaintext []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, minEnvelopeSz+len(plaintext))
	out = append(out, envelopeMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt unwraps an envelope produced by Encrypt.
func Decrypt(data []byte, password string) ([]byte, error) {
	if !IsEnvelope(data) {
		return nil, fmt.Errorf("not an encrypted document envelope")
	}
	if len(data) < minEnvelopeSz {
		return nil, fmt.Errorf("envelope truncated (%d bytes)", len(data))
	}
	rest := data[len(envelopeMagic):]
	salt := rest[:saltLen]
	nonce := rest[saltLen : saltLen+nonceLen]
	ciphertext := rest[saltLen+nonceLen:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt document: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iters, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// decryptToTemp decrypts the envelope at path into a fresh temp file.
func decryptToTemp(path, password string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	plaintext, err := Decrypt(data, password)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "flipbook-dec-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(plaintext); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Package crypt provides the cryptographic primitives for opensig:
// SHA-256 hashing of buffers and files, and an AES-GCM cipher keyed by a
// document's 32-byte hash for annotation encryption.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// NonceSize is the AES-GCM nonce length prepended to every ciphertext.
const NonceSize = 12

// KeySize is the required symmetric key length in bytes.
const KeySize = 32

// Errors
var (
	ErrInvalidKeyLength  = errors.New("crypt: key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("crypt: ciphertext shorter than nonce")
)

// Hash returns the SHA-256 digest of data.
func Hash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashFile returns the SHA-256 digest of a file's raw bytes.
func HashFile(path string) ([32]byte, error) {
	var digest [32]byte

	f, err := os.Open(path)
	if err != nil {
		return digest, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return digest, fmt.Errorf("hash file: %w", err)
	}

	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// EncryptionKey wraps a 32-byte secret as an AES-GCM key. For opensig the
// secret is the document hash, so anyone holding the document can decrypt
// its annotations. The cipher is constructed once on first use; concurrent
// callers share the same import.
type EncryptionKey struct {
	secret  [32]byte
	once    sync.Once
	aead    cipher.AEAD
	initErr error
}

// NewEncryptionKey creates a key from a 32-byte secret.
func NewEncryptionKey(secret []byte) (*EncryptionKey, error) {
	if len(secret) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	k := &EncryptionKey{}
	copy(k.secret[:], secret)
	return k, nil
}

// cipher returns the cached AEAD, importing the key exactly once.
func (k *EncryptionKey) cipher() (cipher.AEAD, error) {
	k.once.Do(func() {
		block, err := aes.NewCipher(k.secret[:])
		if err != nil {
			k.initErr = fmt.Errorf("import key: %w", err)
			return
		}
		k.aead, k.initErr = cipher.NewGCM(block)
	})
	return k.aead, k.initErr
}

// Encrypt seals plaintext with a fresh random 12-byte nonce and returns
// nonce || ciphertext || tag.
func (k *EncryptionKey) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := k.cipher()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt. It fails if the data is truncated,
// was sealed under a different key, or fails authentication.
func (k *EncryptionKey) Decrypt(data []byte) ([]byte, error) {
	aead, err := k.cipher()
	if err != nil {
		return nil, err
	}

	if len(data) < NonceSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aead.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

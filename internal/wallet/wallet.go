// Package wallet manages the secp256k1 key used to publish signatures.
// Keys are stored either as a plain hex file or in a passphrase-protected
// envelope encrypted with AES-GCM under a scrypt-derived key.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/scrypt"
)

// Errors
var (
	ErrInvalidKeyFile    = errors.New("wallet: invalid key file")
	ErrWrongPassphrase   = errors.New("wallet: wrong passphrase")
	ErrPassphraseMissing = errors.New("wallet: key is encrypted (passphrase required)")
)

// envelopeVersion is the encrypted key file format version.
const envelopeVersion = 1

// scrypt parameters for the key-encryption key.
const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// envelope is the on-disk form of a passphrase-protected key.
type envelope struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Generate creates a fresh secp256k1 private key.
func Generate() (*ecdsa.PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// Address returns the Ethereum address controlled by the key.
func Address(key *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// Load reads a private key from file. Plain hex files load directly; an
// encrypted envelope returns ErrPassphraseMissing so the caller can prompt
// and retry with LoadWithPassphrase.
func Load(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	if isEnvelope(data) {
		return nil, ErrPassphraseMissing
	}

	key, err := crypto.HexToECDSA(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	return key, nil
}

// LoadWithPassphrase reads and decrypts a passphrase-protected key file.
func LoadWithPassphrase(path string, passphrase []byte) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidKeyFile, env.Version)
	}

	salt, err := hex.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad salt", ErrInvalidKeyFile)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: bad nonce", ErrInvalidKeyFile)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrInvalidKeyFile)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	raw, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	return key, nil
}

// Save writes a private key to path. An empty passphrase writes a plain
// hex file; otherwise the key is wrapped in an encrypted envelope.
func Save(path string, key *ecdsa.PrivateKey, passphrase []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	if len(passphrase) == 0 {
		data := hex.EncodeToString(crypto.FromECDSA(key)) + "\n"
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
		return nil
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	env := envelope{
		Version:    envelopeVersion,
		Address:    Address(key),
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(aead.Seal(nil, nonce, crypto.FromECDSA(key), nil)),
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode key envelope: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}

// IsEncrypted reports whether the key file at path is an encrypted
// envelope.
func IsEncrypted(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read key: %w", err)
	}
	return isEnvelope(data), nil
}

func isEnvelope(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}

func newAEAD(passphrase, salt []byte) (cipher.AEAD, error) {
	derived, err := scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}

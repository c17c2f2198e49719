// Package crypto provides API secret storage and HMAC request signing for
// the venue REST API.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 480_000
	saltLen       = 16
	keyLen        = 32 // AES-256
	secretVersion = 1
)

var errNoPassword = errors.New("crypto: password must not be empty")

// sealedSecret is the on-disk JSON form of an encrypted API secret. The byte
// fields are base64 in the file.
type sealedSecret struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// SecretConfig says where LoadSecret finds the API secret.
type SecretConfig struct {
	Raw           string // plaintext, wins when set
	EncryptedPath string // file written by EncryptSecret
	Password      string
}

// aead derives the AES-GCM cipher for password and salt.
func aead(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: gcm: %w", err)
	}
	return gcm, nil
}

// EncryptSecret seals secret with a PBKDF2-SHA256 derived AES-256-GCM key
// and returns the indented JSON file contents.
func EncryptSecret(secret, password string) ([]byte, error) {
	if password == "" {
		return nil, errNoPassword
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("crypto: secret must not be empty")
	}

	s := sealedSecret{Version: secretVersion, Salt: make([]byte, saltLen)}
	if _, err := rand.Read(s.Salt); err != nil {
		return nil, fmt.Errorf("crypto: salt: %w", err)
	}
	gcm, err := aead(password, s.Salt)
	if err != nil {
		return nil, err
	}
	s.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(s.Nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	s.Ciphertext = gcm.Seal(nil, s.Nonce, []byte(secret), nil)
	return json.MarshalIndent(s, "", "  ")
}

// DecryptSecret opens file contents produced by EncryptSecret. A wrong
// password fails GCM authentication.
func DecryptSecret(data []byte, password string) (string, error) {
	if password == "" {
		return "", errNoPassword
	}
	var s sealedSecret
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("crypto: parse sealed secret: %w", err)
	}
	if s.Version != secretVersion {
		return "", fmt.Errorf("crypto: unsupported sealed secret version %d", s.Version)
	}
	gcm, err := aead(password, s.Salt)
	if err != nil {
		return "", err
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("crypto: nonce is %d bytes, want %d", len(s.Nonce), gcm.NonceSize())
	}
	plain, err := gcm.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open sealed secret (wrong password?): %w", err)
	}
	return string(plain), nil
}

// LoadSecret returns cfg.Raw if set, otherwise decrypts cfg.EncryptedPath.
func LoadSecret(cfg SecretConfig) (string, error) {
	switch {
	case cfg.Raw != "":
		return strings.TrimSpace(cfg.Raw), nil
	case cfg.EncryptedPath != "":
		data, err := os.ReadFile(cfg.EncryptedPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read sealed secret: %w", err)
		}
		return DecryptSecret(data, cfg.Password)
	default:
		return "", errors.New("crypto: no API secret configured")
	}
}

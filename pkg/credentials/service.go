// Package credentials encrypts connection credentials at rest.
package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/relay/pkg/models"
	"github.com/dukex/relay/pkg/protocol"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/chacha20poly1305"
)

const prefix = "v1:"

var (
	ErrInvalidKey       = errors.New("credentials key must be 32 bytes, base64 encoded")
	ErrDecryptionFailed = errors.New("credentials could not be decrypted")
	ErrNoCredentialsSet = errors.New("connection has no credentials")
)

// Service seals credentials with XChaCha20-Poly1305. Data is always sealed with
// the primary key; fallback keys are tried on decrypt so keys can be rotated.
type Service struct {
	logger   *slog.Logger
	primary  []byte
	fallback [][]byte
}

var _ protocol.CredentialService = (*Service)(nil)

// NewService builds a service from base64 encoded 32 byte keys.
func NewService(logger *slog.Logger, primaryKey string, fallbackKeys ...string) (*Service, error) {
	primary, err := decodeKey(primaryKey)
	if err != nil {
		return nil, err
	}

	s := &Service{
		logger:  logger.With("module", "credentials"),
		primary: primary,
	}

	for _, k := range fallbackKeys {
		if strings.TrimSpace(k) == "" {
			continue
		}

		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key: %w", err)
		}

		s.fallback = append(s.fallback, key)
	}

	return s, nil
}

// GenerateKey returns a new random key in the encoding NewService accepts.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}

	return key, nil
}

func (s *Service) Encrypt(plaintext string) (string, bool) {
	aead, err := chacha20poly1305.NewX(s.primary)
	if err != nil {
		s.logger.Error("failed to create cipher", "error", err)

		return "", false
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		s.logger.Error("failed to generate nonce", "error", err)

		return "", false
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return prefix + base64.StdEncoding.EncodeToString(sealed), true
}

func (s *Service) Decrypt(ciphertext string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefix))
	if err != nil {
		return "", false
	}

	for _, key := range append([][]byte{s.primary}, s.fallback...) {
		if plaintext, ok := open(key, raw); ok {
			return plaintext, true
		}
	}

	return "", false
}

func open(key, raw []byte) (string, bool) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil || len(raw) < aead.NonceSize() {
		return "", false
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}

// Seal encrypts a credentials map into the form stored on a Connection.
func Seal(svc protocol.CredentialService, values map[string]any) (string, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return "", err
	}

	sealed, ok := svc.Encrypt(string(payload))
	if !ok {
		return "", errors.New("credentials could not be encrypted")
	}

	return sealed, nil
}

// Open decrypts the credentials of conn.
func Open(svc protocol.CredentialService, conn *models.Connection) (map[string]any, error) {
	if conn.EncryptedCredentials == "" {
		return nil, ErrNoCredentialsSet
	}

	plaintext, ok := svc.Decrypt(conn.EncryptedCredentials)
	if !ok {
		return nil, ErrDecryptionFailed
	}

	var values map[string]any
	if err := json.Unmarshal([]byte(plaintext), &values); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}

	return values, nil
}

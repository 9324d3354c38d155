// Package secrets implements the device credential scheme: master
// secrets stored AES-256-GCM encrypted under a PBKDF2-derived key, and
// per-device MQTT passwords derived by HMAC so the broker password is
// never persisted.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// AlgoAESGCM is recorded on each device row so stored secrets
	// survive a future algorithm change.
	AlgoAESGCM = "aes-256-gcm"

	pbkdf2Iterations = 100000
	keyLength        = 32
	saltLength       = 16
	mqttPasswordLen  = 12
)

// Cipher encrypts and decrypts device master secrets under a
// deployment-wide master key.
type Cipher struct {
	masterKey []byte
}

func NewCipher(masterKey string) (*Cipher, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("secrets: master key is empty")
	}
	return &Cipher{masterKey: []byte(masterKey)}, nil
}

// GenerateSecret produces a fresh random master secret for a device.
func GenerateSecret() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("secrets: generate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Encrypt seals plaintext as base64(salt || nonce || ciphertext). The
// AES key is derived per encryption with a random salt.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("secrets: salt: %w", err)
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secrets: decode: %w", err)
	}
	if len(raw) < saltLength {
		return "", fmt.Errorf("secrets: ciphertext too short")
	}

	salt := raw[:saltLength]
	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	rest := raw[saltLength:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("secrets: ciphertext too short")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (c *Cipher) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.masterKey, salt, pbkdf2Iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: gcm: %w", err)
	}
	return gcm, nil
}

// DeriveMQTTPassword computes the broker password for a device: the
// first 12 characters of base64(HMAC-SHA256(masterSecret, serial)).
// The same derivation runs on the device firmware.
func DeriveMQTTPassword(masterSecret, serial string) string {
	mac := hmac.New(sha256.New, []byte(masterSecret))
	mac.Write([]byte(serial))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return digest[:mqttPasswordLen]
}

// MQTTClientID builds the broker client id for a device.
func MQTTClientID(typeCode, serial string) string {
	return fmt.Sprintf("%s&%s", typeCode, serial)
}

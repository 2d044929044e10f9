// Package vault provides the crypto and integrity primitives for the encrypted
// template store: local symmetric key lifecycle, authenticated encryption of the
// serialized database, and tamper-detection hashes over face templates.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrDecryption indicates the ciphertext could not be authenticated and decrypted.
// Wrong key, truncated data and tag mismatch all surface as this error.
var ErrDecryption = errors.New("vault: decryption failed")

// GetOrCreateKey loads the hex-encoded key from path if it exists, otherwise
// generates a fresh random key, persists it with restrictive permissions and
// returns it. An existing key file is never overwritten - losing the key makes
// the store permanently undecryptable, so regeneration must stay explicit.
func GetOrCreateKey(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, decErr := hex.DecodeString(strings.TrimSpace(string(raw)))
		if decErr != nil {
			return nil, fmt.Errorf("failed to decode key file %s: %w", path, decErr)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("invalid key length %d in %s, want %d", len(key), path, KeySize)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return key, nil
}

// Encrypt seals plaintext with AES-256-GCM. The random nonce is prepended to
// the ciphertext so the output is self-contained.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. It never returns partial
// plaintext: any authentication failure yields ErrDecryption.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecryption)
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return plaintext, nil
}

// HashTemplate computes the tamper-detection digest of a face template:
// SHA-256 over the comma-joined decimal rendering of the values. The digest is
// order-sensitive and deterministic for bit-identical templates. It plays no
// role in identity matching.
func HashTemplate(template []float32) string {
	var sb strings.Builder
	for i, v := range template {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

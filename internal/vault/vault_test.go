package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGetOrCreateKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys", "encryption.key")

	key, err := GetOrCreateKey(path)
	if err != nil {
		t.Fatalf("GetOrCreateKey failed: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("key length = %d, want %d", len(key), KeySize)
	}

	// Second call must return the persisted key verbatim, never regenerate.
	again, err := GetOrCreateKey(path)
	if err != nil {
		t.Fatalf("GetOrCreateKey second call failed: %v", err)
	}
	if !bytes.Equal(key, again) {
		t.Error("key changed between calls")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file permissions = %o, want 600", perm)
	}
}

func TestGetOrCreateKeyRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "encryption.key")
	if err := os.WriteFile(path, []byte("not-hex!"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := GetOrCreateKey(path); err == nil {
		t.Error("expected error for corrupt key file")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hello")},
		{"json blob", []byte(`{"persons":[{"id":"p1","name":"Alice"}]}`)},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := Encrypt(tt.plaintext, key)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if bytes.Contains(ct, tt.plaintext) && len(tt.plaintext) > 0 {
				t.Error("ciphertext contains plaintext")
			}

			pt, err := Decrypt(ct, key)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if !bytes.Equal(pt, tt.plaintext) {
				t.Errorf("round trip mismatch: got %q, want %q", pt, tt.plaintext)
			}
		})
	}
}

func TestDecryptFailures(t *testing.T) {
	key := make([]byte, KeySize)
	wrongKey := make([]byte, KeySize)
	wrongKey[0] = 1

	ct, err := Encrypt([]byte("secret payload"), key)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		ciphertext []byte
		key        []byte
	}{
		{"wrong key", ct, wrongKey},
		{"truncated", ct[:len(ct)-5], key},
		{"shorter than nonce", ct[:4], key},
		{"flipped bit", flipBit(ct), key},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decrypt(tt.ciphertext, tt.key)
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("error = %v, want ErrDecryption", err)
			}
			if out != nil {
				t.Error("Decrypt returned data on failure")
			}
		})
	}
}

func flipBit(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	out[len(out)-1] ^= 0x01
	return out
}

func TestHashTemplate(t *testing.T) {
	a := []float32{0.1, 0.2, 0.3}
	b := []float32{0.1, 0.2, 0.3}
	c := []float32{0.3, 0.2, 0.1}

	if HashTemplate(a) != HashTemplate(b) {
		t.Error("identical templates produced different hashes")
	}
	if HashTemplate(a) == HashTemplate(c) {
		t.Error("reordered template produced the same hash")
	}
	if HashTemplate(a) == HashTemplate(a[:2]) {
		t.Error("truncated template produced the same hash")
	}
	if len(HashTemplate(nil)) != 64 {
		t.Error("expected 64 hex chars for empty template")
	}
}

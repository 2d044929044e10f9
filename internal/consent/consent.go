// Package consent records and checks the user's consent to local face
// processing. Enrollment and matching front-ends are expected to refuse to
// run without a granted consent record.
package consent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const privacyNotice = "Face data is processed locally and encrypted. No data is transmitted externally."

// Record is the persisted consent decision.
type Record struct {
	Consented     bool      `json:"consented"`
	Timestamp     time.Time `json:"timestamp"`
	PrivacyNotice string    `json:"privacy_notice"`
}

// Save writes the consent decision to path.
func Save(path string, consented bool) error {
	rec := Record{
		Consented:     consented,
		Timestamp:     time.Now().UTC(),
		PrivacyNotice: privacyNotice,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize consent record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create consent directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write consent record: %w", err)
	}
	return nil
}

// Load reads the consent record at path. A missing file is not an error; it
// returns a zero Record with Consented false.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("failed to read consent record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to parse consent record: %w", err)
	}
	return rec, nil
}

// Granted reports whether a valid positive consent record exists at path.
func Granted(path string) bool {
	rec, err := Load(path)
	if err != nil {
		return false
	}
	return rec.Consented && !rec.Timestamp.IsZero()
}

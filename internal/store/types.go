// Package store persists enrolled face templates as a single encrypted blob
// with per-record tamper detection, and maintains an in-memory HNSW index over
// the templates for nearest-neighbor diagnostics.
package store

import (
	"errors"
	"time"
)

// SchemaVersion is the implicit version written into every serialized database.
const SchemaVersion = 1

var (
	// ErrDuplicateID is returned when enrolling a person whose ID already exists.
	ErrDuplicateID = errors.New("store: person id already exists")

	// ErrNotFound is returned when updating or looking up an absent person.
	ErrNotFound = errors.New("store: person not found")

	// ErrCorruptStore marks a blob that decrypted but failed to deserialize.
	ErrCorruptStore = errors.New("store: corrupt database payload")
)

// PersonRecord is the unit of identity in the store. Template holds the
// averaged, augmented enrollment template, never a raw capture. IntegrityHash
// is recomputed on every template mutation and checked against the template on
// integrity sweeps.
type PersonRecord struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Template            []float32 `json:"template"`
	QualityScore        float64   `json:"quality_score"`
	TrainingSampleCount int       `json:"training_sample_count"`
	CreatedAt           time.Time `json:"created_at"`
	IntegrityHash       string    `json:"integrity_hash"`
}

// FaceDatabase is the full person collection, persisted as one encrypted blob.
// Order is irrelevant for matching but preserved for display.
type FaceDatabase struct {
	Version int            `json:"version"`
	Persons []PersonRecord `json:"persons"`
}

// Update describes a partial mutation of a person record. A nil field is left
// untouched. Replacing the template also replaces quality score and sample
// count, and forces an integrity hash recompute.
type Update struct {
	Name                *string
	Template            []float32
	QualityScore        *float64
	TrainingSampleCount *int
}

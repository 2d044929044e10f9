package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tomas/secureface/internal/logging"
	"github.com/tomas/secureface/internal/vault"
)

// Store owns the encrypted database file, its backups and the in-memory
// snapshot. A single mutex serializes every operation; the store supports one
// logical owner and no concurrent multi-process access.
type Store struct {
	mu        sync.Mutex
	dataFile  string
	backupDir string
	key       []byte
	log       *zap.Logger
	db        FaceDatabase
	index     *TemplateIndex
}

// New creates a store over the given encrypted data file. The key must come
// from vault.GetOrCreateKey. No I/O happens until Load or the first mutation.
func New(dataFile, backupDir string, key []byte, logger *zap.Logger) *Store {
	return &Store{
		dataFile:  dataFile,
		backupDir: backupDir,
		key:       key,
		log:       logging.OrNop(logger).Named("database"),
		db:        FaceDatabase{Version: SchemaVersion},
		index:     NewTemplateIndex(),
	}
}

// Load reads, decrypts and deserializes the database file. A missing file is
// a fresh install. Decryption or deserialization failures degrade to an empty
// database with a logged error - the system operates as "no known persons"
// rather than crash on a corrupted store.
func (s *Store) Load() FaceDatabase {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.loadLocked()
	if err != nil {
		s.log.Error("failed to load face database, starting empty", zap.Error(err))
		db = FaceDatabase{Version: SchemaVersion}
	}
	s.db = db
	s.rebuildIndexLocked()
	return copyDatabase(s.db)
}

func (s *Store) loadLocked() (FaceDatabase, error) {
	blob, err := os.ReadFile(s.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return FaceDatabase{Version: SchemaVersion}, nil
		}
		return FaceDatabase{}, fmt.Errorf("failed to read store file: %w", err)
	}

	plaintext, err := vault.Decrypt(blob, s.key)
	if err != nil {
		return FaceDatabase{}, err
	}

	var db FaceDatabase
	if err := json.Unmarshal(plaintext, &db); err != nil {
		return FaceDatabase{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if db.Version == 0 {
		db.Version = SchemaVersion
	}
	return db, nil
}

// Save serializes and encrypts the full database, atomically replaces the
// store file and triggers a backup snapshot. Backup failure is logged but
// never fails the primary save.
func (s *Store) Save(db FaceDatabase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked(db)
}

func (s *Store) saveLocked(db FaceDatabase) error {
	db.Version = SchemaVersion
	blob, err := s.encodeLocked(db)
	if err != nil {
		return err
	}

	if err := writeFileAtomic(s.dataFile, blob); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}

	s.db = copyDatabase(db)
	s.rebuildIndexLocked()
	s.log.Info("saved face database", zap.Int("persons", len(db.Persons)))

	if _, err := s.createBackupLocked(db); err != nil {
		s.log.Named("backup").Error("backup failed", zap.Error(err))
	}
	return nil
}

func (s *Store) encodeLocked(db FaceDatabase) ([]byte, error) {
	plaintext, err := json.Marshal(db)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize database: %w", err)
	}
	blob, err := vault.Encrypt(plaintext, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt database: %w", err)
	}
	return blob, nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so a failed write never destroys the previous file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// AddPerson appends a new enrolled person and persists. Duplicate IDs are
// rejected with ErrDuplicateID.
func (s *Store) AddPerson(rec PersonRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.db.Persons {
		if s.db.Persons[i].ID == rec.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
		}
	}

	db := copyDatabase(s.db)
	db.Persons = append(db.Persons, rec)
	if err := s.saveLocked(db); err != nil {
		return err
	}
	s.log.Info("added person", zap.String("id", rec.ID), zap.String("name", rec.Name),
		zap.Float64("quality_score", rec.QualityScore))
	return nil
}

// UpdatePerson merges the update into the record with the given ID and
// persists. The integrity hash is recomputed whenever the template changes.
// CreatedAt is never mutated.
func (s *Store) UpdatePerson(id string, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := copyDatabase(s.db)
	idx := -1
	for i := range db.Persons {
		if db.Persons[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := &db.Persons[idx]
	if update.Name != nil {
		rec.Name = *update.Name
	}
	if update.Template != nil {
		rec.Template = append([]float32(nil), update.Template...)
		rec.IntegrityHash = vault.HashTemplate(rec.Template)
	}
	if update.QualityScore != nil {
		rec.QualityScore = *update.QualityScore
	}
	if update.TrainingSampleCount != nil {
		rec.TrainingSampleCount = *update.TrainingSampleCount
	}

	if err := s.saveLocked(db); err != nil {
		return err
	}
	s.log.Info("updated person", zap.String("id", id))
	return nil
}

// RemovePerson deletes the record with the given ID and persists. A missing
// ID is a no-op returning false, not an error.
func (s *Store) RemovePerson(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := copyDatabase(s.db)
	kept := db.Persons[:0]
	removed := false
	for _, p := range db.Persons {
		if p.ID == id {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	if !removed {
		return false, nil
	}
	db.Persons = kept

	if err := s.saveLocked(db); err != nil {
		return false, err
	}
	s.log.Info("removed person", zap.String("id", id))
	return true, nil
}

// ListPersons returns a copy of all records in display order.
func (s *Store) ListPersons() []PersonRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDatabase(s.db).Persons
}

// GetPerson returns the record with the given ID.
func (s *Store) GetPerson(id string) (PersonRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.db.Persons {
		if s.db.Persons[i].ID == id {
			return copyRecord(s.db.Persons[i]), nil
		}
	}
	return PersonRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// FindByName returns all records whose name matches the query after case
// folding and diacritics removal ("jiri" finds "Jiří").
func (s *Store) FindByName(query string) []PersonRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := NormalizePersonName(query)
	var out []PersonRecord
	for i := range s.db.Persons {
		if NormalizePersonName(s.db.Persons[i].Name) == want {
			out = append(out, copyRecord(s.db.Persons[i]))
		}
	}
	return out
}

// Count returns the number of enrolled persons.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.db.Persons)
}

// ValidateIntegrity recomputes the template hash of every record and compares
// it to the stored one. Every mismatch is logged with its record ID - the
// sweep is total, it never stops at the first discrepancy. Returns true only
// when all records verify.
func (s *Store) ValidateIntegrity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := true
	for i := range s.db.Persons {
		p := &s.db.Persons[i]
		if vault.HashTemplate(p.Template) != p.IntegrityHash {
			s.log.Error("integrity check failed", zap.String("id", p.ID))
			ok = false
		}
	}
	return ok
}

// CreateBackup writes a timestamped encrypted snapshot of db to the backup
// directory and returns its path.
func (s *Store) CreateBackup(db FaceDatabase) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBackupLocked(db)
}

func (s *Store) createBackupLocked(db FaceDatabase) (string, error) {
	if s.backupDir == "" {
		return "", errors.New("store: no backup directory configured")
	}
	if err := os.MkdirAll(s.backupDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	blob, err := s.encodeLocked(db)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("face_data_backup_%s.enc", time.Now().Format("20060102_150405"))
	path := filepath.Join(s.backupDir, name)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	s.log.Named("backup").Info("face data backed up", zap.String("path", path))
	return path, nil
}

// PersistIndex writes the HNSW index to path, for inspection or warm starts
// by external tooling. The index is always rebuilt from the database on load,
// so a stale or missing file is harmless.
func (s *Store) PersistIndex(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.SetPath(path)
	return s.index.Save()
}

// FindSimilar returns the k nearest stored templates to the query by cosine
// distance, using the HNSW index. Diagnostic only - the matching engine's
// accept/reject decision is the exhaustive scan in the match package.
func (s *Store) FindSimilar(query []float32, k int) ([]Neighbor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Search(query, k)
}

func (s *Store) rebuildIndexLocked() {
	if err := s.index.BuildFromPersons(s.db.Persons); err != nil {
		s.log.Error("failed to rebuild template index", zap.Error(err))
	}
}

func copyDatabase(db FaceDatabase) FaceDatabase {
	out := FaceDatabase{Version: db.Version}
	if db.Persons != nil {
		out.Persons = make([]PersonRecord, len(db.Persons))
		for i := range db.Persons {
			out.Persons[i] = copyRecord(db.Persons[i])
		}
	}
	return out
}

func copyRecord(p PersonRecord) PersonRecord {
	p.Template = append([]float32(nil), p.Template...)
	return p
}

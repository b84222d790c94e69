package license

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ErrCorruptRecord is returned by Load when the stored document exists but
// cannot be trusted. Callers treat it as "no license".
var ErrCorruptRecord = errors.New("license record is corrupt")

// Store is a durable single-record slot.
type Store interface {
	// Load returns (nil, nil) when no record has ever been saved.
	Load() (*Record, error)
	// Save atomically replaces the stored record.
	Save(r *Record) error
	// Clear removes the stored record. Clearing an empty store is not an error.
	Clear() error
}

// storedRecord is the on-disk layout: the flat record plus an optional
// integrity tag over the record bytes.
type storedRecord struct {
	Record
	Signature string `json:"signature,omitempty"`
}

// FileStore keeps the record as one JSON document at a fixed path. Writes go
// to a temp file in the same directory and are renamed into place.
type FileStore struct {
	path string
	mac  []byte
	mu   sync.Mutex
}

// NewFileStore creates a store at path. When secret is non-empty every
// document carries an HMAC-SHA256 tag keyed from secret, and a document
// whose tag does not verify is reported as corrupt.
func NewFileStore(path string, secret []byte) (*FileStore, error) {
	fs := &FileStore{path: path}
	if len(secret) > 0 {
		key := make([]byte, sha256.Size)
		kdf := hkdf.New(sha256.New, secret, []byte("wabot-license-record"), []byte("record-signature-v1"))
		if _, err := io.ReadFull(kdf, key); err != nil {
			return nil, fmt.Errorf("failed to derive record key: %w", err)
		}
		fs.mac = key
	}
	return fs, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads the stored record. An expired record is returned as-is.
func (s *FileStore) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read license record: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrCorruptRecord)
	}

	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if stored.Key == "" {
		return nil, fmt.Errorf("%w: missing key", ErrCorruptRecord)
	}
	if s.mac != nil {
		want, err := s.sign(&stored.Record)
		if err != nil {
			return nil, err
		}
		if !hmac.Equal([]byte(want), []byte(stored.Signature)) {
			return nil, fmt.Errorf("%w: signature mismatch", ErrCorruptRecord)
		}
	}

	r := stored.Record
	return &r, nil
}

// Save writes r via temp file and rename so readers never observe a partial
// document.
func (s *FileStore) Save(r *Record) error {
	if r == nil {
		return errors.New("cannot save nil license record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := storedRecord{Record: *r}
	if s.mac != nil {
		sig, err := s.sign(r)
		if err != nil {
			return err
		}
		stored.Signature = sig
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license record: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create license directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".license-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write license record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync license record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close license record: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("failed to set license record permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace license record: %w", err)
	}
	return nil
}

// Clear removes the document.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove license record: %w", err)
	}
	return nil
}

func (s *FileStore) sign(r *Record) (string, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal license record: %w", err)
	}
	h := hmac.New(sha256.New, s.mac)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

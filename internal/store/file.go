package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kozaktomas/rollcall/internal/names"
)

// ErrStoreMissing is returned when opening a store file that does not exist.
// Recognition cannot run without an enrollment store, so callers treat this
// as fatal.
var ErrStoreMissing = errors.New("encoding store not found")

// FileStore is a gob-backed encoding store. The whole record set is held
// in memory and written back atomically on every mutation.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]Encoding
}

// OpenFile opens an existing store file. Returns ErrStoreMissing if the
// file does not exist.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, byID: make(map[int64]Encoding), nextID: 1}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrStoreMissing, path)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateFile opens a store file for writing, creating it if missing.
func CreateFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, byID: make(map[int64]Encoding), nextID: 1}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var encodings []Encoding
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&encodings); err != nil {
		return fmt.Errorf("failed to decode store file: %w", err)
	}

	for _, enc := range encodings {
		s.byID[enc.ID] = enc
		if enc.ID >= s.nextID {
			s.nextID = enc.ID + 1
		}
	}
	return nil
}

// flush writes the full record set to disk. Writes go through a temp file
// and rename so a crash never leaves a truncated store behind.
func (s *FileStore) flush() error {
	encodings := make([]Encoding, 0, len(s.byID))
	for _, enc := range s.byID {
		encodings = append(encodings, enc)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(encodings); err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// List returns all enrolled encodings.
func (s *FileStore) List(ctx context.Context) ([]Encoding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	encodings := make([]Encoding, 0, len(s.byID))
	for _, enc := range s.byID {
		encodings = append(encodings, enc)
	}
	return encodings, nil
}

// GetByLabel retrieves all encodings for a label.
func (s *FileStore) GetByLabel(ctx context.Context, label string) ([]Encoding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encodings []Encoding
	for _, enc := range s.byID {
		if enc.Label == label {
			encodings = append(encodings, enc)
		}
	}
	return encodings, nil
}

// Has checks if any encoding exists for the given label.
func (s *FileStore) Has(ctx context.Context, label string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, enc := range s.byID {
		if enc.Label == label {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the total number of encodings stored.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Save stores encodings, replacing existing ones from the same
// (label, source path) pair.
func (s *FileStore) Save(ctx context.Context, encodings []Encoding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, enc := range encodings {
		for id, existing := range s.byID {
			if existing.Label == enc.Label && existing.SourcePath == enc.SourcePath {
				delete(s.byID, id)
			}
		}
		enc.ID = s.nextID
		s.nextID++
		s.byID[enc.ID] = enc
	}

	return s.flush()
}

// DeleteByLabel removes all encodings whose label matches after
// normalization. Labels derived from file names ("jan_novak") and registry
// display names ("Jan Novák") refer to the same person.
func (s *FileStore) DeleteByLabel(ctx context.Context, label string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := names.Normalize(label)
	removed := 0
	for id, enc := range s.byID {
		if names.Normalize(enc.Label) == want {
			delete(s.byID, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.flush()
}

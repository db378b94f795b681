// Package session persists the local session record and hands its token to
// authenticated calls.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"okr-go/internal/okr"
)

// ItemKey is the local-storage key holding the session record.
const ItemKey = "session"

var (
	_ okr.SessionStore = (*FileStore)(nil)
	_ okr.SessionStore = (*SealedStore)(nil)
	_ okr.SessionStore = (*ItemStoreAdapter)(nil)
	_ okr.SessionStore = (*MemoryStore)(nil)
)

// FileStore keeps the record as JSON in a single file readable only by the
// owner.
type FileStore struct {
	path string
}

// NewFileStore returns a store keeping the record as JSON at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Set writes the record, replacing any previous one atomically.
func (s *FileStore) Set(sess okr.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Get reads the record. A missing file is the zero Session.
func (s *FileStore) Get() (okr.Session, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return okr.Session{}, nil
	}
	if err != nil {
		return okr.Session{}, fmt.Errorf("reading session: %w", err)
	}
	return decode(data)
}

// Remove deletes the file. A missing file is not an error.
func (s *FileStore) Remove() error {
	return removeFile(s.path)
}

// SealedStore is a FileStore whose bytes at rest are sealed by an
// okr.Sealer. The sealer key is generated on first write when missing.
type SealedStore struct {
	path   string
	sealer okr.Sealer
}

// NewSealedStore returns a store keeping the record at path, sealed by sealer.
func NewSealedStore(path string, sealer okr.Sealer) *SealedStore {
	return &SealedStore{path: path, sealer: sealer}
}

// Set seals and writes the record, generating the identity on first use.
func (s *SealedStore) Set(sess okr.Session) error {
	if !s.sealer.IsConfigured() {
		if err := s.sealer.Setup(); err != nil {
			return fmt.Errorf("setting up session key: %w", err)
		}
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	var sealed bytes.Buffer
	if err := s.sealer.Seal(bytes.NewReader(data), &sealed); err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}
	return writeFileAtomic(s.path, sealed.Bytes())
}

// Get opens the record. A missing file is the zero Session.
func (s *SealedStore) Get() (okr.Session, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return okr.Session{}, nil
	}
	if err != nil {
		return okr.Session{}, fmt.Errorf("reading session: %w", err)
	}
	defer f.Close()

	var plain bytes.Buffer
	if err := s.sealer.Open(f, &plain); err != nil {
		return okr.Session{}, fmt.Errorf("opening sealed session: %w", err)
	}
	return decode(plain.Bytes())
}

// Remove deletes the sealed file.
func (s *SealedStore) Remove() error {
	return removeFile(s.path)
}

// ItemStore is a string key/value store such as the client database's
// local-storage table.
type ItemStore interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// ItemStoreAdapter keeps the record under ItemKey in an ItemStore.
type ItemStoreAdapter struct {
	items ItemStore
}

// NewItemStoreAdapter stores the record under ItemKey in items.
func NewItemStoreAdapter(items ItemStore) *ItemStoreAdapter {
	return &ItemStoreAdapter{items: items}
}

// Set writes the record as JSON under ItemKey.
func (s *ItemStoreAdapter) Set(sess okr.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.items.SetItem(ItemKey, string(data))
}

// Get reads the record. An absent item is the zero Session.
func (s *ItemStoreAdapter) Get() (okr.Session, error) {
	v, found, err := s.items.GetItem(ItemKey)
	if err != nil {
		return okr.Session{}, err
	}
	if !found {
		return okr.Session{}, nil
	}
	return decode([]byte(v))
}

// Remove deletes the item.
func (s *ItemStoreAdapter) Remove() error {
	return s.items.RemoveItem(ItemKey)
}

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	sess okr.Session
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Set replaces the held record.
func (s *MemoryStore) Set(sess okr.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = sess
	return nil
}

// Get returns the held record.
func (s *MemoryStore) Get() (okr.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess, nil
}

// Remove forgets the held record.
func (s *MemoryStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sess = okr.Session{}
	return nil
}

func decode(data []byte) (okr.Session, error) {
	var sess okr.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return okr.Session{}, fmt.Errorf("decoding session: %w", err)
	}
	return sess, nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so a crash never leaves a half-written record.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting session permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

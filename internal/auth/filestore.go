package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"credledger.org/internal/ids"
)

var _ Store = (*FileStore)(nil)

// FileStore persists the whole account collection as a single JSON file.
// Writers serialize on an exclusive lock around the read-modify-write cycle;
// readers may run concurrently with each other but not with a write. Every
// successful mutation is flushed to disk before returning.
type FileStore struct {
	path string
	mu   sync.RWMutex
	now  func() time.Time
}

// NewFileStore creates a FileStore backed by the file at path. The parent
// directory is created if missing; the file itself appears on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("auth: store path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &FileStore{path: path, now: time.Now}, nil
}

func (s *FileStore) FindByID(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == id {
			acc := accounts[i]
			return &acc, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Username == username {
			acc := accounts[i]
			return &acc, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Email == email {
			acc := accounts[i]
			return &acc, nil
		}
	}
	return nil, ErrNotFound
}

// Insert appends a new account. Username and email must be unique across the
// whole collection, deactivated records included: soft-deleted accounts keep
// their slot.
func (s *FileStore) Insert(ctx context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts, err := s.load()
	if err != nil {
		return err
	}
	for i := range accounts {
		if accounts[i].Username == acc.Username || accounts[i].Email == acc.Email {
			return ErrConflict
		}
	}
	if acc.ID == "" {
		acc.ID = ids.New()
	}
	now := s.now().UTC()
	acc.CreatedAt = now
	acc.UpdatedAt = now
	accounts = append(accounts, *acc)
	return s.save(accounts)
}

// Update applies mutate to the stored record under the write lock and
// persists the full collection. The mutator sees the current record, so
// concurrent updates compose instead of overwriting each other.
func (s *FileStore) Update(ctx context.Context, id string, mutate func(*Account) error) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID != id {
			continue
		}
		if err := mutate(&accounts[i]); err != nil {
			return nil, err
		}
		accounts[i].ID = id
		accounts[i].UpdatedAt = s.now().UTC()
		if err := s.save(accounts); err != nil {
			return nil, err
		}
		acc := accounts[i]
		return &acc, nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	accounts, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if filter.matches(acc) {
			out = append(out, acc.Sanitized())
		}
	}
	return out, nil
}

// load reads the whole collection. A missing file is an empty collection.
func (s *FileStore) load() ([]Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read account store: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("decode account store: %w", err)
	}
	return accounts, nil
}

// save writes the collection to a temp file and renames it into place so a
// crash mid-write never leaves a truncated store behind.
func (s *FileStore) save(accounts []Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode account store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".accounts-*.json")
	if err != nil {
		return fmt.Errorf("write account store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write account store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write account store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write account store: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/desertthunder/tandem/internal/shared"
)

const (
	tokensDir    = "tokens"
	snapshotFile = "current_song"
)

// FileStore keeps credentials as 0600 files under root/tokens and the snapshot in root/current_song.
//
// Writes go through a dot-prefixed temp file and a rename, so readers never see a partial token.
type FileStore struct {
	mu   sync.RWMutex
	root string
}

// NewFileStore creates the directory layout under root.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty store path", shared.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Join(root, tokensDir), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

// TokensDir is the directory holding one file per credential.
func (s *FileStore) TokensDir() string {
	return filepath.Join(s.root, tokensDir)
}

func (s *FileStore) tokenPath(id string) string {
	return filepath.Join(s.root, tokensDir, id)
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.TokensDir())
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Has(_ context.Context, id string) (bool, error) {
	if err := ValidateID(id); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.tokenPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat credential: %w", err)
	}
	return true, nil
}

func (s *FileStore) Get(_ context.Context, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.tokenPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", shared.ErrCredentialNotFound, id)
	}
	return token, nil
}

func (s *FileStore) Put(_ context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("%w: empty token", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomic(s.TokensDir(), id, []byte(token))
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.tokenPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (s *FileStore) PublishSnapshot(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomic(s.root, snapshotFile, payload)
}

func (s *FileStore) Snapshot(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.root, snapshotFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

func (s *FileStore) Close() error {
	return nil
}

func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

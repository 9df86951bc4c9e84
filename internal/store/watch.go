package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ChangeOp classifies a credential change seen by [FileStore.Watch].
type ChangeOp int

const (
	CredentialAdded ChangeOp = iota
	CredentialRemoved
)

func (op ChangeOp) String() string {
	if op == CredentialRemoved {
		return "removed"
	}
	return "added"
}

// Change is one credential file appearing or disappearing.
type Change struct {
	Op ChangeOp
	ID string
}

// Watch calls fn for each credential written to or removed from the tokens directory until ctx is done.
//
// Temp files from atomic writes are skipped; the rename that completes a write is reported as an addition.
func (s *FileStore) Watch(ctx context.Context, fn func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.TokensDir()); err != nil {
		return fmt.Errorf("watch tokens dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch tokens dir: %w", err)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if change, ok := toChange(event); ok {
				fn(change)
			}
		}
	}
}

func toChange(event fsnotify.Event) (Change, bool) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return Change{}, false
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		return Change{Op: CredentialAdded, ID: name}, true
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return Change{Op: CredentialRemoved, ID: name}, true
	}
	return Change{}, false
}

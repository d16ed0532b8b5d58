package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 200 * time.Millisecond

// Store holds the current workspace and swaps it when the file changes.
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	ws       *Workspace
	loadedAt time.Time
}

// NewStore loads path. An empty path yields a store over an empty workspace that
// never reloads.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger.Named("snapshot")}
	if path == "" {
		s.ws = Empty()
		s.loadedAt = time.Now()
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the latest successfully loaded workspace.
func (s *Store) Current() *Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ws
}

func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Reload reads the file again. On error the previous workspace stays current.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	ws, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ws = ws
	s.loadedAt = time.Now()
	s.mu.Unlock()
	s.logger.Info("workspace loaded", zap.String("path", s.path), zap.Any("counts", ws.Counts()))
	return nil
}

// Watch reloads the workspace whenever its file is written, created or renamed
// into place, until ctx is done. The parent directory is watched so editors that
// replace the file atomically are handled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDebounce)
		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Warn("workspace reload failed; keeping previous snapshot", zap.Error(err))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

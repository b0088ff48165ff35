// Package datastore is a JSON file backed key-value store. Values live in
// memory and are flushed atomically on Save, on every autosave tick and on
// Close, keeping a few timestamped backups of the previous file.
package datastore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

var (
	ErrClosed   = errors.New("datastore is closed")
	ErrTooLarge = errors.New("datastore size limit exceeded")
)

// Config holds configuration options for a Store.
type Config struct {
	Path             string
	AutoSaveInterval time.Duration
	MaxSize          int64 // bytes of encoded values, 0 = unlimited
	BackupCount      int
	Log              zerolog.Logger
}

// DefaultConfig returns the defaults for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		AutoSaveInterval: 10 * time.Second,
		MaxSize:          100 << 20,
		BackupCount:      3,
		Log:              zerolog.Nop(),
	}
}

type Store struct {
	cfg Config

	mu      sync.RWMutex
	data    map[string]json.RawMessage
	size    int64
	lastSum [sha256.Size]byte
	closed  bool
	saveMu  sync.Mutex
	now     func() time.Time
}

// Open loads the file at cfg.Path, creating an empty one if needed.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("datastore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: create dir: %w", err)
	}

	s := &Store{cfg: cfg, data: make(map[string]json.RawMessage), now: time.Now}

	raw, err := os.ReadFile(cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := renameio.WriteFile(cfg.Path, []byte("{}"), 0o644); err != nil {
			return nil, fmt.Errorf("datastore: create %s: %w", cfg.Path, err)
		}
	case err != nil:
		return nil, fmt.Errorf("datastore: read %s: %w", cfg.Path, err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("datastore: %s is not valid JSON: %w", cfg.Path, err)
		}
		if s.data == nil {
			s.data = make(map[string]json.RawMessage)
		}
		for _, v := range s.data {
			s.size += int64(len(v))
		}
		if enc, err := s.encode(); err == nil {
			s.lastSum = sha256.Sum256(enc)
		}
	}
	return s, nil
}

// Put stores v under key as JSON.
func (s *Store) Put(key string, v any) error {
	enc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("datastore: encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	size := s.size - int64(len(s.data[key])) + int64(len(enc))
	if s.cfg.MaxSize > 0 && size > s.cfg.MaxSize {
		return fmt.Errorf("%w: %s", ErrTooLarge, key)
	}
	s.data[key] = enc
	s.size = size
	return nil
}

// Get decodes the value under key into out. It reports false when the key
// does not exist.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		s.size -= int64(len(v))
		delete(s.data, key)
	}
}

// Keys returns the sorted keys starting with prefix.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Save flushes to disk when the content changed since the last save.
func (s *Store) Save() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return s.flush()
}

func (s *Store) encode() ([]byte, error) {
	return json.MarshalIndent(s.data, "", "  ")
}

func (s *Store) flush() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	enc, err := s.encode()
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("datastore: encode: %w", err)
	}
	sum := sha256.Sum256(enc)
	if sum == s.lastSum {
		return nil
	}

	if s.cfg.BackupCount > 0 {
		if err := s.backup(); err != nil {
			s.cfg.Log.Warn().Err(err).Str("event", "datastore.backup_failed").Msg("backup failed")
		}
	}
	if err := renameio.WriteFile(s.cfg.Path, enc, 0o644); err != nil {
		return fmt.Errorf("datastore: write %s: %w", s.cfg.Path, err)
	}
	written, err := os.ReadFile(s.cfg.Path)
	if err != nil || !bytes.Equal(written, enc) {
		return fmt.Errorf("datastore: verify %s failed", s.cfg.Path)
	}
	s.lastSum = sum
	return nil
}

func (s *Store) backup() error {
	cur, err := os.ReadFile(s.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s.backup.%s", s.cfg.Path, s.now().Format("20060102_150405.000"))
	if err := renameio.WriteFile(name, cur, 0o644); err != nil {
		return err
	}
	s.pruneBackups()
	return nil
}

// pruneBackups keeps the newest BackupCount backups. Names sort by time.
func (s *Store) pruneBackups() {
	matches, err := filepath.Glob(s.cfg.Path + ".backup.*")
	if err != nil || len(matches) <= s.cfg.BackupCount {
		return
	}
	sort.Strings(matches)
	for _, p := range matches[:len(matches)-s.cfg.BackupCount] {
		if err := os.Remove(p); err != nil {
			s.cfg.Log.Warn().Err(err).Str("event", "datastore.prune_failed").Str("path", p).Msg("could not remove old backup")
		}
	}
}

// Run autosaves every AutoSaveInterval until ctx is done.
func (s *Store) Run(ctx context.Context) error {
	interval := s.cfg.AutoSaveInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := s.Save(); err != nil {
				if errors.Is(err, ErrClosed) {
					return nil
				}
				s.cfg.Log.Error().Err(err).Str("event", "datastore.autosave_failed").Msg("autosave failed")
			}
		}
	}
}

// Close saves one last time and rejects further writes.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.flush()
}

// Stats describes the store for diagnostics.
type Stats struct {
	Keys int    `json:"keys"`
	Size int64  `json:"size"`
	Path string `json:"path"`
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Keys: len(s.data), Size: s.size, Path: s.cfg.Path}
}

// Package wal stores ledger slots in an append-only write-ahead log.
//
// Every Set appends the full value and every Remove appends a tombstone; the
// current state is the last entry per key. The log is replayed once at open
// into an in-memory index so reads never touch the disk.
//
// With MaxSegments set the log drops its oldest segment on rotation. A key
// that is rarely written would vanish with it, so before each append the
// store re-appends any live key whose last entry is about to fall out of the
// retained window.
package wal

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/vadiminshakov/gowal"

	"ledger/internal/storage"
)

const (
	opSet    = "set:"
	opRemove = "del:"

	dirPermissions = 0o755
)

// Config mirrors the knobs of the underlying log.
type Config struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	SyncWrites       bool
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		SegmentThreshold: 1000,
		MaxSegments:      10,
		SyncWrites:       true,
	}
}

type Store struct {
	mu    sync.Mutex
	log   *gowal.Wal
	index map[string][]byte
	// written is the log index of the entry each live key was read from.
	written map[string]uint64
	// window is how many entries past its own an entry is guaranteed to
	// survive; zero when segments are never dropped.
	window uint64
	closed bool
}

var _ storage.Storage = (*Store)(nil)

func Open(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("wal directory cannot be empty")
	}
	if cfg.SegmentThreshold < 1 {
		return nil, fmt.Errorf("wal segment threshold must be at least 1, got %d", cfg.SegmentThreshold)
	}
	if cfg.MaxSegments == 1 || cfg.MaxSegments < 0 {
		return nil, fmt.Errorf("wal max segments must be 0 (unbounded) or at least 2, got %d", cfg.MaxSegments)
	}
	if err := os.MkdirAll(cfg.Dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("ensure wal directory %s: %w", cfg.Dir, err)
	}

	log, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "seg_",
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.SyncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("init wal: %w", err)
	}

	s := &Store{
		log:     log,
		index:   make(map[string][]byte),
		written: make(map[string]uint64),
	}
	if cfg.MaxSegments > 0 {
		s.window = uint64(cfg.MaxSegments-1) * uint64(cfg.SegmentThreshold)
	}
	for msg := range log.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, opSet):
			key := strings.TrimPrefix(msg.Key, opSet)
			s.index[key] = msg.Value
			s.written[key] = msg.Index
		case strings.HasPrefix(msg.Key, opRemove):
			key := strings.TrimPrefix(msg.Key, opRemove)
			delete(s.index, key)
			delete(s.written, key)
		}
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, storage.ErrClosed
	}
	v, ok := s.index[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	value = append([]byte(nil), value...)
	if err := s.refresh(key); err != nil {
		return err
	}
	idx, err := s.append(opSet+key, value)
	if err != nil {
		return err
	}
	s.index[key] = value
	s.written[key] = idx
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	if _, ok := s.index[key]; !ok {
		return nil
	}
	if err := s.refresh(key); err != nil {
		return err
	}
	if _, err := s.append(opRemove+key, []byte{}); err != nil {
		return err
	}
	delete(s.index, key)
	delete(s.written, key)
	return nil
}

// append must be called with s.mu held.
func (s *Store) append(key string, value []byte) (uint64, error) {
	next := s.log.CurrentIndex() + 1
	if err := s.log.Write(next, key, value); err != nil {
		return 0, fmt.Errorf("write wal entry %d (%s): %w", next, key, err)
	}
	return next, nil
}

// refresh re-appends, oldest first, every live key other than skip whose
// entry would no longer be guaranteed to survive the next append. Each key is
// visited at most once. Must be called with s.mu held.
func (s *Store) refresh(skip string) error {
	if s.window == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.written))
	for k := range s.written {
		if k != skip {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(s.written[a], s.written[b])
	})
	for _, k := range keys {
		next := s.log.CurrentIndex() + 1
		if next-s.written[k] <= s.window {
			break
		}
		idx, err := s.append(opSet+k, s.index[k])
		if err != nil {
			return fmt.Errorf("refresh wal key %s: %w", k, err)
		}
		s.written[k] = idx
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.log.Close()
}

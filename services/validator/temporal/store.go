// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Sentinel errors for the pattern store.
var (
	// ErrRecordOutcomeFailed means an outcome write exhausted its
	// retries. The counters were not updated; the caller may replay.
	ErrRecordOutcomeFailed = errors.New("record outcome failed")
)

const keyPrefix = "pattern/"

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds configuration for the BadgerDB-backed pattern store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Retries is how many times a conflicting outcome write is
	// retried before giving up. Default: 3.
	Retries int

	// Logger receives store events. BadgerDB's own logging is routed
	// through it at debug level; nil disables both.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes, three
// retries.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
		Retries:    3,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O,
// no sync.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		Retries:  3,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
// Badger is chatty, so everything lands at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// Store
// =============================================================================

// Store persists pattern success/failure counters in BadgerDB.
//
// Thread Safety: safe for concurrent use. Concurrent updates to the
// same pattern are serialized through Badger's optimistic concurrency
// control; conflicting transactions are retried with jittered
// backoff, so no increment is lost short of retry exhaustion.
type Store struct {
	db      *badger.DB
	retries int
	logger  *slog.Logger
}

// Open creates the pattern store, opening (or creating) its BadgerDB
// at cfg.Path. Caller must Close() when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent pattern store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create pattern store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 3
	}

	return &Store{db: db, retries: retries, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads the counters for a normalized pattern key.
//
// Outputs:
//   - Stats: the stored counters, zero-valued when absent.
//   - bool: whether the pattern has any history.
//   - error: storage failures only; a missing key is not an error.
func (s *Store) Get(ctx context.Context, key string) (Stats, bool, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, false, err
	}

	var stats Stats
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storageKey(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stats)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, fmt.Errorf("get pattern %q: %w", key, err)
	}
	return stats, true, nil
}

// RecordOutcome folds one observed success or failure into the
// pattern's counters.
//
// The read-modify-write runs in a Badger transaction. On write
// conflict it retries up to the configured limit with jittered
// backoff; when retries are exhausted the returned error wraps
// ErrRecordOutcomeFailed and the counters are untouched.
func (s *Store) RecordOutcome(ctx context.Context, key, framework string, success bool, observedAt time.Time) error {
	var lastErr error

	for attempt := 0; attempt <= s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			backoff := time.Duration(attempt) * 25 * time.Millisecond
			backoff += time.Duration(rand.Int63n(int64(10 * time.Millisecond)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			stats := Stats{Key: key, Framework: framework}

			item, err := txn.Get(storageKey(key))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				// First observation for this pattern.
			case err != nil:
				return err
			default:
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &stats)
				}); err != nil {
					return err
				}
			}

			if success {
				stats.Success++
			} else {
				stats.Failure++
			}
			if observedAt.After(stats.LastObservedAt) {
				stats.LastObservedAt = observedAt
			}

			data, err := json.Marshal(stats)
			if err != nil {
				return err
			}
			return txn.Set(storageKey(key), data)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("record outcome for %q: %w", key, err)
		}

		lastErr = err
		s.logger.Warn("pattern write conflict, retrying",
			"key", key,
			"attempt", attempt+1,
			"max_attempts", s.retries+1,
		)
	}

	return fmt.Errorf("%w: %q after %d attempts: %v", ErrRecordOutcomeFailed, key, s.retries+1, lastErr)
}

// storageKey namespaces pattern keys and keeps them fixed-length.
// FNV-1a is fine here: keys are internal, not adversarial.
func storageKey(key string) []byte {
	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Appendf(nil, "%s%016x", keyPrefix, h.Sum64())
}

// Watchmark - Offline-Tolerant Watch-Position Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/watchmark

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/watchmark/internal/metrics"
)

// Key prefixes for BadgerDB storage
const (
	watchedKeyPrefix  = "watched:"
	lastViewKeyPrefix = "lastview:"

	schemaVersionKey = "meta:schema_version"
	deviceIDKey      = "meta:device_id"
)

// Options configures the BadgerDB-backed store.
type Options struct {
	// Dir is the data directory. Empty selects an in-memory BadgerDB, which
	// is useful for tests and for running without a writable disk.
	Dir string
}

// BadgerStore implements Store on BadgerDB for durable persistence across
// restarts and offline periods.
//
// Initialization is memoized: the first Init call opens the database and every
// other caller (including concurrent ones) observes that same result, so no
// two call sites can race a double-open.
type BadgerStore struct {
	opts Options

	initOnce sync.Once
	initErr  error

	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// NewBadgerStore creates an unopened store. Call Init before use; every other
// method does so as well, so callers may rely on first-use initialization.
func NewBadgerStore(opts Options) *BadgerStore {
	return &BadgerStore{opts: opts}
}

// Init opens the database, verifies the schema version, and creates it when
// absent. Idempotent and safe for concurrent callers.
func (s *BadgerStore) Init(_ context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.open()
	})
	return s.initErr
}

func (s *BadgerStore) open() error {
	var opts badger.Options
	if s.opts.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(s.opts.Dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return err
	}

	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	return nil
}

// ensureSchema writes the schema version on first open and validates it on
// subsequent opens.
func ensureSchema(db *badger.DB) error {
	return db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(SchemaVersion)))
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}

		var stored int
		err = item.Value(func(val []byte) error {
			stored, err = strconv.Atoi(string(val))
			return err
		})
		if err != nil {
			return fmt.Errorf("parse schema version: %w", err)
		}

		switch {
		case stored == SchemaVersion:
			return nil
		case stored > SchemaVersion:
			return fmt.Errorf("%w: found %d, support %d", ErrSchemaTooNew, stored, SchemaVersion)
		default:
			return migrate(txn, stored)
		}
	})
}

// migrate upgrades an older on-disk schema in place. Version 1 is the only
// schema that has ever shipped, so this is a stub until a version 2 exists.
func migrate(txn *badger.Txn, from int) error {
	_ = from
	return txn.Set([]byte(schemaVersionKey), []byte(strconv.Itoa(SchemaVersion)))
}

// ready returns the open database handle, initializing on first use.
func (s *BadgerStore) ready(ctx context.Context) (*badger.DB, error) {
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

// GetLastView returns the checkpoint row for postID, or nil when absent.
func (s *BadgerStore) GetLastView(ctx context.Context, postID string) (*LastView, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var view LastView
	found := false

	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastViewKeyPrefix + postID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get last view: %w", err)
		}

		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &view)
		})
	})
	metrics.ObserveStoreOp("get_last_view", start, err)

	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &view, nil
}

// SaveWatchedVideo upserts videoID into the watched set.
func (s *BadgerStore) SaveWatchedVideo(ctx context.Context, videoID string) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = db.Update(func(txn *badger.Txn) error {
		key := []byte(watchedKeyPrefix + videoID)

		// Keep the original FirstSeen on repeat writes so the record stays a
		// "created once, never updated" marker.
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check watched video: %w", err)
		}

		data, err := json.Marshal(WatchedVideo{VideoID: videoID, FirstSeen: time.Now().UTC()})
		if err != nil {
			return fmt.Errorf("marshal watched video: %w", err)
		}
		return txn.Set(key, data)
	})
	metrics.ObserveStoreOp("save_watched_video", start, err)
	return err
}

// SaveLastView replaces the entire checkpoint row for postID.
func (s *BadgerStore) SaveLastView(ctx context.Context, postID string, sequence int, timestamp int64) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(LastView{
		PostID:    postID,
		Sequence:  sequence,
		Timestamp: timestamp,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal last view: %w", err)
	}

	start := time.Now()
	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(lastViewKeyPrefix+postID), data)
	})
	metrics.ObserveStoreOp("save_last_view", start, err)
	return err
}

// ClearAll deletes every row from both tables in a single transaction, so a
// partly-applied wipe can never be observed. Metadata keys (schema version,
// device ID) survive: they describe the installation, not the user.
func (s *BadgerStore) ClearAll(ctx context.Context) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	err = db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{watchedKeyPrefix, lastViewKeyPrefix} {
			keys, err := collectKeys(txn, prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return fmt.Errorf("delete %s: %w", key, err)
				}
			}
		}
		return nil
	})
	metrics.ObserveStoreOp("clear_all", start, err)

	if err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	metrics.StoreWipes.Inc()
	return nil
}

// collectKeys gathers all keys under prefix within the transaction.
func collectKeys(txn *badger.Txn, prefix string) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// MergeFromServer inserts server-reported watched videos that are absent
// locally. Local rows always win; merging twice with the same input is a
// no-op (set union).
func (s *BadgerStore) MergeFromServer(ctx context.Context, watched []string) (int, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	inserted := 0

	err = db.Update(func(txn *badger.Txn) error {
		now := time.Now().UTC()
		for _, videoID := range watched {
			if videoID == "" {
				continue
			}

			key := []byte(watchedKeyPrefix + videoID)
			_, err := txn.Get(key)
			if err == nil {
				continue // local entry wins
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check watched video %s: %w", videoID, err)
			}

			data, err := json.Marshal(WatchedVideo{VideoID: videoID, FirstSeen: now})
			if err != nil {
				return fmt.Errorf("marshal watched video: %w", err)
			}
			if err := txn.Set(key, data); err != nil {
				return fmt.Errorf("insert watched video %s: %w", videoID, err)
			}
			inserted++
		}
		return nil
	})
	metrics.ObserveStoreOp("merge_from_server", start, err)

	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// WatchedVideos returns all video IDs in the watched set.
func (s *BadgerStore) WatchedVideos(ctx context.Context) ([]string, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var ids []string

	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(watchedKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	metrics.ObserveStoreOp("watched_videos", start, err)

	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DeviceID returns the stable device identifier, generating one on first use.
func (s *BadgerStore) DeviceID(ctx context.Context) (string, error) {
	db, err := s.ready(ctx)
	if err != nil {
		return "", err
	}

	var id string
	err = db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceIDKey))
		if err == nil {
			return item.Value(func(val []byte) error {
				id = string(val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("read device id: %w", err)
		}

		id = uuid.NewString()
		return txn.Set([]byte(deviceIDKey), []byte(id))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// RunGC runs one round of BadgerDB value-log garbage collection. Returns
// badger.ErrNoRewrite when nothing needed collecting; callers treat that as
// a clean no-op.
func (s *BadgerStore) RunGC(ctx context.Context, discardRatio float64) error {
	db, err := s.ready(ctx)
	if err != nil {
		return err
	}
	return db.RunValueLogGC(discardRatio)
}

// Close releases the database. Operations after Close return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.db == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.db.Close()
}

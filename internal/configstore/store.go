// Backhaul - Backup Import, Restore and Cloud Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backhaul

// Package configstore holds the runtime settings that settings snapshots are
// restored into. Settings are flat dotted keys with JSON values, persisted in
// BadgerDB. A snapshot is applied in a single transaction and announced on
// the event bus as settings.applied.
package configstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/backhaul/internal/events"
	"github.com/tomtom215/backhaul/internal/logging"
)

// settingKeyPrefix namespaces setting keys inside BadgerDB.
const settingKeyPrefix = "setting:"

var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("setting not found")

	// ErrInvalidValue is returned when a value is not valid JSON.
	ErrInvalidValue = errors.New("setting value is not valid JSON")
)

// Options configures the store.
type Options struct {
	Path     string
	InMemory bool
}

// Entry is one stored setting.
type Entry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Source    string          `json:"source"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// record is the persisted form of an Entry; the key lives in the Badger key.
type record struct {
	Value     json.RawMessage `json:"v"`
	Source    string          `json:"s"`
	UpdatedAt time.Time       `json:"t"`
}

// Store is a BadgerDB-backed settings store.
type Store struct {
	db        *badger.DB
	publisher events.Publisher
}

// Open opens (or creates) the store. publisher may be nil.
func Open(opts Options, publisher events.Publisher) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("config store path is required")
		}
		bopts = badger.DefaultOptions(opts.Path).WithSyncWrites(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("Config store opened")

	return &Store{db: db, publisher: publisher}, nil
}

// Apply writes every setting in one transaction and publishes settings.applied.
// Values must be JSON-encoded. Nothing is written if any value is invalid.
func (s *Store) Apply(ctx context.Context, source string, settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k, v := range settings {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidValue)
		}
		if !json.Valid([]byte(v)) {
			return fmt.Errorf("%w: %s", ErrInvalidValue, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			data, err := json.Marshal(record{Value: json.RawMessage(settings[k]), Source: source, UpdatedAt: now})
			if err != nil {
				return fmt.Errorf("encode %s: %w", k, err)
			}
			if err := txn.Set([]byte(settingKeyPrefix+k), data); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("source", source).
		Int("keys", len(keys)).
		Msg("Runtime settings updated")

	if s.publisher != nil {
		payload := events.SettingsAppliedPayload{Source: source, Keys: keys}
		if err := s.publisher.Publish(ctx, events.TopicSettingsApplied, payload); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish settings.applied")
		}
	}
	return nil
}

// Get returns one setting.
func (s *Store) Get(key string) (*Entry, error) {
	var entry *Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			e, err := decodeEntry(key, val)
			entry = e
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// All returns every setting, optionally restricted to keys under prefix, in key order.
func (s *Store) All(prefix string) ([]Entry, error) {
	entries := []Entry{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seek := []byte(settingKeyPrefix + prefix)
		for it.Seek(seek); it.ValidForPrefix(seek); it.Next() {
			item := it.Item()
			key := string(item.Key()[len(settingKeyPrefix):])
			err := item.Value(func(val []byte) error {
				e, err := decodeEntry(key, val)
				if err != nil {
					return err
				}
				entries = append(entries, *e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeEntry(key string, val []byte) (*Entry, error) {
	var rec record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &Entry{Key: key, Value: rec.Value, Source: rec.Source, UpdatedAt: rec.UpdatedAt}, nil
}

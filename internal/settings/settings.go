// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

// Package settings provides a small persistent key-value store for runtime
// settings that can change without a restart, backed by BadgerDB.
package settings

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

// Well-known setting keys.
const (
	// KeySyncHistoryLimit controls how many sync history entries are kept
	// per user. The value is clamped by the history ledger before use.
	KeySyncHistoryLimit = "sync_history_limit"
)

// keyPrefix namespaces settings within the shared Badger instance.
const keyPrefix = "settings:"

// ErrNotFound is returned when a setting has no stored value.
var ErrNotFound = errors.New("setting not found")

// Store persists runtime settings in BadgerDB.
type Store struct {
	db      *badger.DB
	ownedDB bool
}

// Open creates a store with its own BadgerDB instance at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB internal logs
	// Settings are tiny; keep the value log small
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for settings: %w", err)
	}
	return &Store{db: db, ownedDB: true}, nil
}

// OpenInMemory creates a store that does not persist across restarts.
// Useful for tests and for the in-memory database mode.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &Store{db: db, ownedDB: true}, nil
}

// NewWithDB wraps an existing BadgerDB instance. Close becomes a no-op so
// the owner retains lifecycle control.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database if the store owns it.
func (s *Store) Close() error {
	if !s.ownedDB {
		return nil
	}
	return s.db.Close()
}

// Get returns the stored value for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// GetInt returns the stored value for key parsed as an integer.
// A missing key returns ErrNotFound; an unparseable value is an error.
func (s *Store) GetInt(key string) (int, error) {
	raw, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("setting %q is not an integer: %w", key, err)
	}
	return n, nil
}

// Set stores value under key, replacing any existing value.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// SetInt stores an integer value under key.
func (s *Store) SetInt(key string, value int) error {
	return s.Set(key, strconv.Itoa(value))
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(keyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", key, err)
	}
	return nil
}

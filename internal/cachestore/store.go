// Package cachestore persists named request caches in badger and inspects
// any host cache storage for diagnostics.
package cachestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	keyPrefix = "cache/"
	keySep    = "\x00"
)

// Config controls how the store is opened.
type Config struct {
	// Dir is the badger directory. Required unless InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is a CacheStorage backed by badger. Each cached request is one key,
// "cache/<name>\x00<request>", whose value is the time it was stored.
type Store struct {
	db *badger.DB
}

// Open opens (creating if needed) a store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("cache directory is required for a persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(name, request string) []byte {
	return []byte(keyPrefix + name + keySep + request)
}

func namePrefix(name string) []byte {
	return []byte(keyPrefix + name + keySep)
}

// Put implements host.CacheWriter. Re-putting a request refreshes its time.
func (s *Store) Put(_ context.Context, name, request string) error {
	if name == "" || strings.Contains(name, keySep) {
		return fmt.Errorf("invalid cache name %q", name)
	}
	stamp := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(name, request), stamp)
	})
	if err != nil {
		return fmt.Errorf("put %s in %s: %w", request, name, err)
	}
	return nil
}

// Delete removes a whole named cache.
func (s *Store) Delete(_ context.Context, name string) error {
	prefix := namePrefix(name)
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete cache %s: %w", name, err)
	}
	return nil
}

// Keys implements host.CacheStorage. Names come back in key order.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := bytes.TrimPrefix(it.Item().Key(), []byte(keyPrefix))
			name, _, ok := bytes.Cut(rest, []byte(keySep))
			if !ok {
				continue
			}
			if n := len(names); n == 0 || names[n-1] != string(name) {
				names = append(names, string(name))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	return names, nil
}

// Requests implements host.CacheStorage. Unknown caches yield an empty list.
func (s *Store) Requests(_ context.Context, name string) ([]string, error) {
	prefix := namePrefix(name)
	reqs := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			reqs = append(reqs, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list requests in %s: %w", name, err)
	}
	return reqs, nil
}

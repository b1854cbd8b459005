// Package cache stores simulation results in BadgerDB, keyed by the
// content hash of what was simulated.
//
// A simulation is a pure function of its plan, the model version, the
// sampling period and the engine version, so two runs with equal keys
// produce equal results and the second can be skipped. See ir.ResultsKey.
//
// Only complete runs are cached. Results that halted early carry an error
// the caller has to see, so they are always recomputed.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/orbit/internal/engine"
	"github.com/roach88/orbit/internal/ir"
)

const keyPrefix = "results/"

// Config holds configuration for a results cache.
type Config struct {
	// Dir is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Dir string

	// InMemory keeps the cache in RAM only. Used by tests.
	InMemory bool

	// SyncWrites makes every Put durable before it returns.
	SyncWrites bool

	// TTL expires entries after the given time. Zero keeps them forever.
	TTL time.Duration

	// Logger receives BadgerDB's own log output. Nil silences it.
	Logger *slog.Logger
}

// Cache is a results cache. Safe for concurrent use.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Open opens the cache described by cfg, creating its directory if needed.
func Open(cfg Config) (*Cache, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("cache: directory is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("cache: create directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

// OpenInMemory opens a RAM-only cache. Data is lost on Close.
func OpenInMemory() (*Cache, error) {
	return Open(Config{InMemory: true})
}

// Close flushes and closes the cache.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key is the cache key for simulating plan against model at period.
func Key(plan ir.Plan, model *engine.Model, period int64) (string, error) {
	planHash, err := ir.PlanHash(plan)
	if err != nil {
		return "", err
	}
	return ir.ResultsKey(planHash, model.Name, model.Version, period)
}

// Get returns the cached results for key, or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (res *engine.Results, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", key, err)
	}

	v, err := ir.Unmarshal(data)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	res, err = engine.ResultsFromValue(v)
	if err != nil {
		return nil, false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return res, true, nil
}

// Put stores results under key. Results that stop short of their duration
// are not stored and Put reports stored=false.
func (c *Cache) Put(ctx context.Context, key string, res *engine.Results) (stored bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if res == nil {
		return false, errors.New("cache: nil results")
	}
	if res.Horizon < res.Duration {
		return false, nil
	}

	data, err := ir.MarshalCanonical(res.ToValue())
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", key, err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(keyPrefix+key), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return false, fmt.Errorf("cache: put %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil {
		return fmt.Errorf("cache: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every cached key in byte order.
func (c *Cache) Keys() ([]string, error) {
	var keys []string
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, string(k[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache: list keys: %w", err)
	}
	return keys, nil
}

// Purge drops every entry.
func (c *Cache) Purge() error {
	if err := c.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return fmt.Errorf("cache: purge: %w", err)
	}
	return nil
}

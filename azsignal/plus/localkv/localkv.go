// Package localkv is a small key value store on top of buntdb, in memory or persisted to disk.
package localkv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/buntdb"

	"github.com/ezquant/azsignal/azsignal/tools/log"
)

const memory = ":memory:"

var ErrNotFound = buntdb.ErrNotFound

// LocalKV holds the db client
type LocalKV struct {
	db     *buntdb.DB
	dbPath string
}

// NewLocalKV opens kv.db inside dir, an empty dir keeps everything in memory
func NewLocalKV(dir string) (*LocalKV, error) {
	dbPath := memory
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create kv directory: %w", err)
		}
		dbPath = filepath.Join(dir, "kv.db")
	}

	db, err := buntdb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open kv %s: %w", dbPath, err)
	}

	if err := db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkPercentage: 100,
		AutoShrinkMinSize:    32 * 1024 * 1024,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure kv: %w", err)
	}

	return &LocalKV{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (l *LocalKV) Close() error {
	return l.db.Close()
}

// Get returns ErrNotFound when the key does not exist
func (l *LocalKV) Get(key string) (string, error) {
	var val string
	err := l.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	return val, err
}

func (l *LocalKV) Set(key, value string) error {
	return l.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
}

// CreateJSONIndex indexes the values of keys matching pattern by a numeric or string JSON field
func (l *LocalKV) CreateJSONIndex(name, pattern, field string) error {
	err := l.db.ReplaceIndex(name, pattern, buntdb.IndexJSON(field))
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

// Descend walks the values of an index from the greatest, until fn returns false
func (l *LocalKV) Descend(index string, fn func(key, value string) bool) error {
	return l.db.View(func(tx *buntdb.Tx) error {
		return tx.Descend(index, fn)
	})
}

// Count returns the number of keys matching pattern
func (l *LocalKV) Count(pattern string) (int, error) {
	count := 0
	err := l.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pattern, func(_, _ string) bool {
			count++
			return true
		})
	})
	return count, err
}

// RemoveDB closes the db and removes its file
func (l *LocalKV) RemoveDB() error {
	if l.db != nil {
		if err := l.db.Close(); err != nil && !errors.Is(err, buntdb.ErrDatabaseClosed) {
			log.Warnf("[KV] close %s: %v", l.dbPath, err)
		}
	}

	if l.dbPath != memory && l.dbPath != "" {
		if err := os.Remove(l.dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", l.dbPath, err)
		}
	}
	return nil
}

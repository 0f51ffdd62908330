// Package boltengine adapts go.etcd.io/bbolt behind the same Engine
// surface the native bitcask-style store exposes, so the server can be
// pointed at either backend by the "--engine" flag. bbolt is this
// project's stand-in for the embedded comparison engine the design calls
// "sled": a single-file, B+tree-backed, ACID embedded store.
package boltengine

import (
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/kvstash/kvstash/internal/engine"
)

var bucketName = []byte("kvstash")

// Engine is the bbolt-backed alternate backend. A single *bbolt.DB
// already serializes writers and allows concurrent readers internally, so
// Clone simply returns the same handle: there is no per-clone local state
// to keep independent, unlike the native engine's file handle table.
type Engine struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a bbolt database file under dir, after
// checking the shared "engine" marker matches "sled".
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("boltengine: create data dir: %w", err)
	}
	if err := engine.CheckOrWriteMarker(dir, engine.BackendSled); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "sled.db")
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("boltengine: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("boltengine: create bucket: %w", err)
	}

	return &Engine{db: db}, nil
}

func (e *Engine) Get(key string) (value string, found bool, err error) {
	err = e.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get([]byte(key))
		if v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("boltengine: get: %w", err)
	}
	return value, found, nil
}

func (e *Engine) Set(key, value string) error {
	err := e.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("boltengine: set: %w", err)
	}
	return nil
}

func (e *Engine) Remove(key string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b.Get([]byte(key)) == nil {
			return engine.ErrKeyNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Clone returns e itself: bbolt's *DB already supports any number of
// concurrent readers plus one writer internally, so there is no
// per-handle state that needs to be duplicated the way the native
// engine's file handle table does.
func (e *Engine) Clone() engine.Engine { return e }

func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("boltengine: close: %w", err)
	}
	return nil
}

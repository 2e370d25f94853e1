// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package storage

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

// Badger is an embedded LSM Storage. Entries carry no badger TTL: expiry is
// decided by the cache layer, never by the backend.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens a badger database at path. An empty path opens an
// in-memory instance.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, wrap("badger", "open", "", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("badger", "get", key, err)
	}
	return out, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	return wrap("badger", "set", key, err)
}

func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	return wrap("badger", "delete", key, err)
}

func (b *Badger) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	p := []byte(prefix)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, wrap("badger", "keys", prefix, err)
	}
	return out, nil
}

func (b *Badger) Ping(context.Context) error {
	if b.db.IsClosed() {
		return wrap("badger", "ping", "", errors.New("database closed"))
	}
	return nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

var _ Storage = (*Badger)(nil)

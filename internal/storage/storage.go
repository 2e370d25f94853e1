// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package storage provides the durable key-value backends that play the role
// of browser local storage: string keys, opaque byte values, synchronous writes.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key is absent. It is not a Storage
// failure and is never wrapped in *Error.
var ErrNotFound = errors.New("storage: key not found")

// Storage is a flat key-value store. Implementations must be safe for
// concurrent use and must persist every write before returning.
type Storage interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key starting with prefix, in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}

// Error marks a backend failure: unavailable storage, quota exhaustion,
// corrupted files. Callers treat it as fatal and never retry.
type Error struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("storage: %s %s", e.Backend, e.Op)
	if e.Key != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Key)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(backend, op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Backend: backend, Op: op, Key: key, Err: err}
}

// IsStorageError reports whether err carries a backend failure.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

// Package storage defines the key-value port the ledger persists through.
//
// A Storage holds named slots, each containing one opaque blob. The ledger
// only ever reads a slot once at startup and afterwards overwrites or removes
// it as a whole, so implementations never need partial updates.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrEmptyKey = errors.New("storage key cannot be empty")
	ErrClosed   = errors.New("storage is closed")
)

// Ports for the local key-value backends.
type (
	// Reader returns the value stored under key. A missing key is reported
	// with ok=false and a nil error.
	Reader interface {
		Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	}

	// Writer replaces or deletes the value stored under key. Removing a
	// missing key is not an error.
	Writer interface {
		Set(ctx context.Context, key string, value []byte) error
		Remove(ctx context.Context, key string) error
	}

	Storage interface {
		Reader
		Writer
		Close() error
	}
)

// ValidateKey rejects blank slot names.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}

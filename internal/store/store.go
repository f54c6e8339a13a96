// Package store persists the small set of user settings shared between the
// POS and the host process.
package store

import "errors"

// Store is a flat string key-value store.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

var ErrClosed = errors.New("settings store is closed")

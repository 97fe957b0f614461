// Copyright (c) 2019 Perlin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

// Package store persists local, presentation-only state. Nothing kept here
// is authoritative; the ledger is.
package store

import (
	"io"

	"github.com/perlin-network/academy/log"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

type KV interface {
	io.Closer

	// Get returns ErrNotFound for a missing key.
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error

	// Iterate calls fn for every key starting with prefix, in key order,
	// until fn returns false.
	Iterate(prefix []byte, fn func(key, value []byte) bool) error

	NewWriteBatch() WriteBatch
	CommitWriteBatch(batch WriteBatch) error
}

// WriteBatch collects puts and deletes applied atomically on commit.
type WriteBatch interface {
	Put(key, value []byte)
	Delete(key []byte)

	Clear()
	Count() int
}

// Open opens the leveldb database at dir, or an in-memory store if dir is
// empty.
func Open(dir string) (KV, error) {
	logger := log.Store()

	if dir == "" {
		logger.Debug().Msg("Using an in-memory store.")
		return NewInmem(), nil
	}

	kv, err := NewLevelDB(dir)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("dir", dir).Msg("Opened store.")

	return kv, nil
}

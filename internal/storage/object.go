/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package storage persists generated image artifacts. Keys are
// relative paths like "images/<message-id>.jpg"; the backend decides
// where the bytes live and what public URL they resolve to.
package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by Get for keys that were never put.
var ErrObjectNotFound = errors.New("storage: object not found")

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns the address at which the stored object is readable,
	// suitable for embedding in outbound social posts.
	URL(key string) string
}

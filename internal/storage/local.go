/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// LocalStore implements ObjectStore on the local filesystem. It is
// the default backend for single-node deployments without S3.
type LocalStore struct {
	rootDir string
	logger  zerolog.Logger
}

// NewLocalStore creates a filesystem-backed store rooted at rootDir.
func NewLocalStore(rootDir string, logger zerolog.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{
		rootDir: rootDir,
		logger:  logger.With().Str("component", "storage").Logger(),
	}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.rootDir, clean), nil
}

// Put writes the object, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}

	s.logger.Debug().Str("key", key).Int("bytes", len(data)).Msg("object stored")
	return nil
}

// Get reads the object back.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// URL returns the local path. Destinations treat a non-http URL as
// "attach the bytes", so a filesystem path is fine here.
func (s *LocalStore) URL(key string) string {
	full, err := s.path(key)
	if err != nil {
		return ""
	}
	return full
}

// Copyright 2026 The Parlor Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore provides the client's durable key-value storage:
// the key pair, the username, and cached room state live here between
// sessions.
//
// Values are CBOR-encoded via lib/codec and stored one file per key
// under a directory. Writes go through a temp file and rename, so a
// crash mid-write never leaves a torn value — in particular the
// private key, whose loss would destroy the user's identity.
package kvstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parlorchat/parlor/lib/codec"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("kvstore: key not found")

// valueSuffix distinguishes value files from temp files in the store
// directory.
const valueSuffix = ".cbor"

// Store is a directory-backed key-value store. Safe for use from a
// single process; there is no cross-process locking.
type Store struct {
	dir string
}

// Open creates the store directory if needed and returns a Store
// rooted there.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("kvstore: directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("kvstore: creating %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Get decodes the value stored under key into v. Returns ErrNotFound
// when the key has never been set (or was removed).
func (s *Store) Get(key string, v any) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("kvstore: reading %s: %w", key, err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("kvstore: decoding %s: %w", key, err)
	}
	return nil
}

// Set stores v under key, replacing any previous value. The write is
// atomic: concurrent readers see either the old value or the new one,
// never a partial file.
func (s *Store) Set(key string, v any) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("kvstore: encoding %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.dir, "write-*")
	if err != nil {
		return fmt.Errorf("kvstore: creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("kvstore: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("kvstore: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("kvstore: replacing %s: %w", key, err)
	}
	return nil
}

// Remove deletes the value stored under key. Removing a key that does
// not exist is not an error.
func (s *Store) Remove(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kvstore: removing %s: %w", key, err)
	}
	return nil
}

// Clear deletes every stored value.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("kvstore: listing %s: %w", s.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), valueSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("kvstore: removing %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// keyPath maps a key to its value file. Keys are restricted to a
// filename-safe alphabet so a key can never escape the store
// directory.
func (s *Store) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("kvstore: key is required")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return "", fmt.Errorf("kvstore: key %q contains disallowed character %q", key, r)
		}
	}
	return filepath.Join(s.dir, key+valueSuffix), nil
}

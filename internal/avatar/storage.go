// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package avatar stores user avatar images on the local filesystem or in an
// S3-compatible bucket.
package avatar

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// Storage persists avatar bytes under a slash-separated key.
type Storage interface {
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// ErrInvalidKey is returned for keys that would escape the storage root.
var ErrInvalidKey = errors.New("invalid avatar key")

// DirStorage writes avatars below a base directory.
type DirStorage struct {
	root string
}

// NewDirStorage creates root if needed.
func NewDirStorage(root string) (*DirStorage, error) {
	if root == "" {
		return nil, oops.Code("AVATAR_INVALID_CONFIG").Errorf("avatar directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, oops.Code("AVATAR_INIT_FAILED").With("dir", root).Wrap(err)
	}
	return &DirStorage{root: root}, nil
}

func (s *DirStorage) path(key string) (string, error) {
	local := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(local) {
		return "", oops.Code("AVATAR_INVALID_KEY").With("key", key).Wrap(ErrInvalidKey)
	}
	return filepath.Join(s.root, local), nil
}

// Save writes data to key, replacing any previous file.
func (s *DirStorage) Save(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return oops.Code("AVATAR_SAVE_FAILED").With("key", key).Wrap(err)
	}

	// Write then rename so readers never see a partial image.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".avatar-*")
	if err != nil {
		return oops.Code("AVATAR_SAVE_FAILED").With("key", key).Wrap(err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return oops.Code("AVATAR_SAVE_FAILED").With("key", key).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return oops.Code("AVATAR_SAVE_FAILED").With("key", key).Wrap(err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return oops.Code("AVATAR_SAVE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Remove deletes key. A missing file is not an error.
func (s *DirStorage) Remove(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Code("AVATAR_REMOVE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

var _ Storage = (*DirStorage)(nil)

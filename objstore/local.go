// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const tempPrefix = ".tmp-"

// Local keeps artifacts on the filesystem below Root. Writes go to a temporary
// file in the destination directory and are renamed into place so readers
// never observe a partially written artifact.
type Local struct {
	Root string
}

func NewLocal(root string) *Local {
	return &Local{Root: root}
}

func (store *Local) filename(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}
	return filepath.Join(store.Root, filepath.FromSlash(cleaned)), nil
}

func (store *Local) Exists(ctx context.Context, key string) (bool, error) {
	fn, err := store.filename(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return !info.IsDir(), nil
}

func (store *Local) ReadText(ctx context.Context, key string) (string, error) {
	fn, err := store.filename(key)
	if err != nil {
		return "", err
	}

	contents, err := os.ReadFile(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", err
	}

	return string(contents), nil
}

// WriteBytes atomically replaces key with data. Content type and cache control
// have no meaning on the local filesystem and are ignored.
func (store *Local) WriteBytes(ctx context.Context, key string, data []byte, contentType, cacheControl string) error {
	logger := zerolog.Ctx(ctx)

	fn, err := store.filename(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fn)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error().Err(err).Str("Directory", dir).Msg("could not create artifact directory")
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		logger.Error().Err(err).Str("Directory", dir).Msg("could not create temporary file")
		return err
	}

	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmpName, fn); err != nil {
		logger.Error().Err(err).Str("FileName", fn).Msg("could not move artifact into place")
		return err
	}

	logger.Debug().Str("Key", key).Int("Size", len(data)).Msg("wrote artifact")

	return nil
}

func (store *Local) List(ctx context.Context, prefix string) ([]Object, error) {
	objects := make([]Object, 0)

	err := filepath.WalkDir(store.Root, func(fn string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}

		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			return nil
		}

		rel, err := filepath.Rel(store.Root, fn)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		objects = append(objects, Object{
			Key:     key,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})

	return objects, nil
}

func (store *Local) Delete(ctx context.Context, key string, recursive bool) error {
	fn, err := store.filename(key)
	if err != nil {
		return err
	}

	if recursive {
		return os.RemoveAll(fn)
	}

	err = os.Remove(fn)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

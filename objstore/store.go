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
	"mime"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Object describes one stored artifact as returned by List
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Writer is the write half of a store; remote mirrors only need this
type Writer interface {
	WriteBytes(ctx context.Context, key string, data []byte, contentType, cacheControl string) error
}

// Store is a key-value blob store for the JSON, text and PDF artifacts. Keys
// are slash separated and relative to the store root.
type Store interface {
	Writer

	Exists(ctx context.Context, key string) (bool, error)

	// ReadText returns the object's contents. A missing key yields an error
	// matching ErrNotFound.
	ReadText(ctx context.Context, key string) (string, error)

	// List returns every object whose key starts with prefix, sorted by key
	List(ctx context.Context, prefix string) ([]Object, error)

	// Delete removes key. With recursive set, every object below key is
	// removed as well. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string, recursive bool) error
}

// ContentType guesses the MIME type of an artifact from its key
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".pdf":
		return "application/pdf"
	}

	if contentType := mime.TypeByExtension(path.Ext(key)); contentType != "" {
		return contentType
	}

	return "application/octet-stream"
}

// cleanKey normalizes key and rejects keys that escape the store root
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}

	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", ErrInvalidKey
	}

	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", ErrInvalidKey
		}
	}

	return cleaned, nil
}

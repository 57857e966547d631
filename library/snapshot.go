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
package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/rs/zerolog"
)

// SnapshotStore reads and writes the per-ticker financial snapshots. Reads
// go through the cache; callers always receive their own copy so in-memory
// merges never leak into the cache before Save.
type SnapshotStore struct {
	Store        objstore.Store
	CacheControl string

	cache *Cache[*data.Snapshot]
}

func NewSnapshotStore(store objstore.Store, cache *Cache[*data.Snapshot]) *SnapshotStore {
	if cache == nil {
		cache = NewCache[*data.Snapshot](0)
	}

	return &SnapshotStore{
		Store: store,
		cache: cache,
	}
}

// Load returns the snapshot of ticker, or nil when none exists. A snapshot
// that cannot be parsed is logged and reported as absent so the caller
// bootstraps it again. Storage failures are returned as ErrArtifactIO.
func (snapshots *SnapshotStore) Load(ctx context.Context, ticker string) (*data.Snapshot, error) {
	logger := zerolog.Ctx(ctx)
	ticker = data.NormalizeTicker(ticker)
	key := SnapshotKey(ticker)

	if cached, ok := snapshots.cache.Get(key); ok {
		return cached.Clone(), nil
	}

	text, err := snapshots.Store.ReadText(ctx, key)
	if errors.Is(err, objstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("Key", key).Msg("could not read snapshot")
		return nil, fmt.Errorf("%w: %w", ErrArtifactIO, err)
	}

	snapshot, err := DecodeSnapshot([]byte(text))
	if err != nil {
		logger.Warn().Err(err).Str("Key", key).Msg("snapshot is corrupt, treating as absent")
		return nil, nil
	}

	if snapshot.Meta.Ticker == "" {
		snapshot.Meta.Ticker = ticker
	}

	snapshots.cache.Put(key, snapshot.Clone())

	return snapshot, nil
}

// Save fully replaces the stored snapshot
func (snapshots *SnapshotStore) Save(ctx context.Context, snapshot *data.Snapshot) error {
	logger := zerolog.Ctx(ctx)
	key := SnapshotKey(snapshot.Meta.Ticker)

	encoded, err := EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	if err := snapshots.Store.WriteBytes(ctx, key, encoded, "application/json", snapshots.CacheControl); err != nil {
		logger.Error().Err(err).Str("Key", key).Msg("could not write snapshot")
		snapshots.cache.Delete(key)
		return fmt.Errorf("%w: %w", ErrArtifactIO, err)
	}

	snapshots.cache.Put(key, snapshot.Clone())

	logger.Debug().EmbedObject(snapshot).Msg("saved snapshot")

	return nil
}

func (snapshots *SnapshotStore) Delete(ctx context.Context, ticker string) error {
	key := SnapshotKey(ticker)
	snapshots.cache.Delete(key)

	if err := snapshots.Store.Delete(ctx, key, false); err != nil {
		return fmt.Errorf("%w: %w", ErrArtifactIO, err)
	}

	return nil
}

// Tickers lists the tickers that have a stored snapshot
func (snapshots *SnapshotStore) Tickers(ctx context.Context) ([]string, error) {
	objects, err := snapshots.Store.List(ctx, FinancialsPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactIO, err)
	}

	tickers := make([]string, 0, len(objects))
	for _, obj := range objects {
		if ticker, ok := tickerFromSnapshotKey(obj.Key); ok {
			tickers = append(tickers, ticker)
		}
	}

	return tickers, nil
}

// EncodeSnapshot serializes snapshot after rebuilding its coverage
// list. Map keys are written in sorted order so identical snapshots
// encode to identical bytes.
func EncodeSnapshot(snapshot *data.Snapshot) ([]byte, error) {
	snapshot.Normalize()
	return json.MarshalIndent(snapshot, "", "  ")
}

// DecodeSnapshot parses a stored snapshot; any parse failure is reported as
// ErrSnapshotCorrupt
func DecodeSnapshot(contents []byte) (*data.Snapshot, error) {
	snapshot := &data.Snapshot{}
	if err := json.Unmarshal(contents, snapshot); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotCorrupt, err)
	}

	if snapshot.Meta.Ticker == "" && len(snapshot.Items) == 0 && len(snapshot.Meta.PeriodKeys) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrSnapshotCorrupt)
	}

	for key, item := range snapshot.Items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %q is null", ErrSnapshotCorrupt, key)
		}
	}

	snapshot.Normalize()

	return snapshot, nil
}

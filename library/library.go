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
	"time"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/objstore"
)

// Library bundles the artifact stores of one data directory together with the
// optional run ledger
type Library struct {
	Name  string
	Owner string

	Store     objstore.Store
	Snapshots *SnapshotStore
	Universe  *UniverseStore

	// Ledger is nil unless Connect was called
	Ledger *Ledger
}

// Stats summarizes the snapshots held by a library
type Stats struct {
	NumTracked   int
	NumSnapshots int
	NumItems     int
	NumValues    int
	NumNull      int
	LastUpdated  time.Time
	LastPeriod   data.Period
}

// New creates a library on top of store. Snapshots are cached for cacheTTL.
func New(store objstore.Store, cacheTTL time.Duration) *Library {
	return &Library{
		Store:     store,
		Snapshots: NewSnapshotStore(store, NewCache[*data.Snapshot](cacheTTL)),
		Universe:  NewUniverseStore(store),
	}
}

// SetCacheControl sets the Cache-Control header used for every artifact write
func (myLibrary *Library) SetCacheControl(cacheControl string) {
	myLibrary.Snapshots.CacheControl = cacheControl
	myLibrary.Universe.CacheControl = cacheControl
}

// Connect opens the run ledger database
func (myLibrary *Library) Connect(ctx context.Context, dbURL string) error {
	if myLibrary.Ledger != nil {
		return nil
	}

	ledger, err := NewLedger(ctx, dbURL)
	if err != nil {
		return err
	}

	myLibrary.Ledger = ledger
	return nil
}

// Close the ledger connection pool, if any
func (myLibrary *Library) Close() {
	if myLibrary.Ledger != nil {
		myLibrary.Ledger.Close()
		myLibrary.Ledger = nil
	}
}

// RecordRun stores summary in the ledger; it is a no-op without a ledger
func (myLibrary *Library) RecordRun(ctx context.Context, summary *data.RunSummary) error {
	if myLibrary.Ledger == nil {
		return nil
	}
	return myLibrary.Ledger.Record(ctx, summary)
}

// Stats loads every stored snapshot and counts its contents
func (myLibrary *Library) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	universe, err := myLibrary.Universe.Load(ctx)
	if err != nil {
		return nil, err
	}
	stats.NumTracked = len(universe)

	tickers, err := myLibrary.Snapshots.Tickers(ctx)
	if err != nil {
		return nil, err
	}

	for _, ticker := range tickers {
		snapshot, err := myLibrary.Snapshots.Load(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			continue
		}

		stats.NumSnapshots++
		stats.NumItems += len(snapshot.Items)

		for _, item := range snapshot.Items {
			for _, val := range item.Values {
				if val == nil {
					stats.NumNull++
				} else {
					stats.NumValues++
				}
			}
		}

		if snapshot.Meta.FetchedAt.After(stats.LastUpdated) {
			stats.LastUpdated = snapshot.Meta.FetchedAt
		}

		if last, ok := snapshot.LastPeriod(); ok && stats.LastPeriod.Before(last) {
			stats.LastPeriod = last
		}
	}

	return stats, nil
}

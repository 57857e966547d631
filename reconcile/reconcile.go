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
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 8

var (
	ErrInvalidUniverseInput = errors.New("invalid universe input")
)

// Bootstrapper fetches the full history of a ticker that has no snapshot
type Bootstrapper interface {
	Bootstrap(ctx context.Context, ticker string) (*data.UpdateResult, error)
}

type UniverseStore interface {
	Load(ctx context.Context) (data.Universe, error)
	Save(ctx context.Context, universe data.Universe) error
}

// SnapshotDeleter removes the stored snapshot of a ticker
type SnapshotDeleter interface {
	Delete(ctx context.Context, ticker string) error
}

type Options struct {
	// DeleteRemote also removes the artifacts of dropped tickers from Remote
	DeleteRemote bool

	// Upload syncs every local artifact to Mirror once the run is done
	Upload bool

	Workers      int
	CacheControl string
}

// Reconciler applies the difference between the stored universe and a
// candidate universe: new tickers are bootstrapped and dropped tickers lose
// their artifacts.
type Reconciler struct {
	Universe  UniverseStore
	Snapshots SnapshotDeleter
	Updater   Bootstrapper

	// Local holds the artifacts of every ticker
	Local objstore.Store

	// Remote is only needed when DeleteRemote is set
	Remote objstore.Store

	// Mirror receives the bulk sync; Remote is used when it is nil
	Mirror objstore.Writer

	Options Options
}

// ReadCandidates loads a candidate universe file. A file that is missing,
// unreadable or lists no tickers is rejected.
func ReadCandidates(fn string) (data.Universe, error) {
	contents, err := os.ReadFile(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUniverseInput, err)
	}

	universe := data.ParseUniverse(string(contents))
	if len(universe) == 0 {
		return nil, fmt.Errorf("%w: %s lists no tickers", ErrInvalidUniverseInput, fn)
	}

	return universe, nil
}

// Run reconciles the stored universe against candidates. The returned error
// is non-nil only for failures that abort the run (reading or writing the
// universe, or an invalid configuration); per-ticker failures are reported in
// the summary.
func (reconciler *Reconciler) Run(ctx context.Context, candidates data.Universe) (*data.RunSummary, error) {
	logger := zerolog.Ctx(ctx)
	summary := data.NewRunSummary("reconcile")

	if len(candidates) == 0 {
		return summary, fmt.Errorf("%w: empty candidate list", ErrInvalidUniverseInput)
	}

	if reconciler.Options.DeleteRemote && reconciler.Remote == nil {
		return summary, fmt.Errorf("%w: remote deletion requested without a remote store", ErrInvalidUniverseInput)
	}

	old, err := reconciler.Universe.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("could not load the current universe")
		return summary, err
	}

	next := data.NewUniverse(candidates...)
	diff := data.Diff(old, next)

	logger.Info().Int("NumOld", len(old)).Int("NumNew", len(next)).Int("NumAdded", len(diff.Added)).
		Int("NumRemoved", len(diff.Removed)).Msg("computed universe diff")

	// the universe is the source of truth even if per-ticker work fails below
	if err := reconciler.Universe.Save(ctx, next); err != nil {
		return summary, err
	}

	summary.Added = append(summary.Added, diff.Added...)
	summary.Removed = append(summary.Removed, diff.Removed...)

	for _, ticker := range diff.Removed {
		reconciler.remove(ctx, ticker)
	}

	reconciler.bootstrapAll(ctx, diff.Added, summary)

	if reconciler.Options.Upload {
		reconciler.upload(ctx, summary)
	}

	summary.Finish()
	logger.Info().EmbedObject(summary).Msg("reconciliation finished")

	return summary, nil
}

// remove deletes every artifact of ticker. Failures are logged and never
// stop the run.
func (reconciler *Reconciler) remove(ctx context.Context, ticker string) {
	logger := zerolog.Ctx(ctx).With().Str("Ticker", ticker).Logger()

	if err := reconciler.Snapshots.Delete(ctx, ticker); err != nil {
		logger.Error().Err(err).Msg("could not delete local snapshot")
	}

	if err := reconciler.Local.Delete(ctx, library.DisclosurePrefix(ticker), true); err != nil {
		logger.Error().Err(err).Msg("could not delete local disclosures")
	}

	if reconciler.Options.DeleteRemote {
		if err := reconciler.Remote.Delete(ctx, library.SnapshotKey(ticker), false); err != nil {
			logger.Error().Err(err).Msg("could not delete remote snapshot")
		}
		if err := reconciler.Remote.Delete(ctx, library.DisclosurePrefix(ticker), true); err != nil {
			logger.Error().Err(err).Msg("could not delete remote disclosures")
		}
	}

	logger.Info().Bool("Remote", reconciler.Options.DeleteRemote).Msg("removed ticker")
}

func (reconciler *Reconciler) bootstrapAll(ctx context.Context, tickers []string, summary *data.RunSummary) {
	workers := reconciler.Options.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, ticker := range tickers {
		ticker := ticker
		group.Go(func() error {
			_, err := reconciler.Updater.Bootstrap(groupCtx, ticker)
			if err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("Ticker", ticker).Msg("bootstrap failed")

				mu.Lock()
				summary.Fail(ticker, err)
				mu.Unlock()
			}
			return nil
		})
	}

	// failures are recorded per ticker
	_ = group.Wait()
}

func (reconciler *Reconciler) upload(ctx context.Context, summary *data.RunSummary) {
	logger := zerolog.Ctx(ctx)

	mirror := reconciler.Mirror
	if mirror == nil && reconciler.Remote != nil {
		mirror = reconciler.Remote
	}

	if mirror == nil {
		logger.Error().Msg("upload requested but no remote target is configured")
		summary.UploadFailed++
		return
	}

	result, err := objstore.Sync(ctx, reconciler.Local, mirror, "", reconciler.Options.CacheControl, reconciler.Options.Workers)
	summary.Uploaded = result.Uploaded
	summary.UploadFailed = result.Failed
	if err != nil {
		logger.Error().Err(err).Msg("bulk sync did not complete")
		if result.Failed == 0 {
			summary.UploadFailed = 1
		}
	}
}

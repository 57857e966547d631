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
package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/penny-vault/bistdata/data"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBackfill is how many of the newest known periods are fetched
	// again on every incremental update
	DefaultBackfill = 4

	DefaultCooldown = 350 * time.Millisecond
	DefaultWorkers  = 8
)

var (
	ErrInvalidConfig = errors.New("invalid updater configuration")
)

// Fetcher returns the statement rows of one ticker for 1 to 4 periods
type Fetcher interface {
	FetchQuad(ctx context.Context, ticker, financialGroup, currency string, periods []data.Period) ([]data.RawRow, error)
}

// SnapshotStore loads and saves per-ticker snapshots. Load returns nil for a
// ticker that has never been fetched.
type SnapshotStore interface {
	Load(ctx context.Context, ticker string) (*data.Snapshot, error)
	Save(ctx context.Context, snapshot *data.Snapshot) error
}

type Config struct {
	Earliest       data.Period
	Backfill       int
	ChunkSize      int
	Cooldown       time.Duration
	FinancialGroup string
	Currency       string

	// Groups overrides FinancialGroup for individual tickers
	Groups map[string]string

	IdentityOrder []data.IdentityKind
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Earliest:       data.EarliestPeriod,
		Backfill:       DefaultBackfill,
		ChunkSize:      4,
		Cooldown:       DefaultCooldown,
		FinancialGroup: "XI_29",
		Currency:       "TRY",
		IdentityOrder:  data.DefaultIdentityOrder,
	}
}

func (cfg Config) validate() error {
	switch {
	case !cfg.Earliest.Valid():
		return fmt.Errorf("%w: earliest period %s", ErrInvalidConfig, cfg.Earliest)
	case cfg.Backfill < 1:
		return fmt.Errorf("%w: backfill must be at least 1, got %d", ErrInvalidConfig, cfg.Backfill)
	case cfg.ChunkSize < 1 || cfg.ChunkSize > 4:
		return fmt.Errorf("%w: chunk size must be between 1 and 4, got %d", ErrInvalidConfig, cfg.ChunkSize)
	case cfg.Cooldown < 0:
		return fmt.Errorf("%w: negative cooldown", ErrInvalidConfig)
	}
	return nil
}

// Updater brings the snapshot of one ticker up to the current reporting
// period. Chunks of a single ticker are always fetched one after the other
// with Cooldown between calls; different tickers may be updated concurrently.
type Updater struct {
	Config Config

	fetcher Fetcher
	store   SnapshotStore
	now     func() time.Time
}

func New(fetcher Fetcher, store SnapshotStore, cfg Config) (*Updater, error) {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 4
	}
	if len(cfg.IdentityOrder) == 0 {
		cfg.IdentityOrder = data.DefaultIdentityOrder
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Updater{
		Config:  cfg,
		fetcher: fetcher,
		store:   store,
		now:     time.Now,
	}, nil
}

// SetClock replaces the time source used to compute the current period
func (updater *Updater) SetClock(now func() time.Time) {
	updater.now = now
}

func (updater *Updater) financialGroup(ticker string) string {
	if group, ok := updater.Config.Groups[ticker]; ok && group != "" {
		return group
	}
	if group, ok := updater.Config.Groups[data.NormalizeTicker(ticker)]; ok && group != "" {
		return group
	}
	return updater.Config.FinancialGroup
}

// Update loads the snapshot of ticker and bootstraps it, refreshes it or
// leaves it alone depending on what is already stored. The returned error is
// non-nil whenever the result is in the Failed state; partial progress has
// been saved by then.
func (updater *Updater) Update(ctx context.Context, ticker string) (*data.UpdateResult, error) {
	ticker = data.NormalizeTicker(ticker)
	logger := zerolog.Ctx(ctx).With().Str("Ticker", ticker).Logger()
	ctx = logger.WithContext(ctx)

	snapshot, err := updater.store.Load(ctx, ticker)
	if err != nil {
		logger.Error().Err(err).Msg("could not load snapshot")
		return failedResult(ticker, err)
	}

	if snapshot == nil {
		return updater.bootstrap(ctx, ticker)
	}

	last, ok := snapshot.LastPeriod()
	if !ok {
		logger.Warn().Msg("snapshot has no coverage, bootstrapping")
		return updater.bootstrap(ctx, ticker)
	}

	current := data.CurrentPeriod(updater.now())
	missing, hasGap := snapshot.FirstMissing(updater.Config.Earliest)

	if !hasGap && !last.Before(current) {
		logger.Debug().Str("LastPeriod", last.String()).Msg("snapshot is up to date")
		return &data.UpdateResult{
			Ticker: ticker,
			State:  data.UpToDate,
			Start:  last.Key(),
			End:    last.Key(),
		}, nil
	}

	start := last
	if updater.Config.Backfill > 1 {
		start = data.PreviousPeriods(last, updater.Config.Backfill-1)[0]
	}
	if start.Before(updater.Config.Earliest) {
		start = updater.Config.Earliest
	}

	// windows lost to an earlier failed chunk are fetched again
	if hasGap && missing.Before(start) {
		logger.Warn().Str("FirstMissing", missing.String()).Msg("snapshot has a coverage gap, refetching from it")
		start = missing
	}

	periods := data.PeriodsBetween(start, current)
	logger.Info().Str("LastPeriod", last.String()).Str("Start", start.String()).Str("End", current.String()).
		Msg("updating snapshot")

	return updater.fetch(ctx, snapshot, data.NeedsUpdate, periods)
}

// Bootstrap fetches the full history of ticker into a fresh snapshot,
// ignoring anything already stored
func (updater *Updater) Bootstrap(ctx context.Context, ticker string) (*data.UpdateResult, error) {
	ticker = data.NormalizeTicker(ticker)
	logger := zerolog.Ctx(ctx).With().Str("Ticker", ticker).Logger()
	return updater.bootstrap(logger.WithContext(ctx), ticker)
}

func (updater *Updater) bootstrap(ctx context.Context, ticker string) (*data.UpdateResult, error) {
	current := data.CurrentPeriod(updater.now())
	periods := data.PeriodsBetween(updater.Config.Earliest, current)

	zerolog.Ctx(ctx).Info().Str("Start", updater.Config.Earliest.String()).Str("End", current.String()).
		Int("NumPeriods", len(periods)).Msg("bootstrapping snapshot")

	snapshot := data.NewSnapshot(ticker, updater.financialGroup(ticker), updater.Config.Currency)
	return updater.fetch(ctx, snapshot, data.NoSnapshot, periods)
}

// fetch requests periods in chunks, merging every successful chunk into
// snapshot. A failed chunk is recorded and skipped; the hole it leaves in the
// coverage is refetched by the next Update. The snapshot is saved when at
// least one chunk succeeded.
func (updater *Updater) fetch(ctx context.Context, snapshot *data.Snapshot, state data.UpdateState, periods []data.Period) (*data.UpdateResult, error) {
	logger := zerolog.Ctx(ctx)
	ticker := snapshot.Meta.Ticker

	result := &data.UpdateResult{
		Ticker:       ticker,
		State:        state,
		NumRequested: len(periods),
	}

	if len(periods) == 0 {
		result.State = data.UpToDate
		return result, nil
	}

	result.Start = periods[0].Key()
	result.End = periods[len(periods)-1].Key()

	group := updater.financialGroup(ticker)
	chunks := data.Chunk(periods, updater.Config.ChunkSize)
	result.NumChunks = len(chunks)

	limiter := rate.NewLimiter(rate.Every(updater.Config.Cooldown), 1)

	for _, chunk := range chunks {
		if err := limiter.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("update interrupted")
			result.Errors = append(result.Errors, err)
			break
		}

		rows, err := updater.fetcher.FetchQuad(ctx, ticker, group, updater.Config.Currency, chunk)

		// the cooldown starts when the call returns, however long it took
		limiter = drainedLimiter(updater.Config.Cooldown)

		if err != nil {
			logger.Warn().Err(err).Str("First", chunk[0].String()).Str("Last", chunk[len(chunk)-1].String()).
				Msg("chunk fetch failed, continuing with the next chunk")
			result.ChunksFailed++
			result.Errors = append(result.Errors, fmt.Errorf("chunk %s-%s: %w", chunk[0], chunk[len(chunk)-1], err))
			continue
		}

		snapshot.Merge(rows, chunk, updater.Config.IdentityOrder)
		result.ChunksFetched++
	}

	if len(result.Errors) > 0 {
		result.State = data.Failed
	}

	if result.ChunksFetched == 0 {
		logger.Error().EmbedObject(result).Msg("no chunk could be fetched, snapshot left unchanged")
		return result, result.Err()
	}

	snapshot.Meta.FinancialGroup = group
	snapshot.Meta.Currency = updater.Config.Currency
	snapshot.Meta.FetchedAt = updater.now().UTC()

	if err := updater.store.Save(ctx, snapshot); err != nil {
		result.State = data.Failed
		result.Errors = append(result.Errors, err)
		logger.Error().Err(err).Msg("could not save snapshot")
		return result, result.Err()
	}

	result.Saved = true

	if result.State == data.Failed {
		logger.Warn().EmbedObject(result).Msg("saved partial snapshot")
	} else {
		logger.Info().EmbedObject(result).Msg("saved snapshot")
	}

	return result, result.Err()
}

// drainedLimiter returns a limiter whose next event is allowed one cooldown
// from now
func drainedLimiter(cooldown time.Duration) *rate.Limiter {
	limiter := rate.NewLimiter(rate.Every(cooldown), 1)
	limiter.Allow()
	return limiter
}

func failedResult(ticker string, err error) (*data.UpdateResult, error) {
	result := &data.UpdateResult{
		Ticker: ticker,
		State:  data.Failed,
		Errors: []error{err},
	}
	return result, result.Err()
}

// UpdateAll runs Update for every ticker on at most workers goroutines and
// records the outcome in summary. A failure of one ticker never stops the
// others.
func (updater *Updater) UpdateAll(ctx context.Context, tickers []string, workers int, summary *data.RunSummary) []*data.UpdateResult {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var mu sync.Mutex
	results := make([]*data.UpdateResult, len(tickers))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for idx, ticker := range tickers {
		idx, ticker := idx, ticker
		group.Go(func() error {
			result, err := updater.Update(groupCtx, ticker)

			mu.Lock()
			defer mu.Unlock()

			results[idx] = result
			switch {
			case err != nil:
				summary.Fail(result.Ticker, err)
			case result.State == data.UpToDate:
				summary.Skipped = append(summary.Skipped, result.Ticker)
			default:
				summary.Updated = append(summary.Updated, result.Ticker)
			}

			return nil
		})
	}

	// per-ticker errors are collected in summary
	_ = group.Wait()

	return results
}

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
package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type UpdateState string

const (
	NoSnapshot  UpdateState = "no-snapshot"
	UpToDate    UpdateState = "up-to-date"
	NeedsUpdate UpdateState = "needs-update"
	Failed      UpdateState = "failed"
)

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// UpdateResult describes what one incremental update did for one ticker.
// State is the state the update started in, or Failed when any chunk failed.
type UpdateResult struct {
	Ticker        string
	State         UpdateState
	Start         PeriodKey
	End           PeriodKey
	NumRequested  int
	NumChunks     int
	ChunksFetched int
	ChunksFailed  int
	Saved         bool
	Errors        []error
}

func (result *UpdateResult) Failed() bool {
	return result.State == Failed
}

// Err joins the recorded chunk errors, nil when there are none
func (result *UpdateResult) Err() error {
	if len(result.Errors) == 0 {
		return nil
	}
	if result.ChunksFailed > 0 {
		return fmt.Errorf("%s: %d of %d chunks failed: %w", result.Ticker, result.ChunksFailed, result.NumChunks, result.Errors[0])
	}
	return fmt.Errorf("%s: %w", result.Ticker, result.Errors[0])
}

func (result *UpdateResult) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", result.Ticker)
	e.Str("State", string(result.State))
	if result.Start != "" {
		e.Str("Start", string(result.Start))
		e.Str("End", string(result.End))
	}
	e.Int("NumRequested", result.NumRequested)
	e.Int("ChunksFetched", result.ChunksFetched)
	e.Int("ChunksFailed", result.ChunksFailed)
	e.Bool("Saved", result.Saved)
}

// RunSummary is the operator-facing outcome of a batch run (reconcile or update)
type RunSummary struct {
	ID        uuid.UUID
	Kind      string
	StartTime time.Time
	EndTime   time.Time

	Added   []string
	Removed []string
	Updated []string
	Skipped []string

	// Failed maps a ticker to the error that made it fail
	Failed map[string]string

	Uploaded     int
	UploadFailed int

	Status RunStatus
}

func NewRunSummary(kind string) *RunSummary {
	return &RunSummary{
		ID:        uuid.New(),
		Kind:      kind,
		StartTime: time.Now(),
		Added:     []string{},
		Removed:   []string{},
		Updated:   []string{},
		Skipped:   []string{},
		Failed:    make(map[string]string),
		Status:    RunSuccess,
	}
}

func (summary *RunSummary) Fail(ticker string, err error) {
	summary.Failed[ticker] = err.Error()
}

// FailedTickers returns the failed tickers in sorted order
func (summary *RunSummary) FailedTickers() []string {
	tickers := make([]string, 0, len(summary.Failed))
	for ticker := range summary.Failed {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	return tickers
}

// Finish stamps the end time and derives the run status
func (summary *RunSummary) Finish() {
	summary.EndTime = time.Now()

	sort.Strings(summary.Added)
	sort.Strings(summary.Removed)
	sort.Strings(summary.Updated)
	sort.Strings(summary.Skipped)

	switch {
	case len(summary.Failed) == 0 && summary.UploadFailed == 0:
		summary.Status = RunSuccess
	case len(summary.Failed) == 0:
		summary.Status = RunPartial
	case summary.numSucceeded() > 0:
		summary.Status = RunPartial
	default:
		summary.Status = RunFailed
	}
}

// numSucceeded counts the distinct tickers that were touched and did not fail
func (summary *RunSummary) numSucceeded() int {
	succeeded := make(map[string]struct{})
	for _, list := range [][]string{summary.Added, summary.Removed, summary.Updated, summary.Skipped} {
		for _, ticker := range list {
			if _, failed := summary.Failed[ticker]; !failed {
				succeeded[ticker] = struct{}{}
			}
		}
	}
	return len(succeeded)
}

func (summary *RunSummary) Duration() time.Duration {
	return summary.EndTime.Sub(summary.StartTime)
}

func (summary *RunSummary) MarshalZerologObject(e *zerolog.Event) {
	e.Str("RunID", summary.ID.String())
	e.Str("Kind", summary.Kind)
	e.Int("NumAdded", len(summary.Added))
	e.Int("NumRemoved", len(summary.Removed))
	e.Int("NumUpdated", len(summary.Updated))
	e.Int("NumSkipped", len(summary.Skipped))
	e.Int("NumFailed", len(summary.Failed))
	if summary.Uploaded > 0 || summary.UploadFailed > 0 {
		e.Int("NumUploaded", summary.Uploaded)
		e.Int("NumUploadFailed", summary.UploadFailed)
	}
	e.Str("Status", string(summary.Status))
}

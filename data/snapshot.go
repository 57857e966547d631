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
	"time"

	"github.com/rs/zerolog"
)

type SnapshotMeta struct {
	Ticker         string    `json:"ticker"`
	FinancialGroup string    `json:"financialGroup"`
	Currency       string    `json:"currency"`
	FetchedAt      time.Time `json:"fetchedAt"`

	// PeriodKeys lists every period that was requested for the ticker,
	// ascending and de-duplicated, whether or not any item has a value there.
	PeriodKeys []PeriodKey `json:"periodKeys"`
}

// Snapshot is the persisted financial-statement document of one ticker
type Snapshot struct {
	Meta  SnapshotMeta         `json:"meta"`
	Items map[string]*LineItem `json:"items"`
}

func NewSnapshot(ticker, financialGroup, currency string) *Snapshot {
	return &Snapshot{
		Meta: SnapshotMeta{
			Ticker:         ticker,
			FinancialGroup: financialGroup,
			Currency:       currency,
			PeriodKeys:     []PeriodKey{},
		},
		Items: make(map[string]*LineItem),
	}
}

// LastPeriod returns the newest covered period. ok is false when the snapshot
// has no parseable coverage.
func (snapshot *Snapshot) LastPeriod() (period Period, ok bool) {
	keys := MergePeriodKeys(snapshot.Meta.PeriodKeys)
	if len(keys) == 0 {
		return Period{}, false
	}

	period, err := keys[len(keys)-1].Period()
	if err != nil {
		return Period{}, false
	}

	return period, true
}

// FirstMissing returns the earliest period between earliest and the newest
// covered period that is not covered. ok is false when coverage has no gaps.
func (snapshot *Snapshot) FirstMissing(earliest Period) (period Period, ok bool) {
	last, ok := snapshot.LastPeriod()
	if !ok {
		return Period{}, false
	}

	covered := make(map[PeriodKey]struct{}, len(snapshot.Meta.PeriodKeys))
	for _, key := range MergePeriodKeys(snapshot.Meta.PeriodKeys) {
		covered[key] = struct{}{}
	}

	for _, candidate := range PeriodsBetween(earliest, last) {
		if _, found := covered[candidate.Key()]; !found {
			return candidate, true
		}
	}

	return Period{}, false
}

// Merge folds one fetched quad into the snapshot and records the quad's
// periods as covered.
func (snapshot *Snapshot) Merge(rows []RawRow, quad []Period, order []IdentityKind) {
	snapshot.Items = MergeRows(snapshot.Items, rows, quad, order)
	snapshot.AddCoverage(quad)
}

// AddCoverage unions periods into Meta.PeriodKeys
func (snapshot *Snapshot) AddCoverage(periods []Period) {
	snapshot.Meta.PeriodKeys = MergePeriodKeys(snapshot.Meta.PeriodKeys, PeriodKeys(periods))
}

// Normalize rebuilds the coverage list: PeriodKeys becomes the
// sorted union of itself and every period key found in any item.
func (snapshot *Snapshot) Normalize() {
	if snapshot.Items == nil {
		snapshot.Items = make(map[string]*LineItem)
	}

	observed := make([]PeriodKey, 0)
	for _, item := range snapshot.Items {
		if item.Values == nil {
			item.Values = make(map[PeriodKey]*float64)
		}
		for key := range item.Values {
			observed = append(observed, key)
		}
	}

	snapshot.Meta.PeriodKeys = MergePeriodKeys(snapshot.Meta.PeriodKeys, observed)
}

func (snapshot *Snapshot) Clone() *Snapshot {
	clone := &Snapshot{
		Meta:  snapshot.Meta,
		Items: make(map[string]*LineItem, len(snapshot.Items)),
	}

	clone.Meta.PeriodKeys = append([]PeriodKey{}, snapshot.Meta.PeriodKeys...)
	for key, item := range snapshot.Items {
		clone.Items[key] = item.Clone()
	}

	return clone
}

func (snapshot *Snapshot) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", snapshot.Meta.Ticker)
	e.Str("FinancialGroup", snapshot.Meta.FinancialGroup)
	e.Str("Currency", snapshot.Meta.Currency)
	e.Int("NumItems", len(snapshot.Items))
	e.Int("NumPeriods", len(snapshot.Meta.PeriodKeys))
	if period, ok := snapshot.LastPeriod(); ok {
		e.Str("LastPeriod", period.String())
	}
}

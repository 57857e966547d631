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
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
)

// quarterLabels are the cumulative quarter-end months used by the upstream
// API, in canonical order.
var quarterLabels = [4]int{3, 6, 9, 12}

// Period is a fiscal reporting marker. Quarter holds the cumulative
// quarter-end month (3, 6, 9 or 12).
type Period struct {
	Year    int
	Quarter int
}

// PeriodKey is the canonical string form of a Period ("2024/6"). Always build
// one with Period.Key so keys compare and sort consistently.
type PeriodKey string

// EarliestPeriod is the first period the upstream API serves statements for.
var EarliestPeriod = Period{Year: 2008, Quarter: 3}

// Key returns the canonical "{year}/{quarter}" form of the period
func (period Period) Key() PeriodKey {
	return PeriodKey(fmt.Sprintf("%d/%d", period.Year, period.Quarter))
}

func (period Period) String() string {
	return string(period.Key())
}

// Valid reports whether the quarter label is one of 3, 6, 9 or 12
func (period Period) Valid() bool {
	return quarterIndex(period.Quarter) >= 0
}

// Compare returns -1, 0 or 1 depending on whether period sorts before, equal
// to or after other
func (period Period) Compare(other Period) int {
	switch {
	case period.Year < other.Year:
		return -1
	case period.Year > other.Year:
		return 1
	case period.Quarter < other.Quarter:
		return -1
	case period.Quarter > other.Quarter:
		return 1
	}
	return 0
}

func (period Period) Before(other Period) bool {
	return period.Compare(other) < 0
}

// Next returns the period immediately following this one
func (period Period) Next() Period {
	idx := quarterIndex(period.Quarter)
	if idx == len(quarterLabels)-1 {
		return Period{Year: period.Year + 1, Quarter: quarterLabels[0]}
	}
	return Period{Year: period.Year, Quarter: quarterLabels[idx+1]}
}

// Prev returns the period immediately preceding this one
func (period Period) Prev() Period {
	idx := quarterIndex(period.Quarter)
	if idx <= 0 {
		return Period{Year: period.Year - 1, Quarter: quarterLabels[len(quarterLabels)-1]}
	}
	return Period{Year: period.Year, Quarter: quarterLabels[idx-1]}
}

// Period parses the key back into a Period
func (key PeriodKey) Period() (Period, error) {
	return ParsePeriod(string(key))
}

// ParsePeriod parses a "{year}/{quarter}" string
func ParsePeriod(s string) (Period, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	quarter, err := strconv.Atoi(parts[1])
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	period := Period{Year: year, Quarter: quarter}
	if !period.Valid() {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}

	return period, nil
}

// CurrentPeriod maps the calendar month of now onto the label of the quarter
// it falls in. The in-progress quarter is returned, not the last completed
// one; it is only used as the upper bound of a fetch window.
func CurrentPeriod(now time.Time) Period {
	month := int(now.Month())
	return Period{Year: now.Year(), Quarter: ((month-1)/3 + 1) * 3}
}

// PeriodsBetween enumerates every period from start to end inclusive in
// canonical order. The result is empty when start is after end.
func PeriodsBetween(start, end Period) []Period {
	if !start.Valid() || !end.Valid() || end.Before(start) {
		return []Period{}
	}

	periods := make([]Period, 0, (end.Year-start.Year+1)*len(quarterLabels))
	for cur := start; !end.Before(cur); cur = cur.Next() {
		periods = append(periods, cur)
	}

	return periods
}

// PreviousPeriods walks n steps back from `from` and returns those periods in
// ascending order; `from` itself is not included.
func PreviousPeriods(from Period, n int) []Period {
	if n <= 0 {
		return []Period{}
	}

	periods := make([]Period, n)
	cur := from
	for ii := n - 1; ii >= 0; ii-- {
		cur = cur.Prev()
		periods[ii] = cur
	}

	return periods
}

// Chunk splits items into contiguous groups of at most size elements
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		panic("chunk size must be positive")
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}

	return chunks
}

// MergePeriodKeys returns the sorted, de-duplicated union of the given key
// lists. Keys that do not parse are dropped.
func MergePeriodKeys(lists ...[]PeriodKey) []PeriodKey {
	seen := make(map[Period]struct{})
	for _, list := range lists {
		for _, key := range list {
			period, err := key.Period()
			if err != nil {
				continue
			}
			seen[period] = struct{}{}
		}
	}

	periods := make([]Period, 0, len(seen))
	for period := range seen {
		periods = append(periods, period)
	}

	sort.Slice(periods, func(i, j int) bool {
		return periods[i].Before(periods[j])
	})

	return PeriodKeys(periods)
}

// PeriodKeys converts periods to their canonical keys, preserving order
func PeriodKeys(periods []Period) []PeriodKey {
	keys := make([]PeriodKey, len(periods))
	for idx, period := range periods {
		keys[idx] = period.Key()
	}
	return keys
}

func quarterIndex(quarter int) int {
	for idx, label := range quarterLabels {
		if label == quarter {
			return idx
		}
	}
	return -1
}

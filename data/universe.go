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
	"bufio"
	"sort"
	"strings"
)

// Universe is the sorted, de-duplicated, upper-cased set of tracked tickers
type Universe []string

// NewUniverse normalizes tickers into a Universe. Blank entries are dropped.
func NewUniverse(tickers ...string) Universe {
	seen := make(map[string]struct{}, len(tickers))
	universe := make(Universe, 0, len(tickers))

	for _, ticker := range tickers {
		ticker = NormalizeTicker(ticker)
		if ticker == "" {
			continue
		}
		if _, ok := seen[ticker]; ok {
			continue
		}
		seen[ticker] = struct{}{}
		universe = append(universe, ticker)
	}

	sort.Strings(universe)
	return universe
}

// ParseUniverse reads a newline-delimited ticker list. Lines starting with
// '#' are comments.
func ParseUniverse(text string) Universe {
	tickers := make([]string, 0)

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tickers = append(tickers, line)
	}

	return NewUniverse(tickers...)
}

func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Format serializes the universe as one ticker per line
func (universe Universe) Format() string {
	if len(universe) == 0 {
		return ""
	}
	return strings.Join(universe, "\n") + "\n"
}

func (universe Universe) Contains(ticker string) bool {
	ticker = NormalizeTicker(ticker)
	idx := sort.SearchStrings(universe, ticker)
	return idx < len(universe) && universe[idx] == ticker
}

// ReconciliationDiff is the change between two universes
type ReconciliationDiff struct {
	Added   []string
	Removed []string
}

func (diff ReconciliationDiff) Empty() bool {
	return len(diff.Added) == 0 && len(diff.Removed) == 0
}

// Diff compares two universes case-insensitively
func Diff(old, next Universe) ReconciliationDiff {
	old = NewUniverse(old...)
	next = NewUniverse(next...)

	diff := ReconciliationDiff{
		Added:   []string{},
		Removed: []string{},
	}

	for _, ticker := range next {
		if !old.Contains(ticker) {
			diff.Added = append(diff.Added, ticker)
		}
	}

	for _, ticker := range old {
		if !next.Contains(ticker) {
			diff.Removed = append(diff.Removed, ticker)
		}
	}

	return diff
}

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
	"path"
	"strings"

	"github.com/penny-vault/bistdata/data"
)

const (
	FinancialsPrefix  = "financials/"
	DisclosuresPrefix = "disclosures/"
	UniverseKey       = "universe/tickers.txt"
)

// SnapshotKey is the object key of the financial snapshot of ticker
func SnapshotKey(ticker string) string {
	return FinancialsPrefix + data.NormalizeTicker(ticker) + ".json"
}

// DisclosurePrefix is the directory holding the disclosure artifacts of ticker
func DisclosurePrefix(ticker string) string {
	return path.Join(DisclosuresPrefix, data.NormalizeTicker(ticker))
}

func DisclosureSummaryKey(ticker string) string {
	return path.Join(DisclosurePrefix(ticker), "summary.json")
}

// tickerFromSnapshotKey reverses SnapshotKey; ok is false for other keys
func tickerFromSnapshotKey(key string) (ticker string, ok bool) {
	if !strings.HasPrefix(key, FinancialsPrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}

	ticker = strings.TrimSuffix(strings.TrimPrefix(key, FinancialsPrefix), ".json")
	if ticker == "" || strings.Contains(ticker, "/") {
		return "", false
	}

	return ticker, true
}

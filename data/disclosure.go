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

import "time"

type DisclosureType string

const (
	FinancialReport         DisclosureType = "FinancialReport"
	ActivityReport          DisclosureType = "ActivityReport"
	MaterialEvent           DisclosureType = "MaterialEvent"
	GeneralAssembly         DisclosureType = "GeneralAssembly"
	Dividend                DisclosureType = "Dividend"
	ResponsibilityStatement DisclosureType = "ResponsibilityStatement"
	OtherDisclosure         DisclosureType = "Other"
)

// Disclosure is one filing listed on the regulatory portal for a ticker
type Disclosure struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Type        DisclosureType `json:"type"`
	PublishedAt time.Time      `json:"publishedAt"`
	URL         string         `json:"url"`
	Key         string         `json:"key,omitempty"`
	SizeBytes   int            `json:"sizeBytes,omitempty"`
}

// DisclosureSummary is written next to the downloaded documents of a ticker
type DisclosureSummary struct {
	Ticker    string                 `json:"ticker"`
	CrawledAt time.Time              `json:"crawledAt"`
	Counts    map[DisclosureType]int `json:"counts"`
	Documents []*Disclosure          `json:"documents"`
}

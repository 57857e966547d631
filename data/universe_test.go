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
package data_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
)

var _ = Describe("Universe", func() {
	It("normalizes, de-duplicates and sorts tickers", func() {
		universe := data.NewUniverse(" thyao", "AKBNK", "THYAO", "", "garan ")
		Expect(universe).To(Equal(data.Universe{"AKBNK", "GARAN", "THYAO"}))
	})

	It("parses newline-delimited text with comments", func() {
		universe := data.ParseUniverse("# BIST 30\nTHYAO\n\r\n  akbnk\n#ASELS\nTHYAO\n")
		Expect(universe).To(Equal(data.Universe{"AKBNK", "THYAO"}))
	})

	It("formats one ticker per line and round trips", func() {
		universe := data.NewUniverse("B", "A")
		Expect(universe.Format()).To(Equal("A\nB\n"))
		Expect(data.ParseUniverse(universe.Format())).To(Equal(universe))
	})

	It("formats the empty universe as an empty string", func() {
		Expect(data.NewUniverse().Format()).To(Equal(""))
	})

	It("checks membership case-insensitively", func() {
		universe := data.NewUniverse("THYAO")
		Expect(universe.Contains("thyao")).To(BeTrue())
		Expect(universe.Contains("GARAN")).To(BeFalse())
	})

	Describe("Diff", func() {
		It("reports added and removed tickers", func() {
			diff := data.Diff(data.NewUniverse("A", "B", "C"), data.NewUniverse("B", "C", "D"))
			Expect(diff.Added).To(Equal([]string{"D"}))
			Expect(diff.Removed).To(Equal([]string{"A"}))
			Expect(diff.Empty()).To(BeFalse())
		})

		It("treats every candidate as added when the old universe is empty", func() {
			diff := data.Diff(data.Universe{}, data.NewUniverse("A", "B"))
			Expect(diff.Added).To(Equal([]string{"A", "B"}))
			Expect(diff.Removed).To(BeEmpty())
		})

		It("is empty for identical universes regardless of case", func() {
			diff := data.Diff(data.Universe{"a", "b"}, data.NewUniverse("A", "B"))
			Expect(diff.Empty()).To(BeTrue())
		})
	})
})

var _ = Describe("RunSummary", func() {
	It("is successful when nothing failed", func() {
		summary := data.NewRunSummary("reconcile")
		summary.Added = append(summary.Added, "A")
		summary.Finish()
		Expect(summary.Status).To(Equal(data.RunSuccess))
	})

	It("is partial when some tickers succeeded", func() {
		summary := data.NewRunSummary("reconcile")
		summary.Added = append(summary.Added, "B", "A")
		summary.Fail("A", data.ErrInvalidPeriod)
		summary.Finish()
		Expect(summary.Status).To(Equal(data.RunPartial))
		Expect(summary.Added).To(Equal([]string{"A", "B"}))
		Expect(summary.FailedTickers()).To(Equal([]string{"A"}))
	})

	It("is failed when every ticker failed", func() {
		summary := data.NewRunSummary("update")
		summary.Updated = append(summary.Updated, "A")
		summary.Fail("A", data.ErrInvalidPeriod)
		summary.Fail("B", data.ErrInvalidPeriod)
		summary.Finish()
		Expect(summary.Status).To(Equal(data.RunFailed))
	})
})

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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
)

func p(year, quarter int) data.Period {
	return data.Period{Year: year, Quarter: quarter}
}

var _ = Describe("Period", func() {
	Describe("ordering", func() {
		DescribeTable("Compare",
			func(a, b data.Period, expected int) {
				Expect(a.Compare(b)).To(Equal(expected))
				Expect(b.Compare(a)).To(Equal(-expected))
			},
			Entry("earlier year sorts first", p(2019, 12), p(2020, 3), -1),
			Entry("same year, lower label sorts first", p(2020, 3), p(2020, 6), -1),
			Entry("9 before 12", p(2020, 9), p(2020, 12), -1),
			Entry("equal periods", p(2021, 6), p(2021, 6), 0),
		)
	})

	Describe("keys", func() {
		It("formats canonically", func() {
			Expect(p(2024, 6).Key()).To(Equal(data.PeriodKey("2024/6")))
			Expect(p(2008, 12).Key()).To(Equal(data.PeriodKey("2008/12")))
		})

		It("round trips through ParsePeriod", func() {
			period, err := data.PeriodKey("2023/9").Period()
			Expect(err).NotTo(HaveOccurred())
			Expect(period).To(Equal(p(2023, 9)))
		})

		DescribeTable("rejects malformed keys",
			func(input string) {
				_, err := data.ParsePeriod(input)
				Expect(err).To(MatchError(data.ErrInvalidPeriod))
			},
			Entry("missing separator", "20236"),
			Entry("bad label", "2023/5"),
			Entry("non numeric year", "abcd/3"),
			Entry("empty", ""),
		)
	})

	Describe("CurrentPeriod", func() {
		DescribeTable("maps months to the in-progress quarter label",
			func(month time.Month, expected int) {
				now := time.Date(2024, month, 15, 12, 0, 0, 0, time.UTC)
				Expect(data.CurrentPeriod(now)).To(Equal(p(2024, expected)))
			},
			Entry("January", time.January, 3),
			Entry("March", time.March, 3),
			Entry("April", time.April, 6),
			Entry("June", time.June, 6),
			Entry("July", time.July, 9),
			Entry("September", time.September, 9),
			Entry("October", time.October, 12),
			Entry("December", time.December, 12),
		)
	})

	Describe("PeriodsBetween", func() {
		It("is inclusive on both ends", func() {
			Expect(data.PeriodsBetween(p(2023, 9), p(2024, 3))).To(Equal([]data.Period{
				p(2023, 9), p(2023, 12), p(2024, 3),
			}))
		})

		It("returns a single period when start equals end", func() {
			Expect(data.PeriodsBetween(p(2020, 6), p(2020, 6))).To(Equal([]data.Period{p(2020, 6)}))
		})

		It("is empty when start is after end", func() {
			Expect(data.PeriodsBetween(p(2024, 6), p(2024, 3))).To(BeEmpty())
		})

		It("covers 2008/3 through 2024/6 with 67 periods", func() {
			periods := data.PeriodsBetween(data.EarliestPeriod, p(2024, 6))
			Expect(periods).To(HaveLen(67))
			Expect(periods[0]).To(Equal(p(2008, 3)))
			Expect(periods[66]).To(Equal(p(2024, 6)))
		})
	})

	Describe("PreviousPeriods", func() {
		It("returns exactly n ascending periods ending right before from", func() {
			for n := 1; n <= 9; n++ {
				periods := data.PreviousPeriods(p(2024, 3), n)
				Expect(periods).To(HaveLen(n))
				Expect(periods[n-1]).To(Equal(p(2023, 12)))
				for ii := 1; ii < n; ii++ {
					Expect(periods[ii-1].Before(periods[ii])).To(BeTrue())
				}
			}
		})

		It("crosses year boundaries", func() {
			Expect(data.PreviousPeriods(p(2023, 12), 3)).To(Equal([]data.Period{
				p(2023, 3), p(2023, 6), p(2023, 9),
			}))
			Expect(data.PreviousPeriods(p(2024, 6), 3)).To(Equal([]data.Period{
				p(2023, 9), p(2023, 12), p(2024, 3),
			}))
		})

		It("is empty for n = 0", func() {
			Expect(data.PreviousPeriods(p(2024, 3), 0)).To(BeEmpty())
		})
	})

	Describe("Chunk", func() {
		It("splits the bootstrap range into 17 groups of at most 4", func() {
			periods := data.PeriodsBetween(data.EarliestPeriod, p(2024, 6))
			chunks := data.Chunk(periods, 4)
			Expect(chunks).To(HaveLen(17))
			Expect(chunks[16]).To(HaveLen(3))

			flattened := make([]data.Period, 0, len(periods))
			for _, chunk := range chunks {
				Expect(len(chunk)).To(BeNumerically("<=", 4))
				flattened = append(flattened, chunk...)
			}
			Expect(flattened).To(Equal(periods))
		})

		It("returns no chunks for an empty input", func() {
			Expect(data.Chunk([]int{}, 4)).To(BeEmpty())
		})
	})

	Describe("MergePeriodKeys", func() {
		It("sorts numerically rather than lexically and removes duplicates", func() {
			merged := data.MergePeriodKeys(
				[]data.PeriodKey{"2020/12", "2020/3"},
				[]data.PeriodKey{"2020/9", "2020/12", "2019/6"},
			)
			Expect(merged).To(Equal([]data.PeriodKey{"2019/6", "2020/3", "2020/9", "2020/12"}))
		})
	})
})

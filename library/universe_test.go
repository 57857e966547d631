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
package library_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
)

var _ = Describe("UniverseStore", func() {
	var (
		ctx       context.Context
		local     *objstore.Local
		universes *library.UniverseStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		local = objstore.NewLocal(GinkgoT().TempDir())
		universes = library.NewUniverseStore(local)
	})

	It("loads an empty universe when none is stored", func() {
		universe, err := universes.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(universe).To(BeEmpty())
	})

	It("saves a normalized newline-delimited list", func() {
		Expect(universes.Save(ctx, data.Universe{"thyao", "AKBNK", "THYAO"})).To(Succeed())

		text, err := local.ReadText(ctx, library.UniverseKey)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("AKBNK\nTHYAO\n"))

		universe, err := universes.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(universe).To(Equal(data.Universe{"AKBNK", "THYAO"}))
	})

	It("wraps write failures in ErrUniverseWrite", func() {
		universes = library.NewUniverseStore(&failingStore{Local: local, failWrite: true})
		Expect(universes.Save(ctx, data.Universe{"A"})).To(MatchError(library.ErrUniverseWrite))
	})

	It("reports read failures as ErrArtifactIO", func() {
		universes = library.NewUniverseStore(&failingStore{Local: local, failRead: true})
		_, err := universes.Load(ctx)
		Expect(err).To(MatchError(library.ErrArtifactIO))
	})
})

var _ = Describe("Library", func() {
	It("summarizes stored snapshots", func() {
		ctx := context.Background()
		myLibrary := library.New(objstore.NewLocal(GinkgoT().TempDir()), 0)
		myLibrary.Name = "Borsa Istanbul"

		Expect(myLibrary.Universe.Save(ctx, data.NewUniverse("THYAO", "AKBNK"))).To(Succeed())
		Expect(myLibrary.Snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())

		stats, err := myLibrary.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.NumTracked).To(Equal(2))
		Expect(stats.NumSnapshots).To(Equal(1))
		Expect(stats.NumItems).To(Equal(2))
		Expect(stats.NumValues).To(Equal(2))
		Expect(stats.NumNull).To(Equal(2))
		Expect(stats.LastPeriod).To(Equal(data.Period{Year: 2024, Quarter: 3}))

		summary, err := myLibrary.Summary(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(summary).To(ContainSubstring("# Borsa Istanbul"))
		Expect(summary).To(ContainSubstring("Tickers Tracked: 2"))
		Expect(summary).To(ContainSubstring("Latest Period: 2024/3"))
		Expect(summary).NotTo(ContainSubstring("Recent Runs"))
	})
})

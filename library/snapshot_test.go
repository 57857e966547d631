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
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
)

func f(val float64) *float64 {
	return &val
}

// failingStore wraps a local store and fails the configured operations
type failingStore struct {
	*objstore.Local
	failRead  bool
	failWrite bool
}

func (store *failingStore) ReadText(ctx context.Context, key string) (string, error) {
	if store.failRead {
		return "", errors.New("connection reset")
	}
	return store.Local.ReadText(ctx, key)
}

func (store *failingStore) WriteBytes(ctx context.Context, key string, contents []byte, contentType, cacheControl string) error {
	if store.failWrite {
		return errors.New("disk full")
	}
	return store.Local.WriteBytes(ctx, key, contents, contentType, cacheControl)
}

func sampleSnapshot(ticker string) *data.Snapshot {
	snapshot := data.NewSnapshot(ticker, "XI_29", "TRY")
	snapshot.Meta.FetchedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	snapshot.Merge([]data.RawRow{
		{Code: "1A", LabelTr: "Dönen Varlıklar", LabelEn: "Current Assets", Values: []*float64{f(10), nil}},
		{LabelTr: "Diğer", Values: []*float64{nil, f(0)}},
	}, []data.Period{{Year: 2023, Quarter: 12}, {Year: 2024, Quarter: 3}}, nil)
	return snapshot
}

var _ = Describe("SnapshotStore", func() {
	var (
		ctx       context.Context
		local     *objstore.Local
		snapshots *library.SnapshotStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		local = objstore.NewLocal(GinkgoT().TempDir())
		snapshots = library.NewSnapshotStore(local, library.NewCache[*data.Snapshot](time.Minute))
	})

	It("reports a missing snapshot as absent", func() {
		snapshot, err := snapshots.Load(ctx, "THYAO")
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshot).To(BeNil())
	})

	It("round trips a snapshot including nulls and zeros", func() {
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())

		// bypass the cache
		fresh := library.NewSnapshotStore(local, nil)
		loaded, err := fresh.Load(ctx, "thyao")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).NotTo(BeNil())
		Expect(loaded.Meta.Ticker).To(Equal("THYAO"))
		Expect(loaded.Meta.PeriodKeys).To(Equal([]data.PeriodKey{"2023/12", "2024/3"}))
		Expect(*loaded.Items["1A"].Values["2023/12"]).To(Equal(10.0))
		Expect(loaded.Items["1A"].Values).To(HaveKeyWithValue(data.PeriodKey("2024/3"), BeNil()))
		Expect(*loaded.Items["Diğer"].Values["2024/3"]).To(Equal(0.0))
	})

	It("writes the snapshot under financials/{TICKER}.json", func() {
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())
		exists, err := local.Exists(ctx, "financials/THYAO.json")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())
	})

	It("encodes identical snapshots to identical bytes", func() {
		first, err := library.EncodeSnapshot(sampleSnapshot("THYAO"))
		Expect(err).NotTo(HaveOccurred())
		second, err := library.EncodeSnapshot(sampleSnapshot("THYAO"))
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(first))
	})

	It("treats a corrupt snapshot as absent", func() {
		Expect(local.WriteBytes(ctx, "financials/BAD.json", []byte("{not json"), "application/json", "")).To(Succeed())

		snapshot, err := snapshots.Load(ctx, "BAD")
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshot).To(BeNil())
	})

	It("reports storage failures as ErrArtifactIO", func() {
		store := &failingStore{Local: local, failRead: true}
		snapshots = library.NewSnapshotStore(store, nil)

		_, err := snapshots.Load(ctx, "THYAO")
		Expect(err).To(MatchError(library.ErrArtifactIO))

		store.failRead = false
		store.failWrite = true
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(MatchError(library.ErrArtifactIO))
	})

	It("hands out independent copies from the cache", func() {
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())

		first, err := snapshots.Load(ctx, "THYAO")
		Expect(err).NotTo(HaveOccurred())
		*first.Items["1A"].Values["2023/12"] = 99

		second, err := snapshots.Load(ctx, "THYAO")
		Expect(err).NotTo(HaveOccurred())
		Expect(*second.Items["1A"].Values["2023/12"]).To(Equal(10.0))
	})

	It("deletes snapshots and evicts them from the cache", func() {
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())
		Expect(snapshots.Delete(ctx, "THYAO")).To(Succeed())

		snapshot, err := snapshots.Load(ctx, "THYAO")
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshot).To(BeNil())
	})

	It("lists the tickers with snapshots", func() {
		Expect(snapshots.Save(ctx, sampleSnapshot("THYAO"))).To(Succeed())
		Expect(snapshots.Save(ctx, sampleSnapshot("AKBNK"))).To(Succeed())
		Expect(local.WriteBytes(ctx, "financials/notes.txt", []byte("x"), "text/plain", "")).To(Succeed())

		tickers, err := snapshots.Tickers(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(tickers).To(Equal([]string{"AKBNK", "THYAO"}))
	})
})

var _ = Describe("DecodeSnapshot", func() {
	DescribeTable("rejects documents that are not snapshots",
		func(contents string) {
			_, err := library.DecodeSnapshot([]byte(contents))
			Expect(err).To(MatchError(library.ErrSnapshotCorrupt))
		},
		Entry("truncated", `{"meta":{"ticker":"A"`),
		Entry("null", `null`),
		Entry("empty object", `{}`),
		Entry("null item", `{"meta":{"ticker":"A"},"items":{"x":null}}`),
	)

	It("restores the coverage list from item values", func() {
		snapshot, err := library.DecodeSnapshot([]byte(`{"meta":{"ticker":"A","periodKeys":["2024/3"]},
"items":{"1A":{"code":"1A","values":{"2023/12":5,"2024/3":null}}}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(snapshot.Meta.PeriodKeys).To(Equal([]data.PeriodKey{"2023/12", "2024/3"}))
	})
})

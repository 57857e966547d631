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
package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/penny-vault/bistdata/reconcile"
)

var errBootstrap = errors.New("upstream returned 503")

// fakeBootstrapper stores an empty snapshot for every ticker it is asked
// about unless the ticker is listed in fail
type fakeBootstrapper struct {
	mu        sync.Mutex
	snapshots *library.SnapshotStore
	fail      map[string]bool
	tickers   []string
}

func (bootstrapper *fakeBootstrapper) Bootstrap(ctx context.Context, ticker string) (*data.UpdateResult, error) {
	bootstrapper.mu.Lock()
	bootstrapper.tickers = append(bootstrapper.tickers, ticker)
	bootstrapper.mu.Unlock()

	if bootstrapper.fail[ticker] {
		return &data.UpdateResult{Ticker: ticker, State: data.Failed, Errors: []error{errBootstrap}}, errBootstrap
	}

	snapshot := data.NewSnapshot(ticker, "XI_29", "TRY")
	snapshot.AddCoverage([]data.Period{{Year: 2024, Quarter: 3}})
	if err := bootstrapper.snapshots.Save(ctx, snapshot); err != nil {
		return nil, err
	}

	return &data.UpdateResult{Ticker: ticker, State: data.NoSnapshot, Saved: true}, nil
}

func (bootstrapper *fakeBootstrapper) Tickers() []string {
	bootstrapper.mu.Lock()
	defer bootstrapper.mu.Unlock()
	return append([]string{}, bootstrapper.tickers...)
}

// universeWriteFailure rejects writes to the universe file
type universeWriteFailure struct {
	*objstore.Local
}

func (store *universeWriteFailure) WriteBytes(ctx context.Context, key string, contents []byte, contentType, cacheControl string) error {
	if key == library.UniverseKey {
		return errors.New("read-only file system")
	}
	return store.Local.WriteBytes(ctx, key, contents, contentType, cacheControl)
}

var _ = Describe("ReadCandidates", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("normalizes the listed tickers", func() {
		fn := filepath.Join(dir, "tickers.txt")
		Expect(os.WriteFile(fn, []byte("# BIST 100\nthyao\n\n garan \nTHYAO\n"), 0o644)).To(Succeed())

		universe, err := reconcile.ReadCandidates(fn)
		Expect(err).NotTo(HaveOccurred())
		Expect(universe).To(Equal(data.Universe{"GARAN", "THYAO"}))
	})

	It("rejects a missing file", func() {
		_, err := reconcile.ReadCandidates(filepath.Join(dir, "missing.txt"))
		Expect(err).To(MatchError(reconcile.ErrInvalidUniverseInput))
	})

	It("rejects a file without tickers", func() {
		fn := filepath.Join(dir, "empty.txt")
		Expect(os.WriteFile(fn, []byte("# nothing here\n\n"), 0o644)).To(Succeed())

		_, err := reconcile.ReadCandidates(fn)
		Expect(err).To(MatchError(reconcile.ErrInvalidUniverseInput))
	})
})

var _ = Describe("Reconciler", func() {
	var (
		ctx          context.Context
		local        *objstore.Local
		remote       *objstore.Local
		snapshots    *library.SnapshotStore
		universe     *library.UniverseStore
		bootstrapper *fakeBootstrapper
		reconciler   *reconcile.Reconciler
	)

	exists := func(store objstore.Store, key string) bool {
		found, err := store.Exists(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		return found
	}

	BeforeEach(func() {
		ctx = context.Background()
		local = objstore.NewLocal(GinkgoT().TempDir())
		remote = objstore.NewLocal(GinkgoT().TempDir())
		snapshots = library.NewSnapshotStore(local, nil)
		universe = library.NewUniverseStore(local)
		bootstrapper = &fakeBootstrapper{snapshots: snapshots}

		reconciler = &reconcile.Reconciler{
			Universe:  universe,
			Snapshots: snapshots,
			Updater:   bootstrapper,
			Local:     local,
			Remote:    remote,
			Options:   reconcile.Options{Workers: 2},
		}
	})

	It("bootstraps every ticker on the first run", func() {
		summary, err := reconciler.Run(ctx, data.NewUniverse("thyao", "garan"))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Added).To(Equal([]string{"GARAN", "THYAO"}))
		Expect(summary.Removed).To(BeEmpty())
		Expect(summary.Status).To(Equal(data.RunSuccess))
		Expect(bootstrapper.Tickers()).To(ConsistOf("GARAN", "THYAO"))

		stored, err := universe.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(Equal(data.Universe{"GARAN", "THYAO"}))
	})

	It("only touches tickers that changed", func() {
		_, err := reconciler.Run(ctx, data.NewUniverse("THYAO", "GARAN"))
		Expect(err).NotTo(HaveOccurred())
		Expect(local.WriteBytes(ctx, "disclosures/GARAN/summary.json", []byte("{}"), "application/json", "")).To(Succeed())

		bootstrapper.tickers = nil
		summary, err := reconciler.Run(ctx, data.NewUniverse("thyao", "asels"))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Added).To(Equal([]string{"ASELS"}))
		Expect(summary.Removed).To(Equal([]string{"GARAN"}))
		Expect(bootstrapper.Tickers()).To(Equal([]string{"ASELS"}))

		Expect(exists(local, library.SnapshotKey("GARAN"))).To(BeFalse())
		Expect(exists(local, "disclosures/GARAN/summary.json")).To(BeFalse())
		Expect(exists(local, library.SnapshotKey("THYAO"))).To(BeTrue())
	})

	It("is a no-op when the universe is unchanged", func() {
		_, err := reconciler.Run(ctx, data.NewUniverse("THYAO"))
		Expect(err).NotTo(HaveOccurred())

		bootstrapper.tickers = nil
		summary, err := reconciler.Run(ctx, data.NewUniverse("thyao"))
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Added).To(BeEmpty())
		Expect(summary.Removed).To(BeEmpty())
		Expect(bootstrapper.Tickers()).To(BeEmpty())
	})

	It("leaves remote artifacts alone unless asked", func() {
		Expect(remote.WriteBytes(ctx, library.SnapshotKey("GARAN"), []byte("{}"), "application/json", "")).To(Succeed())
		Expect(universe.Save(ctx, data.NewUniverse("GARAN"))).To(Succeed())

		_, err := reconciler.Run(ctx, data.NewUniverse("THYAO"))
		Expect(err).NotTo(HaveOccurred())
		Expect(exists(remote, library.SnapshotKey("GARAN"))).To(BeTrue())
	})

	It("deletes remote artifacts of removed tickers when asked", func() {
		Expect(remote.WriteBytes(ctx, library.SnapshotKey("GARAN"), []byte("{}"), "application/json", "")).To(Succeed())
		Expect(remote.WriteBytes(ctx, "disclosures/GARAN/2024-01-10-1-faaliyet.pdf", []byte("%PDF-1.4"), "application/pdf", "")).To(Succeed())
		Expect(universe.Save(ctx, data.NewUniverse("GARAN"))).To(Succeed())

		reconciler.Options.DeleteRemote = true
		_, err := reconciler.Run(ctx, data.NewUniverse("THYAO"))
		Expect(err).NotTo(HaveOccurred())

		Expect(exists(remote, library.SnapshotKey("GARAN"))).To(BeFalse())
		Expect(exists(remote, "disclosures/GARAN/2024-01-10-1-faaliyet.pdf")).To(BeFalse())
	})

	It("keeps going when one bootstrap fails", func() {
		bootstrapper.fail = map[string]bool{"GARAN": true}

		summary, err := reconciler.Run(ctx, data.NewUniverse("THYAO", "GARAN", "ASELS"))
		Expect(err).NotTo(HaveOccurred())

		Expect(bootstrapper.Tickers()).To(HaveLen(3))
		Expect(summary.FailedTickers()).To(Equal([]string{"GARAN"}))
		Expect(summary.Failed["GARAN"]).To(ContainSubstring("503"))
		Expect(summary.Status).To(Equal(data.RunPartial))

		stored, err := universe.Load(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(ContainElement("GARAN"))
	})

	It("aborts before any ticker work when the universe cannot be written", func() {
		failing := &universeWriteFailure{Local: local}
		reconciler.Universe = library.NewUniverseStore(failing)

		_, err := reconciler.Run(ctx, data.NewUniverse("THYAO"))
		Expect(err).To(MatchError(library.ErrUniverseWrite))
		Expect(bootstrapper.Tickers()).To(BeEmpty())
	})

	It("rejects an empty candidate list without writing anything", func() {
		_, err := reconciler.Run(ctx, data.Universe{})
		Expect(err).To(MatchError(reconcile.ErrInvalidUniverseInput))
		Expect(exists(local, library.UniverseKey)).To(BeFalse())
	})

	It("syncs local artifacts to the mirror when uploading", func() {
		mirror := objstore.NewLocal(GinkgoT().TempDir())
		reconciler.Mirror = mirror
		reconciler.Options.Upload = true

		summary, err := reconciler.Run(ctx, data.NewUniverse("THYAO", "GARAN"))
		Expect(err).NotTo(HaveOccurred())

		Expect(summary.Uploaded).To(Equal(3))
		Expect(summary.UploadFailed).To(BeZero())
		Expect(exists(mirror, library.UniverseKey)).To(BeTrue())
		Expect(exists(mirror, library.SnapshotKey("THYAO"))).To(BeTrue())
		Expect(exists(remote, library.UniverseKey)).To(BeFalse())
	})
})

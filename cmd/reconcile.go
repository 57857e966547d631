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
package cmd

import (
	"github.com/penny-vault/bistdata/objstore"
	"github.com/penny-vault/bistdata/reconcile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	reconcileNew          string
	reconcileUpload       bool
	reconcileDeleteRemote bool
	reconcileTarget       string
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile the tracked universe against a candidate ticker list",
	Long: `The reconcile sub-command compares the stored universe with the tickers listed in the
candidate file. The new universe is saved first, then every dropped ticker has its snapshot
and disclosures deleted and every new ticker is bootstrapped with its full statement history.

Exit status is 0 when every ticker succeeded, 2 when some tickers failed and 1 when the run
could not complete.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext()

		candidatesFn := reconcileNew
		if candidatesFn == "" {
			candidatesFn = viper.GetString("universe.candidates")
		}

		// validate the input before anything is touched
		candidates, err := reconcile.ReadCandidates(candidatesFn)
		if err != nil {
			return err
		}

		myLibrary, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer myLibrary.Close()

		myUpdater, err := newUpdater(myLibrary)
		if err != nil {
			return err
		}

		reconciler := &reconcile.Reconciler{
			Universe:  myLibrary.Universe,
			Snapshots: myLibrary.Snapshots,
			Updater:   myUpdater,
			Local:     myLibrary.Store,
			Options: reconcile.Options{
				DeleteRemote: reconcileDeleteRemote,
				Upload:       reconcileUpload,
				Workers:      workerCount(cmd),
				CacheControl: viper.GetString("remote.cache_control"),
			},
		}

		if reconcileDeleteRemote {
			remote, err := openRemote(ctx)
			if err != nil {
				return err
			}
			if remote == nil {
				return ErrNoRemote
			}
			reconciler.Remote = remote
		}

		if reconcileUpload {
			var mirror objstore.Writer
			if mirror, err = openMirror(ctx, reconcileTarget); err != nil {
				return err
			}
			reconciler.Mirror = mirror
		}

		summary, err := reconciler.Run(ctx, candidates)
		if err != nil {
			return err
		}

		return finishRun(ctx, myLibrary, summary)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileNew, "new", "", "candidate universe file (default universe.candidates)")
	reconcileCmd.Flags().BoolVar(&reconcileUpload, "upload", false, "sync every local artifact to the remote target afterwards")
	reconcileCmd.Flags().BoolVar(&reconcileDeleteRemote, "delete-remote", false, "also delete remote artifacts of removed tickers")
	reconcileCmd.Flags().StringVar(&reconcileTarget, "target", "s3", "upload target (s3 or backblaze)")
	reconcileCmd.Flags().Int("workers", 8, "number of tickers bootstrapped concurrently")
}

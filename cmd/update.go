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
	"time"

	"github.com/hako/durafmt"
	"github.com/penny-vault/bistdata/data"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var updateBootstrap bool

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update [TICKER...]",
	Short: "Bring financial statement snapshots up to the current period",
	Long: `The update sub-command runs an incremental update for every ticker in the universe,
or only for the tickers given as arguments. Tickers without a snapshot are bootstrapped;
existing snapshots re-fetch their most recent periods plus everything newer. Requests for
a single ticker are always sequential; separate tickers run concurrently.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext()
		logger := zerolog.Ctx(ctx)

		myLibrary, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer myLibrary.Close()

		tickers, err := tickersOrUniverse(ctx, myLibrary, args)
		if err != nil {
			return err
		}

		if len(tickers) == 0 {
			logger.Warn().Msg("universe is empty, run reconcile first")
			return nil
		}

		myUpdater, err := newUpdater(myLibrary)
		if err != nil {
			return err
		}

		startTime := time.Now()
		summary := data.NewRunSummary("update")

		if updateBootstrap {
			for _, ticker := range tickers {
				if _, err := myUpdater.Bootstrap(ctx, ticker); err != nil {
					summary.Fail(ticker, err)
					continue
				}
				summary.Updated = append(summary.Updated, ticker)
			}
		} else {
			myUpdater.UpdateAll(ctx, tickers, workerCount(cmd), summary)
		}

		summary.Finish()

		logger.Info().EmbedObject(summary).Str("RunTime", durafmt.Parse(time.Since(startTime)).String()).
			Msg("update finished")

		return finishRun(ctx, myLibrary, summary)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().BoolVar(&updateBootstrap, "bootstrap", false, "refetch the full history even when a snapshot exists")
	updateCmd.Flags().Int("workers", 8, "number of tickers updated concurrently")
}

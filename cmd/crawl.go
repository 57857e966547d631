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
	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/playwright_helpers"
	"github.com/penny-vault/bistdata/provider"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// crawlCmd represents the crawl command
var crawlCmd = &cobra.Command{
	Use:   "crawl [TICKER...]",
	Short: "Download regulatory disclosures from KAP",
	Long: `The crawl sub-command opens the KAP disclosure listing of every ticker in the universe
(or of the tickers given as arguments) in a headless browser, classifies each filing by its
title and downloads the PDFs of the types listed in kap.types. A summary.json describing every
listed filing is written to disclosures/{TICKER}/.`,
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

		cfg := provider.KAPConfig{
			SearchURL:     viper.GetString("kap.search_url"),
			PDFURL:        viper.GetString("kap.pdf_url"),
			RowSelector:   viper.GetString("kap.row_selector"),
			TitleSelector: viper.GetString("kap.title_selector"),
			DateSelector:  viper.GetString("kap.date_selector"),
			LinkSelector:  viper.GetString("kap.link_selector"),
			Types:         provider.ParseDisclosureTypes(viper.GetStringSlice("kap.types")),
			Cooldown:      viper.GetDuration("kap.cooldown"),
			Timeout:       viper.GetDuration("kap.timeout"),
		}

		session, err := playwright_helpers.StartSession(viper.GetBool("playwright.headless"), viper.GetString("user_agent"))
		if err != nil {
			return err
		}
		defer session.Stop()

		crawler := provider.NewKAP(cfg, &provider.BrowserLister{Session: session, Config: cfg}, myLibrary.Store)

		summary := data.NewRunSummary("crawl")
		for _, ticker := range tickers {
			result, err := crawler.Crawl(ctx, ticker)
			if err != nil {
				summary.Fail(ticker, err)
				continue
			}

			if result.Failed > 0 {
				logger.Warn().EmbedObject(result).Msg("some documents could not be downloaded")
			}
			summary.Updated = append(summary.Updated, ticker)
		}

		summary.Finish()
		logger.Info().EmbedObject(summary).Msg("crawl finished")

		return finishRun(ctx, myLibrary, summary)
	},
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

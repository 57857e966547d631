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
	"errors"
	"fmt"
	"os"

	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/export"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	exportFormat    string
	exportOut       string
	exportBackblaze string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [TICKER...]",
	Short: "Export snapshots as a long parquet or csv table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext()
		logger := zerolog.Ctx(ctx)

		if exportFormat != export.FormatParquet && exportFormat != export.FormatCSV {
			return fmt.Errorf("%w: %s", export.ErrUnknownFormat, exportFormat)
		}

		if exportFormat == export.FormatParquet && exportOut == "" {
			return errors.New("parquet export needs --out")
		}

		myLibrary, err := openLibrary(ctx)
		if err != nil {
			return err
		}
		defer myLibrary.Close()

		tickers := args
		if len(tickers) == 0 {
			if tickers, err = myLibrary.Snapshots.Tickers(ctx); err != nil {
				return err
			}
		}

		snapshots := make([]*data.Snapshot, 0, len(tickers))
		for _, ticker := range tickers {
			snapshot, err := myLibrary.Snapshots.Load(ctx, ticker)
			if err != nil {
				return err
			}
			if snapshot == nil {
				logger.Warn().Str("Ticker", ticker).Msg("no snapshot to export")
				continue
			}
			snapshots = append(snapshots, snapshot)
		}

		rows := export.Flatten(snapshots)

		switch exportFormat {
		case export.FormatParquet:
			if err := export.WriteParquet(rows, exportOut); err != nil {
				return err
			}
		case export.FormatCSV:
			out := os.Stdout
			if exportOut != "" {
				fh, err := os.Create(exportOut)
				if err != nil {
					return err
				}
				defer fh.Close()
				out = fh
			}
			if err := export.WriteCSV(rows, out); err != nil {
				return err
			}
		}

		if exportBackblaze != "" && exportOut != "" {
			mirror, err := openBackblaze(ctx)
			if err != nil {
				return err
			}
			if err := mirror.UploadFile(ctx, exportOut, exportBackblaze); err != nil {
				return err
			}
		}

		logger.Info().Int("NumSnapshots", len(snapshots)).Int("NumRows", len(rows)).Msg("export finished")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatParquet, "output format (parquet or csv)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (csv defaults to stdout)")
	exportCmd.Flags().StringVar(&exportBackblaze, "backblaze-dir", "", "also upload the exported file to this Backblaze directory")
}

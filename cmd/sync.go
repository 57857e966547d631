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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	syncTarget string
	syncPrefix string
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy local artifacts to S3 or Backblaze B2",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext()

		mirror, err := openMirror(ctx, syncTarget)
		if err != nil {
			return err
		}

		local := objstore.NewLocal(viper.GetString("data.dir"))

		result, err := objstore.Sync(ctx, local, mirror, syncPrefix, viper.GetString("remote.cache_control"), workerCount(cmd))
		zerolog.Ctx(ctx).Info().Str("Target", syncTarget).Int("NumUploaded", result.Uploaded).
			Int("NumFailed", result.Failed).Int64("Bytes", result.Bytes).Msg("sync finished")

		return err
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVar(&syncTarget, "target", "s3", "sync target (s3 or backblaze)")
	syncCmd.Flags().StringVar(&syncPrefix, "prefix", "", "only sync keys starting with prefix, e.g. financials/")
	syncCmd.Flags().Int("workers", 8, "number of concurrent uploads")
}

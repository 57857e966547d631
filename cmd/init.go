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
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/gosimple/slug"
	"github.com/jackc/pgx/v5"
	"github.com/pelletier/go-toml/v2"
	"github.com/penny-vault/bistdata/db"
	"github.com/penny-vault/bistdata/healthcheck"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type libraryConfig struct {
	Library struct {
		Name  string `toml:"name"`
		Owner string `toml:"owner,omitempty"`
	} `toml:"library"`

	Data struct {
		Dir string `toml:"dir"`
	} `toml:"data"`

	Universe struct {
		Candidates string `toml:"candidates"`
	} `toml:"universe"`

	DB struct {
		URL string `toml:"url,omitempty"`
	} `toml:"db"`

	Remote struct {
		S3 struct {
			Bucket   string `toml:"bucket,omitempty"`
			Region   string `toml:"region,omitempty"`
			Endpoint string `toml:"endpoint,omitempty"`
		} `toml:"s3"`
	} `toml:"remote"`

	Healthchecks struct {
		APIKey    string `toml:"apikey,omitempty"`
		Reconcile string `toml:"reconcile,omitempty"`
		Update    string `toml:"update,omitempty"`
	} `toml:"healthchecks"`
}

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bistdata configuration file",
	Long: `The init sub-command walks through the settings of a new data library and saves them to
$HOME/.bistdata.toml. When a PostgreSQL connection string is given the run ledger tables are
created, and when a healthchecks.io API key is given checks are created for the reconcile and
update runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := commandContext()

		config := libraryConfig{}
		config.Library.Name = "bistdata"
		config.Data.Dir = "./artifacts"
		config.Universe.Candidates = "./tickers.txt"

		monitored := false

		form := huh.NewForm(
			// Gather details about the library and who owns it
			huh.NewGroup(
				huh.NewInput().
					Title("Give the library a name:").
					Value(&config.Library.Name),

				huh.NewInput().
					Title("Who owns the library?").
					Value(&config.Library.Owner),

				huh.NewInput().
					Title("Where should artifacts be stored?").
					Value(&config.Data.Dir),

				huh.NewInput().
					Title("Which file lists the candidate tickers?").
					Value(&config.Universe.Candidates),
			),

			// Optional run ledger
			huh.NewGroup(
				huh.NewInput().
					Title("PostgreSQL DSN for the run ledger, leave empty to skip (postgres://[user[:password]@][netloc][:port][/dbname])").
					Value(&config.DB.URL).
					Validate(func(dsn string) error {
						if dsn == "" {
							return nil
						}
						_, err := pgx.ParseConfig(dsn)
						return err
					}),
			),

			// Optional remote store
			huh.NewGroup(
				huh.NewInput().
					Title("S3 bucket for remote artifacts, leave empty to skip").
					Value(&config.Remote.S3.Bucket),
				huh.NewInput().
					Title("S3 region").
					Value(&config.Remote.S3.Region),
				huh.NewInput().
					Title("S3 endpoint for S3 compatible stores, leave empty for AWS").
					Value(&config.Remote.S3.Endpoint),
			),

			huh.NewGroup(
				huh.NewConfirm().
					Title("Should healthchecks.io monitors be created for reconcile and update?").
					Value(&monitored),
			),
		)

		if err := form.Run(); err != nil {
			log.Fatal().Err(err).Msg("error gathering library settings")
		}

		if monitored {
			keyForm := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("healthchecks.io API key").
					Password(true).
					Value(&config.Healthchecks.APIKey),
			))
			if err := keyForm.Run(); err != nil {
				log.Fatal().Err(err).Msg("error gathering healthchecks.io settings")
			}

			hc := healthcheck.New(config.Healthchecks.APIKey, "")

			// spread runs of different libraries across the evening
			minuteChoice := rand.Intn(12) * 5
			for _, kind := range []string{"reconcile", "update"} {
				checkSlug := slug.Make(fmt.Sprintf("%s %s", config.Library.Name, kind))
				schedule := fmt.Sprintf("%d %d * * 1-5", minuteChoice, 19)
				if kind == "update" {
					schedule = fmt.Sprintf("%d %d * * 1-5", minuteChoice, 20)
				}

				checkID, err := hc.Create(ctx, fmt.Sprintf("%s %s", config.Library.Name, kind), checkSlug, []string{"bistdata", kind}, schedule)
				if err != nil {
					log.Fatal().Err(err).Str("Kind", kind).Msg("could not create health check")
				}

				if kind == "reconcile" {
					config.Healthchecks.Reconcile = checkID
				} else {
					config.Healthchecks.Update = checkID
				}
				log.Info().Str("Kind", kind).Str("CheckID", checkID).Str("Schedule", schedule).Msg("created health check")
			}
		}

		if config.DB.URL != "" {
			log.Info().Msg("creating run ledger tables")

			if err := db.Migrate(config.DB.URL); err != nil {
				log.Fatal().Err(err).Msg("error running database migration")
			}

			log.Info().Msg("run ledger tables created")
		}

		if err := os.MkdirAll(config.Data.Dir, 0o755); err != nil {
			log.Fatal().Err(err).Str("Dir", config.Data.Dir).Msg("could not create data directory")
		}

		// save settings to config file
		configFN := cfgFile
		if configFN == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				log.Fatal().Err(err).Msg("could not determine user home directory")
			}
			configFN = filepath.Join(home, ".bistdata.toml")
		}

		log.Info().Str("ConfigFile", configFN).Msg("Saving library settings to config file")
		configData, err := toml.Marshal(config)
		if err != nil {
			log.Fatal().Err(err).Msg("could not marshal configuration data")
		}

		if err := os.WriteFile(configFN, configData, 0o600); err != nil {
			log.Fatal().Err(err).Str("FileName", configFN).Msg("could not save configuration to file")
		}

		log.Info().Msg("Your data library has been initialized")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

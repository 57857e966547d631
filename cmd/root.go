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
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bistdata",
	Short: "bistdata keeps a library of Borsa Istanbul financial statements up to date",
	Long: `bistdata is a command line utility for building and maintaining a library of
quarterly financial statements and regulatory disclosures for companies listed on
Borsa Istanbul.

Statements are downloaded from Is Yatirim four reporting periods at a time and
stored as one JSON snapshot per ticker. Every update re-fetches the most recent
periods so that revisions published after the fact are picked up. The set of
tracked tickers (the universe) is reconciled against a candidate list: new
tickers are bootstrapped with their full history and dropped tickers have their
artifacts removed.

Disclosures published on KAP are crawled with a headless browser, classified by
title and stored next to the snapshots. Artifacts can be mirrored to S3 or
Backblaze B2.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrTickersFailed):
		log.Warn().Err(err).Msg("run finished with failures")
		os.Exit(2)
	default:
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bistdata.toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("data-dir", "", "local artifact directory")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for log-level failed")
	}
	if err := viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for data-dir failed")
	}
}

func setDefaults() {
	viper.SetDefault("library.name", "bistdata")
	viper.SetDefault("data.dir", "./artifacts")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.max_size_mb", 50)
	viper.SetDefault("log.max_backups", 5)
	viper.SetDefault("log.max_age_days", 30)

	viper.SetDefault("isyatirim.base_url", "https://www.isyatirim.com.tr/_layouts/15/IsYatirim.Website/Common/Data.aspx/MaliTablo")
	viper.SetDefault("isyatirim.financial_group", "XI_29")
	viper.SetDefault("isyatirim.currency", "TRY")
	viper.SetDefault("isyatirim.timeout", "30s")
	viper.SetDefault("isyatirim.cooldown", "350ms")

	viper.SetDefault("updater.earliest", "2008/3")
	viper.SetDefault("updater.backfill", 4)
	viper.SetDefault("updater.workers", 8)

	viper.SetDefault("universe.candidates", "./tickers.txt")

	viper.SetDefault("remote.cache_control", "public, max-age=300")
	viper.SetDefault("cache.ttl", "10m")

	viper.SetDefault("healthchecks.ping_url", "https://hc-ping.com")

	viper.SetDefault("playwright.headless", true)
	viper.SetDefault("kap.search_url", "https://www.kap.org.tr/tr/bildirim-sorgu?srcbar=Y&cmp=Y&cat=4&slf=ALL&member=%s")
	viper.SetDefault("kap.pdf_url", "https://www.kap.org.tr/tr/api/BildirimPdf/%s")
	viper.SetDefault("kap.row_selector", "div.notifications-row")
	viper.SetDefault("kap.title_selector", "div._12")
	viper.SetDefault("kap.date_selector", "div._04")
	viper.SetDefault("kap.link_selector", "a.vcell")
	viper.SetDefault("kap.types", []string{"FinancialReport", "ActivityReport"})
	viper.SetDefault("kap.cooldown", "1s")
	viper.SetDefault("kap.timeout", "60s")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// a missing .env file is fine
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".bistdata" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(".bistdata")
	}

	viper.SetEnvPrefix("BISTDATA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	configErr := viper.ReadInConfig()

	setupLogging()

	if configErr == nil {
		log.Info().Str("ConfigFN", viper.ConfigFileUsed()).Msg("Using config file")
	}
}

// setupLogging configures the global logger from the log.* settings. When
// log.file is set, JSON logs are also written to a rotating file.
func setupLogging() {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		log.Warn().Str("Level", viper.GetString("log.level")).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stderr}

	logFile := viper.GetString("log.file")
	if logFile == "" {
		log.Logger = log.Output(console)
		return
	}

	rotating := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    viper.GetInt("log.max_size_mb"),
		MaxBackups: viper.GetInt("log.max_backups"),
		MaxAge:     viper.GetInt("log.max_age_days"),
		Compress:   true,
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, rotating)).With().Timestamp().Logger()
}

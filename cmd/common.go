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
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hako/durafmt"
	"github.com/penny-vault/bistdata/backblaze"
	"github.com/penny-vault/bistdata/data"
	"github.com/penny-vault/bistdata/healthcheck"
	"github.com/penny-vault/bistdata/library"
	"github.com/penny-vault/bistdata/objstore"
	"github.com/penny-vault/bistdata/provider"
	"github.com/penny-vault/bistdata/updater"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// ErrTickersFailed makes the process exit with status 2
	ErrTickersFailed = errors.New("some tickers failed")

	ErrNoRemote      = errors.New("no remote store configured")
	ErrUnknownTarget = errors.New("unknown sync target")
)

func commandContext() context.Context {
	return log.Logger.WithContext(context.Background())
}

// openLibrary opens the local artifact library and, when db.url is set, the
// run ledger
func openLibrary(ctx context.Context) (*library.Library, error) {
	store := objstore.NewLocal(viper.GetString("data.dir"))

	myLibrary := library.New(store, viper.GetDuration("cache.ttl"))
	myLibrary.Name = viper.GetString("library.name")
	myLibrary.Owner = viper.GetString("library.owner")
	myLibrary.SetCacheControl(viper.GetString("remote.cache_control"))

	if dbURL := viper.GetString("db.url"); dbURL != "" {
		if err := myLibrary.Connect(ctx, dbURL); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("could not connect to the run ledger")
			return nil, err
		}
	}

	return myLibrary, nil
}

// openRemote returns the configured S3 store or nil when no bucket is set
func openRemote(ctx context.Context) (objstore.Store, error) {
	bucket := viper.GetString("remote.s3.bucket")
	if bucket == "" {
		return nil, nil
	}

	remote, err := objstore.NewS3(ctx, objstore.S3Config{
		Bucket:          bucket,
		Region:          viper.GetString("remote.s3.region"),
		Endpoint:        viper.GetString("remote.s3.endpoint"),
		AccessKeyID:     viper.GetString("remote.s3.access_key_id"),
		SecretAccessKey: viper.GetString("remote.s3.secret_access_key"),
		PathStyle:       viper.GetBool("remote.s3.path_style"),
		Prefix:          viper.GetString("remote.s3.prefix"),
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("Bucket", bucket).Msg("could not open remote store")
		return nil, err
	}

	return remote, nil
}

// openMirror returns the sync target named by target (s3 or backblaze)
func openMirror(ctx context.Context, target string) (objstore.Writer, error) {
	switch strings.ToLower(target) {
	case "s3":
		remote, err := openRemote(ctx)
		if err != nil {
			return nil, err
		}
		if remote == nil {
			return nil, fmt.Errorf("%w: set remote.s3.bucket", ErrNoRemote)
		}
		return remote, nil
	case "backblaze", "b2":
		return openBackblaze(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
}

func openBackblaze(ctx context.Context) (*backblaze.Mirror, error) {
	bucket := viper.GetString("backblaze.bucket")
	if bucket == "" {
		return nil, fmt.Errorf("%w: set backblaze.bucket", ErrNoRemote)
	}

	return backblaze.NewMirror(ctx, backblaze.Credentials{
		ApplicationID:  viper.GetString("backblaze.application_id"),
		ApplicationKey: viper.GetString("backblaze.application_key"),
	}, bucket, viper.GetString("backblaze.prefix"))
}

// newUpdater wires the Is Yatirim fetcher and the library snapshots into an
// updater configured from the updater.* and isyatirim.* settings
func newUpdater(myLibrary *library.Library) (*updater.Updater, error) {
	cfg := updater.DefaultConfig()

	earliest, err := data.ParsePeriod(viper.GetString("updater.earliest"))
	if err != nil {
		return nil, err
	}

	cfg.Earliest = earliest
	cfg.Backfill = viper.GetInt("updater.backfill")
	cfg.Cooldown = viper.GetDuration("isyatirim.cooldown")
	cfg.FinancialGroup = viper.GetString("isyatirim.financial_group")
	cfg.Currency = viper.GetString("isyatirim.currency")

	groups := viper.GetStringMapString("isyatirim.groups")
	cfg.Groups = make(map[string]string, len(groups))
	for ticker, group := range groups {
		cfg.Groups[data.NormalizeTicker(ticker)] = group
	}

	fetcher := provider.NewIsYatirim(viper.GetString("isyatirim.base_url"), viper.GetDuration("isyatirim.timeout"))

	return updater.New(fetcher, myLibrary.Snapshots, cfg)
}

// workerCount prefers an explicit --workers flag over updater.workers
func workerCount(cmd *cobra.Command) int {
	if flag := cmd.Flags().Lookup("workers"); flag != nil && flag.Changed {
		if workers, err := cmd.Flags().GetInt("workers"); err == nil {
			return workers
		}
	}
	return viper.GetInt("updater.workers")
}

// tickersOrUniverse returns args when given, otherwise the stored universe
func tickersOrUniverse(ctx context.Context, myLibrary *library.Library, args []string) ([]string, error) {
	if len(args) > 0 {
		return data.NewUniverse(args...), nil
	}

	universe, err := myLibrary.Universe.Load(ctx)
	if err != nil {
		return nil, err
	}

	return universe, nil
}

// finishRun records the run in the ledger, pings the health check configured
// under healthchecks.<kind> and prints the summary box. It returns
// ErrTickersFailed when any ticker failed.
func finishRun(ctx context.Context, myLibrary *library.Library, summary *data.RunSummary) error {
	logger := zerolog.Ctx(ctx)

	if err := myLibrary.RecordRun(ctx, summary); err != nil {
		logger.Error().Err(err).Msg("could not record run in the ledger")
	}

	if checkID := viper.GetString("healthchecks." + summary.Kind); checkID != "" {
		hc := healthcheck.New(viper.GetString("healthchecks.apikey"), viper.GetString("healthchecks.ping_url"))
		failed := summary.Status != data.RunSuccess
		if err := hc.Ping(ctx, checkID, failed, pingBody(summary)); err != nil {
			logger.Warn().Err(err).Msg("could not ping health check")
		}
	}

	fmt.Println(renderSummary(summary))

	if len(summary.Failed) > 0 {
		return fmt.Errorf("%w: %d of them", ErrTickersFailed, len(summary.Failed))
	}

	return nil
}

func pingBody(summary *data.RunSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "status=%s added=%d removed=%d updated=%d failed=%d\n", summary.Status,
		len(summary.Added), len(summary.Removed), len(summary.Updated), len(summary.Failed))
	for _, ticker := range summary.FailedTickers() {
		fmt.Fprintf(&sb, "%s: %s\n", ticker, summary.Failed[ticker])
	}
	return sb.String()
}

func renderSummary(summary *data.RunSummary) string {
	var sb strings.Builder
	keyword := func(s string) string {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render(s)
	}

	statusColor := lipgloss.Color("42")
	switch summary.Status {
	case data.RunPartial:
		statusColor = lipgloss.Color("214")
	case data.RunFailed:
		statusColor = lipgloss.Color("196")
	}

	fmt.Fprintf(&sb,
		"%s\n\nRun: %s\nStatus: %s\nRun Time: %s\n\nAdded: %s\nRemoved: %s\nUpdated: %s\nSkipped: %s\nFailed: %s\n",
		lipgloss.NewStyle().Bold(true).Render(strings.ToUpper(summary.Kind)+" SUMMARY"),
		keyword(summary.ID.String()),
		lipgloss.NewStyle().Foreground(statusColor).Bold(true).Render(string(summary.Status)),
		keyword(durafmt.Parse(summary.Duration()).LimitFirstN(2).String()),
		keyword(fmt.Sprint(len(summary.Added))),
		keyword(fmt.Sprint(len(summary.Removed))),
		keyword(fmt.Sprint(len(summary.Updated))),
		keyword(fmt.Sprint(len(summary.Skipped))),
		keyword(fmt.Sprint(len(summary.Failed))),
	)

	if summary.Uploaded > 0 || summary.UploadFailed > 0 {
		fmt.Fprintf(&sb, "Uploaded: %s (%d failed)\n", keyword(fmt.Sprint(summary.Uploaded)), summary.UploadFailed)
	}

	if len(summary.Failed) > 0 {
		fmt.Fprintf(&sb, "\n%s\n", lipgloss.NewStyle().Bold(true).Render("Failures"))
		for _, ticker := range summary.FailedTickers() {
			fmt.Fprintf(&sb, "%s: %s\n", keyword(ticker), summary.Failed[ticker])
		}
	}

	return lipgloss.NewStyle().
		Width(72).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		Padding(1, 2).
		Render(sb.String())
}

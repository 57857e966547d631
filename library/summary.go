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
package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xeonx/timeago"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const numRecentRuns = 10

// Summary returns a description of the library in markdown
func (myLibrary *Library) Summary(ctx context.Context) (string, error) {
	p := message.NewPrinter(language.English)
	builder := strings.Builder{}

	name := myLibrary.Name
	if name == "" {
		name = "bistdata library"
	}

	builder.WriteString(fmt.Sprintf("# %s\n", name))
	if myLibrary.Owner != "" {
		builder.WriteString(fmt.Sprintf("Owned by %s\n\n", myLibrary.Owner))
	}

	stats, err := myLibrary.Stats(ctx)
	if err != nil {
		return "", err
	}

	builder.WriteString("## Details\n\n")
	builder.WriteString(p.Sprintf("  * Tickers Tracked: %d\n", stats.NumTracked))
	builder.WriteString(p.Sprintf("  * Snapshots: %d\n", stats.NumSnapshots))
	builder.WriteString(p.Sprintf("  * Line Items: %d\n", stats.NumItems))
	builder.WriteString(p.Sprintf("  * Values: %d (%d empty)\n", stats.NumValues, stats.NumNull))

	if stats.LastPeriod.Valid() {
		builder.WriteString(fmt.Sprintf("  * Latest Period: %s\n", stats.LastPeriod))
	}
	builder.WriteString("\n")

	if stats.LastUpdated.Equal(time.Time{}) {
		builder.WriteString("Last Updated: Never\n\n")
	} else {
		age := timeago.English.Format(stats.LastUpdated)
		builder.WriteString(fmt.Sprintf("Last Updated: %s (%s)\n\n", age, stats.LastUpdated.Local().Format("01/02/2006")))
	}

	if myLibrary.Ledger == nil {
		return builder.String(), nil
	}

	runs, err := myLibrary.Ledger.Recent(ctx, numRecentRuns)
	if err != nil {
		return "", err
	}

	builder.WriteString("## Recent Runs\n\n")
	if len(runs) == 0 {
		builder.WriteString("No runs recorded\n")
	}

	for _, run := range runs {
		builder.WriteString(p.Sprintf("  * %s %s %s (%s) [%s]\n", run.StartedOn.Local().Format("2006-01-02 15:04"),
			run.Kind, run.Status, timeago.English.Format(run.StartedOn), run.ID.String()[:6]))
		builder.WriteString(p.Sprintf("    * added %d, removed %d, updated %d, failed %d\n",
			len(run.Added), len(run.Removed), len(run.Updated), len(run.Failed)))
	}

	return builder.String(), nil
}

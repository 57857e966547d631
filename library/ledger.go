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
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penny-vault/bistdata/data"
	"github.com/rs/zerolog"
)

// Ledger records every reconcile and update run in PostgreSQL
type Ledger struct {
	Pool *pgxpool.Pool
}

// RunRecord is one row of the runs table
type RunRecord struct {
	ID        uuid.UUID
	Kind      string
	Status    string
	StartedOn time.Time
	EndedOn   time.Time

	Added   []string
	Removed []string
	Updated []string
	Failed  map[string]string

	NumUploaded int
}

func NewLedger(ctx context.Context, dbURL string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Ledger{Pool: pool}, nil
}

func (ledger *Ledger) Close() {
	ledger.Pool.Close()
}

// Record inserts the run or updates it when it was recorded before
func (ledger *Ledger) Record(ctx context.Context, summary *data.RunSummary) error {
	conn, err := ledger.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO runs
("id", "kind", "status", "started_on", "ended_on", "added", "removed", "updated", "failed", "num_uploaded")
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT ON CONSTRAINT runs_pkey
DO UPDATE SET
	status = EXCLUDED.status,
	ended_on = EXCLUDED.ended_on,
	added = EXCLUDED.added,
	removed = EXCLUDED.removed,
	updated = EXCLUDED.updated,
	failed = EXCLUDED.failed,
	num_uploaded = EXCLUDED.num_uploaded`,
		summary.ID, summary.Kind, string(summary.Status), summary.StartTime, summary.EndTime,
		summary.Added, summary.Removed, summary.Updated, summary.Failed, summary.Uploaded)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("RunID", summary.ID.String()).Msg("could not record run")
		return err
	}

	return nil
}

// Recent returns the newest runs, newest first
func (ledger *Ledger) Recent(ctx context.Context, limit int) ([]*RunRecord, error) {
	var runs []*RunRecord
	err := pgxscan.Select(ctx, ledger.Pool, &runs,
		`SELECT id, kind, status, started_on, coalesce(ended_on, started_on) AS ended_on, added, removed,
updated, failed, num_uploaded FROM runs ORDER BY started_on DESC LIMIT $1`, limit)
	return runs, err
}

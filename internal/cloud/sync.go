/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package cloud pushes locally saved transcripts to a Postgres database so
// they survive a device change. Rows are keyed by (device_id, local_id), which
// makes a repeated push of the same transcript a no-op.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"voxscribe/internal/bridge"
	applog "voxscribe/internal/log"
	"voxscribe/internal/transcripts"
)

// ErrDisabled is returned when sync is invoked without a configured database.
var ErrDisabled = errors.New("cloud: sync not configured")

const schemaSQL = `CREATE TABLE IF NOT EXISTS transcripts (
	device_id  TEXT        NOT NULL,
	local_id   BIGINT      NOT NULL,
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	pushed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (device_id, local_id)
)`

const insertSQL = `INSERT INTO transcripts (device_id, local_id, text, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (device_id, local_id) DO NOTHING`

// Local is the part of the transcript store a push needs.
type Local interface {
	Unsynced(ctx context.Context) ([]transcripts.Transcript, error)
	MarkSynced(ctx context.Context, ids []int64) error
}

// Result summarises one push.
type Result struct {
	Pushed   int `json:"pushed"`
	Inserted int `json:"inserted"`
}

// Syncer owns a pgx pool to the remote database.
type Syncer struct {
	pool     *pgxpool.Pool
	deviceID string
	timeout  time.Duration
	log      *slog.Logger
}

// Connect opens the pool, verifies connectivity and ensures the table exists.
func Connect(ctx context.Context, dsn, deviceID string, timeout time.Duration) (*Syncer, error) {
	if dsn == "" {
		return nil, ErrDisabled
	}
	if deviceID == "" {
		return nil, errors.New("cloud: device id is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cloud: parse dsn: %w", err)
	}
	cfg.MaxConns = 2
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(cctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cloud: connect: %w", err)
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cloud: ping: %w", err)
	}
	if _, err := pool.Exec(cctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cloud: ensure schema: %w", err)
	}
	return &Syncer{pool: pool, deviceID: deviceID, timeout: timeout, log: applog.WithComponent("cloud")}, nil
}

func (s *Syncer) Close() { s.pool.Close() }

// Push sends every unsynced transcript in one transaction. Transcripts are
// marked synced only after the commit; a failed push marks nothing.
func (s *Syncer) Push(ctx context.Context, local Local) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pending, err := local.Unsynced(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 {
		return Result{}, nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("cloud: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, t := range pending {
		b.Queue(insertSQL, s.deviceID, t.ID, t.Text, t.CreatedAt)
	}
	br := tx.SendBatch(ctx, b)
	var (
		res Result
		ids = make([]int64, 0, len(pending))
	)
	for _, t := range pending {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			s.log.Warn("push aborted", slog.Int64("id", t.ID), slog.Any("err", err))
			return Result{}, fmt.Errorf("cloud: push transcript %d: %w", t.ID, err)
		}
		res.Pushed++
		res.Inserted += int(tag.RowsAffected())
		ids = append(ids, t.ID)
	}
	if err := br.Close(); err != nil {
		return Result{}, fmt.Errorf("cloud: close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("cloud: commit: %w", err)
	}
	// Rows are in the database now; a failed local mark only means they
	// are pushed again, which the conflict clause ignores.
	if err := local.MarkSynced(ctx, ids); err != nil {
		return res, err
	}
	s.log.Info("transcripts pushed", slog.Int("pushed", res.Pushed), slog.Int("inserted", res.Inserted))
	return res, nil
}

// Command exposes a push as transcript_sync. A nil syncer reports ErrDisabled.
func Command(s *Syncer, local Local) bridge.Command {
	return bridge.Command{
		Name: "transcript_sync",
		Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
			if s == nil {
				return nil, ErrDisabled
			}
			return s.Push(ctx, local)
		},
	}
}

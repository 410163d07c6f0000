/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package transcripts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "voxscribe/internal/log"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "voxscribe.sqlite"

const schemaVersion = 1

var (
	// ErrEmpty is returned when saving a blank transcript.
	ErrEmpty = errors.New("transcripts: no transcript to save")
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = errors.New("transcripts: not found")
)

// Transcript is one saved dictation.
type Transcript struct {
	ID        int64      `json:"id"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"created_at"`
	SyncedAt  *time.Time `json:"synced_at,omitempty"`
}

// Store keeps transcripts in a local SQLite database.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

// Open creates or opens <dataDir>/voxscribe.sqlite.
func Open(ctx context.Context, dataDir string) (*Store, error) {
	l := applog.WithOperation(applog.WithComponent("transcripts"), "open")
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("transcripts: data dir is required")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcripts: create data dir: %w", err)
	}
	path := filepath.Join(dataDir, FileName)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("transcripts: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("store ready", slog.String("path", path))
	return &Store{db: db, path: path, log: applog.WithComponent("transcripts"), now: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transcripts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			text       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			synced_at  TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transcripts_unsynced ON transcripts(id) WHERE synced_at IS NULL;`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("transcripts: create schema: %w", err)
		}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		fmt.Sprint(schemaVersion))
	if err != nil {
		return fmt.Errorf("transcripts: write schema version: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

// Add saves text unmodified and returns the stored transcript. Blank text is rejected.
func (s *Store) Add(ctx context.Context, text string) (Transcript, error) {
	if strings.TrimSpace(text) == "" {
		return Transcript{}, ErrEmpty
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO transcripts(text, created_at) VALUES(?, ?)`, text, now.Format(time.RFC3339Nano))
	if err != nil {
		return Transcript{}, fmt.Errorf("transcripts: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Transcript{}, fmt.Errorf("transcripts: insert id: %w", err)
	}
	s.log.Debug("transcript saved", slog.Int64("id", id), slog.Int("chars", len(text)))
	return Transcript{ID: id, Text: text, CreatedAt: now}, nil
}

// List returns all transcripts in the order they were saved.
func (s *Store) List(ctx context.Context) ([]Transcript, error) {
	return s.query(ctx, `SELECT id, text, created_at, synced_at FROM transcripts ORDER BY id ASC`)
}

// Unsynced returns transcripts not yet pushed to the cloud.
func (s *Store) Unsynced(ctx context.Context) ([]Transcript, error) {
	return s.query(ctx, `SELECT id, text, created_at, synced_at FROM transcripts WHERE synced_at IS NULL ORDER BY id ASC`)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Transcript, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("transcripts: query: %w", err)
	}
	defer rows.Close()
	out := []Transcript{}
	for rows.Next() {
		var (
			t       Transcript
			created string
			synced  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Text, &created, &synced); err != nil {
			return nil, fmt.Errorf("transcripts: scan: %w", err)
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if synced.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, synced.String); err == nil {
				t.SyncedAt = &ts
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Delete removes one transcript.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("transcripts: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// Clear removes every transcript and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcripts`)
	if err != nil {
		return 0, fmt.Errorf("transcripts: clear: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// JoinedText returns every transcript separated by a blank line.
func (s *Store) JoinedText(ctx context.Context) (string, error) {
	list, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(list))
	for i, t := range list {
		parts[i] = t.Text
	}
	return strings.Join(parts, "\n\n"), nil
}

// MarkSynced stamps ids as pushed.
func (s *Store) MarkSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transcripts: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stamp := s.now().UTC().Format(time.RFC3339Nano)
	stmt, err := tx.PrepareContext(ctx, `UPDATE transcripts SET synced_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("transcripts: prepare: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, stamp, id); err != nil {
			return fmt.Errorf("transcripts: mark synced %d: %w", id, err)
		}
	}
	return tx.Commit()
}

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cloud

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"voxscribe/internal/bridge"
	"voxscribe/internal/transcripts"
)

func TestConnectWithoutDSNIsDisabled(t *testing.T) {
	if _, err := Connect(context.Background(), "", "dev", time.Second); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestConnectRejectsBadDSN(t *testing.T) {
	if _, err := Connect(context.Background(), "postgres://%zz", "dev", time.Second); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSyncCommandDisabled(t *testing.T) {
	reg := bridge.NewRegistry()
	reg.MustRegister(Command(nil, nil))
	if _, err := reg.Invoke(context.Background(), "transcript_sync", nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

// TestPushIntegration needs a disposable Postgres: VOX_TEST_PG_DSN=postgres://...
func TestPushIntegration(t *testing.T) {
	dsn := os.Getenv("VOX_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("VOX_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	local, err := transcripts.Open(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("open local: %v", err)
	}
	defer local.Close()
	_, _ = local.Add(ctx, "one")
	_, _ = local.Add(ctx, "two")

	s, err := Connect(ctx, dsn, "test-"+uuid.NewString(), 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	res, err := s.Push(ctx, local)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if res.Pushed != 2 || res.Inserted != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if un, _ := local.Unsynced(ctx); len(un) != 0 {
		t.Fatalf("transcripts still unsynced: %+v", un)
	}
	res, err = s.Push(ctx, local)
	if err != nil || res.Pushed != 0 {
		t.Fatalf("second push = %+v, %v", res, err)
	}
}

type recordingLocal struct {
	pending []transcripts.Transcript
	marked  [][]int64
}

func (r *recordingLocal) Unsynced(context.Context) ([]transcripts.Transcript, error) {
	return r.pending, nil
}

func (r *recordingLocal) MarkSynced(_ context.Context, ids []int64) error {
	r.marked = append(r.marked, ids)
	return nil
}

// A statement failing halfway through the batch must leave both sides untouched.
func TestPushIntegration_FailedStatementMarksNothing(t *testing.T) {
	dsn := os.Getenv("VOX_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("VOX_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	device := "test-" + uuid.NewString()
	s, err := Connect(ctx, dsn, device, 5*time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	now := time.Now()
	local := &recordingLocal{pending: []transcripts.Transcript{
		{ID: 1, Text: "one", CreatedAt: now},
		{ID: 2, Text: "two", CreatedAt: now},
		// Postgres text columns reject NUL bytes.
		{ID: 3, Text: "bad\x00text", CreatedAt: now},
	}}
	if _, err := s.Push(ctx, local); err == nil {
		t.Fatalf("expected push to fail on the third statement")
	}
	if len(local.marked) != 0 {
		t.Fatalf("transcripts marked synced after a failed push: %v", local.marked)
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transcripts WHERE device_id = $1`, device).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("%d rows left in the database after rollback", n)
	}

	local.pending = local.pending[:2]
	res, err := s.Push(ctx, local)
	if err != nil || res.Inserted != 2 {
		t.Fatalf("retry = %+v, %v", res, err)
	}
	if len(local.marked) != 1 || len(local.marked[0]) != 2 {
		t.Fatalf("marked = %v", local.marked)
	}
}

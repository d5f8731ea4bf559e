package runstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/evalflow/config"
	"github.com/BaSui01/evalflow/pipeline"
	"github.com/BaSui01/evalflow/types"
)

type fakeQueryRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeQueryRecorder) RecordDBQuery(database, operation string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, database+"/"+operation)
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	cfg := config.StoreConfig{
		Enabled:      true,
		Driver:       "sqlite",
		DSN:          filepath.Join(t.TempDir(), "runs.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	s, err := Open(context.Background(), cfg, zaptest.NewLogger(t), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(id string, startedAt time.Time) pipeline.RunRecord {
	return pipeline.RunRecord{
		ID:     id,
		Action: pipeline.ActionAugment,
		Status: pipeline.RunStatusSucceeded,
		Report: pipeline.Report{
			Action:    pipeline.ActionAugment,
			Rows:      2,
			Succeeded: 2,
			Failed:    0,
			Variants:  4,
		},
		StartedAt: startedAt,
		Duration:  1500 * time.Millisecond,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	want := sampleRun("run-1", started)
	require.NoError(t, s.SaveRun(ctx, want))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Action, got.Action)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Report, got.Report)
	assert.Equal(t, want.Duration, got.Duration)
	assert.True(t, got.StartedAt.Equal(started), "started_at %v", got.StartedAt)
}

func TestStore_SaveFailedRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := pipeline.RunRecord{
		ID:        "run-failed",
		Action:    pipeline.ActionInference,
		Status:    pipeline.RunStatusFailed,
		Error:     "EMPTY_INPUT: no data provided for inference",
		StartedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "run-failed")
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusFailed, got.Status)
	assert.Equal(t, run.Error, got.Error)
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun("dup", time.Now())

	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run))
}

func TestStore_GetRunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		require.NoError(t, s.SaveRun(ctx, sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)
	assert.Equal(t, "run-2", runs[2].ID)

	all, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_ListRunsEmpty(t *testing.T) {
	s := openTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_RecordsQueries(t *testing.T) {
	rec := &fakeQueryRecorder{}
	s := openTestStore(t, WithQueryRecorder(rec))
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleRun("q", time.Now())))
	_, err := s.ListRuns(ctx, 1)
	require.NoError(t, err)
	_, _ = s.GetRun(ctx, "q")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"runs/insert", "runs/list", "runs/get"}, rec.ops)
}

func TestStore_PingAndClose(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql", DSN: "x"}, nil, nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNew_NilPool(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestStore_AsRunSink(t *testing.T) {
	s := openTestStore(t)
	var sink pipeline.RunSink = s
	require.NoError(t, sink.SaveRun(context.Background(), sampleRun("sink", time.Now())))

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "sink", runs[0].ID)
}

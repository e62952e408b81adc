package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"httpbench/internal/runner"
	"httpbench/internal/stats"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(ts time.Time) RunRecord {
	return RunRecord{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Config: runner.Config{
			Concurrency: 3,
			QuotaKind:   runner.QuotaCount,
			QuotaValue:  10,
			Targets:     []runner.Target{{URL: "http://test.invalid/x"}},
		},
		Report: stats.Report{
			TotalTime:         2 * time.Second,
			RequestsDone:      10,
			Succeeded:         9,
			Failed:            1,
			RequestsPerSecond: 5,
		},
	}
}

func TestStoreSaveAndList(t *testing.T) {
	s := testStore(t)

	older := testRecord(time.Now().Add(-time.Hour))
	newer := testRecord(time.Now())
	require.NoError(t, s.Save(older))
	require.NoError(t, s.Save(newer))

	recs := s.List()
	require.Len(t, recs, 2)
	assert.Equal(t, newer.ID, recs[0].ID, "most recent first")
	assert.Equal(t, older.ID, recs[1].ID)
	assert.Equal(t, 10, recs[0].Report.RequestsDone)
}

func TestStoreGet(t *testing.T) {
	s := testStore(t)

	rec := testRecord(time.Now())
	require.NoError(t, s.Save(rec))

	got, err := s.Get(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Config.Concurrency, got.Config.Concurrency)

	_, err = s.Get("missing")
	require.Error(t, err)
}

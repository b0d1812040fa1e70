package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifesignal/internal/dedup"
)

var _ dedup.Store = (*Store)(nil)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDedupMarkersSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	at := time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	ok, err := s.Exists(ctx, "metric-unupdated|mood|2026-10-16")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "metric-unupdated|mood|2026-10-16", at))
	require.NoError(t, s.Set(ctx, "metric-unupdated|mood|2026-10-16", at.Add(time.Hour)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	ok, err = reopened.Exists(ctx, "metric-unupdated|mood|2026-10-16")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPrune(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Set(ctx, "old", now.AddDate(0, 0, -40)))
	require.NoError(t, s.Set(ctx, "new", now.AddDate(0, 0, -1)))

	n, err := s.Prune(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, _ := s.Exists(ctx, "old")
	assert.False(t, ok)
	ok, _ = s.Exists(ctx, "new")
	assert.True(t, ok)
}

func TestPassHistory(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	start := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.StartPass(ctx, "p1", "tick", start))
	require.NoError(t, s.FinishPass(ctx, "p1", "ok", `{"emitted":2}`, start.Add(time.Second)))
	require.NoError(t, s.StartPass(ctx, "p2", "manual", start.Add(time.Minute)))

	passes, err := s.ListPasses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, "p2", passes[0].ID)
	assert.Equal(t, "running", passes[0].Status)
	assert.Nil(t, passes[0].FinishedAt)
	assert.Equal(t, "ok", passes[1].Status)
	assert.Equal(t, "tick", passes[1].Trigger)
	assert.JSONEq(t, `{"emitted":2}`, passes[1].SummaryJSON)
}

func TestKV(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	v, err := s.GetKV(ctx, "last_prune")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetKV(ctx, "last_prune", "2026-10-16"))
	require.NoError(t, s.SetKV(ctx, "last_prune", "2026-10-17"))
	v, err = s.GetKV(ctx, "last_prune")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-17", v)
}

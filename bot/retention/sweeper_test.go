package retention

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jituformyself-glitch/enjoy-bot/bot/storage"
	"github.com/jituformyself-glitch/enjoy-bot/core/logger"
)

func init() {
	logger.Configure(&bytes.Buffer{}, "error", "json")
}

func TestSweepBoundary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "user_data.json"))

	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	cutoff := now.Add(-30 * 24 * time.Hour)

	require.NoError(t, store.Put(ctx, storage.Record{
		UserID: 1, Name: "Exactly At Cutoff", CreatedAt: cutoff,
	}))
	require.NoError(t, store.Put(ctx, storage.Record{
		UserID: 2, Name: "Just Too Old", CreatedAt: cutoff.Add(-time.Second),
	}))
	require.NoError(t, store.Put(ctx, storage.Record{
		UserID: 3, Name: "Still Fresh", Phone: "9876543210", CreatedAt: cutoff.Add(time.Hour),
	}))

	purged, err := Sweep(ctx, store, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, purged, "records at or before the cutoff are purged")

	recs, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(3), recs[0].UserID)
}

func TestSweepEmptyStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "user_data.json"))

	purged, err := Sweep(ctx, store, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestSweepPurgesCompleteRecordsToo(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "user_data.json"))

	old := time.Now().Add(-40 * 24 * time.Hour)
	require.NoError(t, store.Put(ctx, storage.Record{
		UserID: 1, Name: "Done Long Ago", Phone: "9876543210", CreatedAt: old,
	}))

	purged, err := Sweep(ctx, store, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged, "completion does not exempt a record from retention")
}

func TestSweeperRejectsInvalidSchedule(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "user_data.json"))
	s := NewSweeper(store, 30*24*time.Hour, "not a cron spec")
	assert.Error(t, s.Start())
}

func TestSweeperStartStop(t *testing.T) {
	store := storage.NewFileStore(filepath.Join(t.TempDir(), "user_data.json"))
	s := NewSweeper(store, 30*24*time.Hour, "@hourly")
	require.NoError(t, s.Start())
	s.Stop()
}

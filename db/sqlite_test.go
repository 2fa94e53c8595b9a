package db

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"procwatch/monitoring"
)

func openTestDB(t *testing.T) *Store {
	t.Helper()
	dsn, err := EnsureDB(t.TempDir(), "test.db")
	require.NoError(t, err)
	database, err := InitDB(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestEnsureDB(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	dsn, err := EnsureDB(dir, "procwatch.db")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, filepath.Join(dir, "procwatch.db")))
	assert.Contains(t, dsn, "journal_mode(WAL)")
	assert.DirExists(t, dir)
}

func TestStoreLifetimeRoundTrip(t *testing.T) {
	store := openTestDB(t)

	firstSeen := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	record := monitoring.ProcessLifetime{
		PID:       100,
		Name:      "bash",
		FirstSeen: firstSeen,
		LastSeen:  firstSeen.Add(30 * time.Second),
		MaxCPU:    42.5,
		MaxMemory: 1 << 20,
		Samples:   15,
	}
	require.NoError(t, store.SaveLifetime(record))

	loaded, err := store.LoadLifetimes()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int32(100), loaded[0].PID)
	assert.Equal(t, "bash", loaded[0].Name)
	assert.Equal(t, 42.5, loaded[0].MaxCPU)
	assert.False(t, loaded[0].Exited)

	// Saving the same (pid, first_seen) again updates rather than duplicates.
	record.Exited = true
	record.LifetimeSeconds = 30
	record.Samples = 16
	require.NoError(t, store.SaveLifetime(record))

	loaded, err = store.LoadLifetimes()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].Exited)
	assert.Equal(t, int64(16), loaded[0].Samples)
	assert.Equal(t, 30.0, loaded[0].LifetimeSeconds)
}

func TestStorePruneLifetimes(t *testing.T) {
	store := openTestDB(t)
	now := time.Now().UTC()

	old := monitoring.ProcessLifetime{
		PID: 1, Name: "stale", FirstSeen: now.Add(-48 * time.Hour), LastSeen: now.Add(-47 * time.Hour),
	}
	fresh := monitoring.ProcessLifetime{
		PID: 2, Name: "recent", FirstSeen: now.Add(-time.Hour), LastSeen: now,
	}
	require.NoError(t, store.SaveLifetime(old))
	require.NoError(t, store.SaveLifetime(fresh))

	require.NoError(t, store.PruneLifetimes(now.Add(-24*time.Hour)))

	loaded, err := store.LoadLifetimes()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int32(2), loaded[0].PID)
}

func TestFlushResourceLogs(t *testing.T) {
	store := openTestDB(t)

	snapshot := &monitoring.Snapshot{
		Timestamp: time.Now().UTC(),
		Processes: []monitoring.ProcessSample{{PID: 1}, {PID: 2}},
		System:    &monitoring.SystemInfo{MemoryPercent: 55.5, SwapPercent: 1.5, Load1: 0.7},
		GPUTotals: monitoring.GPUTotals{Usage: 33},
	}
	require.NoError(t, flushResourceLogs(store.DB, []*monitoring.Snapshot{snapshot}))

	var count int
	require.NoError(t, store.DB.QueryRow(
		"SELECT COUNT(*) FROM resource_logs").Scan(&count))
	assert.Equal(t, 5, count)

	var processCount float64
	require.NoError(t, store.DB.QueryRow(
		"SELECT value FROM resource_logs WHERE metric_type = 'process_count'").Scan(&processCount))
	assert.Equal(t, 2.0, processCount)
}

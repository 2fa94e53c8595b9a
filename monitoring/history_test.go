package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory LifetimeStore.
type memStore struct {
	saved  []ProcessLifetime
	loaded []ProcessLifetime
	pruned []time.Time
}

func (s *memStore) LoadLifetimes() ([]ProcessLifetime, error) { return s.loaded, nil }

func (s *memStore) SaveLifetime(l ProcessLifetime) error {
	s.saved = append(s.saved, l)
	return nil
}

func (s *memStore) PruneLifetimes(cutoff time.Time) error {
	s.pruned = append(s.pruned, cutoff)
	return nil
}

func sampleProc(pid int32, name string, cpu float64, memory uint64) ProcessSample {
	return ProcessSample{PID: pid, Name: name, CPUPercent: cpu, MemoryBytes: memory}
}

func TestHistoryTrackerLifecycle(t *testing.T) {
	store := &memStore{}
	tracker := NewHistoryTracker(store, 0)
	baseTime := time.Now()
	tracker.now = func() time.Time { return baseTime }

	tracker.Observe([]ProcessSample{sampleProc(100, "bash", 5.0, 1000)})

	baseTime = baseTime.Add(2 * time.Second)
	tracker.Observe([]ProcessSample{sampleProc(100, "bash", 12.0, 800)})

	lifetimes := tracker.Lifetimes()
	require.Len(t, lifetimes, 1)
	record := lifetimes[0]
	assert.Equal(t, int32(100), record.PID)
	assert.Equal(t, int64(2), record.Samples)
	assert.Equal(t, 12.0, record.MaxCPU)
	assert.Equal(t, uint64(1000), record.MaxMemory, "peak memory survives a dip")
	assert.False(t, record.Exited)

	// The process vanishes: lifetime gets sealed and persisted.
	baseTime = baseTime.Add(3 * time.Second)
	tracker.Observe(nil)

	lifetimes = tracker.Lifetimes()
	require.Len(t, lifetimes, 1)
	record = lifetimes[0]
	assert.True(t, record.Exited)
	assert.InDelta(t, 5.0, record.LifetimeSeconds, 0.001)

	require.Len(t, store.saved, 1)
	assert.Equal(t, int32(100), store.saved[0].PID)
	assert.True(t, store.saved[0].Exited)
}

func TestHistoryTrackerPIDReuse(t *testing.T) {
	tracker := NewHistoryTracker(nil, 0)
	baseTime := time.Now()
	tracker.now = func() time.Time { return baseTime }

	tracker.Observe([]ProcessSample{sampleProc(100, "bash", 50.0, 1000)})
	baseTime = baseTime.Add(time.Second)
	tracker.Observe(nil)

	// Same pid, new process: a fresh record replaces the sealed one.
	baseTime = baseTime.Add(time.Second)
	tracker.Observe([]ProcessSample{sampleProc(100, "vim", 1.0, 500)})

	lifetimes := tracker.Lifetimes()
	require.Len(t, lifetimes, 1)
	assert.Equal(t, "vim", lifetimes[0].Name)
	assert.Equal(t, 1.0, lifetimes[0].MaxCPU)
	assert.False(t, lifetimes[0].Exited)
}

func TestHistoryTrackerRetention(t *testing.T) {
	store := &memStore{}
	tracker := NewHistoryTracker(store, time.Hour)
	baseTime := time.Now()
	tracker.now = func() time.Time { return baseTime }

	tracker.Observe([]ProcessSample{sampleProc(100, "old", 1.0, 1)})
	baseTime = baseTime.Add(time.Second)
	tracker.Observe(nil) // seal it

	// Two hours later the sealed record falls out of the window.
	baseTime = baseTime.Add(2 * time.Hour)
	tracker.Observe([]ProcessSample{sampleProc(200, "fresh", 1.0, 1)})

	lifetimes := tracker.Lifetimes()
	require.Len(t, lifetimes, 1)
	assert.Equal(t, int32(200), lifetimes[0].PID)
	assert.NotEmpty(t, store.pruned)
}

func TestHistoryTrackerLoadsPersistedRecords(t *testing.T) {
	store := &memStore{loaded: []ProcessLifetime{{
		PID: 42, Name: "survivor", FirstSeen: time.Now().Add(-time.Hour),
		LastSeen: time.Now(), MaxCPU: 80, Samples: 10, Exited: true,
	}}}

	tracker := NewHistoryTracker(store, 0)
	lifetimes := tracker.Lifetimes()
	require.Len(t, lifetimes, 1)
	assert.Equal(t, "survivor", lifetimes[0].Name)
}

package monitoring

import (
	"sort"
	"sync"
	"time"
)

// defaultHistoryRetention is how long lifetime records are kept after a
// process was last seen.
const defaultHistoryRetention = 7 * 24 * time.Hour

// LifetimeStore persists lifetime records between runs. The sqlite store
// in the db package implements it; tests use an in-memory fake.
type LifetimeStore interface {
	LoadLifetimes() ([]ProcessLifetime, error)
	SaveLifetime(ProcessLifetime) error
	PruneLifetimes(cutoff time.Time) error
}

// HistoryTracker observes every poll snapshot and accumulates per-pid
// lifecycle statistics: first and last sighting, peak CPU and memory,
// sample count, and the total lifetime once the process exits.
type HistoryTracker struct {
	mu        sync.Mutex
	retention time.Duration
	store     LifetimeStore
	known     map[int32]time.Time // live pids and when first seen
	lifetimes map[int32]*ProcessLifetime
	now       func() time.Time
}

// NewHistoryTracker loads persisted records from store, which may be nil
// for a purely in-memory tracker.
func NewHistoryTracker(store LifetimeStore, retention time.Duration) *HistoryTracker {
	if retention <= 0 {
		retention = defaultHistoryRetention
	}
	t := &HistoryTracker{
		retention: retention,
		store:     store,
		known:     make(map[int32]time.Time),
		lifetimes: make(map[int32]*ProcessLifetime),
		now:       time.Now,
	}
	if store != nil {
		records, err := store.LoadLifetimes()
		if err != nil {
			LogWarn("Failed to load process history", "error", err)
		}
		for i := range records {
			record := records[i]
			t.lifetimes[record.PID] = &record
		}
	}
	return t
}

// Observe folds one snapshot into the history: new pids are registered,
// live pids update their peaks, vanished pids get their lifetime sealed,
// and records beyond the retention window are pruned.
func (t *HistoryTracker) Observe(samples []ProcessSample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	currentTime := t.now()
	live := make(map[int32]bool, len(samples))

	for _, sample := range samples {
		live[sample.PID] = true
		if _, seen := t.known[sample.PID]; !seen {
			t.known[sample.PID] = currentTime
		}

		lifetime, ok := t.lifetimes[sample.PID]
		if !ok || lifetime.Exited {
			lifetime = &ProcessLifetime{
				PID:       sample.PID,
				Name:      sample.Name,
				FirstSeen: currentTime,
			}
			t.lifetimes[sample.PID] = lifetime
		}
		lifetime.Name = sample.Name
		lifetime.LastSeen = currentTime
		lifetime.Samples++
		if sample.CPUPercent > lifetime.MaxCPU {
			lifetime.MaxCPU = sample.CPUPercent
		}
		if sample.MemoryBytes > lifetime.MaxMemory {
			lifetime.MaxMemory = sample.MemoryBytes
		}
	}

	for pid, firstSeen := range t.known {
		if live[pid] {
			continue
		}
		delete(t.known, pid)
		lifetime, ok := t.lifetimes[pid]
		if !ok {
			continue
		}
		lifetime.Exited = true
		lifetime.LastSeen = currentTime
		lifetime.LifetimeSeconds = currentTime.Sub(firstSeen).Seconds()
		t.persist(*lifetime)
	}

	cutoff := currentTime.Add(-t.retention)
	for pid, lifetime := range t.lifetimes {
		if lifetime.LastSeen.Before(cutoff) {
			delete(t.lifetimes, pid)
		}
	}
	if t.store != nil {
		if err := t.store.PruneLifetimes(cutoff); err != nil {
			LogWarn("Failed to prune process history", "error", err)
		}
	}
}

// Lifetimes returns a copy of every tracked record, newest last-seen
// first.
func (t *HistoryTracker) Lifetimes() []ProcessLifetime {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]ProcessLifetime, 0, len(t.lifetimes))
	for _, lifetime := range t.lifetimes {
		out = append(out, *lifetime)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeen.After(out[j].LastSeen)
	})
	return out
}

func (t *HistoryTracker) persist(record ProcessLifetime) {
	if t.store == nil {
		return
	}
	if err := t.store.SaveLifetime(record); err != nil {
		LogWarn("Failed to persist process lifetime", "pid", record.PID, "error", err)
	}
}

package monitoring

import (
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUTracker converts per-process CPU tick counters into percentages by
// comparing consecutive snapshots. The first observation of a pid always
// reports zero, because a single counter reading carries no rate.
type CPUTracker struct {
	mu        sync.Mutex
	cores     int
	prevTotal uint64
	prev      map[int32]uint64
}

func NewCPUTracker() *CPUTracker {
	cores, err := cpu.Counts(true)
	if err != nil || cores <= 0 {
		cores = runtime.NumCPU()
	}
	return &CPUTracker{
		cores: cores,
		prev:  make(map[int32]uint64),
	}
}

// Cores returns the logical core count percentages are scaled by.
func (t *CPUTracker) Cores() int { return t.cores }

// Percentages returns the CPU percentage per pid for this snapshot.
// current maps pid to cumulative utime+stime ticks, totalTicks is the
// aggregate tick counter of the whole machine. The internal state is
// pruned to the live pid set every call, so exited pids cost nothing.
func (t *CPUTracker) Percentages(current map[int32]uint64, totalTicks uint64) map[int32]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	percents := make(map[int32]float64, len(current))
	deltaTotal := int64(totalTicks) - int64(t.prevTotal)

	for pid, ticks := range current {
		prev, seen := t.prev[pid]
		if !seen || t.prevTotal == 0 || deltaTotal <= 0 {
			percents[pid] = 0
			continue
		}
		deltaProc := int64(ticks) - int64(prev)
		if deltaProc <= 0 {
			percents[pid] = 0
			continue
		}
		pct := float64(deltaProc) / float64(deltaTotal) * 100 * float64(t.cores)
		if max := 100 * float64(t.cores); pct > max {
			pct = max
		}
		percents[pid] = pct
	}

	next := make(map[int32]uint64, len(current))
	for pid, ticks := range current {
		next[pid] = ticks
	}
	t.prev = next
	t.prevTotal = totalTicks
	return percents
}

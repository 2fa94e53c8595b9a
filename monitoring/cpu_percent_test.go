package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(cores int) *CPUTracker {
	tracker := NewCPUTracker()
	tracker.cores = cores
	return tracker
}

func TestCPUTrackerFirstObservationIsZero(t *testing.T) {
	tracker := newTestTracker(4)
	percents := tracker.Percentages(map[int32]uint64{100: 500, 200: 900}, 10000)
	assert.Equal(t, 0.0, percents[100])
	assert.Equal(t, 0.0, percents[200])
}

func TestCPUTrackerDelta(t *testing.T) {
	tracker := newTestTracker(4)
	tracker.Percentages(map[int32]uint64{100: 500}, 10000)

	percents := tracker.Percentages(map[int32]uint64{100: 600}, 11000)
	// 100 of 1000 ticks on a 4-core machine: 10% x 4.
	assert.InDelta(t, 40.0, percents[100], 0.001)
}

func TestCPUTrackerZeroTotalDelta(t *testing.T) {
	tracker := newTestTracker(2)
	tracker.Percentages(map[int32]uint64{100: 500}, 10000)

	percents := tracker.Percentages(map[int32]uint64{100: 600}, 10000)
	assert.Equal(t, 0.0, percents[100])
}

func TestCPUTrackerCounterRegression(t *testing.T) {
	tracker := newTestTracker(2)
	tracker.Percentages(map[int32]uint64{100: 500}, 10000)

	// Ticks going backwards (pid reuse) must not produce negatives.
	percents := tracker.Percentages(map[int32]uint64{100: 400}, 11000)
	assert.Equal(t, 0.0, percents[100])
}

func TestCPUTrackerClamp(t *testing.T) {
	tracker := newTestTracker(2)
	tracker.Percentages(map[int32]uint64{100: 0}, 10000)

	// Process claims more ticks than the machine advanced; clamp to
	// 100% per core.
	percents := tracker.Percentages(map[int32]uint64{100: 5000}, 10100)
	assert.Equal(t, 200.0, percents[100])
}

func TestCPUTrackerPrunesDeadPIDs(t *testing.T) {
	tracker := newTestTracker(4)
	tracker.Percentages(map[int32]uint64{100: 500, 200: 300}, 10000)

	tracker.Percentages(map[int32]uint64{100: 600}, 11000)
	assert.NotContains(t, tracker.prev, int32(200))

	// A pid that vanishes and returns counts as new: zero again.
	percents := tracker.Percentages(map[int32]uint64{100: 700, 200: 900}, 12000)
	assert.Equal(t, 0.0, percents[200])
	assert.Greater(t, percents[100], 0.0)
}

package monitoring

import (
	"time"
)

// Poller drives the fixed-interval collection cycle and fans each
// snapshot out to the websocket hub and the database writer. Channel
// sends are non-blocking: a slow consumer drops snapshots instead of
// stalling collection.
type Poller struct {
	reader   *ProcessReader
	gpu      *GPUStats
	tracker  *HistoryTracker
	interval time.Duration
	opts     ListOptions

	stopCh chan struct{}
	done   chan struct{}
}

func NewPoller(reader *ProcessReader, gpu *GPUStats, tracker *HistoryTracker, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		reader:   reader,
		gpu:      gpu,
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called. An immediate first
// cycle fires before the ticker so consumers see data right away.
func (p *Poller) Start(wsChan, dbChan chan<- *Snapshot) {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.cycle(wsChan, dbChan)
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.cycle(wsChan, dbChan)
			}
		}
	}()
	LogInfo("Poller started", "interval", p.interval)
}

// Stop terminates the loop and waits for the in-flight cycle.
func (p *Poller) Stop() {
	close(p.stopCh)
	<-p.done
}

func (p *Poller) cycle(wsChan, dbChan chan<- *Snapshot) {
	processes, err := p.reader.List(p.opts)
	if err != nil {
		LogError("Snapshot collection failed", "error", err)
		return
	}

	snapshot := &Snapshot{
		Timestamp: time.Now(),
		Processes: processes,
		System:    CollectSystemInfo(),
	}
	if p.gpu != nil {
		snapshot.GPUTotals = p.gpu.Totals()
	}
	if p.tracker != nil {
		p.tracker.Observe(processes)
	}

	for _, ch := range []chan<- *Snapshot{wsChan, dbChan} {
		if ch == nil {
			continue
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

package monitoring

import (
	"sync"
	"time"
)

const (
	// gpuRefreshInterval is the background refresh cadence, held just
	// under the UI's two second redraw so readers always find data
	// fresher than one frame.
	gpuRefreshInterval = 1800 * time.Millisecond
	// gpuCollectTimeout bounds a single provider collection. A hung
	// vendor tool must not stall the whole refresh cycle.
	gpuCollectTimeout = 5 * time.Second
	// gpuStopTimeout bounds how long Stop waits for the worker.
	gpuStopTimeout = 5 * time.Second
)

// GPUStats aggregates all detected vendor providers behind one cache
// refreshed by a background worker. Readers get copies of the cache; when
// the cache is older than twice the refresh interval they trigger a
// synchronous refresh instead of serving stale data.
type GPUStats struct {
	providers []GPUProvider
	refresh   time.Duration

	mu        sync.RWMutex
	processes map[int32]GPUProcessInfo
	totals    GPUTotals
	cacheTime time.Time

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	now func() time.Time
}

func NewGPUStats(providers []GPUProvider) *GPUStats {
	return &GPUStats{
		providers: providers,
		refresh:   gpuRefreshInterval,
		processes: make(map[int32]GPUProcessInfo),
		totals:    GPUTotals{Vendors: vendorNames(providers)},
		now:       time.Now,
	}
}

func vendorNames(providers []GPUProvider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, string(p.Vendor()))
	}
	return names
}

// Start launches the background refresh worker. Calling Start on a
// running aggregator is a no-op.
func (g *GPUStats) Start() {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.running {
		return
	}
	g.running = true
	g.stopCh = make(chan struct{})
	g.done = make(chan struct{})
	go g.loop(g.stopCh, g.done)
	LogInfo("GPU aggregator started", "providers", len(g.providers), "interval", g.refresh)
}

// Stop signals the worker and waits up to gpuStopTimeout for it to
// finish. A worker stuck in a vendor tool is abandoned; it holds no
// locks across collection, so abandoning it is safe.
func (g *GPUStats) Stop() {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if !g.running {
		return
	}
	close(g.stopCh)
	select {
	case <-g.done:
	case <-time.After(gpuStopTimeout):
		LogWarn("GPU aggregator worker did not stop in time, abandoning it")
	}
	g.running = false
}

func (g *GPUStats) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		g.refreshNow()
		select {
		case <-stopCh:
			return
		case <-time.After(g.refresh):
		}
	}
}

// Processes returns a copy of the per-pid cache, refreshing synchronously
// when the cache is stale.
func (g *GPUStats) Processes() map[int32]GPUProcessInfo {
	if g.stale() {
		g.refreshNow()
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[int32]GPUProcessInfo, len(g.processes))
	for pid, info := range g.processes {
		out[pid] = info
	}
	return out
}

// Totals returns the device-level summary, refreshing synchronously when
// the cache is stale.
func (g *GPUStats) Totals() GPUTotals {
	if g.stale() {
		g.refreshNow()
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.totals
}

// stale reports whether the cache is older than twice the refresh
// interval. The background worker normally keeps it well inside that.
func (g *GPUStats) stale() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cacheTime.IsZero() || g.now().Sub(g.cacheTime) >= 2*g.refresh
}

type providerResult struct {
	vendor    GPUVendor
	processes map[int32]GPUProcessInfo
	totals    GPUTotals
}

// refreshNow queries every provider concurrently, bounds each collection
// with gpuCollectTimeout, and swaps the merged result into the cache.
func (g *GPUStats) refreshNow() {
	results := make([]providerResult, len(g.providers))
	var wg sync.WaitGroup
	for i, provider := range g.providers {
		wg.Add(1)
		go func(i int, p GPUProvider) {
			defer wg.Done()
			results[i] = collectProvider(p)
		}(i, provider)
	}
	wg.Wait()

	processes := make(map[int32]GPUProcessInfo)
	totals := GPUTotals{Vendors: vendorNames(g.providers)}
	for _, result := range results {
		for pid, info := range result.processes {
			merged := processes[pid]
			merged.PID = pid
			merged.Usage += info.Usage
			merged.Memory += info.Memory
			merged.Encoding += info.Encoding
			merged.Decoding += info.Decoding
			// Multi-vendor pids keep the last merged vendor tag.
			merged.Vendor = result.vendor
			processes[pid] = merged
		}
		if result.totals.Usage > totals.Usage {
			totals.Usage = result.totals.Usage
		}
		if result.totals.Encoding > totals.Encoding {
			totals.Encoding = result.totals.Encoding
		}
		if result.totals.Decoding > totals.Decoding {
			totals.Decoding = result.totals.Decoding
		}
	}

	g.mu.Lock()
	g.processes = processes
	g.totals = totals
	g.cacheTime = g.now()
	g.mu.Unlock()
}

// collectProvider runs both provider queries in a goroutine and gives up
// after gpuCollectTimeout, returning whatever empty result the vendor
// gets by default. The abandoned goroutine finishes harmlessly.
func collectProvider(p GPUProvider) providerResult {
	result := providerResult{vendor: p.Vendor(), processes: map[int32]GPUProcessInfo{}}
	ch := make(chan providerResult, 1)
	go func() {
		ch <- providerResult{
			vendor:    p.Vendor(),
			processes: p.Processes(),
			totals:    p.Totals(),
		}
	}()
	select {
	case collected := <-ch:
		return collected
	case <-time.After(gpuCollectTimeout):
		LogWarn("GPU provider collection timed out", "vendor", p.Vendor())
		return result
	}
}

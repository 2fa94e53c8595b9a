package monitoring

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/tklauser/go-sysconf"

	"procwatch/hostexec"
)

// activeCPUThreshold is the cutoff below which a process does not count
// as active for the ActiveOnly filter.
const activeCPUThreshold = 0.1

// psColumns is the fixed ps format shared by the relay strategy. lstart
// expands to five tokens, so the parser anchors fields from the right.
const psColumns = "pid,comm,%cpu,rss,lstart,user,nice,uid,state,ppid"

// ProcessReader produces process snapshots. Unconfined it walks the proc
// filesystem directly; inside the sandbox it relays a single ps invocation
// to the host, because the sandbox's own pid namespace hides host
// processes.
type ProcessReader struct {
	runner   hostexec.Runner
	procRoot string
	relay    bool
	timeout  time.Duration

	cpu       *CPUTracker
	ownPID    int32
	pageSize  uint64
	clockTick float64
	bootTime  uint64
}

// NewProcessReader picks the snapshot strategy from the runner's sandbox
// state.
func NewProcessReader(r hostexec.Runner) *ProcessReader {
	pr := newProcessReader(r, r.ProcRoot(), r.Sandboxed())
	if bt, err := host.BootTime(); err == nil {
		pr.bootTime = bt
	} else {
		LogWarn("Failed to read boot time, start times will be relative", "error", err)
	}
	return pr
}

func newProcessReader(r hostexec.Runner, procRoot string, relay bool) *ProcessReader {
	clockTick := 100.0
	if tck, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && tck > 0 {
		clockTick = float64(tck)
	}
	return &ProcessReader{
		runner:    r,
		procRoot:  procRoot,
		relay:     relay,
		timeout:   hostexec.DefaultTimeout,
		cpu:       NewCPUTracker(),
		ownPID:    int32(os.Getpid()),
		pageSize:  uint64(os.Getpagesize()),
		clockTick: clockTick,
	}
}

// List returns the current process snapshot with opts applied. Filter
// order: kernel threads, ownership, activity.
func (pr *ProcessReader) List(opts ListOptions) ([]ProcessSample, error) {
	if pr.relay {
		return pr.listViaPS(opts)
	}
	return pr.listProcfs(opts)
}

// listViaPS parses one host ps invocation into samples.
func (pr *ProcessReader) listViaPS(opts ListOptions) ([]ProcessSample, error) {
	output := pr.runner.Run([]string{"ps", "-eo", psColumns, "--no-headers"}, pr.timeout)
	if strings.TrimSpace(output) == "" {
		LogWarn("ps relay returned no output")
		return []ProcessSample{}, nil
	}

	samples := make([]ProcessSample, 0, 256)
	for _, line := range strings.Split(output, "\n") {
		sample, ok := parsePSLine(line)
		if !ok {
			continue
		}
		// Skip the ps child this snapshot itself spawned.
		if sample.Name == "ps" && sample.PPID == pr.ownPID {
			continue
		}
		if !pr.keep(sample, opts, nil) {
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// parsePSLine parses one line of the fixed ps format. comm may contain
// spaces, so everything after it is anchored from the right; the five
// lstart tokens sit between rss and user.
func parsePSLine(line string) (ProcessSample, bool) {
	fields := strings.Fields(line)
	n := len(fields)
	if n < 14 {
		return ProcessSample{}, false
	}

	pid, err := strconv.ParseInt(fields[0], 10, 32)
	if err != nil {
		return ProcessSample{}, false
	}
	cpuPct, err := strconv.ParseFloat(fields[n-12], 64)
	if err != nil {
		return ProcessSample{}, false
	}
	rssKB, err := strconv.ParseUint(fields[n-11], 10, 64)
	if err != nil {
		return ProcessSample{}, false
	}
	nice, err := strconv.Atoi(fields[n-4])
	if err != nil {
		return ProcessSample{}, false
	}
	uid, err := strconv.ParseInt(fields[n-3], 10, 32)
	if err != nil {
		return ProcessSample{}, false
	}
	ppid, err := strconv.ParseInt(fields[n-1], 10, 32)
	if err != nil {
		return ProcessSample{}, false
	}

	return ProcessSample{
		PID:         int32(pid),
		Name:        strings.Join(fields[1:n-12], " "),
		CPUPercent:  cpuPct,
		MemoryBytes: rssKB * 1024,
		Started:     fields[n-7], // HH:MM:SS token of lstart
		User:        fields[n-5],
		Nice:        nice,
		UID:         int32(uid),
		State:       fields[n-2],
		PPID:        int32(ppid),
	}, true
}

// listProcfs walks the proc root and computes CPU percentages from tick
// deltas against the previous snapshot.
func (pr *ProcessReader) listProcfs(opts ListOptions) ([]ProcessSample, error) {
	entries, err := os.ReadDir(pr.procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading proc root %s: %w", pr.procRoot, err)
	}

	type rawProc struct {
		sample ProcessSample
		ticks  uint64
		kernel bool
	}

	raws := make([]rawProc, 0, 256)
	ticksByPID := make(map[int32]uint64, 256)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.ParseInt(entry.Name(), 10, 32)
		if err != nil {
			continue
		}
		sample, ticks, ok := pr.readProc(int32(pid))
		if !ok {
			continue
		}
		raws = append(raws, rawProc{
			sample: sample,
			ticks:  ticks,
			kernel: pr.isKernelThread(sample.PID, sample.PPID),
		})
		ticksByPID[sample.PID] = ticks
	}

	totalTicks := pr.readTotalTicks()
	percents := pr.cpu.Percentages(ticksByPID, totalTicks)

	samples := make([]ProcessSample, 0, len(raws))
	for _, raw := range raws {
		raw.sample.CPUPercent = percents[raw.sample.PID]
		if !pr.keep(raw.sample, opts, &raw.kernel) {
			continue
		}
		samples = append(samples, raw.sample)
	}
	return samples, nil
}

// keep applies the snapshot filters. kernel is pre-computed for the
// procfs strategy; the ps strategy classifies from the sample alone.
func (pr *ProcessReader) keep(s ProcessSample, opts ListOptions, kernel *bool) bool {
	if !opts.ShowKernelThreads {
		isKernel := s.PPID == 2 || s.PID == 2
		if kernel != nil {
			isKernel = *kernel
		}
		if isKernel {
			return false
		}
	}
	if opts.MyProcessesOnly && s.UID != opts.CurrentUID {
		return false
	}
	if opts.ActiveOnly && s.CPUPercent < activeCPUThreshold {
		return false
	}
	return true
}

// readProc assembles one sample from stat, statm and status. Returns
// false when the process vanished mid-read.
func (pr *ProcessReader) readProc(pid int32) (ProcessSample, uint64, bool) {
	statData, err := os.ReadFile(pr.procPath(pid, "stat"))
	if err != nil {
		return ProcessSample{}, 0, false
	}

	stat := string(statData)
	open := strings.IndexByte(stat, '(')
	closing := strings.LastIndexByte(stat, ')')
	if open < 0 || closing < open || closing+2 > len(stat) {
		return ProcessSample{}, 0, false
	}
	comm := stat[open+1 : closing]
	rest := strings.Fields(stat[closing+1:])
	// rest[0]=state rest[1]=ppid rest[11]=utime rest[12]=stime
	// rest[16]=nice rest[19]=starttime
	if len(rest) < 20 {
		return ProcessSample{}, 0, false
	}

	ppid, _ := strconv.ParseInt(rest[1], 10, 32)
	utime, _ := strconv.ParseUint(rest[11], 10, 64)
	stime, _ := strconv.ParseUint(rest[12], 10, 64)
	nice, _ := strconv.Atoi(rest[16])
	startTicks, _ := strconv.ParseUint(rest[19], 10, 64)

	sample := ProcessSample{
		PID:     pid,
		Name:    comm,
		State:   rest[0],
		PPID:    int32(ppid),
		Nice:    nice,
		Started: pr.formatStart(startTicks),
	}
	sample.MemoryBytes = pr.readRSS(pid)
	sample.UID, sample.User = pr.readOwner(pid)
	return sample, utime + stime, true
}

// readRSS converts the resident page count from statm into bytes.
func (pr *ProcessReader) readRSS(pid int32) uint64 {
	data, err := os.ReadFile(pr.procPath(pid, "statm"))
	if err != nil {
		return 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0
	}
	return pages * pr.pageSize
}

// readOwner resolves the real uid and username from status, falling back
// to the numeric uid string when the user database has no entry.
func (pr *ProcessReader) readOwner(pid int32) (int32, string) {
	data, err := os.ReadFile(pr.procPath(pid, "status"))
	if err != nil {
		return 0, "?"
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Uid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		uid, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			break
		}
		name := fields[1]
		if u, err := user.LookupId(fields[1]); err == nil {
			name = u.Username
		}
		return int32(uid), name
	}
	return 0, "?"
}

// isKernelThread classifies kernel threads: children of kthreadd (pid 2)
// and, as a secondary signal, processes with no readable exe link whose
// parent is pid 0 or 2.
func (pr *ProcessReader) isKernelThread(pid, ppid int32) bool {
	if ppid == 2 || pid == 2 {
		return true
	}
	if ppid == 0 {
		if _, err := os.Readlink(pr.procPath(pid, "exe")); err != nil {
			return true
		}
	}
	return false
}

// readTotalTicks sums the aggregate cpu line of <root>/stat.
func (pr *ProcessReader) readTotalTicks() uint64 {
	data, err := os.ReadFile(filepath.Join(pr.procRoot, "stat"))
	if err != nil {
		return 0
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		var total uint64
		for _, field := range strings.Fields(line)[1:] {
			v, err := strconv.ParseUint(field, 10, 64)
			if err != nil {
				continue
			}
			total += v
		}
		return total
	}
	return 0
}

// formatStart turns a start tick count into the wall-clock HH:MM:SS the
// process started at, matching the lstart-derived display of the relay
// strategy.
func (pr *ProcessReader) formatStart(startTicks uint64) string {
	if pr.bootTime == 0 {
		return "?"
	}
	started := time.Unix(int64(pr.bootTime)+int64(float64(startTicks)/pr.clockTick), 0)
	return started.Format("15:04:05")
}

func (pr *ProcessReader) procPath(pid int32, file string) string {
	return filepath.Join(pr.procRoot, strconv.FormatInt(int64(pid), 10), file)
}

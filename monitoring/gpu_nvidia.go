package monitoring

import (
	"strconv"
	"strings"
	"time"

	"procwatch/hostexec"
)

// codecSessionEstimate is the utilization attributed to a pid that holds
// an NVENC/NVDEC session. nvidia-smi reports session existence but not
// per-session load, so a fixed estimate is the best available signal.
const codecSessionEstimate = 30.0

// NvidiaProvider reads per-process and device statistics from nvidia-smi
// query mode. Three queries per refresh: compute apps for memory and
// names, per-process SM utilization, and encoder sessions.
type NvidiaProvider struct {
	runner  hostexec.Runner
	timeout time.Duration
}

func NewNvidiaProvider(r hostexec.Runner) *NvidiaProvider {
	return &NvidiaProvider{runner: r, timeout: hostexec.DefaultTimeout}
}

func (p *NvidiaProvider) Vendor() GPUVendor { return VendorNVIDIA }

func (p *NvidiaProvider) Processes() map[int32]GPUProcessInfo {
	processes := make(map[int32]GPUProcessInfo)

	out := p.runner.Run([]string{
		"nvidia-smi",
		"--query-compute-apps=pid,used_memory,process_name",
		"--format=csv,noheader,nounits",
	}, p.timeout)
	for _, fields := range csvLines(out) {
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			continue
		}
		memMB, _ := strconv.ParseUint(fields[1], 10, 64)
		processes[int32(pid)] = GPUProcessInfo{
			PID:    int32(pid),
			Memory: memMB * 1024 * 1024,
			Vendor: VendorNVIDIA,
		}
	}

	p.updateUtilization(processes)
	p.updateEncoderSessions(processes)
	return processes
}

// updateUtilization fills in per-process SM usage for pids already known
// from the compute-apps query.
func (p *NvidiaProvider) updateUtilization(processes map[int32]GPUProcessInfo) {
	out := p.runner.Run([]string{
		"nvidia-smi",
		"--query-compute-apps=pid,sm,memory",
		"--format=csv,noheader,nounits",
	}, p.timeout)
	for _, fields := range csvLines(out) {
		if len(fields) < 2 {
			continue
		}
		pid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			continue
		}
		sm, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		if info, ok := processes[int32(pid)]; ok {
			info.Usage = sm
			processes[int32(pid)] = info
		}
	}
}

// updateEncoderSessions marks pids holding codec sessions with the fixed
// load estimate.
func (p *NvidiaProvider) updateEncoderSessions(processes map[int32]GPUProcessInfo) {
	out := p.runner.Run([]string{
		"nvidia-smi",
		"--query-encoder-sessions=pid,codec_type,codec_name,session_id",
		"--format=csv,noheader",
	}, p.timeout)
	for _, fields := range csvLines(out) {
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			continue
		}
		info, ok := processes[int32(pid)]
		if !ok {
			continue
		}
		codec := strings.ToLower(fields[1])
		switch {
		case strings.Contains(codec, "encode") || strings.Contains(codec, "h264") || strings.Contains(codec, "hevc"):
			info.Encoding = codecSessionEstimate
		case strings.Contains(codec, "decode"):
			info.Decoding = codecSessionEstimate
		}
		processes[int32(pid)] = info
	}
}

func (p *NvidiaProvider) Totals() GPUTotals {
	totals := GPUTotals{}
	out := p.runner.Run([]string{
		"nvidia-smi",
		"--query-gpu=utilization.gpu,utilization.enc,utilization.dec",
		"--format=csv,noheader,nounits",
	}, p.timeout)
	// One line per GPU; keep the busiest device.
	for _, fields := range csvLines(out) {
		if len(fields) < 3 {
			continue
		}
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil && v > totals.Usage {
			totals.Usage = v
		}
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil && v > totals.Encoding {
			totals.Encoding = v
		}
		if v, err := strconv.ParseFloat(fields[2], 64); err == nil && v > totals.Decoding {
			totals.Decoding = v
		}
	}
	return totals
}

// csvLines splits nvidia-smi CSV output into trimmed fields per line.
func csvLines(out string) [][]string {
	var lines [][]string
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		lines = append(lines, fields)
	}
	return lines
}

package monitoring

import (
	"strconv"
	"strings"
	"time"

	"procwatch/hostexec"
)

// AMDProvider reads statistics from rocm-smi, falling back to radeontop
// for device totals. Neither tool exposes per-process memory, so only
// usage is attributed per pid.
type AMDProvider struct {
	runner  hostexec.Runner
	timeout time.Duration
}

func NewAMDProvider(r hostexec.Runner) *AMDProvider {
	return &AMDProvider{runner: r, timeout: hostexec.DefaultTimeout}
}

func (p *AMDProvider) Vendor() GPUVendor { return VendorAMD }

func (p *AMDProvider) Processes() map[int32]GPUProcessInfo {
	processes := make(map[int32]GPUProcessInfo)

	out := p.runner.Run([]string{"rocm-smi", "--showpid", "--showuse", "--csv"}, p.timeout)
	for _, line := range strings.Split(out, "\n") {
		// Skip headers and per-device summary rows.
		if strings.TrimSpace(line) == "" || strings.Contains(line, "GPU") || strings.Contains(line, "PID") {
			continue
		}
		fields := splitCSV(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		usage := parsePercent(fields[1])
		if usage <= 0 {
			continue
		}
		processes[int32(pid)] = GPUProcessInfo{
			PID:    int32(pid),
			Usage:  usage,
			Vendor: VendorAMD,
		}
	}
	return processes
}

func (p *AMDProvider) Totals() GPUTotals {
	totals := GPUTotals{}
	if p.totalsFromRocmSMI(&totals) {
		return totals
	}
	p.totalsFromRadeontop(&totals)
	return totals
}

func (p *AMDProvider) totalsFromRocmSMI(totals *GPUTotals) bool {
	out := p.runner.Run([]string{"rocm-smi", "--showuse", "--csv"}, p.timeout)
	found := false
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" || strings.Contains(line, "GPU") {
			continue
		}
		fields := splitCSV(line)
		if len(fields) < 2 {
			continue
		}
		if usage := parsePercent(fields[1]); usage > totals.Usage {
			totals.Usage = usage
			found = true
		} else if usage >= 0 && strings.Contains(fields[1], "%") {
			found = true
		}
	}
	return found
}

// totalsFromRadeontop parses one dump line of radeontop, which reports
// usage as "gpu 12.34%" style pairs.
func (p *AMDProvider) totalsFromRadeontop(totals *GPUTotals) {
	out := p.runner.Run([]string{"timeout", "2", "radeontop", "-l", "1", "-d", "-"}, p.timeout)
	for _, line := range strings.Split(out, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "gpu") && !strings.Contains(lower, "vram") {
			continue
		}
		for _, token := range strings.Fields(line) {
			if !strings.Contains(token, "%") {
				continue
			}
			if usage := parsePercent(token); usage > totals.Usage {
				totals.Usage = usage
			}
			break
		}
	}
}

func splitCSV(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// parsePercent parses "42.5%" style tokens; returns 0 when the token
// carries no percent value.
func parsePercent(s string) float64 {
	s = strings.TrimRight(strings.TrimSpace(s), ",")
	if !strings.Contains(s, "%") {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

package monitoring

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemInfo is the machine-level summary shown alongside the process
// list. gopsutil honors HOST_PROC, so inside the sandbox these figures
// describe the host, not the sandbox.
type SystemInfo struct {
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	SwapTotal     uint64  `json:"swap_total"`
	SwapUsed      uint64  `json:"swap_used"`
	SwapPercent   float64 `json:"swap_percent"`

	CPUModel string  `json:"cpu_model"`
	CPUCores int     `json:"cpu_cores"`
	CPUMHz   float64 `json:"cpu_mhz"`

	Load1  float64 `json:"load_1"`
	Load5  float64 `json:"load_5"`
	Load15 float64 `json:"load_15"`

	UptimeSeconds uint64    `json:"uptime_seconds"`
	Uptime        string    `json:"uptime"`
	BootTime      time.Time `json:"boot_time"`
}

// CollectSystemInfo gathers the summary. Individual probes degrade
// independently; a missing swap device must not hide the load averages.
func CollectSystemInfo() *SystemInfo {
	info := &SystemInfo{}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryPercent = vm.UsedPercent
	} else {
		LogWarn("Failed to read memory stats", "error", err)
	}

	if swap, err := mem.SwapMemory(); err == nil {
		info.SwapTotal = swap.Total
		info.SwapUsed = swap.Used
		info.SwapPercent = swap.UsedPercent
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUMHz = infos[0].Mhz
	}
	if cores, err := cpu.Counts(true); err == nil {
		info.CPUCores = cores
	}

	if avg, err := load.Avg(); err == nil {
		info.Load1 = avg.Load1
		info.Load5 = avg.Load5
		info.Load15 = avg.Load15
	}

	if uptime, err := host.Uptime(); err == nil {
		info.UptimeSeconds = uptime
		info.Uptime = FormatUptime(uptime)
	}
	if boot, err := host.BootTime(); err == nil {
		info.BootTime = time.Unix(int64(boot), 0)
	}

	return info
}

// FormatUptime renders seconds as "2d 3h 4m", dropping leading zero
// units.
func FormatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

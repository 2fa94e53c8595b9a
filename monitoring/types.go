package monitoring

import "time"

// ProcessSample is one process as seen by a single snapshot pass.
type ProcessSample struct {
	PID         int32   `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float64 `json:"cpu"`
	MemoryBytes uint64  `json:"memory"`
	Started     string  `json:"started"`
	User        string  `json:"user"`
	Nice        int     `json:"nice"`
	UID         int32   `json:"uid"`
	State       string  `json:"state"`
	PPID        int32   `json:"ppid"`
}

// ListOptions control which processes a snapshot includes.
type ListOptions struct {
	// MyProcessesOnly keeps only processes owned by CurrentUID.
	MyProcessesOnly bool
	CurrentUID      int32
	// ActiveOnly drops processes below 0.1% CPU.
	ActiveOnly bool
	// ShowKernelThreads includes kernel threads in the result.
	ShowKernelThreads bool
}

// ProcessDetails holds the on-demand deep inspection of one process. Each
// field degrades to a placeholder when the underlying query fails.
type ProcessDetails struct {
	Cmdline string `json:"cmdline"`
	Cwd     string `json:"cwd"`
	Exe     string `json:"exe"`
	Environ string `json:"environ"`
	FDCount int    `json:"fd_count"`
	Threads int    `json:"threads"`
}

// GPUVendor identifies a GPU driver stack.
type GPUVendor string

const (
	VendorNVIDIA GPUVendor = "nvidia"
	VendorIntel  GPUVendor = "intel"
	VendorAMD    GPUVendor = "amd"
)

// GPUProcessInfo is per-process GPU usage as reported by one or more
// vendor providers.
type GPUProcessInfo struct {
	PID      int32     `json:"pid"`
	Usage    float64   `json:"gpu_usage"`  // engine busy percent
	Memory   uint64    `json:"gpu_memory"` // bytes
	Encoding float64   `json:"encoding"`
	Decoding float64   `json:"decoding"`
	Vendor   GPUVendor `json:"gpu_type"`
}

// GPUTotals is the device-level GPU utilization summary.
type GPUTotals struct {
	Usage    float64  `json:"total_gpu_usage"`
	Encoding float64  `json:"total_encoding"`
	Decoding float64  `json:"total_decoding"`
	Vendors  []string `json:"gpu_types"`
}

// PortRecord is one socket from the port enumerator, with process
// attribution and traffic counters where the kernel exposes them.
type PortRecord struct {
	PID        int32   `json:"pid"`
	Process    string  `json:"name"`
	Protocol   string  `json:"protocol"`
	State      string  `json:"state"`
	LocalAddr  string  `json:"local_address"`
	LocalPort  int     `json:"local_port"`
	RemoteAddr string  `json:"remote_address,omitempty"`
	RemotePort int     `json:"remote_port,omitempty"`
	BytesSent  uint64  `json:"bytes_sent"`
	BytesRecv  uint64  `json:"bytes_recv"`
	SentRate   float64 `json:"bytes_sent_rate"`
	RecvRate   float64 `json:"bytes_recv_rate"`
}

// ProcessLifetime aggregates what the history tracker learned about one
// pid across snapshots.
type ProcessLifetime struct {
	PID             int32     `json:"pid"`
	Name            string    `json:"name"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	MaxCPU          float64   `json:"max_cpu"`
	MaxMemory       uint64    `json:"max_memory"`
	Samples         int64     `json:"total_samples"`
	LifetimeSeconds float64   `json:"lifetime_seconds,omitempty"`
	Exited          bool      `json:"exited"`
}

// Snapshot is one poll cycle's worth of data, fanned out to the
// websocket hub and the database writer.
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Processes []ProcessSample `json:"processes"`
	System    *SystemInfo     `json:"system,omitempty"`
	GPUTotals GPUTotals       `json:"gpu_totals"`
}

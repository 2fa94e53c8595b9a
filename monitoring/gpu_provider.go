package monitoring

// GPUProvider collects process and device statistics for one GPU vendor.
// Implementations shell out to the vendor tool through the host runner
// and report best-effort data; an unreachable tool yields empty results,
// never an error.
type GPUProvider interface {
	Vendor() GPUVendor
	// Processes returns GPU usage keyed by pid.
	Processes() map[int32]GPUProcessInfo
	// Totals returns device-level utilization.
	Totals() GPUTotals
}

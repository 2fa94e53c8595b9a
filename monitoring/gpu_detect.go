package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"procwatch/hostexec"
)

// drmClassPath is where the kernel exposes PCI vendor IDs for display
// adapters. Readable from inside the sandbox, unlike the vendor tools.
const drmClassPath = "/sys/class/drm"

// PCI vendor IDs of the supported GPU stacks.
const (
	vendorIDNvidia = "0x10de"
	vendorIDIntel  = "0x8086"
	vendorIDAMD    = "0x1002"
	vendorIDATI    = "0x1022"
)

// DetectGPUVendors returns the GPU stacks present on this machine, in
// stable nvidia/intel/amd order. The sysfs vendor ID is the primary
// signal; invoking the vendor CLI is only a fallback confirmation for
// cards sysfs does not list.
func DetectGPUVendors(r hostexec.Runner) []GPUVendor {
	return detectGPUVendors(r, drmClassPath)
}

func detectGPUVendors(r hostexec.Runner, drmPath string) []GPUVendor {
	ids := readDRMVendorIDs(drmPath)

	var vendors []GPUVendor
	if ids[vendorIDNvidia] || probeNvidiaCLI(r) {
		vendors = append(vendors, VendorNVIDIA)
	}
	if ids[vendorIDIntel] || probeIntelCLI(r) {
		vendors = append(vendors, VendorIntel)
	}
	if ids[vendorIDAMD] || ids[vendorIDATI] || probeAMDCLI(r) {
		vendors = append(vendors, VendorAMD)
	}
	LogInfo("GPU detection complete", "vendors", vendors)
	return vendors
}

// readDRMVendorIDs collects the vendor ID of every card node.
func readDRMVendorIDs(drmPath string) map[string]bool {
	ids := make(map[string]bool)
	entries, err := os.ReadDir(drmPath)
	if err != nil {
		return ids
	}
	for _, entry := range entries {
		name := entry.Name()
		// card0, card1, ... but not card0-DP-1 connector nodes.
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(drmPath, name, "device", "vendor"))
		if err != nil {
			continue
		}
		ids[strings.TrimSpace(string(data))] = true
	}
	return ids
}

func probeNvidiaCLI(r hostexec.Runner) bool {
	out := r.Run([]string{"nvidia-smi", "--query-gpu=name", "--format=csv,noheader"}, 2*time.Second)
	return strings.TrimSpace(out) != ""
}

func probeIntelCLI(r hostexec.Runner) bool {
	out := r.Run([]string{"intel_gpu_top", "-L"}, 2*time.Second)
	return strings.TrimSpace(out) != ""
}

func probeAMDCLI(r hostexec.Runner) bool {
	out := r.Run([]string{"rocm-smi", "--showid"}, 2*time.Second)
	return strings.TrimSpace(out) != ""
}

// NewGPUProviders builds a provider per detected vendor.
func NewGPUProviders(r hostexec.Runner) []GPUProvider {
	var providers []GPUProvider
	for _, vendor := range DetectGPUVendors(r) {
		switch vendor {
		case VendorNVIDIA:
			providers = append(providers, NewNvidiaProvider(r))
		case VendorIntel:
			providers = append(providers, NewIntelProvider(r))
		case VendorAMD:
			providers = append(providers, NewAMDProvider(r))
		}
	}
	return providers
}

package system

import (
	"runtime"

	"github.com/img-ai-studio/artgen/pkg/xsysinfo"
	"github.com/jaypipes/ghw/pkg/gpu"
	"github.com/mudler/xlog"
)

type SystemState struct {
	GPUVendor string
	GPUName   string
	// VRAM is the total device memory in bytes, 0 when unknown.
	VRAM    uint64
	GOOS    string
	GOARCH  string
	Devices []xsysinfo.GPUMemoryInfo
	Cores   int

	gpus []*gpu.GraphicsCard
}

type SystemStateOptions func(*SystemState)

// WithGPU pins the detected GPU, skipping hardware probing of it.
func WithGPU(vendor, name string, vram uint64) SystemStateOptions {
	return func(s *SystemState) {
		s.GPUVendor = vendor
		s.GPUName = name
		s.VRAM = vram
	}
}

// WithCards uses cards as the enumerated graphics cards instead of probing
// the host and its vendor tooling.
func WithCards(cards ...*gpu.GraphicsCard) SystemStateOptions {
	return func(s *SystemState) {
		s.gpus = append([]*gpu.GraphicsCard{}, cards...)
	}
}

func WithPlatform(goos, goarch string) SystemStateOptions {
	return func(s *SystemState) {
		s.GOOS = goos
		s.GOARCH = goarch
	}
}

// GetSystemState probes the host. Detection is best-effort: a failing probe
// leaves the corresponding fields empty and never returns an error.
func GetSystemState(opts ...SystemStateOptions) *SystemState {
	state := &SystemState{
		GOOS:   runtime.GOOS,
		GOARCH: runtime.GOARCH,
		Cores:  xsysinfo.CPUPhysicalCores(),
	}
	for _, opt := range opts {
		opt(state)
	}

	if state.GPUVendor != "" {
		return state
	}

	if state.gpus != nil {
		return fromCards(state)
	}

	// nvidia-smi and rocm-smi are the only source of device memory figures
	state.Devices = xsysinfo.GetGPUMemoryUsage()
	if len(state.Devices) > 0 {
		best := state.Devices[0]
		for _, d := range state.Devices[1:] {
			if d.TotalVRAM > best.TotalVRAM {
				best = d
			}
		}
		state.GPUVendor = best.Vendor
		state.GPUName = best.Name
		state.VRAM = best.TotalVRAM
		xlog.Debug("GPU detected via vendor tooling", "vendor", state.GPUVendor, "name", state.GPUName, "vram", state.VRAM)
		return state
	}

	state.gpus, _ = xsysinfo.GPUs()
	return fromCards(state)
}

// fromCards fills the GPU fields from the enumerated cards. ghw only reports
// the memory of the NUMA node a card sits on, which is host RAM, so VRAM is
// left unknown and the small device demotion does not apply.
func fromCards(state *SystemState) *SystemState {
	xlog.Debug("GPUs", "gpus", state.gpus)
	state.GPUVendor, state.GPUName = detectGPUVendor(state.gpus)
	xlog.Debug("GPU vendor", "gpuVendor", state.GPUVendor, "name", state.GPUName)
	return state
}

func detectGPUVendor(gpus []*gpu.GraphicsCard) (string, string) {
	for _, card := range gpus {
		vendor := xsysinfo.CardVendor(card)
		if vendor != xsysinfo.VendorUnknown {
			return vendor, xsysinfo.CardName(card)
		}
	}

	return "", ""
}

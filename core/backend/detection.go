package backend

import (
	"runtime"

	"github.com/img-ai-studio/artgen/pkg/system"
	"github.com/img-ai-studio/artgen/pkg/xsysinfo"
	"github.com/mudler/xlog"
)

// Detect picks the backend profile for the probed host. It never fails,
// hosts without a usable accelerator get the CPU fallback.
func Detect(state *system.SystemState, threads int) Profile {
	var kind Kind
	switch state.Capability() {
	case system.Specialized:
		kind = KindSpecialized
	case system.Generic:
		kind = KindGeneric
	default:
		kind = KindCPU
	}

	p := Profile{
		Kind:          kind,
		Precision:     FP32,
		Tier:          Tiers[kind],
		Optimizations: optimizations(kind, state.VRAM),
		Threads:       threads,
	}
	if kind == KindSpecialized {
		p.Precision = FP16
	}

	if kind == KindCPU {
		p.Device = xsysinfo.CPUBrand()
		if p.Device == "" {
			p.Device = "CPU"
		}
	} else {
		p.Device = state.GPUName
		p.Vendor = state.GPUVendor
		p.VRAM = state.VRAM
		if p.Device == "" {
			p.Device = state.GPUVendor
		}
		if p.Device == "" {
			p.Device = "GPU"
		}
	}

	if p.Threads <= 0 {
		p.Threads = state.Cores
	}
	if p.Threads <= 0 {
		p.Threads = runtime.NumCPU()
	}

	xlog.Debug("Backend profile", "kind", p.Kind, "device", p.Device, "precision", p.Precision, "tier", p.Tier.Name, "optimizations", p.Optimizations, "threads", p.Threads)
	return p
}

package xsysinfo

import (
	"github.com/klauspost/cpuid/v2"
)

// HasCPUCaps reports whether the CPU supports every feature in ids.
func HasCPUCaps(ids ...cpuid.FeatureID) bool {
	return cpuid.CPU.Supports(ids...)
}

// CPUBrand is the marketing name of the host CPU.
func CPUBrand() string {
	return cpuid.CPU.BrandName
}

func CPUPhysicalCores() int {
	if cpuid.CPU.PhysicalCores == 0 {
		return 1
	}
	return cpuid.CPU.PhysicalCores
}

// Package system provides host detection utilities, including GPU/vendor detection
// and the capability classification used to pick a compute backend at runtime.
package system

import (
	"os"
	"strings"

	"github.com/mudler/xlog"
)

const (
	// CUDA-class accelerators
	Specialized = "specialized"
	// ROCm, SYCL, Vulkan and Metal devices
	Generic = "generic"
	CPU     = "cpu"

	Nvidia = "nvidia"
	AMD    = "amd"
	Intel  = "intel"

	capabilityEnv        = "ARTGEN_FORCE_BACKEND"
	capabilityRunFileEnv = "ARTGEN_FORCE_BACKEND_RUN_FILE"
	defaultRunFile       = "/run/artgen/backend"

	// MinAcceleratorVRAM is the smallest discrete device worth offloading to.
	MinAcceleratorVRAM = 4 * 1024 * 1024 * 1024
)

// Capability classifies the host into one of Specialized, Generic or CPU.
// Forced values from the environment or the capability run file win over probing.
func (s *SystemState) Capability() string {
	if forced := forcedCapability(); forced != "" {
		return forced
	}

	// Apple silicon always has a Metal device sharing system memory
	if s.GOOS == "darwin" && s.GOARCH == "arm64" {
		xlog.Info("Using generic capability (metal on arm64 mac)")
		return Generic
	}

	if s.GPUVendor == "" {
		xlog.Info("Default capability (no GPU detected)", "env", capabilityEnv)
		return CPU
	}

	// VRAM may be unknown (0) on some drivers, only a known small device is demoted
	if s.VRAM > 0 && s.VRAM <= MinAcceleratorVRAM {
		xlog.Warn("VRAM is less than 4GB, defaulting to CPU", "vram", s.VRAM, "env", capabilityEnv)
		return CPU
	}

	switch s.GPUVendor {
	case Nvidia:
		xlog.Info("Capability automatically detected", "capability", Specialized, "vendor", s.GPUVendor)
		return Specialized
	case AMD, Intel:
		xlog.Info("Capability automatically detected", "capability", Generic, "vendor", s.GPUVendor)
		return Generic
	}

	return CPU
}

func forcedCapability() string {
	if capability := normalizeCapability(os.Getenv(capabilityEnv)); capability != "" {
		xlog.Info("Using forced capability from environment variable", "capability", capability, "env", capabilityEnv)
		return capability
	}

	capabilityRunFile := defaultRunFile
	if v := os.Getenv(capabilityRunFileEnv); v != "" {
		capabilityRunFile = v
	}

	// Container images may pin the backend by writing the run file
	data, err := os.ReadFile(capabilityRunFile)
	if err != nil {
		return ""
	}
	capability := normalizeCapability(string(data))
	if capability != "" {
		xlog.Info("Using forced capability run file", "capabilityRunFile", capabilityRunFile, "capability", capability)
	}
	return capability
}

func normalizeCapability(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case Specialized, "cuda", Nvidia:
		return Specialized
	case Generic, "rocm", "vulkan", "metal", "sycl":
		return Generic
	case CPU, "default":
		return CPU
	}
	return ""
}

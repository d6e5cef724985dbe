package xsysinfo

import (
	"bytes"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/jaypipes/ghw"
	"github.com/jaypipes/ghw/pkg/gpu"
	"github.com/mudler/xlog"
)

// GPU vendor constants
const (
	VendorNVIDIA  = "nvidia"
	VendorAMD     = "amd"
	VendorIntel   = "intel"
	VendorUnknown = "unknown"
)

// UnifiedMemoryDevices is a list of GPU device name patterns that share memory
// with the host. When they report N/A for VRAM we fall back to system RAM.
var UnifiedMemoryDevices = []string{
	"NVIDIA GB10",
	"GB10",
}

// GPUMemoryInfo contains real-time GPU memory usage information
type GPUMemoryInfo struct {
	Index        int     `json:"index"`
	Name         string  `json:"name"`
	Vendor       string  `json:"vendor"`
	TotalVRAM    uint64  `json:"total_vram"`
	UsedVRAM     uint64  `json:"used_vram"`
	FreeVRAM     uint64  `json:"free_vram"`
	UsagePercent float64 `json:"usage_percent"`
}

var (
	gpuCache     []*gpu.GraphicsCard
	gpuCacheOnce sync.Once
	gpuCacheErr  error
)

// GPUs enumerates the graphics cards once per process.
func GPUs() ([]*gpu.GraphicsCard, error) {
	gpuCacheOnce.Do(func() {
		gpu, err := ghw.GPU()
		if err != nil {
			gpuCacheErr = err
			return
		}
		gpuCache = gpu.GraphicsCards
	})

	return gpuCache, gpuCacheErr
}

// CardVendor returns the normalized vendor of a card, or VendorUnknown.
func CardVendor(card *gpu.GraphicsCard) string {
	if card == nil || card.DeviceInfo == nil || card.DeviceInfo.Vendor == nil {
		return VendorUnknown
	}
	name := strings.ToUpper(card.DeviceInfo.Vendor.Name)
	switch {
	case strings.Contains(name, "NVIDIA"):
		return VendorNVIDIA
	case strings.Contains(name, "AMD"), strings.Contains(name, "ADVANCED MICRO DEVICES"):
		return VendorAMD
	case strings.Contains(name, "INTEL"):
		return VendorIntel
	}
	return VendorUnknown
}

// CardName returns the product name of a card, falling back to its address.
func CardName(card *gpu.GraphicsCard) string {
	if card == nil {
		return ""
	}
	if card.DeviceInfo != nil && card.DeviceInfo.Product != nil && card.DeviceInfo.Product.Name != "" {
		return card.DeviceInfo.Product.Name
	}
	return card.Address
}

func isUnifiedMemoryDevice(gpuName string) bool {
	gpuNameUpper := strings.ToUpper(gpuName)
	for _, pattern := range UnifiedMemoryDevices {
		if strings.Contains(gpuNameUpper, strings.ToUpper(pattern)) {
			return true
		}
	}
	return false
}

// GetGPUMemoryUsage returns real-time GPU memory usage for all detected GPUs.
// NVIDIA is queried first, AMD devices are appended after it.
// Returns an empty slice if no GPU monitoring tools are available.
func GetGPUMemoryUsage() []GPUMemoryInfo {
	var gpus []GPUMemoryInfo

	gpus = append(gpus, getNVIDIAGPUMemory()...)

	amdGPUs := getAMDGPUMemory()
	startIdx := len(gpus)
	for i := range amdGPUs {
		amdGPUs[i].Index = startIdx + i
	}
	gpus = append(gpus, amdGPUs...)

	return gpus
}

// getNVIDIAGPUMemory queries NVIDIA GPUs using nvidia-smi
func getNVIDIAGPUMemory() []GPUMemoryInfo {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil
	}

	cmd := exec.Command("nvidia-smi",
		"--query-gpu=index,name,memory.total,memory.used,memory.free",
		"--format=csv,noheader,nounits")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		xlog.Debug("nvidia-smi failed", "error", err, "stderr", stderr.String())
		return nil
	}

	return parseNVIDIASMI(stdout.String())
}

func parseNVIDIASMI(out string) []GPUMemoryInfo {
	var gpus []GPUMemoryInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}

		parts := strings.Split(line, ", ")
		if len(parts) < 5 {
			continue
		}

		idx, _ := strconv.Atoi(strings.TrimSpace(parts[0]))
		name := strings.TrimSpace(parts[1])
		totalStr := strings.TrimSpace(parts[2])
		usedStr := strings.TrimSpace(parts[3])
		freeStr := strings.TrimSpace(parts[4])

		info := GPUMemoryInfo{Index: idx, Name: name, Vendor: VendorNVIDIA}

		isNA := totalStr == "[N/A]" || usedStr == "[N/A]" || freeStr == "[N/A]"
		switch {
		case isNA && isUnifiedMemoryDevice(name):
			ram, err := GetSystemRAMInfo()
			if err == nil {
				info.TotalVRAM = ram.Total
				info.FreeVRAM = ram.Available
				info.UsedVRAM = ram.Used
				info.UsagePercent = ram.UsagePercent
			}
			xlog.Debug("using system RAM for unified memory GPU", "device", name, "bytes", info.TotalVRAM)
		case isNA:
			xlog.Debug("nvidia-smi returned N/A for unknown device", "device", name)
		default:
			totalMB, _ := strconv.ParseFloat(totalStr, 64)
			usedMB, _ := strconv.ParseFloat(usedStr, 64)
			freeMB, _ := strconv.ParseFloat(freeStr, 64)

			info.TotalVRAM = uint64(totalMB * 1024 * 1024)
			info.UsedVRAM = uint64(usedMB * 1024 * 1024)
			info.FreeVRAM = uint64(freeMB * 1024 * 1024)
			if info.TotalVRAM > 0 {
				info.UsagePercent = float64(info.UsedVRAM) / float64(info.TotalVRAM) * 100
			}
		}

		gpus = append(gpus, info)
	}

	return gpus
}

// getAMDGPUMemory queries AMD GPUs using rocm-smi
func getAMDGPUMemory() []GPUMemoryInfo {
	if _, err := exec.LookPath("rocm-smi"); err != nil {
		return nil
	}

	cmd := exec.Command("rocm-smi", "--showmeminfo", "vram", "--csv")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		xlog.Debug("rocm-smi failed", "error", err, "stderr", stderr.String())
		return nil
	}

	return parseROCmSMI(stdout.String())
}

// parseROCmSMI reads "device,used,total" rows after a csv header.
func parseROCmSMI(out string) []GPUMemoryInfo {
	var gpus []GPUMemoryInfo
	for i, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, ",")
		if i == 0 || len(fields) < 3 {
			continue
		}

		used, _ := strconv.ParseUint(strings.TrimSpace(fields[1]), 10, 64)
		total, _ := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 64)
		// older rocm-smi versions report MiB
		if total < 1000000 {
			used <<= 20
			total <<= 20
		}

		info := GPUMemoryInfo{
			Index:     len(gpus),
			Name:      "AMD GPU",
			Vendor:    VendorAMD,
			TotalVRAM: total,
			UsedVRAM:  used,
		}
		if total > used {
			info.FreeVRAM = total - used
		}
		if total > 0 {
			info.UsagePercent = float64(used) / float64(total) * 100
		}
		gpus = append(gpus, info)
	}
	return gpus
}

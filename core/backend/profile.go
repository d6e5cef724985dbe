package backend

import (
	"fmt"
	"slices"
	"strings"

	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
)

type Kind string

const (
	KindSpecialized Kind = "specialized-accelerator"
	KindGeneric     Kind = "generic-accelerator"
	KindCPU         Kind = "cpu-fallback"
)

type Precision string

const (
	FP16 Precision = "fp16"
	FP32 Precision = "fp32"
)

// Tier is the model tier a backend kind can run.
type Tier struct {
	Name string `json:"name"`
	// MaxResolution is the long edge ceiling used when preprocessing.
	MaxResolution      int    `json:"max_resolution"`
	Sampler            string `json:"sampler"`
	Scheduler          string `json:"scheduler"`
	AdvancedScheduling bool   `json:"advanced_scheduling"`
}

var (
	HiresTier = Tier{
		Name:               config.TierHires,
		MaxResolution:      768,
		Sampler:            "dpm++2m",
		Scheduler:          "karras",
		AdvancedScheduling: true,
	}
	BaseTier = Tier{
		Name:          config.TierBase,
		MaxResolution: 512,
		Sampler:       "euler_a",
		Scheduler:     "discrete",
	}

	Tiers = map[Kind]Tier{
		KindSpecialized: HiresTier,
		KindGeneric:     BaseTier,
		KindCPU:         BaseTier,
	}
)

// Profile is the compute backend chosen for a run.
type Profile struct {
	Kind          Kind      `json:"kind"`
	Device        string    `json:"device"`
	Vendor        string    `json:"vendor,omitempty"`
	VRAM          uint64    `json:"vram"`
	Precision     Precision `json:"precision"`
	Tier          Tier      `json:"tier"`
	Optimizations []string  `json:"optimizations"`
	Threads       int       `json:"threads"`
}

func (p Profile) Supports(optimization string) bool {
	return slices.Contains(p.Optimizations, optimization)
}

func (p Profile) FP16() bool {
	return p.Precision == FP16
}

func (p Profile) String() string {
	s := fmt.Sprintf("%s (%s, %s tier", p.Kind, p.Precision, p.Tier.Name)
	if len(p.Optimizations) > 0 {
		s += ", " + strings.Join(p.Optimizations, ", ")
	}
	return s + ")"
}

const gib = 1024 * 1024 * 1024

func optimizations(kind Kind, vram uint64) []string {
	opts := []string{}
	switch kind {
	case KindSpecialized:
		opts = append(opts, stablediffusion.FlashAttention)
		if vram < 10*gib {
			opts = append(opts, stablediffusion.CPUOffload)
		}
		if vram < 8*gib {
			opts = append(opts, stablediffusion.VAETiling)
		}
	case KindGeneric:
		opts = append(opts, stablediffusion.VAETiling)
	}
	return opts
}

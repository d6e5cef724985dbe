package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/img-ai-studio/artgen/core/backend"
	cliContext "github.com/img-ai-studio/artgen/core/cli/context"
	"github.com/img-ai-studio/artgen/core/config"
	"github.com/img-ai-studio/artgen/core/pipeline"
	"github.com/img-ai-studio/artgen/internal"
	"github.com/img-ai-studio/artgen/pkg/model"
	"github.com/img-ai-studio/artgen/pkg/stablediffusion"
	"github.com/img-ai-studio/artgen/pkg/system"
	"github.com/img-ai-studio/artgen/pkg/xsysinfo"
	"github.com/klauspost/cpuid/v2"
	"github.com/mudler/xlog"
)

type StatusCMD struct{}

type EngineStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

type StyleStatus struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Installed bool   `json:"installed"`
	File      string `json:"file,omitempty"`
}

type CPUStatus struct {
	Brand  string `json:"brand"`
	Cores  int    `json:"cores"`
	AVX2   bool   `json:"avx2"`
	AVX512 bool   `json:"avx512"`
}

// StatusReport tells whether this host can run generations.
type StatusReport struct {
	Version string                   `json:"version"`
	Ready   bool                     `json:"ready"`
	Backend backend.Profile          `json:"backend"`
	CPU     CPUStatus                `json:"cpu"`
	GPUs    []xsysinfo.GPUMemoryInfo `json:"gpus"`
	RAM     *xsysinfo.SystemRAMInfo  `json:"ram,omitempty"`
	Disk    *xsysinfo.DiskInfo       `json:"disk,omitempty"`
	Engines []EngineStatus           `json:"engines"`
	Styles  []StyleStatus            `json:"styles"`
}

// BuildStatus probes the engines and looks up the model of every style of
// the backend tier. Ready requires one usable engine and every model.
func BuildStatus(appConfig *config.ApplicationConfig, styles *config.StyleRegistry, state *system.SystemState, engines ...stablediffusion.Engine) StatusReport {
	profile := backend.Detect(state, appConfig.Threads)
	loader := model.NewModelLoader(appConfig.ModelPath)

	report := StatusReport{
		Version: internal.PrintableVersion(),
		Backend: profile,
		CPU: CPUStatus{
			Brand:  xsysinfo.CPUBrand(),
			Cores:  state.Cores,
			AVX2:   xsysinfo.HasCPUCaps(cpuid.AVX2),
			AVX512: xsysinfo.HasCPUCaps(cpuid.AVX512F),
		},
		GPUs:    state.Devices,
		Engines: []EngineStatus{},
		Styles:  []StyleStatus{},
	}
	if report.GPUs == nil {
		report.GPUs = []xsysinfo.GPUMemoryInfo{}
	}

	engineReady := false
	for _, e := range engines {
		if appConfig.Engine != stablediffusion.Auto && appConfig.Engine != e.Name() {
			continue
		}
		status := EngineStatus{Name: e.Name(), Available: true}
		if err := e.Probe(); err != nil {
			status.Available = false
			status.Error = err.Error()
		}
		engineReady = engineReady || status.Available
		report.Engines = append(report.Engines, status)
	}

	modelsReady := true
	for _, name := range styles.Names(profile.Tier.Name) {
		style := styles.Resolve(profile.Tier.Name, name)
		status := StyleStatus{Name: name, Model: style.Model}
		if file, err := loader.ResolveModelFile(style.Model); err == nil {
			status.Installed = true
			status.File = file
		} else {
			xlog.Debug("Model not installed", "style", name, "model", style.Model, "error", err)
		}
		modelsReady = modelsReady && status.Installed
		report.Styles = append(report.Styles, status)
	}

	if ram, err := xsysinfo.GetSystemRAMInfo(); err == nil {
		report.RAM = ram
	}
	if disk, err := xsysinfo.GetDiskInfo(appConfig.ModelPath); err == nil {
		report.Disk = disk
	} else {
		xlog.Debug("Cannot read disk usage", "path", appConfig.ModelPath, "error", err)
	}

	report.Ready = engineReady && modelsReady
	return report
}

func (s *StatusCMD) Run(ctx *cliContext.Context) error {
	appConfig := config.NewApplicationConfig(appOptions(ctx)...)
	styles := config.NewStyleRegistry()
	if appConfig.StylesFile != "" {
		if err := styles.LoadStylesFromFile(appConfig.StylesFile); err != nil {
			return err
		}
	}

	report := BuildStatus(appConfig, styles, system.GetSystemState(), pipeline.DefaultEngines(appConfig)...)

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

//go:build linux || darwin

package sdlib

import (
	"fmt"

	"github.com/ebitengine/purego"
	"github.com/mudler/xlog"
)

func open(libName string) error {
	gosd, err := purego.Dlopen(libName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return err
	}

	libFuncs := []LibFuncs{
		{&CppLoadModel, "load_model"},
		{&CppGenImage, "gen_image"},
		{&CppFreeModel, "free_model"},
	}

	// RegisterLibFunc panics on a missing symbol, resolve them first
	for _, lf := range libFuncs {
		sym, err := purego.Dlsym(gosd, lf.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", libName, err)
		}
		purego.RegisterFunc(lf.FuncPtr, sym)
	}

	xlog.Debug("Shared library loaded", "library", libName)
	return nil
}

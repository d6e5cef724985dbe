//go:build !linux && !darwin

package sdlib

import (
	"fmt"
	"runtime"
)

func open(libName string) error {
	return fmt.Errorf("cannot load %s: GOOS=%s is not supported", libName, runtime.GOOS)
}

package stablediffusion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mudler/xlog"
)

const Auto = "auto"

// Select returns the first engine whose Probe succeeds. With name set to a
// specific engine only that one is considered.
func Select(name string, engines ...Engine) (Engine, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = Auto
	}

	var errs error
	tried := []string{}
	for _, e := range engines {
		if name != Auto && e.Name() != name {
			continue
		}
		tried = append(tried, e.Name())
		err := e.Probe()
		if err == nil {
			xlog.Debug("Inference engine selected", "engine", e.Name())
			return e, nil
		}
		xlog.Debug("Inference engine not usable", "engine", e.Name(), "error", err)
		errs = errors.Join(errs, fmt.Errorf("%s: %w", e.Name(), err))
	}

	if len(tried) == 0 {
		return nil, fmt.Errorf("%w: unknown engine %q", ErrUnavailable, name)
	}
	return nil, fmt.Errorf("%w (tried %s): %w", ErrUnavailable, strings.Join(tried, ", "), errs)
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

func inTrustedRoot(path string, trustedRoot string) error {
	for path != "/" && path != "." {
		path = filepath.Dir(path)
		if path == trustedRoot {
			return nil
		}
	}
	return fmt.Errorf("path is outside of trusted root")
}

// VerifyPath verifies that path is based in basePath.
func VerifyPath(path, basePath string) error {
	c := filepath.Clean(filepath.Join(basePath, path))
	return inTrustedRoot(c, filepath.Clean(basePath))
}

// ExistsInPath reports whether s exists under path.
func ExistsInPath(path string, s string) bool {
	if VerifyPath(s, path) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(path, s))
	return err == nil
}

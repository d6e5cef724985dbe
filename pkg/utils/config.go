package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mudler/xlog"
)

// SaveJSON writes obj as indented JSON to path, replacing it atomically.
func SaveJSON(path string, obj any) error {
	file, err := json.MarshalIndent(obj, "", " ")
	if err != nil {
		return fmt.Errorf("failed to JSON marshal %T: %w", obj, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(file, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	xlog.Debug("Saving file", "path", path)
	return os.Rename(tmp.Name(), path)
}

// LoadJSON decodes the JSON file at path into obj. A missing file leaves obj
// untouched.
func LoadJSON(path string, obj any) error {
	file, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		xlog.Debug("No file found", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(file, obj)
}

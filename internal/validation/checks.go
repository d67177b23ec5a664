package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// CheckFileExists verifies a regular file exists at the given path.
func CheckFileExists(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("path %s does not exist", path)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("path %s is a directory", path)
	}
	return nil
}

// CheckWritableTarget verifies path can be created: its parent directory must
// exist and path itself must not be a directory.
func CheckWritableTarget(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("directory %s does not exist", parent)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", parent)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("path %s is a directory", path)
	}
	return nil
}

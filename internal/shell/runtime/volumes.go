package runtime

import (
	"fmt"
	"os"
)

// MaterializeDir ensures path exists as a directory. It is idempotent.
func MaterializeDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s exists and is not a directory", ErrVolumeMaterialization, path)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrVolumeMaterialization, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrVolumeMaterialization, err)
	}
	return nil
}

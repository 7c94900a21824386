//go:build unix

package fileutil

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CheckWritable reports whether the current user may create entries in dir.
func CheckWritable(dir string) error {
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	return nil
}

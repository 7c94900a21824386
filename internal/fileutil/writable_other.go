//go:build !unix

package fileutil

import (
	"fmt"
	"os"
)

// CheckWritable reports whether the current user may create entries in dir by
// creating and removing a probe file.
func CheckWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".alchemux-probe-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

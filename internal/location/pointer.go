package location

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alchemux/internal/fileutil"
)

// ErrEmptyPointer is returned by ReadPointer for a pointer record without a path.
var ErrEmptyPointer = errors.New("pointer record is empty")

// ReadPointer returns the directory stored in the pointer record.
func ReadPointer(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	target := strings.TrimSpace(string(data))
	if target == "" {
		return "", ErrEmptyPointer
	}
	return filepath.Clean(target), nil
}

// WritePointer records dir as the explicitly chosen config directory.
func WritePointer(path, dir string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create pointer directory: %w", err)
	}
	abs, err := fileutil.ExpandPath(dir)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, []byte(abs+"\n"), 0o600)
}

// PointerState classifies the pointer record relative to the resolved location.
type PointerState string

const (
	PointerAbsent     PointerState = "absent"
	PointerValid      PointerState = "valid"
	PointerUnreadable PointerState = "unreadable"
	PointerStale      PointerState = "stale"
	PointerMismatch   PointerState = "mismatch"
)

// PointerStatus is a read-only view of the pointer record used by diagnostics.
type PointerStatus struct {
	Path   string
	Target string
	State  PointerState
	Detail string
}

// InspectPointer classifies the pointer record without modifying anything.
// A pointer is a mismatch when it names an existing directory other than the
// resolved one.
func (r *Resolver) InspectPointer(resolved Location) PointerStatus {
	path, err := r.PointerPath()
	if err != nil {
		return PointerStatus{State: PointerUnreadable, Detail: err.Error()}
	}
	status := PointerStatus{Path: path}
	target, err := ReadPointer(path)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		status.State = PointerAbsent
		return status
	default:
		status.State = PointerUnreadable
		status.Detail = err.Error()
		return status
	}
	status.Target = target
	if !pointerTargetUsable(target) {
		status.State = PointerStale
		status.Detail = "target directory does not exist"
		return status
	}
	if resolved.Dir != "" && filepath.Clean(resolved.Dir) != target {
		status.State = PointerMismatch
		status.Detail = fmt.Sprintf("points to %s", target)
		return status
	}
	status.State = PointerValid
	return status
}

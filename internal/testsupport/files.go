package testsupport

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteDocument writes data to path with mode, creating parent directories.
// The mode is applied explicitly so the process umask does not interfere.
func WriteDocument(t testing.TB, path string, data []byte, mode os.FileMode) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// TreeState maps slash-separated relative paths to file content. Directories
// map to a trailing "/" entry with empty content.
type TreeState map[string]string

// Snapshot records every file and directory under root. A missing root yields
// an empty state.
func Snapshot(t testing.TB, root string) TreeState {
	t.Helper()

	state := TreeState{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			state[rel+"/"] = ""
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		state[rel] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot %s: %v", root, err)
	}
	return state
}

// Without returns a copy of s minus every entry under prefix.
func (s TreeState) Without(prefix string) TreeState {
	out := TreeState{}
	for rel, content := range s {
		if rel == prefix+"/" || strings.HasPrefix(rel, prefix+"/") {
			continue
		}
		out[rel] = content
	}
	return out
}

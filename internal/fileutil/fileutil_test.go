package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCopyFileVerifiedKeepsSourceMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "src.env")
	dst := filepath.Join(dir, "dst.env")

	content := []byte("S3_ACCESS_KEY=abc\n")
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode().Perm())
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFileVerified(filepath.Join(dir, "nonexistent"), filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("new"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Fatalf("unexpected content %q", got)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFileAtomicLeavesOriginalOnFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the final rename fail after the
	// temp file has been fully written.
	target := filepath.Join(dir, "config.toml")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("new"), 0o644); err == nil {
		t.Fatal("expected rename over non-empty directory to fail")
	}

	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected original directory to survive, err=%v", err)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	target := filepath.Join(t.TempDir(), "missing", "config.toml")
	if err := WriteFileAtomic(target, []byte("x"), 0o644); err == nil {
		t.Fatal("expected error when parent directory is missing")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got, err := ExpandPath("~/Downloads/Alchemux")
	if err != nil {
		t.Fatalf("ExpandPath: %v", err)
	}
	want := filepath.Join(home, "Downloads", "Alchemux")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if empty, err := ExpandPath("  "); err != nil || empty != "" {
		t.Fatalf("expected empty passthrough, got %q err=%v", empty, err)
	}
}

func TestNearestExistingAncestor(t *testing.T) {
	dir := t.TempDir()
	got, err := NearestExistingAncestor(filepath.Join(dir, "a", "b", "c"))
	if err != nil {
		t.Fatalf("NearestExistingAncestor: %v", err)
	}
	if got != dir {
		t.Fatalf("got %q want %q", got, dir)
	}
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()
	if err := CheckDir(dir); err != nil {
		t.Fatalf("expected temp dir to be usable: %v", err)
	}
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckDir(file); err == nil {
		t.Fatal("expected error for regular file")
	}
	if err := CheckDir(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestCheckWritableReadOnlyDir(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission checks are bypassed for root and unsupported on windows")
	}
	dir := filepath.Join(t.TempDir(), "ro")
	if err := os.Mkdir(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })
	if err := CheckWritable(dir); err == nil {
		t.Fatal("expected read-only directory to be reported")
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

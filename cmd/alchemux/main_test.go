package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alchemux/internal/location"
)

// isolate points every per-user lookup at a temporary home so tests never
// touch the real configuration.
func isolate(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(base, "xdg"))
	t.Setenv(location.EnvConfigDir, "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("ARCANE_TERMS", "")
	return base
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, "", args...)
}

func runCLIWithInput(t *testing.T, input string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected output not to contain %q:\n%s", substr, output)
	}
}

func showJSON(t *testing.T, args ...string) configView {
	t.Helper()
	stdout, stderr, err := runCLI(t, append(args, "config", "show", "--json")...)
	if err != nil {
		t.Fatalf("config show: %v (stderr: %s)", err, stderr)
	}
	var view configView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode config show: %v\n%s", err, stdout)
	}
	return view
}

func preference(t *testing.T, view configView, key string) settingView {
	t.Helper()
	for _, p := range view.Preferences {
		if p.Key == key {
			return p
		}
	}
	t.Fatalf("preference %s not listed", key)
	return settingView{}
}

func TestVersionOutput(t *testing.T) {
	isolate(t)
	stdout, _, err := runCLI(t, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if stdout != "Alchemux "+version+"\n" {
		t.Fatalf("unexpected version output %q", stdout)
	}
}

func TestHelpIgnoresBrokenConfigDir(t *testing.T) {
	base := isolate(t)
	file := filepath.Join(base, "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	stdout, _, err := runCLI(t, "--config-dir", file, "help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	requireContains(t, stdout, "doctor")

	stdout, _, err = runCLI(t, "--config-dir", file, "config", "--help")
	if err != nil {
		t.Fatalf("config --help: %v", err)
	}
	requireContains(t, stdout, "set-secret")

	if _, _, err := runCLI(t, "--config-dir", file, "config", "show"); err == nil {
		t.Fatal("expected invalid location error")
	}
}

func TestConfigShowPopulatesNewDirectory(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")

	view := showJSON(t, "--config-dir", dir)
	if view.Dir != dir || view.Provenance != string(location.ProvenanceExplicitFlag) {
		t.Fatalf("unexpected location %+v", view)
	}
	for _, name := range []string{location.PreferencesFile, location.SecretsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
	}
	if got := preference(t, view, "media.audio.format"); got.Value != "flac" || got.Source != "default" {
		t.Fatalf("unexpected audio format %+v", got)
	}
}

func TestConfigShowTable(t *testing.T) {
	base := isolate(t)
	stdout, _, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, stdout, "== Configuration ==")
	requireContains(t, stdout, "explicit-flag")
	requireContains(t, stdout, "S3_ACCESS_KEY")
	requireContains(t, stdout, "not set")
}

func TestConfigSetPersists(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")

	stdout, _, err := runCLI(t, "--config-dir", dir, "config", "set", "media.audio.format", "mp3")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	requireContains(t, stdout, "media.audio.format = mp3")

	got := preference(t, showJSON(t, "--config-dir", dir), "media.audio.format")
	if got.Value != "mp3" || got.Source != "config" {
		t.Fatalf("unexpected audio format %+v", got)
	}
}

func TestConfigSetRejectsBadInput(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "set", "media.turbo", "on"); err == nil {
		t.Fatal("expected unknown key error")
	}
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "set", "network.retries", "lots"); err == nil {
		t.Fatal("expected type error")
	}
}

func TestFlagOverridesAreReportedAsFlag(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "set", "storage.destination", "s3"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	view := showJSON(t, "--config-dir", dir, "--download-dir", filepath.Join(base, "music"))
	if got := preference(t, view, "paths.output_dir"); got.Source != "flag" || got.Value != filepath.Join(base, "music") {
		t.Fatalf("unexpected output dir %+v", got)
	}
	if got := preference(t, view, "storage.destination"); got.Value != "s3" || got.Source != "config" {
		t.Fatalf("unexpected destination %+v", got)
	}
}

func TestSecretNeverPrinted(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	const value = "sup3r-secret-value"

	stdout, stderr, err := runCLIWithInput(t, value+"\n", "--config-dir", dir, "--debug", "config", "set-secret", "S3_SECRET_KEY")
	if err != nil {
		t.Fatalf("set-secret: %v", err)
	}
	requireContains(t, stdout, "Stored S3_SECRET_KEY (set (18 chars))")
	requireNotContains(t, stdout+stderr, value)

	data, err := os.ReadFile(filepath.Join(dir, location.SecretsFile))
	if err != nil {
		t.Fatalf("read secrets: %v", err)
	}
	requireContains(t, string(data), value)

	for _, args := range [][]string{
		{"config", "show"},
		{"config", "show", "--json"},
		{"doctor", "--no-repair"},
		{"doctor", "--no-repair", "--json"},
		{"--dry-run", "https://example.com/a"},
		{"--help"},
		{"--version"},
	} {
		stdout, stderr, _ := runCLI(t, append([]string{"--config-dir", dir, "--debug"}, args...)...)
		requireNotContains(t, stdout+stderr, value)
	}
}

func TestUnsetSecret(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	if _, _, err := runCLIWithInput(t, "AKIAEXAMPLE\n", "--config-dir", dir, "config", "set-secret", "S3_ACCESS_KEY"); err != nil {
		t.Fatalf("set-secret: %v", err)
	}
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "unset-secret", "S3_ACCESS_KEY"); err != nil {
		t.Fatalf("unset-secret: %v", err)
	}
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "unset-secret", "S3_ACCESS_KEY"); err == nil {
		t.Fatal("expected error for a key that is not set")
	}
}

func TestNoConfigRefusesWrites(t *testing.T) {
	base := isolate(t)
	if _, _, err := runCLI(t, "--no-config", "config", "set", "media.audio.format", "mp3"); err == nil {
		t.Fatal("expected ephemeral error")
	}
	if _, err := os.Stat(filepath.Join(base, "xdg", "alchemux")); !os.IsNotExist(err) {
		t.Fatalf("ephemeral run created configuration: %v", err)
	}
}

func TestConfigUseWritesPointer(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "elsewhere")

	stdout, _, err := runCLI(t, "config", "use", dir)
	if err != nil {
		t.Fatalf("config use: %v", err)
	}
	requireContains(t, stdout, dir)

	view := showJSON(t)
	if view.Dir != dir || view.Provenance != string(location.ProvenancePointerFile) {
		t.Fatalf("pointer not followed: %+v", view)
	}
}

func TestConfigMove(t *testing.T) {
	base := isolate(t)
	src := filepath.Join(base, "cfg")
	dest := filepath.Join(base, "moved")
	if _, _, err := runCLI(t, "--config-dir", src, "config", "set", "network.retries", "7"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	if _, _, err := runCLI(t, "--config-dir", src, "config", "mv", dest, "--move"); err != nil {
		t.Fatalf("config mv: %v", err)
	}
	if _, err := os.Stat(filepath.Join(src, location.PreferencesFile)); !os.IsNotExist(err) {
		t.Fatalf("original preferences should be removed: %v", err)
	}
	view := showJSON(t)
	if view.Dir != dest {
		t.Fatalf("expected pointer to %s, got %+v", dest, view)
	}
	if got := preference(t, view, "network.retries"); got.Value != "7" {
		t.Fatalf("setting lost in move: %+v", got)
	}
}

func TestConfigBackupAndRestore(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")

	if _, _, err := runCLI(t, "--config-dir", dir, "config", "restore"); err == nil {
		t.Fatal("expected restore without backup to fail")
	}
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "set", "network.retries", "5"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	stdout, _, err := runCLI(t, "--config-dir", dir, "config", "backup")
	if err != nil {
		t.Fatalf("config backup: %v", err)
	}
	requireContains(t, stdout, "Backup ")
	if _, _, err := runCLI(t, "--config-dir", dir, "config", "set", "network.retries", "9"); err != nil {
		t.Fatalf("config set: %v", err)
	}

	stdout, _, err = runCLI(t, "--config-dir", dir, "config", "restore")
	if err != nil {
		t.Fatalf("config restore: %v", err)
	}
	requireContains(t, stdout, "Restored backup")
	if got := preference(t, showJSON(t, "--config-dir", dir), "network.retries"); got.Value != "5" {
		t.Fatalf("restore did not bring back retries=5: %+v", got)
	}
}

func TestDoctorHealthyDirectory(t *testing.T) {
	base := isolate(t)
	stdout, _, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "doctor", "--no-repair")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "== Alchemux doctor ==")
	requireContains(t, stdout, "== Dependencies ==")
	requireContains(t, stdout, "0 errors")
}

func TestDoctorReportsAndRepairsCorruptPreferences(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, location.PreferencesFile), []byte("[media\nbroken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, location.SecretsFile), nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	stdout, _, err := runCLI(t, "--config-dir", dir, "doctor", "--no-repair")
	if err == nil {
		t.Fatalf("expected doctor to fail on corrupt preferences\n%s", stdout)
	}
	requireContains(t, stdout, "recreate_preferences")

	stdout, _, err = runCLI(t, "--config-dir", dir, "doctor", "--yes")
	if err != nil {
		t.Fatalf("doctor --yes: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "== After repair ==")
	requireContains(t, stdout, "succeeded")
	if _, err := os.Stat(filepath.Join(dir, location.BackupsDir, "latest", "manifest.json")); err != nil {
		t.Fatalf("repair did not leave a backup: %v", err)
	}
	if _, _, err := runCLI(t, "--config-dir", dir, "doctor", "--no-repair"); err != nil {
		t.Fatalf("doctor after repair: %v", err)
	}
}

func TestDoctorNonInteractiveDoesNotRepair(t *testing.T) {
	base := isolate(t)
	dir := filepath.Join(base, "cfg")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	corrupt := []byte("not = [valid")
	path := filepath.Join(dir, location.PreferencesFile)
	if err := os.WriteFile(path, corrupt, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	stdout, _, err := runCLI(t, "--config-dir", dir, "doctor")
	if err == nil {
		t.Fatal("expected failure status")
	}
	requireContains(t, stdout, "--yes")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(data, corrupt) {
		t.Fatal("doctor changed preferences without consent")
	}
}

func TestDoctorJSON(t *testing.T) {
	base := isolate(t)
	stdout, _, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor --json: %v", err)
	}
	var view doctorView
	if err := json.Unmarshal([]byte(stdout), &view); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if view.Status != "ok" || len(view.Findings) == 0 || len(view.Dependencies) == 0 {
		t.Fatalf("unexpected report %+v", view)
	}
}

func TestDoctorInvalidLocation(t *testing.T) {
	base := isolate(t)
	file := filepath.Join(base, "file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stdout, _, err := runCLI(t, "--config-dir", file, "doctor")
	if err == nil {
		t.Fatal("expected invalid location error")
	}
	requireContains(t, stdout, "[ERROR]")
	requireContains(t, stdout, location.EnvConfigDir)
}

func TestDoctorEphemeral(t *testing.T) {
	isolate(t)
	stdout, _, err := runCLI(t, "--no-config", "doctor")
	if err != nil {
		t.Fatalf("doctor: %v", err)
	}
	requireContains(t, stdout, "nothing to check")
}

func TestDryRunPrintsEngineCommand(t *testing.T) {
	base := isolate(t)
	stdout, _, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "--dry-run", "--video", "https://example.com/watch?v=1")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	requireContains(t, stdout, "yt-dlp ")
	requireContains(t, stdout, "--remux-video")
	requireContains(t, stdout, "-- https://example.com/watch?v=1")
}

func TestDryRunRejectsNonHTTP(t *testing.T) {
	base := isolate(t)
	if _, _, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "--dry-run", "ftp://example.com/a"); err == nil {
		t.Fatal("expected unsupported URL error")
	}
}

func TestBatchDryRun(t *testing.T) {
	base := isolate(t)
	list := filepath.Join(base, "urls.txt")
	content := "# favourites\nhttps://example.com/a\nhttps://example.com/b, https://example.com/a\nnot-a-url\n"
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stdout, stderr, err := runCLI(t, "--config-dir", filepath.Join(base, "cfg"), "batch", "--dry-run", list)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if got := strings.Count(stdout, "yt-dlp "); got != 2 {
		t.Fatalf("expected 2 commands, got %d:\n%s", got, stdout)
	}
	requireContains(t, stderr, "Skipped 1 entry")
}

func TestNoConfigDryRunLeavesNoFiles(t *testing.T) {
	base := isolate(t)
	stdout, stderr, err := runCLI(t, "--no-config", "--s3", "--dry-run", "https://example.com/a")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	requireContains(t, stdout, "yt-dlp ")
	requireContains(t, stderr, "--s3 ignored")
	if _, err := os.Stat(filepath.Join(base, "xdg", "alchemux")); !os.IsNotExist(err) {
		t.Fatalf("ephemeral run created configuration: %v", err)
	}
}

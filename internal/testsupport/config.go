package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"alchemux/internal/config"
	"alchemux/internal/location"
	"alchemux/internal/secrets"
)

// Option customizes the generated config directory.
type Option func(*Fixture)

// Fixture is a config directory rooted in a per-test temp tree. Resolver uses
// Root as the OS user config dir, so the default tier resolves to Dir.
type Fixture struct {
	t testing.TB

	Root      string
	Dir       string
	OutputDir string
	TempDir   string
	Resolver  *location.Resolver

	cfg         config.Config
	writePrefs  bool
	prefsRaw    []byte
	secretsRaw  []byte
	secretsMode os.FileMode
	pointer     string
	skipDir     bool
}

// NewConfigDir produces a config directory seeded with a valid preference
// document whose output and temp dirs live under the test temp tree, and a
// secrets template with restricted permissions.
func NewConfigDir(t testing.TB, opts ...Option) *Fixture {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "userconfig")
	f := &Fixture{
		t:           t,
		Root:        root,
		Dir:         filepath.Join(root, "alchemux", "config"),
		OutputDir:   filepath.Join(base, "output"),
		TempDir:     filepath.Join(base, "tmp"),
		Resolver:    &location.Resolver{UserConfigDir: func() (string, error) { return root, nil }},
		cfg:         config.Default(),
		writePrefs:  true,
		secretsRaw:  secrets.Template(),
		secretsMode: secrets.FileMode,
	}
	f.cfg.Paths.OutputDir = f.OutputDir
	f.cfg.Paths.TempDir = f.TempDir

	for _, opt := range opts {
		opt(f)
	}
	f.materialize()
	return f
}

func (f *Fixture) materialize() {
	f.t.Helper()
	if f.pointer != "" {
		if err := location.WritePointer(filepath.Join(f.Root, "alchemux", location.PointerFile), f.pointer); err != nil {
			f.t.Fatalf("write pointer: %v", err)
		}
	}
	if f.skipDir {
		return
	}
	if err := os.MkdirAll(f.Dir, 0o700); err != nil {
		f.t.Fatalf("mkdir config dir: %v", err)
	}
	if f.writePrefs {
		data := f.prefsRaw
		if data == nil {
			var err error
			if data, err = config.NewDocument(f.cfg).Marshal(); err != nil {
				f.t.Fatalf("encode preferences: %v", err)
			}
		}
		WriteDocument(f.t, f.PreferencesPath(), data, 0o644)
	}
	if f.secretsRaw != nil {
		WriteDocument(f.t, f.SecretsPath(), f.secretsRaw, f.secretsMode)
	}
}

// Location returns the fixture directory as an explicitly chosen location.
func (f *Fixture) Location() location.Location {
	return location.Location{Dir: f.Dir, Provenance: location.ProvenanceExplicitFlag}
}

// PreferencesPath returns the preference document path.
func (f *Fixture) PreferencesPath() string {
	return filepath.Join(f.Dir, location.PreferencesFile)
}

// SecretsPath returns the secret document path.
func (f *Fixture) SecretsPath() string {
	return filepath.Join(f.Dir, location.SecretsFile)
}

// PointerPath returns the pointer record path.
func (f *Fixture) PointerPath() string {
	return filepath.Join(f.Root, "alchemux", location.PointerFile)
}

// WithConfig edits the preference document before it is written.
func WithConfig(edit func(*config.Config)) Option {
	return func(f *Fixture) {
		edit(&f.cfg)
	}
}

// WithPreferences writes raw bytes as the preference document.
func WithPreferences(content string) Option {
	return func(f *Fixture) {
		f.prefsRaw = []byte(content)
	}
}

// WithoutPreferences leaves the preference document absent.
func WithoutPreferences() Option {
	return func(f *Fixture) {
		f.writePrefs = false
	}
}

// WithSecrets writes a secret document holding values.
func WithSecrets(values map[string]string) Option {
	return func(f *Fixture) {
		doc := secrets.NewDocument()
		for key, value := range values {
			if err := doc.Set(key, value); err != nil {
				f.t.Fatalf("set secret: %v", err)
			}
		}
		data, err := doc.Marshal()
		if err != nil {
			f.t.Fatalf("encode secrets: %v", err)
		}
		f.secretsRaw = data
	}
}

// WithRawSecrets writes content as the secret document with mode.
func WithRawSecrets(content string, mode os.FileMode) Option {
	return func(f *Fixture) {
		f.secretsRaw = []byte(content)
		f.secretsMode = mode
	}
}

// WithoutSecrets leaves the secret document absent.
func WithoutSecrets() Option {
	return func(f *Fixture) {
		f.secretsRaw = nil
	}
}

// WithPointer records target in the pointer file.
func WithPointer(target string) Option {
	return func(f *Fixture) {
		f.pointer = target
	}
}

// WithoutDir skips creating the config directory.
func WithoutDir() Option {
	return func(f *Fixture) {
		f.skipDir = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the download engine binaries are
// stubbed.
func WithStubbedBinaries(names ...string) Option {
	return func(f *Fixture) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg"}
		}
		binDir := filepath.Join(filepath.Dir(f.Root), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			f.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
				f.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			f.t.Fatalf("set PATH: %v", err)
		}
		f.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

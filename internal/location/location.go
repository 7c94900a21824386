// Package location decides which directory holds Alchemux configuration for
// the current invocation.
//
// Resolution walks five tiers and stops at the first match: the ephemeral
// flag, an explicit directory flag, the ALCHEMUX_CONFIG_DIR environment
// variable, the pointer record left by the last explicit choice, and finally
// the per-user OS config directory. The result is a Location value that is
// computed once and never changes for the rest of the process.
package location

import (
	"path/filepath"
)

// Provenance records which resolution tier produced a Location.
type Provenance string

const (
	ProvenanceNone         Provenance = "none"
	ProvenanceExplicitFlag Provenance = "explicit-flag"
	ProvenanceEnvOverride  Provenance = "env-override"
	ProvenancePointerFile  Provenance = "pointer-file"
	ProvenanceOSDefault    Provenance = "os-standard-default"
)

const (
	// EnvConfigDir overrides the config directory for every invocation that
	// does not pass an explicit flag.
	EnvConfigDir = "ALCHEMUX_CONFIG_DIR"

	PreferencesFile = "config.toml"
	SecretsFile     = ".env"
	BackupsDir      = ".backups"
	PointerFile     = "config_path.txt"

	appDirName    = "alchemux"
	configDirName = "config"
)

// Location is the resolved configuration directory. The zero value with
// ProvenanceNone denotes ephemeral mode.
type Location struct {
	Dir        string
	Provenance Provenance
	// Created is set when resolution created Dir.
	Created bool
}

// Ephemeral reports whether the invocation runs without a config directory.
func (l Location) Ephemeral() bool {
	return l.Provenance == ProvenanceNone
}

// PreferencesPath returns the preference document path, or "" when ephemeral.
func (l Location) PreferencesPath() string {
	return l.join(PreferencesFile)
}

// SecretsPath returns the secret document path, or "" when ephemeral.
func (l Location) SecretsPath() string {
	return l.join(SecretsFile)
}

// BackupRoot returns the directory holding the backup slot, or "" when ephemeral.
func (l Location) BackupRoot() string {
	return l.join(BackupsDir)
}

func (l Location) join(name string) string {
	if l.Ephemeral() || l.Dir == "" {
		return ""
	}
	return filepath.Join(l.Dir, name)
}

// Flags carries the command-line inputs that influence resolution.
type Flags struct {
	NoConfig  bool
	ConfigDir string
}

// Env looks up an environment variable. os.LookupEnv satisfies it.
type Env func(key string) (string, bool)

// NoEnv is an Env with no variables set.
func NoEnv(string) (string, bool) { return "", false }

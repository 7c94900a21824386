package location

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alchemux/internal/configerr"
	"alchemux/internal/fileutil"
)

// Resolver resolves the config directory. The zero value uses the OS per-user
// config directory; tests inject UserConfigDir.
type Resolver struct {
	UserConfigDir func() (string, error)
}

// NewResolver returns a Resolver backed by os.UserConfigDir.
func NewResolver() *Resolver {
	return &Resolver{UserConfigDir: os.UserConfigDir}
}

// AppDir returns the per-user application directory that holds the default
// config directory and the pointer record.
func (r *Resolver) AppDir() (string, error) {
	lookup := os.UserConfigDir
	if r != nil && r.UserConfigDir != nil {
		lookup = r.UserConfigDir
	}
	base, err := lookup()
	if err != nil {
		return "", fmt.Errorf("determine user config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultDir returns the OS-standard config directory.
func (r *Resolver) DefaultDir() (string, error) {
	app, err := r.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, configDirName), nil
}

// PointerPath returns the pointer record path. It lives outside every config
// directory so relocating the config does not orphan it.
func (r *Resolver) PointerPath() (string, error) {
	app, err := r.AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(app, PointerFile), nil
}

// Resolve walks the tiers in order and returns the first match. Explicit and
// environment-provided directories that exist but are unusable fail with
// configerr.ErrInvalidLocation; a stale pointer record falls through silently.
func (r *Resolver) Resolve(flags Flags, env Env) (Location, error) {
	if flags.NoConfig {
		return Location{Provenance: ProvenanceNone}, nil
	}
	if env == nil {
		env = NoEnv
	}

	if dir := strings.TrimSpace(flags.ConfigDir); dir != "" {
		return Prepare(dir, ProvenanceExplicitFlag)
	}
	if dir, ok := env(EnvConfigDir); ok && strings.TrimSpace(dir) != "" {
		return Prepare(strings.TrimSpace(dir), ProvenanceEnvOverride)
	}

	if pointerPath, err := r.PointerPath(); err == nil {
		if target, err := ReadPointer(pointerPath); err == nil && pointerTargetUsable(target) {
			return Location{Dir: target, Provenance: ProvenancePointerFile}, nil
		}
	}

	dir, err := r.DefaultDir()
	if err != nil {
		return Location{}, configerr.InvalidLocation("<user config dir>", "cannot determine default", err)
	}
	created, err := ensureDir(dir)
	if err != nil {
		return Location{}, configerr.InvalidLocation(dir, "create default directory", err)
	}
	return Location{Dir: dir, Provenance: ProvenanceOSDefault, Created: created}, nil
}

// Prepare validates a directory requested by flag, environment or command and
// creates it when absent. An existing path that is not a writable directory
// fails with configerr.ErrInvalidLocation.
func Prepare(raw string, provenance Provenance) (Location, error) {
	dir, err := fileutil.ExpandPath(raw)
	if err != nil {
		return Location{}, configerr.InvalidLocation(raw, "expand path", err)
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return Location{}, configerr.InvalidLocation(dir, "not a directory", nil)
		}
		if err := fileutil.CheckWritable(dir); err != nil {
			return Location{}, configerr.InvalidLocation(dir, "not writable", err)
		}
		return Location{Dir: dir, Provenance: provenance}, nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Location{}, configerr.InvalidLocation(dir, "create directory", err)
		}
		return Location{Dir: dir, Provenance: provenance, Created: true}, nil
	default:
		return Location{}, configerr.InvalidLocation(dir, "stat", err)
	}
}

func ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s is not a directory", dir)
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, err
	}
	return true, nil
}

func pointerTargetUsable(target string) bool {
	if target == "" || !filepath.IsAbs(target) {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.IsDir()
}

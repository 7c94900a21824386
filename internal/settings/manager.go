// Package settings merges the resolved location, the preference document, the
// secret document, the environment, and one-time command-line flags into the
// read-only Settings view consumed by the rest of the program.
//
// A Manager is created once per invocation. It resolves the config directory
// on first use and keeps the result for the life of the process; Reload
// re-reads the documents from the same directory after a write. The only
// writers are UpdatePreferences and UpdateSecrets (the wizard contract) and
// the repair engine, which works on files directly and then calls Reload.
package settings

import (
	"fmt"
	"log/slog"
	"strings"

	"alchemux/internal/config"
	"alchemux/internal/configerr"
	"alchemux/internal/location"
	"alchemux/internal/logging"
	"alchemux/internal/secrets"
)

// Overrides are the one-time flags that take precedence over documents.
type Overrides struct {
	FLAC    bool
	Video   bool
	Local   bool
	S3      bool
	GCP     bool
	Debug   bool
	Verbose bool
	Plain   bool
}

// Options carries the invocation inputs.
type Options struct {
	NoConfig    bool
	ConfigDir   string
	DownloadDir string
	Overrides   Overrides
	// Env defaults to no environment when nil.
	Env location.Env
}

// Loaded is the raw material behind Settings: the resolved location and
// everything read from it. Diagnostics and repair work from this view.
type Loaded struct {
	Location          location.Location
	Preferences       *config.Document
	PreferencesStatus config.Status
	Secrets           *secrets.Document
	SecretsStatus     secrets.Status
	Pointer           location.PointerStatus
	// Populated lists template files written during this open.
	Populated []string
}

// Manager owns configuration state for one invocation.
type Manager struct {
	opts     Options
	resolver *location.Resolver
	logger   *slog.Logger

	resolved bool
	loc      location.Location
	loaded   *Loaded
	current  *Settings
}

// NewManager returns a Manager. A nil resolver uses the OS defaults.
func NewManager(opts Options, resolver *location.Resolver) *Manager {
	if resolver == nil {
		resolver = location.NewResolver()
	}
	if opts.Env == nil {
		opts.Env = location.NoEnv
	}
	return &Manager{opts: opts, resolver: resolver, logger: logging.NewNop()}
}

// SetLogger routes manager diagnostics to logger.
func (m *Manager) SetLogger(logger *slog.Logger) {
	m.logger = logging.NewComponentLogger(logger, "settings")
}

// Resolver returns the resolver used for location and pointer lookups.
func (m *Manager) Resolver() *location.Resolver {
	return m.resolver
}

// Location resolves the config directory once and returns it.
func (m *Manager) Location() (location.Location, error) {
	if m.resolved {
		return m.loc, nil
	}
	loc, err := m.resolver.Resolve(location.Flags{NoConfig: m.opts.NoConfig, ConfigDir: m.opts.ConfigDir}, m.opts.Env)
	if err != nil {
		return location.Location{}, err
	}
	m.loc = loc
	m.resolved = true
	m.logger.Debug("config location resolved",
		slog.String("dir", loc.Dir),
		slog.String("provenance", string(loc.Provenance)),
		slog.Bool("created", loc.Created),
	)
	return loc, nil
}

// Open returns the Settings view, loading documents on first call. Only an
// unusable explicitly requested location fails; damaged documents fall back
// to defaults and are reported through Notes and Loaded.
func (m *Manager) Open() (*Settings, error) {
	if m.current != nil {
		return m.current, nil
	}
	return m.Reload()
}

// Reload re-reads both documents from the resolved location and rebuilds the
// Settings view.
func (m *Manager) Reload() (*Settings, error) {
	loc, err := m.Location()
	if err != nil {
		return nil, err
	}
	loaded, err := m.load(loc)
	if err != nil {
		return nil, err
	}
	m.loaded = loaded
	m.current = build(*loaded, m.opts)
	return m.current, nil
}

// Loaded returns the state behind the current Settings, opening if needed.
func (m *Manager) Loaded() (Loaded, error) {
	if m.loaded == nil {
		if _, err := m.Open(); err != nil {
			return Loaded{}, err
		}
	}
	return *m.loaded, nil
}

func (m *Manager) load(loc location.Location) (*Loaded, error) {
	loaded := &Loaded{Location: loc}
	if loc.Ephemeral() {
		loaded.Preferences = config.NewDocument(config.Default())
		loaded.Secrets = secrets.NewDocument()
		loaded.Pointer = location.PointerStatus{State: location.PointerAbsent}
		return loaded, nil
	}

	if loc.Created && m.loaded == nil {
		populated, err := populate(loc)
		if err != nil {
			return nil, err
		}
		loaded.Populated = populated
		for _, path := range populated {
			m.logger.Info("wrote configuration template", slog.String("path", path))
		}
	}

	loaded.Preferences, loaded.PreferencesStatus = config.Load(loc.PreferencesPath())
	loaded.Secrets, loaded.SecretsStatus = secrets.Load(loc.SecretsPath())
	loaded.Pointer = m.resolver.InspectPointer(loc)

	if err := loaded.PreferencesStatus.Err; err != nil {
		m.logger.Warn("preference document unusable; using defaults", slog.String("error", err.Error()))
	}
	if err := loaded.SecretsStatus.Err; err != nil {
		m.logger.Warn("secret document unusable; no credentials loaded", slog.String("error", err.Error()))
	}
	return loaded, nil
}

// populate writes both templates into a freshly created directory. Existing
// files are never touched.
func populate(loc location.Location) ([]string, error) {
	var written []string
	created, err := config.WriteTemplate(loc.PreferencesPath())
	if err != nil {
		return written, err
	}
	if created {
		written = append(written, loc.PreferencesPath())
	}
	created, err = secrets.WriteTemplate(loc.SecretsPath())
	if err != nil {
		return written, err
	}
	if created {
		written = append(written, loc.SecretsPath())
	}
	return written, nil
}

// UpdatePreferences loads the preference document, applies edit, validates
// the result, saves it atomically, and reloads. A corrupt document is never
// overwritten; repair it first.
func (m *Manager) UpdatePreferences(edit func(*config.Config) error) error {
	loc, err := m.Location()
	if err != nil {
		return err
	}
	if loc.Ephemeral() {
		return configerr.Ephemeral("update preferences")
	}
	doc, status := config.Load(loc.PreferencesPath())
	if status.Err != nil {
		return fmt.Errorf("refusing to overwrite preferences: %w", status.Err)
	}
	if err := edit(&doc.Config); err != nil {
		return err
	}
	normalized, err := doc.Config.Normalized()
	if err != nil {
		return err
	}
	if err := normalized.Validate(); err != nil {
		return fmt.Errorf("invalid preferences: %w", err)
	}
	if err := doc.Save(loc.PreferencesPath()); err != nil {
		return err
	}
	m.logger.Info("preferences saved", slog.String("path", loc.PreferencesPath()))
	_, err = m.Reload()
	return err
}

// UpdateSecrets loads the secret document, applies edit, saves it atomically
// with restricted permissions, and reloads.
func (m *Manager) UpdateSecrets(edit func(*secrets.Document) error) error {
	loc, err := m.Location()
	if err != nil {
		return err
	}
	if loc.Ephemeral() {
		return configerr.Ephemeral("update secrets")
	}
	doc, status := secrets.Load(loc.SecretsPath())
	if status.Err != nil {
		return fmt.Errorf("refusing to overwrite secrets: %w", status.Err)
	}
	if err := edit(doc); err != nil {
		return err
	}
	if err := doc.Save(loc.SecretsPath()); err != nil {
		return err
	}
	m.logger.Info("secrets saved", slog.String("path", loc.SecretsPath()), slog.Int("keys", doc.Len()))
	_, err = m.Reload()
	return err
}

// envTruthy reports whether the variable is set to 1, true, yes or on.
func envTruthy(env location.Env, key string) (value bool, set bool) {
	raw, ok := env(key)
	raw = strings.ToLower(strings.TrimSpace(raw))
	if !ok || raw == "" {
		return false, false
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true, true
	default:
		return false, true
	}
}

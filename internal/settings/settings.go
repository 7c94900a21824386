package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"alchemux/internal/config"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
	"alchemux/internal/secrets"
)

// Environment variables consulted while merging.
const (
	EnvArcaneTerms = "ARCANE_TERMS"
	EnvNoColor     = "NO_COLOR"
	EnvLogLevel    = "LOG_LEVEL"
)

// Source tells where an effective value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// Entry is one effective setting with its origin.
type Entry struct {
	Key    string
	Value  string
	Source Source
}

// Settings is the read-only merged view for one invocation. Callers receive
// it from Manager.Open and pass it explicitly; it never changes after build.
type Settings struct {
	loc       location.Location
	cfg       config.Config
	sources   map[string]Source
	secrets   *secrets.Document
	overrides Overrides
	notes     []string
}

func build(loaded Loaded, opts Options) *Settings {
	s := &Settings{
		loc:       loaded.Location,
		secrets:   loaded.Secrets,
		overrides: opts.Overrides,
		sources:   map[string]Source{},
	}
	if s.secrets == nil {
		s.secrets = secrets.NewDocument()
	}
	prefs := loaded.Preferences
	if prefs == nil {
		prefs = config.NewDocument(config.Default())
	}
	for _, key := range config.Keys() {
		if prefs.Defined(key) {
			s.sources[key] = SourceConfig
		} else {
			s.sources[key] = SourceDefault
		}
	}

	s.notes = append(s.notes, loaded.PreferencesStatus.Notes...)
	s.notes = append(s.notes, loaded.SecretsStatus.Notes...)
	if err := loaded.PreferencesStatus.Err; err != nil {
		s.notes = append(s.notes, fmt.Sprintf("preferences ignored: %v", err))
	}
	if err := loaded.SecretsStatus.Err; err != nil {
		s.notes = append(s.notes, fmt.Sprintf("secrets ignored: %v", err))
	}

	cfg, err := prefs.Config.Normalized()
	if err != nil {
		s.notes = append(s.notes, fmt.Sprintf("normalize preferences: %v", err))
		cfg = prefs.Config.Clone()
	}
	if err := cfg.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			s.notes = append(s.notes, "invalid preference: "+line)
		}
	}
	s.cfg = cfg

	s.applyEnv(opts.Env, prefs)
	s.applyFlags(opts)
	if s.loc.Ephemeral() {
		s.applyEphemeral(opts)
	}
	return s
}

// applyEnv layers environment variables. ARCANE_TERMS only fills in when the
// document is silent; NO_COLOR can only force plain output; LOG_LEVEL beats
// the document.
func (s *Settings) applyEnv(env location.Env, prefs *config.Document) {
	if env == nil {
		return
	}
	if !prefs.Defined("product.arcane_terms") {
		if value, set := envTruthy(env, EnvArcaneTerms); set {
			s.cfg.Product.ArcaneTerms = value
			s.sources["product.arcane_terms"] = SourceEnv
		}
	}
	if value, set := envTruthy(env, EnvNoColor); set && value {
		s.cfg.UI.Plain = true
		s.sources["ui.plain"] = SourceEnv
	}
	if raw, ok := env(EnvLogLevel); ok {
		level := strings.ToLower(strings.TrimSpace(raw))
		if level == "warning" {
			level = "warn"
		}
		switch level {
		case "debug", "info", "warn", "error":
			s.cfg.Logging.Level = level
			s.sources["logging.level"] = SourceEnv
		}
	}
}

func (s *Settings) applyFlags(opts Options) {
	o := opts.Overrides
	if dir := strings.TrimSpace(opts.DownloadDir); dir != "" {
		if expanded, err := fileutil.ExpandPath(dir); err == nil {
			dir = expanded
		}
		s.set("paths.output_dir", SourceFlag, func(c *config.Config) { c.Paths.OutputDir = dir })
	}
	if o.FLAC {
		s.set("media.audio.format", SourceFlag, func(c *config.Config) { c.Media.Audio.Format = "flac" })
		s.set("presets.flac.override", SourceFlag, func(c *config.Config) { c.Presets.FLAC.Override = true })
	}
	if o.Video {
		s.set("media.video.enabled", SourceFlag, func(c *config.Config) { c.Media.Video.Enabled = true })
	}
	if dest := flagDestination(o); dest != "" {
		s.set("storage.destination", SourceFlag, func(c *config.Config) { c.Storage.Destination = dest })
	}
	if o.Plain {
		s.set("ui.plain", SourceFlag, func(c *config.Config) { c.UI.Plain = true })
	}
	if o.Debug {
		s.set("logging.level", SourceFlag, func(c *config.Config) { c.Logging.Level = "debug" })
	}
}

// applyEphemeral points downloads at a throwaway directory unless one was
// given and disables cloud storage, since no credentials can be read.
func (s *Settings) applyEphemeral(opts Options) {
	scratch := filepath.Join(os.TempDir(), "alchemux-"+uuid.NewString())
	s.set("paths.temp_dir", SourceDefault, func(c *config.Config) { c.Paths.TempDir = scratch })
	if strings.TrimSpace(opts.DownloadDir) == "" {
		s.set("paths.output_dir", SourceDefault, func(c *config.Config) { c.Paths.OutputDir = scratch })
		s.notes = append(s.notes, fmt.Sprintf("no config directory; downloads go to %s", scratch))
	}
	if dest := flagDestination(opts.Overrides); config.IsCloudDestination(dest) {
		s.notes = append(s.notes, fmt.Sprintf("--%s ignored: cloud upload needs a config directory", dest))
	}
	s.set("storage.destination", SourceDefault, func(c *config.Config) { c.Storage.Destination = config.DestinationLocal })
	s.set("storage.fallback", SourceDefault, func(c *config.Config) { c.Storage.Fallback = config.DestinationLocal })
}

func (s *Settings) set(key string, source Source, apply func(*config.Config)) {
	apply(&s.cfg)
	s.sources[key] = source
}

func flagDestination(o Overrides) string {
	switch {
	case o.Local:
		return config.DestinationLocal
	case o.S3:
		return config.DestinationS3
	case o.GCP:
		return config.DestinationGCP
	default:
		return ""
	}
}

// Location returns the resolved config location.
func (s *Settings) Location() location.Location { return s.loc }

// Ephemeral reports whether no config directory is in use.
func (s *Settings) Ephemeral() bool { return s.loc.Ephemeral() }

// Config returns a copy of the effective preferences.
func (s *Settings) Config() config.Config { return s.cfg.Clone() }

// Notes returns non-fatal observations made while merging.
func (s *Settings) Notes() []string { return append([]string(nil), s.notes...) }

func (s *Settings) OutputDir() string { return s.cfg.Paths.OutputDir }

func (s *Settings) TempDir() string { return s.cfg.Paths.TempDir }

// ArcaneTerms reports whether output uses the themed vocabulary.
func (s *Settings) ArcaneTerms() bool { return s.cfg.Product.ArcaneTerms }

func (s *Settings) Plain() bool { return s.cfg.UI.Plain }

func (s *Settings) AutoOpen() bool { return s.cfg.UI.AutoOpen }

func (s *Settings) AudioFormat() string { return s.cfg.Media.Audio.Format }

func (s *Settings) VideoEnabled() bool { return s.cfg.Media.Video.Enabled }

func (s *Settings) Video() config.Video {
	v := s.cfg.Media.Video
	v.EnabledFormats = append([]string(nil), v.EnabledFormats...)
	return v
}

func (s *Settings) FLACPreset() config.FLACPreset { return s.cfg.Presets.FLAC }

func (s *Settings) Network() config.Network { return s.cfg.Network }

func (s *Settings) StorageDestination() string { return s.cfg.Storage.Destination }

func (s *Settings) StorageFallback() string { return s.cfg.Storage.Fallback }

func (s *Settings) KeepLocalCopy() bool { return s.cfg.Storage.KeepLocalCopy }

func (s *Settings) S3() config.S3 { return s.cfg.Storage.S3 }

func (s *Settings) GCP() config.GCP { return s.cfg.Storage.GCP }

func (s *Settings) LogLevel() string { return s.cfg.Logging.Level }

func (s *Settings) LogFormat() string { return s.cfg.Logging.Format }

func (s *Settings) Debug() bool { return s.cfg.Logging.Level == "debug" }

func (s *Settings) Verbose() bool { return s.overrides.Verbose || s.Debug() }

// MissingCredentials lists the secret keys destination needs but lacks.
func (s *Settings) MissingCredentials(destination string) []string {
	return s.secrets.Missing(secrets.RequiredFor(destination))
}

// CloudAvailable reports whether the configured destination is a cloud
// provider whose bucket and credentials are all present.
func (s *Settings) CloudAvailable() bool {
	dest := s.StorageDestination()
	if s.Ephemeral() || !config.IsCloudDestination(dest) {
		return false
	}
	if len(s.MissingCredentials(dest)) > 0 {
		return false
	}
	switch dest {
	case config.DestinationS3:
		return s.cfg.Storage.S3.Bucket != ""
	case config.DestinationGCP:
		return s.cfg.Storage.GCP.Bucket != ""
	}
	return false
}

// Credential returns a secret for handing to a storage client.
func (s *Settings) Credential(key string) (secrets.Secret, bool) {
	return s.secrets.Lookup(key)
}

// Redactions returns every credential value so loggers can scrub them.
func (s *Settings) Redactions() []string {
	return s.secrets.Values()
}

// Entries returns every effective preference with its source.
func (s *Settings) Entries() []Entry {
	flat := s.cfg.Entries()
	out := make([]Entry, len(flat))
	for i, e := range flat {
		source, ok := s.sources[e.Key]
		if !ok {
			source = SourceDefault
		}
		out[i] = Entry{Key: e.Key, Value: e.Value, Source: source}
	}
	return out
}

// SecretEntries lists the known credential keys plus any extra keys in the
// document, each with its masked value.
func (s *Settings) SecretEntries() []Entry {
	keys := append([]string(nil), secrets.KnownKeys...)
	known := map[string]struct{}{}
	for _, key := range keys {
		known[key] = struct{}{}
	}
	var extra []string
	for _, key := range s.secrets.Keys() {
		if _, ok := known[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	out := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value := secrets.Mask("")
		source := SourceDefault
		if secret, ok := s.secrets.Lookup(key); ok {
			value = secret.String()
			source = SourceConfig
		}
		out = append(out, Entry{Key: key, Value: value, Source: source})
	}
	return out
}

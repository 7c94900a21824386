package main

import (
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"alchemux/internal/logging"
	"alchemux/internal/settings"
)

type rootFlags struct {
	configDir   string
	noConfig    bool
	downloadDir string
	debug       bool
	verbose     bool
	plain       bool

	flac   bool
	video  bool
	local  bool
	s3     bool
	gcp    bool
	dryRun bool
}

func (f *rootFlags) options() settings.Options {
	return settings.Options{
		NoConfig:    f.noConfig,
		ConfigDir:   f.configDir,
		DownloadDir: f.downloadDir,
		Overrides: settings.Overrides{
			FLAC:    f.flac,
			Video:   f.video,
			Local:   f.local,
			S3:      f.s3,
			GCP:     f.gcp,
			Debug:   f.debug,
			Verbose: f.verbose,
			Plain:   f.plain,
		},
		Env: os.LookupEnv,
	}
}

type commandContext struct {
	flags *rootFlags

	managerOnce sync.Once
	manager     *settings.Manager

	settingsOnce sync.Once
	settings     *settings.Settings
	settingsErr  error

	logger *slog.Logger
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) settingsManager() *settings.Manager {
	c.managerOnce.Do(func() {
		c.manager = settings.NewManager(c.flags.options(), nil)
	})
	return c.manager
}

// ensureSettings opens the configuration once and builds the invocation
// logger from it. Only an unusable requested location is an error.
func (c *commandContext) ensureSettings(cmd *cobra.Command) (*settings.Settings, error) {
	c.settingsOnce.Do(func() {
		manager := c.settingsManager()
		s, err := manager.Open()
		if err != nil {
			c.settingsErr = err
			return
		}
		c.settings = s
		c.logger = c.newLogger(cmd, s)
		manager.SetLogger(c.logger)

		loaded, err := manager.Loaded()
		if err == nil {
			for _, path := range loaded.Populated {
				c.logger.Info("wrote configuration template", logging.String(logging.FieldPath, path))
			}
		}
	})
	return c.settings, c.settingsErr
}

// reload rebuilds the settings view after the documents changed on disk.
func (c *commandContext) reload() (*settings.Settings, error) {
	s, err := c.settingsManager().Reload()
	if err != nil {
		return nil, err
	}
	c.settings = s
	return s, nil
}

func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	if c.settings != nil {
		c.logger = c.newLogger(cmd, c.settings)
		return c.logger
	}
	level := "warn"
	if c.flags.debug {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) newLogger(cmd *cobra.Command, s *settings.Settings) *slog.Logger {
	// info is only shown with --verbose; the command output already says
	// what happened.
	level := s.LogLevel()
	if level == "info" && !s.Verbose() {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: s.LogFormat(),
		Writer: cmd.ErrOrStderr(),
		Redact: s.Redactions(),
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) colorize(cmd *cobra.Command) bool {
	if c.settings != nil && c.settings.Plain() {
		return false
	}
	if c.flags.plain {
		return false
	}
	if _, set := os.LookupEnv(settings.EnvNoColor); set {
		return false
	}
	return shouldColorize(cmd.OutOrStdout())
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", cobra.ShellCompRequestCmd, "completion":
			return true
		}
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

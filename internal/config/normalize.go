package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"alchemux/internal/fileutil"
)

// Normalized returns a sanitized copy of c: paths expanded, enums trimmed and
// lower-cased, and blank or non-positive values replaced with defaults. The
// receiver is not modified so documents keep their on-disk spelling.
func (c Config) Normalized() (Config, error) {
	out := c.Clone()
	if err := out.normalizePaths(); err != nil {
		return Config{}, err
	}
	out.normalizeMedia()
	out.normalizePresets()
	out.normalizeNetwork()
	out.normalizeStorage()
	out.normalizeLogging()
	return out, nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = DefaultTempDir()
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeMedia() {
	c.Media.Audio.Format = lowerTrim(c.Media.Audio.Format)
	if c.Media.Audio.Format == "" {
		c.Media.Audio.Format = defaultAudioFormat
	}
	c.Media.Audio.EnabledFormats = normalizeList(c.Media.Audio.EnabledFormats)
	if len(c.Media.Audio.EnabledFormats) == 0 {
		c.Media.Audio.EnabledFormats = []string{c.Media.Audio.Format}
	}

	c.Media.Video.Format = lowerTrim(c.Media.Video.Format)
	if c.Media.Video.Format == "" {
		c.Media.Video.Format = defaultVideoFormat
	}
	c.Media.Video.Codec = lowerTrim(c.Media.Video.Codec)
	c.Media.Video.EnabledFormats = normalizeList(c.Media.Video.EnabledFormats)
	if len(c.Media.Video.EnabledFormats) == 0 {
		c.Media.Video.EnabledFormats = []string{c.Media.Video.Format}
	}
}

func (c *Config) normalizePresets() {
	if c.Presets.FLAC.SampleRate <= 0 {
		c.Presets.FLAC.SampleRate = defaultFLACSampleRate
	}
	if c.Presets.FLAC.Channels <= 0 {
		c.Presets.FLAC.Channels = defaultFLACChannels
	}
}

func (c *Config) normalizeNetwork() {
	if c.Network.SocketTimeout <= 0 {
		c.Network.SocketTimeout = defaultSocketTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Destination = lowerTrim(c.Storage.Destination)
	if c.Storage.Destination == "" {
		c.Storage.Destination = defaultStorageDest
	}
	c.Storage.Fallback = lowerTrim(c.Storage.Fallback)
	if c.Storage.Fallback == "" {
		c.Storage.Fallback = defaultStorageFallback
	}
	c.Storage.S3.Endpoint = strings.TrimSpace(c.Storage.S3.Endpoint)
	c.Storage.S3.Bucket = strings.TrimSpace(c.Storage.S3.Bucket)
	c.Storage.S3.Region = strings.TrimSpace(c.Storage.S3.Region)
	c.Storage.GCP.Bucket = strings.TrimSpace(c.Storage.GCP.Bucket)
	c.Storage.GCP.Project = strings.TrimSpace(c.Storage.GCP.Project)
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = lowerTrim(c.Logging.Level)
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = lowerTrim(c.Logging.Format)
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

// DefaultTempDir returns the scratch directory used when paths.temp_dir is blank.
func DefaultTempDir() string {
	return filepath.Join(os.TempDir(), tempDirName)
}

func expandPath(pathValue string) (string, error) {
	return fileutil.ExpandPath(pathValue)
}

func lowerTrim(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = lowerTrim(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

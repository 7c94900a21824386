package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate reports every problem with a normalized configuration. The result
// joins one error per offending key.
func (c *Config) Validate() error {
	return errors.Join(
		c.validateMedia(),
		c.validatePresets(),
		c.validateNetwork(),
		c.validateStorage(),
		c.validateLogging(),
	)
}

func (c *Config) validateMedia() error {
	var errs []error
	if !slices.Contains(audioFormats, c.Media.Audio.Format) {
		errs = append(errs, oneOf("media.audio.format", c.Media.Audio.Format, audioFormats))
	}
	for _, format := range c.Media.Audio.EnabledFormats {
		if !slices.Contains(audioFormats, format) {
			errs = append(errs, oneOf("media.audio.enabled_formats", format, audioFormats))
		}
	}
	if !slices.Contains(videoFormats, c.Media.Video.Format) {
		errs = append(errs, oneOf("media.video.format", c.Media.Video.Format, videoFormats))
	}
	for _, format := range c.Media.Video.EnabledFormats {
		if !slices.Contains(videoFormats, format) {
			errs = append(errs, oneOf("media.video.enabled_formats", format, videoFormats))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) validatePresets() error {
	if !slices.Contains(flacChannelSet, c.Presets.FLAC.Channels) {
		return fmt.Errorf("presets.flac.channels must be 1 or 2, got %d", c.Presets.FLAC.Channels)
	}
	if c.Presets.FLAC.SampleRate < 8000 || c.Presets.FLAC.SampleRate > 192000 {
		return fmt.Errorf("presets.flac.sample_rate must be between 8000 and 192000, got %d", c.Presets.FLAC.SampleRate)
	}
	return nil
}

func (c *Config) validateNetwork() error {
	if c.Network.Retries < 0 {
		return errors.New("network.retries must be zero or positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	var errs []error
	if !slices.Contains(destinations, c.Storage.Destination) {
		errs = append(errs, oneOf("storage.destination", c.Storage.Destination, destinations))
	}
	if !slices.Contains(destinations, c.Storage.Fallback) {
		errs = append(errs, oneOf("storage.fallback", c.Storage.Fallback, destinations))
	}
	return errors.Join(errs...)
}

func (c *Config) validateLogging() error {
	var errs []error
	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, oneOf("logging.level", c.Logging.Level, logLevels))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, oneOf("logging.format", c.Logging.Format, logFormats))
	}
	return errors.Join(errs...)
}

func oneOf(key, got string, allowed []string) error {
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), got)
}

// Package pipeline is the boundary between the configuration core and the
// media engines. It turns the read-only Settings view into a download-engine
// invocation, runs it, and hands finished files to an optional uploader. The
// engines themselves are opaque subprocesses.
package pipeline

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"alchemux/internal/config"
	"alchemux/internal/deps"
	"alchemux/internal/settings"
)

// ErrUnsupportedURL is returned for anything other than an http(s) URL.
var ErrUnsupportedURL = errors.New("unsupported URL")

const outputTemplate = "%(title)s.%(ext)s"

// Plan is one prepared download-engine invocation.
type Plan struct {
	URL     string
	Command string
	Args    []string

	OutputDir string
	TempDir   string
	Video     bool
	Format    string

	// Upload is set when the destination is a cloud provider whose bucket
	// and credentials are present.
	Upload        bool
	Destination   string
	Fallback      string
	Bucket        string
	KeepLocalCopy bool
}

// PlanOption adjusts plan construction.
type PlanOption func(*planOptions)

type planOptions struct {
	command        string
	ffmpegLocation string
}

// WithCommand overrides the download engine binary.
func WithCommand(command string) PlanOption {
	return func(o *planOptions) {
		if strings.TrimSpace(command) != "" {
			o.command = command
		}
	}
}

// WithFFmpegLocation points the engine at a specific ffmpeg binary.
func WithFFmpegLocation(path string) PlanOption {
	return func(o *planOptions) {
		o.ffmpegLocation = path
	}
}

// BuildPlan derives the engine invocation for rawURL from s alone.
func BuildPlan(s *settings.Settings, rawURL string, opts ...PlanOption) (Plan, error) {
	if s == nil {
		return Plan{}, errors.New("settings required")
	}
	target, err := validateURL(rawURL)
	if err != nil {
		return Plan{}, err
	}
	options := planOptions{command: deps.DownloadEngine}
	for _, opt := range opts {
		opt(&options)
	}

	plan := Plan{
		URL:           target,
		Command:       options.command,
		OutputDir:     s.OutputDir(),
		TempDir:       s.TempDir(),
		Video:         s.VideoEnabled(),
		Upload:        s.CloudAvailable(),
		Destination:   s.StorageDestination(),
		Fallback:      s.StorageFallback(),
		KeepLocalCopy: s.KeepLocalCopy(),
	}
	switch plan.Destination {
	case config.DestinationS3:
		plan.Bucket = s.S3().Bucket
	case config.DestinationGCP:
		plan.Bucket = s.GCP().Bucket
	}

	network := s.Network()
	video := s.Video()
	args := []string{
		"--paths", "home:" + plan.OutputDir,
		"--paths", "temp:" + plan.TempDir,
		"--output", outputTemplate,
		"--embed-metadata",
		"--no-overwrites",
		"--retries", strconv.Itoa(network.Retries),
		"--socket-timeout", strconv.Itoa(network.SocketTimeout),
	}
	if video.RestrictFilenames {
		args = append(args, "--restrict-filenames")
	}
	switch {
	case s.Debug():
		args = append(args, "--verbose")
	case s.Verbose():
	default:
		args = append(args, "--quiet", "--no-warnings", "--no-progress")
	}
	if options.ffmpegLocation != "" {
		args = append(args, "--ffmpeg-location", options.ffmpegLocation)
	}

	if plan.Video {
		plan.Format = video.Format
		args = append(args, "--format", "bestvideo+bestaudio/best", "--remux-video", video.Format)
	} else {
		plan.Format = s.AudioFormat()
		args = append(args, "--format", "bestaudio/best", "--extract-audio", "--audio-format", plan.Format)
		if preset := s.FLACPreset(); plan.Format == "flac" && preset.Override {
			args = append(args,
				"--audio-quality", "0",
				"--postprocessor-args", fmt.Sprintf("ffmpeg:-ar %d -ac %d", preset.SampleRate, preset.Channels),
			)
		}
	}

	plan.Args = append(args, "--", plan.URL)
	return plan, nil
}

func validateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrUnsupportedURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: %s (only http and https are accepted)", ErrUnsupportedURL, trimmed)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %s has no host", ErrUnsupportedURL, trimmed)
	}
	return trimmed, nil
}

package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// CheckFFmpegForEngine reports the FFmpeg binary the download engine will use.
//
// Standalone yt-dlp bundles ship ffmpeg next to the engine executable and
// prefer it over PATH. The pipeline passes a sidecar found here through
// --ffmpeg-location so both agree on the binary.
func CheckFFmpegForEngine(engineCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Used by yt-dlp for conversion",
	}

	engineBinary := strings.TrimSpace(engineCommand)
	if engineBinary != "" {
		if resolved, err := exec.LookPath(engineBinary); err == nil {
			if candidate, ok := ffmpegSidecarCandidate(resolved); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					result.Detail = "sidecar"
					return result
				}
			}
		}
	}

	if ffmpegPath, err := exec.LookPath(Converter); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		return result
	}

	result.Command = Converter
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", Converter)
	return result
}

// Sidecar reports whether the status describes an ffmpeg bundled next to the
// engine rather than one found on PATH.
func (s Status) Sidecar() bool { return s.Available && s.Detail == "sidecar" }

func ffmpegSidecarCandidate(enginePath string) (string, bool) {
	if enginePath == "" {
		return "", false
	}
	dir := filepath.Dir(enginePath)
	name := Converter
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(dir, name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

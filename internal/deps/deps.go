// Package deps reports whether the external programs Alchemux drives are
// installed. Missing binaries are reported, never fatal: doctor lists them
// beside its findings and the pipeline refuses to start without the download
// engine.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Binary names of the download engine and its converter.
const (
	DownloadEngine = "yt-dlp"
	Converter      = "ffmpeg"
)

// Requirement defines an external program Alchemux relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the programs the media pipeline executes.
func Requirements() []Requirement {
	return []Requirement{
		{Name: "yt-dlp", Command: DownloadEngine, Description: "Downloads and extracts media"},
		{Name: "FFmpeg", Command: Converter, Description: "Converts audio and remuxes video"},
		{Name: "FFprobe", Command: "ffprobe", Description: "Reads stream metadata for embedding", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"alchemux/internal/configerr"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
)

// ErrDestinationOccupied is returned by Relocate when the destination already
// holds configuration documents.
var ErrDestinationOccupied = errors.New("destination already contains configuration")

// Use records dir as the config directory for future invocations, creating
// it and writing templates when it is new. Existing documents are kept.
func (m *Manager) Use(dir string) (location.Location, error) {
	loc, err := location.Prepare(dir, location.ProvenanceExplicitFlag)
	if err != nil {
		return location.Location{}, err
	}
	populated, err := populate(loc)
	if err != nil {
		return location.Location{}, err
	}
	for _, path := range populated {
		m.logger.Info("wrote configuration template", slog.String("path", path))
	}
	if err := m.writePointer(loc.Dir); err != nil {
		return location.Location{}, err
	}
	return loc, nil
}

// Relocate copies both documents from the current location to dest, verifies
// each copy, points the pointer record at dest, and with move set removes
// the originals. The current manager keeps serving the old location.
func (m *Manager) Relocate(dest string, move bool) (location.Location, error) {
	src, err := m.Location()
	if err != nil {
		return location.Location{}, err
	}
	if src.Ephemeral() {
		return location.Location{}, configerr.Ephemeral("relocate configuration")
	}
	target, err := location.Prepare(dest, location.ProvenanceExplicitFlag)
	if err != nil {
		return location.Location{}, err
	}
	if filepath.Clean(target.Dir) == filepath.Clean(src.Dir) {
		return location.Location{}, fmt.Errorf("%s is already the config directory", target.Dir)
	}

	pairs := [][2]string{
		{src.PreferencesPath(), target.PreferencesPath()},
		{src.SecretsPath(), target.SecretsPath()},
	}
	for _, pair := range pairs {
		exists, err := fileutil.Exists(pair[1])
		if err != nil {
			return location.Location{}, err
		}
		if exists {
			return location.Location{}, fmt.Errorf("%w: %s", ErrDestinationOccupied, pair[1])
		}
	}

	var copied []string
	for _, pair := range pairs {
		exists, err := fileutil.Exists(pair[0])
		if err != nil {
			return location.Location{}, err
		}
		if !exists {
			continue
		}
		if err := fileutil.CopyFileVerified(pair[0], pair[1]); err != nil {
			for _, path := range copied {
				_ = os.Remove(path)
			}
			return location.Location{}, fmt.Errorf("copy %s: %w", filepath.Base(pair[0]), err)
		}
		copied = append(copied, pair[1])
	}
	if _, err := populate(target); err != nil {
		return location.Location{}, err
	}
	if err := m.writePointer(target.Dir); err != nil {
		return location.Location{}, err
	}
	m.logger.Info("configuration relocated",
		slog.String("from", src.Dir),
		slog.String("to", target.Dir),
		slog.Bool("move", move),
	)

	if move {
		for _, pair := range pairs {
			if err := os.Remove(pair[0]); err != nil && !os.IsNotExist(err) {
				return target, fmt.Errorf("remove original %s: %w", filepath.Base(pair[0]), err)
			}
		}
	}
	return target, nil
}

func (m *Manager) writePointer(dir string) error {
	path, err := m.resolver.PointerPath()
	if err != nil {
		return err
	}
	if err := location.WritePointer(path, dir); err != nil {
		return fmt.Errorf("update pointer record: %w", err)
	}
	m.logger.Debug("pointer record updated", slog.String("path", path), slog.String("target", dir))
	return nil
}

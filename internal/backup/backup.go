// Package backup keeps a single crash-safe snapshot of the configuration
// documents in <config_dir>/.backups/latest.
//
// A snapshot is staged in a sibling directory, flushed, and then swapped in
// with renames, so the slot always holds either the previous complete
// snapshot or the new one. Only one snapshot is ever retained and nothing is
// pruned automatically.
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"alchemux/internal/configerr"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
)

const (
	SlotName     = "latest"
	ManifestFile = "manifest.json"

	stagingPrefix = ".staging-"
	retiredPrefix = ".retired-"
	slotFileMode  = 0o600
)

// Documents lists the files captured by every snapshot.
var Documents = []string{location.PreferencesFile, location.SecretsFile}

// FileRecord describes one document at snapshot time.
type FileRecord struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Size    int64  `json:"size,omitempty"`
	SHA256  string `json:"sha256,omitempty"`
	Mode    uint32 `json:"mode,omitempty"`
}

// Snapshot is the manifest of the backup slot.
type Snapshot struct {
	ID        string       `json:"id"`
	CreatedAt time.Time    `json:"created_at"`
	Reason    string       `json:"reason,omitempty"`
	Files     []FileRecord `json:"files"`

	// dir is the slot holding the file copies; empty for a snapshot of a
	// config directory that did not exist yet.
	dir string
}

// File returns the record for name.
func (s Snapshot) File(name string) (FileRecord, bool) {
	for _, f := range s.Files {
		if f.Name == name {
			return f, true
		}
	}
	return FileRecord{}, false
}

// Persisted reports whether the snapshot lives on disk.
func (s Snapshot) Persisted() bool { return s.dir != "" }

// Size returns the total bytes captured.
func (s Snapshot) Size() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

// Manager snapshots and restores the documents of one config directory.
type Manager struct {
	configDir string
	now       func() time.Time
}

// NewManager returns a Manager for configDir.
func NewManager(configDir string) *Manager {
	return &Manager{configDir: configDir, now: time.Now}
}

// Root returns the directory that holds the slot.
func (m *Manager) Root() string { return filepath.Join(m.configDir, location.BackupsDir) }

// SlotDir returns the slot path.
func (m *Manager) SlotDir() string { return filepath.Join(m.Root(), SlotName) }

// Exists reports whether a snapshot is available, including one left in a
// retired directory by an interrupted swap. It never writes.
func (m *Manager) Exists() bool {
	if _, err := os.Stat(filepath.Join(m.SlotDir(), ManifestFile)); err == nil {
		return true
	}
	return len(m.leftovers(retiredPrefix)) > 0
}

// Latest returns the snapshot in the slot. When an interrupted swap left no
// slot but a retired snapshot survives, the retired one is moved back first.
func (m *Manager) Latest() (Snapshot, error) {
	if err := m.recover(); err != nil {
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	data, err := os.ReadFile(filepath.Join(m.SlotDir(), ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, configerr.ErrNoBackup
		}
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, configerr.BackupFailure(m.Root(), fmt.Errorf("decode manifest: %w", err))
	}
	snap.dir = m.SlotDir()
	return snap, nil
}

// Snapshot captures both documents into the slot, replacing the previous
// snapshot only once the new one is complete. If the config directory does
// not exist there is nothing to preserve and an in-memory snapshot recording
// both documents as absent is returned.
func (m *Manager) Snapshot(reason string) (Snapshot, error) {
	snap := Snapshot{ID: uuid.NewString(), CreatedAt: m.now().UTC(), Reason: reason}

	if _, err := os.Stat(m.configDir); os.IsNotExist(err) {
		for _, name := range Documents {
			snap.Files = append(snap.Files, FileRecord{Name: name})
		}
		return snap, nil
	}

	if err := os.MkdirAll(m.Root(), 0o700); err != nil {
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	if err := m.recover(); err != nil {
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}

	staging, err := os.MkdirTemp(m.Root(), stagingPrefix+"*")
	if err != nil {
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	if err := m.stage(staging, &snap); err != nil {
		_ = os.RemoveAll(staging)
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	if err := m.swap(staging, snap.ID); err != nil {
		_ = os.RemoveAll(staging)
		return Snapshot{}, configerr.BackupFailure(m.Root(), err)
	}
	snap.dir = m.SlotDir()
	return snap, nil
}

func (m *Manager) stage(staging string, snap *Snapshot) error {
	for _, name := range Documents {
		record := FileRecord{Name: name}
		src := filepath.Join(m.configDir, name)
		info, err := os.Stat(src)
		switch {
		case os.IsNotExist(err):
			snap.Files = append(snap.Files, record)
			continue
		case err != nil:
			return err
		case !info.Mode().IsRegular():
			return fmt.Errorf("%s is not a regular file", src)
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if err := writeSynced(filepath.Join(staging, name), data); err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		record.Present = true
		record.Size = int64(len(data))
		record.SHA256 = hex.EncodeToString(sum[:])
		record.Mode = uint32(info.Mode().Perm())
		snap.Files = append(snap.Files, record)
	}

	manifest, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return writeSynced(filepath.Join(staging, ManifestFile), append(manifest, '\n'))
}

// swap promotes staging to the slot. The previous slot is parked under a
// retired name until the rename succeeds, then removed.
func (m *Manager) swap(staging, id string) error {
	slot := m.SlotDir()
	retired := ""
	if _, err := os.Stat(slot); err == nil {
		retired = filepath.Join(m.Root(), retiredPrefix+id)
		if err := os.Rename(slot, retired); err != nil {
			return fmt.Errorf("retire previous snapshot: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.Rename(staging, slot); err != nil {
		if retired != "" {
			_ = os.Rename(retired, slot)
		}
		return fmt.Errorf("promote snapshot: %w", err)
	}
	syncDir(m.Root())
	if retired != "" {
		_ = os.RemoveAll(retired)
	}
	return nil
}

// recover restores a retired snapshot when the slot is missing and clears
// leftovers from interrupted runs.
func (m *Manager) recover() error {
	retired := m.leftovers(retiredPrefix)
	if _, err := os.Stat(m.SlotDir()); os.IsNotExist(err) && len(retired) > 0 {
		newest := retired[len(retired)-1]
		if err := os.Rename(newest, m.SlotDir()); err != nil {
			return fmt.Errorf("recover retired snapshot: %w", err)
		}
		retired = retired[:len(retired)-1]
	}
	for _, dir := range append(retired, m.leftovers(stagingPrefix)...) {
		_ = os.RemoveAll(dir)
	}
	return nil
}

// leftovers returns directories under Root with prefix, oldest first.
func (m *Manager) leftovers(prefix string) []string {
	entries, err := os.ReadDir(m.Root())
	if err != nil {
		return nil
	}
	type aged struct {
		path string
		mod  time.Time
	}
	var found []aged
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, aged{filepath.Join(m.Root(), entry.Name()), info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.path
	}
	return out
}

// ErrChecksumMismatch marks a slot file that no longer matches its manifest.
var ErrChecksumMismatch = errors.New("backup file does not match manifest")

// Restore rewrites the config directory to the state captured in snap. Every
// slot file is verified before anything is written. Documents absent at
// snapshot time are removed.
func (m *Manager) Restore(snap Snapshot) error {
	contents := make(map[string][]byte, len(snap.Files))
	for _, record := range snap.Files {
		if !record.Present {
			continue
		}
		if !snap.Persisted() {
			return fmt.Errorf("snapshot %s has no stored copy of %s", snap.ID, record.Name)
		}
		data, err := os.ReadFile(filepath.Join(snap.dir, record.Name))
		if err != nil {
			return fmt.Errorf("read backup of %s: %w", record.Name, err)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != record.SHA256 || int64(len(data)) != record.Size {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, record.Name)
		}
		contents[record.Name] = data
	}

	if len(contents) > 0 {
		if err := os.MkdirAll(m.configDir, 0o700); err != nil {
			return err
		}
	}
	for _, record := range snap.Files {
		target := filepath.Join(m.configDir, record.Name)
		if !record.Present {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", record.Name, err)
			}
			continue
		}
		mode := os.FileMode(record.Mode)
		if mode == 0 {
			mode = slotFileMode
		}
		if err := fileutil.WriteFileAtomic(target, contents[record.Name], mode); err != nil {
			return fmt.Errorf("restore %s: %w", record.Name, err)
		}
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, slotFileMode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

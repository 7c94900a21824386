// Package configerr defines the error taxonomy shared by the configuration,
// diagnostics, and repair packages.
//
// Every constructor wraps one of the exported sentinels so callers can branch
// with errors.Is while the oops builder carries a stable code, the owning
// domain, and non-secret context (paths, action ids) for structured logs.
// Nothing in this package ever receives a secret value.
package configerr

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

var (
	// ErrInvalidLocation marks an explicitly requested config directory that
	// exists but cannot be used.
	ErrInvalidLocation = errors.New("invalid config location")
	// ErrCorruptDocument marks a document file that exists but cannot be parsed.
	ErrCorruptDocument = errors.New("corrupt document")
	// ErrBackupFailure marks a snapshot that could not be written.
	ErrBackupFailure = errors.New("backup failed")
	// ErrRepairFailure marks a repair action that failed and was rolled back.
	ErrRepairFailure = errors.New("repair failed")
	// ErrRestoreFailure marks a failed restore; the configuration may be in an
	// unknown state.
	ErrRestoreFailure = errors.New("restore failed")
	// ErrNoBackup is returned when no snapshot exists in the backup slot.
	ErrNoBackup = errors.New("no backup available")
	// ErrEphemeral is returned by write operations in ephemeral mode.
	ErrEphemeral = errors.New("configuration is ephemeral")
)

// InvalidLocation reports an unusable config directory.
func InvalidLocation(path, reason string, cause error) error {
	b := oops.Code("invalid_location").In("location").With("path", path)
	if cause != nil {
		return b.Wrapf(fmt.Errorf("%w: %w", ErrInvalidLocation, cause), "%s: %s", path, reason)
	}
	return b.Wrapf(ErrInvalidLocation, "%s: %s", path, reason)
}

// CorruptDocument reports a document that failed to parse. detail must not
// contain document content for secret-bearing files.
func CorruptDocument(path, detail string) error {
	return oops.Code("corrupt_document").In("store").With("path", path).
		Wrapf(ErrCorruptDocument, "%s: %s", path, detail)
}

// BackupFailure reports a snapshot that could not be taken or read.
func BackupFailure(dir string, cause error) error {
	return oops.Code("backup_failure").In("backup").With("slot", dir).
		Wrapf(fmt.Errorf("%w: %w", ErrBackupFailure, cause), "snapshot %s", dir)
}

// RepairFailure reports an action that failed and was rolled back.
func RepairFailure(actionID string, cause error) error {
	return oops.Code("repair_failure").In("repair").With("action", actionID).
		Wrapf(fmt.Errorf("%w: %w", ErrRepairFailure, cause), "repair %s", actionID)
}

// RestoreFailure reports a failed rollback or restore. Both the error that
// triggered the restore (which may be nil for a user-requested restore) and
// the restore error are preserved in the chain.
func RestoreFailure(actionID string, original, restoreErr error) error {
	b := oops.Code("restore_failure").In("repair").With("action", actionID)
	if original == nil {
		return b.Wrapf(fmt.Errorf("%w: %w", ErrRestoreFailure, restoreErr), "restore %s", actionID)
	}
	return b.Wrapf(
		fmt.Errorf("%w: original error: %w; rollback error: %w", ErrRestoreFailure, original, restoreErr),
		"restore %s", actionID,
	)
}

// Ephemeral reports a write attempted while running without a config directory.
func Ephemeral(operation string) error {
	return oops.Code("ephemeral").In("settings").With("operation", operation).
		Wrapf(ErrEphemeral, "%s", operation)
}

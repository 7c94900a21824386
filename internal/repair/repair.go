// Package repair turns repairable diagnostic findings into actions and applies
// them under the backup protocol.
//
// Every action runs through the same state machine:
//
//	proposed -> backed_up -> applying -> succeeded
//	                                  -> rolled_back
//	                                  -> restore_failed
//
// A snapshot is taken before anything is mutated; a backup failure leaves the
// action in proposed with nothing changed. Any error during the mutation or
// its verification restores the snapshot. The pointer record lives outside
// the config directory, so the engine captures and restores it separately.
package repair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"alchemux/internal/backup"
	"alchemux/internal/configerr"
	"alchemux/internal/doctor"
	"alchemux/internal/fileutil"
	"alchemux/internal/location"
	"alchemux/internal/logging"
)

// State is a step of the repair state machine.
type State string

const (
	StateProposed      State = "proposed"
	StateBackedUp      State = "backed_up"
	StateApplying      State = "applying"
	StateSucceeded     State = "succeeded"
	StateRolledBack    State = "rolled_back"
	StateRestoreFailed State = "restore_failed"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateRolledBack, StateRestoreFailed:
		return true
	default:
		return false
	}
}

// ActionRestoreLatestBackup identifies a user-requested restore in results.
const ActionRestoreLatestBackup = "restore_latest_backup"

// Target is what an action operates on.
type Target struct {
	Location location.Location
	Resolver *location.Resolver
}

// Action is one remediation. Actions are built by Propose or Lookup.
type Action struct {
	ID          string
	Description string
	// FindingID is the check that proposed the action, if any.
	FindingID string

	run    func(ctx context.Context, t Target) error
	verify func(t Target) error
}

// Result records what happened to one action.
type Result struct {
	Action      Action
	State       State
	Transitions []State
	Snapshot    *backup.Snapshot
	Err         error
}

func (r *Result) enter(state State) {
	r.State = state
	r.Transitions = append(r.Transitions, state)
}

// Succeeded reports whether the action completed.
func (r Result) Succeeded() bool { return r.State == StateSucceeded }

// Engine applies repair actions to one config location.
type Engine struct {
	target   Target
	backups  *backup.Manager
	logger   *slog.Logger
	onChange func() error
}

// NewEngine returns an Engine for loc. A nil resolver uses the OS defaults.
func NewEngine(loc location.Location, resolver *location.Resolver) *Engine {
	if resolver == nil {
		resolver = location.NewResolver()
	}
	return &Engine{
		target:  Target{Location: loc, Resolver: resolver},
		backups: backup.NewManager(loc.Dir),
		logger:  logging.NewNop(),
	}
}

// SetLogger routes engine diagnostics to logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.logger = logging.NewComponentLogger(logger, "repair")
}

// OnChange registers fn to run after the config directory was modified,
// whether the action succeeded or was rolled back. The CLI uses it to reload
// the settings manager.
func (e *Engine) OnChange(fn func() error) {
	e.onChange = fn
}

// Backups exposes the backup manager for the location.
func (e *Engine) Backups() *backup.Manager { return e.backups }

// Propose returns one action per distinct repair id named by the report's
// repairable findings, in report order.
func (e *Engine) Propose(report doctor.Report) []Action {
	seen := map[string]bool{}
	var actions []Action
	for _, finding := range report.Repairable() {
		if seen[finding.RepairID] {
			continue
		}
		action, ok := Lookup(finding.RepairID)
		if !ok {
			e.logger.Debug("finding names unknown repair",
				logging.String(logging.FieldCheck, finding.CheckID),
				logging.String(logging.FieldAction, finding.RepairID),
			)
			continue
		}
		seen[finding.RepairID] = true
		action.FindingID = finding.CheckID
		actions = append(actions, action)
	}
	return actions
}

// Apply runs action under the backup protocol. The returned Result always
// carries the terminal state reached and, on failure, the error.
func (e *Engine) Apply(ctx context.Context, action Action) Result {
	result := Result{Action: action}
	result.enter(StateProposed)
	logger := e.logger.With(logging.String(logging.FieldAction, action.ID))

	if e.target.Location.Ephemeral() {
		result.Err = configerr.Ephemeral("repair " + action.ID)
		return result
	}
	if action.run == nil {
		result.Err = fmt.Errorf("repair %s has no implementation", action.ID)
		return result
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	snap, err := e.backups.Snapshot("repair " + action.ID)
	if err != nil {
		result.Err = err
		logging.WarnWithContext(logger, "backup failed; repair not applied", "backup_failure",
			logging.Error(err),
			logging.String(logging.FieldState, string(result.State)),
			logging.String(logging.FieldErrorHint, "check that the config directory is writable"),
		)
		return result
	}
	result.Snapshot = &snap
	result.enter(StateBackedUp)
	logger.Debug("snapshot taken", logging.String("snapshot", snap.ID))

	pointer := capturePointer(e.target.Resolver)
	result.enter(StateApplying)
	err = ctx.Err()
	if err == nil {
		err = action.run(ctx, e.target)
	}
	if err == nil && action.verify != nil {
		if verr := action.verify(e.target); verr != nil {
			err = fmt.Errorf("verify: %w", verr)
		}
	}
	if err == nil {
		result.enter(StateSucceeded)
		logger.Info("repair applied", logging.String(logging.FieldState, string(result.State)))
		e.changed(logger)
		return result
	}

	restoreErr := e.rollback(snap, pointer)
	if restoreErr != nil {
		result.enter(StateRestoreFailed)
		result.Err = configerr.RestoreFailure(action.ID, err, restoreErr)
		logger.Error("rollback failed; configuration may be inconsistent",
			logging.Error(result.Err),
			logging.String(logging.FieldState, string(result.State)),
			logging.String(logging.FieldErrorHint, "inspect "+e.backups.SlotDir()),
		)
	} else {
		result.enter(StateRolledBack)
		result.Err = configerr.RepairFailure(action.ID, err)
		logging.WarnWithContext(logger, "repair failed and was rolled back", "repair_failure",
			logging.Error(err),
			logging.String(logging.FieldState, string(result.State)),
		)
	}
	e.changed(logger)
	return result
}

// ApplyAll applies actions in order and stops after the first failure.
func (e *Engine) ApplyAll(ctx context.Context, actions []Action) []Result {
	results := make([]Result, 0, len(actions))
	for _, action := range actions {
		result := e.Apply(ctx, action)
		results = append(results, result)
		if !result.Succeeded() {
			break
		}
	}
	return results
}

// RestoreLatest restores the backup slot into the engine's location.
func (e *Engine) RestoreLatest() Result {
	result := RestoreLatestBackup(e.target.Location)
	if result.State != StateProposed {
		e.changed(e.logger.With(logging.String(logging.FieldAction, ActionRestoreLatestBackup)))
	}
	return result
}

// RestoreLatestBackup rewrites the documents in loc from the backup slot. It
// is independent of any repair and takes no new snapshot, so the slot is
// still available afterwards.
func RestoreLatestBackup(loc location.Location) Result {
	result := Result{Action: Action{ID: ActionRestoreLatestBackup, Description: "restore the most recent backup"}}
	result.enter(StateProposed)
	if loc.Ephemeral() {
		result.Err = configerr.Ephemeral("restore backup")
		return result
	}
	backups := backup.NewManager(loc.Dir)
	snap, err := backups.Latest()
	if err != nil {
		result.Err = err
		return result
	}
	result.Snapshot = &snap
	result.enter(StateApplying)
	if err := backups.Restore(snap); err != nil {
		result.enter(StateRestoreFailed)
		result.Err = configerr.RestoreFailure(ActionRestoreLatestBackup, nil, err)
		return result
	}
	result.enter(StateSucceeded)
	return result
}

func (e *Engine) rollback(snap backup.Snapshot, pointer pointerState) error {
	var errs []error
	if err := e.backups.Restore(snap); err != nil {
		errs = append(errs, err)
	}
	if !snap.Persisted() {
		// The directory did not exist before; remove it if nothing else landed there.
		_ = os.Remove(e.target.Location.Dir)
	}
	if err := pointer.restore(); err != nil {
		errs = append(errs, fmt.Errorf("restore pointer record: %w", err))
	}
	return errors.Join(errs...)
}

func (e *Engine) changed(logger *slog.Logger) {
	if e.onChange == nil {
		return
	}
	if err := e.onChange(); err != nil {
		logger.Warn("reload after repair failed", logging.Error(err))
	}
}

// pointerState is the pointer record as it was before an action ran.
type pointerState struct {
	path   string
	data   []byte
	exists bool
}

func capturePointer(resolver *location.Resolver) pointerState {
	path, err := resolver.PointerPath()
	if err != nil {
		return pointerState{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return pointerState{path: path}
	}
	return pointerState{path: path, data: data, exists: true}
}

func (p pointerState) restore() error {
	if p.path == "" {
		return nil
	}
	current, err := os.ReadFile(p.path)
	switch {
	case err != nil && !os.IsNotExist(err):
		return err
	case err != nil && !p.exists:
		return nil
	case err == nil && p.exists && bytes.Equal(current, p.data):
		return nil
	}
	if !p.exists {
		return os.Remove(p.path)
	}
	return fileutil.WriteFileAtomic(p.path, p.data, 0o600)
}

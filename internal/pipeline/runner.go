package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"alchemux/internal/config"
	"alchemux/internal/logging"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onLine func(string)) error
}

// Uploader hands finished files to a cloud provider. Implementations live
// outside this module; a nil Uploader keeps everything local.
type Uploader interface {
	Upload(ctx context.Context, plan Plan, files []string) error
}

// Outcome summarises one processed URL.
type Outcome struct {
	URL      string
	Files    []string
	Uploaded bool
	Notes    []string
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithUploader sets the cloud collaborator.
func WithUploader(u Uploader) Option {
	return func(r *Runner) {
		r.uploader = u
	}
}

// WithLogger routes engine output and runner diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.NewComponentLogger(logger, "pipeline")
	}
}

// Runner executes plans one at a time.
type Runner struct {
	exec     Executor
	uploader Uploader
	logger   *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{exec: commandExecutor{}, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run downloads plan.URL into the output directory and uploads the new files
// when the plan asks for it. An upload failure with a local fallback keeps
// the files and is reported as a note.
func (r *Runner) Run(ctx context.Context, plan Plan) (Outcome, error) {
	outcome := Outcome{URL: plan.URL}
	for _, dir := range []string{plan.OutputDir, plan.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return outcome, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	before, err := listFiles(plan.OutputDir)
	if err != nil {
		return outcome, err
	}
	logger := r.logger.With(logging.String("url", plan.URL))
	logger.Info("download started", logging.String("format", plan.Format), logging.Bool("video", plan.Video))
	if err := r.exec.Run(ctx, plan.Command, plan.Args, func(line string) {
		logger.Debug(line)
	}); err != nil {
		return outcome, fmt.Errorf("%s: %w", plan.Command, err)
	}

	after, err := listFiles(plan.OutputDir)
	if err != nil {
		return outcome, err
	}
	for name := range after {
		if _, existed := before[name]; !existed {
			outcome.Files = append(outcome.Files, filepath.Join(plan.OutputDir, name))
		}
	}
	sort.Strings(outcome.Files)
	logger.Info("download finished", logging.Int("files", len(outcome.Files)))

	if !plan.Upload || len(outcome.Files) == 0 {
		return outcome, nil
	}
	if r.uploader == nil {
		outcome.Notes = append(outcome.Notes, fmt.Sprintf("no %s uploader available; files kept in %s", plan.Destination, plan.OutputDir))
		return outcome, nil
	}
	if err := r.uploader.Upload(ctx, plan, outcome.Files); err != nil {
		if plan.Fallback != config.DestinationLocal {
			return outcome, fmt.Errorf("upload to %s: %w", plan.Destination, err)
		}
		logging.WarnWithContext(logger, "upload failed; keeping local files", "upload_failure",
			logging.Error(err),
			logging.String("destination", plan.Destination),
			logging.String(logging.FieldErrorHint, "run alchemux doctor to check cloud settings"),
		)
		outcome.Notes = append(outcome.Notes, fmt.Sprintf("upload to %s failed; files kept in %s", plan.Destination, plan.OutputDir))
		return outcome, nil
	}
	outcome.Uploaded = true
	if !plan.KeepLocalCopy {
		for _, path := range outcome.Files {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Warn("remove local copy failed", logging.String(logging.FieldPath, path), logging.Error(err))
			}
		}
	}
	return outcome, nil
}

func listFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	files := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files[entry.Name()] = struct{}{}
		}
	}
	return files, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onLine == nil {
				continue
			}
			mu.Lock()
			onLine(scanner.Text())
			mu.Unlock()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return err
	}
	if scanErr != nil {
		return fmt.Errorf("read output: %w", scanErr)
	}
	return nil
}

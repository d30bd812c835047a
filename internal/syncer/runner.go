package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"mediapool/internal/config"
	"mediapool/internal/fileutil"
	"mediapool/internal/journal"
	"mediapool/internal/lockfile"
	"mediapool/internal/logging"
	"mediapool/internal/services"
	"mediapool/internal/services/rsync"
)

// Prompter resolves the back-sync question when the policy is prompt.
type Prompter interface {
	ConfirmBackSync(task Task, missing []string) (bool, error)
}

// Result summarizes one completed task.
type Result struct {
	Task       Task
	ForwardLog string
	ForwardErr error // recoverable rsync failure, already logged
	Missing    []string
	BackSynced bool
	BackLog    string
	BackErr    error
}

// Option configures the runner.
type Option func(*Runner)

// WithPrompter injects the interactive back-sync confirmation. Without one,
// prompt policy declines.
func WithPrompter(p Prompter) Option {
	return func(r *Runner) {
		r.prompt = p
	}
}

// WithJournal records runs in the given store, best-effort.
func WithJournal(store *journal.Store) Option {
	return func(r *Runner) {
		r.journal = store
	}
}

// WithOutput redirects the rsync console stream, which defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runner) {
		if w != nil {
			r.out = w
		}
	}
}

// WithClock overrides the transcript timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner executes pool synchronization runs.
type Runner struct {
	cfg     *config.Config
	client  *rsync.Client
	logger  *slog.Logger
	journal *journal.Store
	prompt  Prompter
	out     io.Writer
	now     func() time.Time
}

// New constructs a runner.
func New(cfg *config.Config, client *rsync.Client, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil || client == nil {
		return nil, errors.New("syncer requires config and rsync client")
	}
	runner := &Runner{
		cfg:    cfg,
		client: client,
		logger: logging.NewComponentLogger(logger, "syncer"),
		out:    os.Stdout,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// Run mirrors the selected pools to the user's destination drive, then offers
// the filtered back-sync per task. Pool locks are held across the whole run
// and released in reverse order.
func (r *Runner) Run(ctx context.Context, user string, mode Mode) ([]Result, error) {
	tasks, err := BuildTasks(r.cfg, user, mode)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	// Host guard first: one sync per machine. The pool sentinels below are
	// what other machines see.
	if err := os.MkdirAll(r.cfg.Paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log dir: %w", err)
	}
	guard := flock.New(filepath.Join(r.cfg.Paths.LogDir, "sync.flock"))
	ok, err := guard.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire host guard: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrLockHeld, "syncer", "guard",
			"another sync is already running on this host", nil)
	}
	defer func() {
		if err := guard.Unlock(); err != nil {
			r.logger.Warn("failed to release host guard", logging.Error(err))
		}
	}()

	for _, task := range tasks {
		for _, p := range []string{task.Src, task.Dst} {
			mounted, merr := fileutil.Mounted(p)
			if merr != nil {
				return nil, services.Wrap(nil, "syncer", "mounts", fmt.Sprintf("check %s", p), merr)
			}
			if !mounted {
				return nil, services.Wrap(services.ErrVolumeNotMounted, "syncer", "mounts",
					fmt.Sprintf("volume for %s is not mounted", p), nil)
			}
		}
	}

	roots := LockRoots(tasks)
	for _, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("ensure pool root %s: %w", root, err)
		}
	}
	batch, err := lockfile.AcquireAll(roots)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := batch.Release(); err != nil {
			r.logger.Warn("failed to release pool locks", logging.Error(err))
		}
	}()

	runID := r.beginJournal(ctx, user, tasks)

	excludes, cleanup, err := rsync.WriteExcludesFile(r.cfg.Sync.Excludes)
	if err != nil {
		err = fmt.Errorf("write excludes file: %w", err)
		r.finishJournal(runID, err)
		return nil, err
	}
	defer cleanup()

	results := make([]Result, 0, len(tasks))
	var runErr error
	for _, task := range tasks {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		res, taskErr := r.runTask(ctx, user, task, excludes)
		results = append(results, res)
		if taskErr != nil {
			runErr = taskErr
			break
		}
	}

	r.finishJournal(runID, runErr)
	if runErr != nil {
		return results, runErr
	}
	return results, nil
}

func (r *Runner) runTask(ctx context.Context, user string, task Task, excludes string) (Result, error) {
	res := Result{Task: task}
	log := r.logger.With(
		logging.String(logging.FieldUser, user),
		logging.String(logging.FieldTask, task.Label),
	)

	if err := os.MkdirAll(task.Dst, 0o755); err != nil {
		return res, fmt.Errorf("create destination %s: %w", task.Dst, err)
	}

	fwdPath := r.transcriptPath(task, user, "forward")
	fwd, err := openTranscript(fwdPath)
	if err != nil {
		return res, fmt.Errorf("open transcript %s: %w", fwdPath, err)
	}
	res.ForwardLog = fwdPath

	log.Info("forward sync starting",
		logging.String("src", task.Src),
		logging.String("dst", task.Dst))
	mirrorErr := r.client.Mirror(ctx, task.Src, task.Dst, excludes, r.tee(fwd))
	if cerr := fwd.Close(); cerr != nil {
		log.Warn("close transcript", logging.Error(cerr))
	}
	if mirrorErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.ForwardErr = mirrorErr
		log.Warn("forward sync exited nonzero",
			logging.Error(mirrorErr),
			logging.String("transcript", fwdPath))
	} else {
		log.Info("forward sync complete", logging.String("transcript", fwdPath))
	}

	changes, listErr := r.client.ListMissing(ctx, task.Dst, task.Src, excludes, r.cfg.Sync.BacksyncGlobs)
	if listErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Warn("reverse dry-run failed; skipping back-sync detection", logging.Error(listErr))
		return res, nil
	}
	res.Missing = rsync.FilterFiles(changes, r.cfg.Sync.BacksyncGlobs)
	if len(res.Missing) == 0 {
		log.Info("no destination-only files found")
		return res, nil
	}

	approved, err := r.approveBackSync(task, res.Missing)
	if err != nil {
		return res, err
	}
	if !approved {
		log.Info("back-sync skipped", logging.Int("missing", len(res.Missing)))
		return res, nil
	}

	backPath := r.transcriptPath(task, user, "backsync")
	back, err := openTranscript(backPath)
	if err != nil {
		return res, fmt.Errorf("open transcript %s: %w", backPath, err)
	}
	res.BackLog = backPath

	log.Info("back-syncing destination-only files", logging.Int("missing", len(res.Missing)))
	backErr := r.client.CopyMissing(ctx, task.Dst, task.Src, excludes, r.cfg.Sync.BacksyncGlobs, r.tee(back))
	if cerr := back.Close(); cerr != nil {
		log.Warn("close transcript", logging.Error(cerr))
	}
	if backErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.BackErr = backErr
		log.Warn("back-sync exited nonzero",
			logging.Error(backErr),
			logging.String("transcript", backPath))
		return res, nil
	}
	res.BackSynced = true
	log.Info("back-sync complete", logging.String("transcript", backPath))
	return res, nil
}

func (r *Runner) approveBackSync(task Task, missing []string) (bool, error) {
	switch r.cfg.Sync.Policy {
	case config.PolicyAlways:
		return true, nil
	case config.PolicyNever:
		return false, nil
	}
	if r.prompt == nil {
		return false, nil
	}
	return r.prompt.ConfirmBackSync(task, missing)
}

// transcriptPath names rsync transcripts under the destination pool's report
// directory so the log travels with the drive it describes.
func (r *Runner) transcriptPath(task Task, user, direction string) string {
	dir := filepath.Join(r.cfg.ReportsDir(task.TopRoot()), "sync_logs")
	name := fmt.Sprintf("%s_%s_%s_%s.log", r.now().Format("20060102_150405"), user, task.Label, direction)
	return filepath.Join(dir, name)
}

func openTranscript(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.Create(path)
}

func (r *Runner) tee(transcript io.Writer) func(string) {
	return func(line string) {
		fmt.Fprintln(r.out, line)
		fmt.Fprintln(transcript, line)
	}
}

func (r *Runner) beginJournal(ctx context.Context, user string, tasks []Task) string {
	if r.journal == nil {
		return ""
	}
	labels := make([]string, 0, len(tasks))
	for _, t := range tasks {
		labels = append(labels, t.Label)
	}
	id, err := r.journal.Begin(ctx, journal.KindSync, user, strings.Join(labels, "+"))
	if err != nil {
		r.logger.Warn("journal begin failed", logging.Error(err))
		return ""
	}
	return id
}

func (r *Runner) finishJournal(id string, runErr error) {
	if r.journal == nil || id == "" {
		return
	}
	// Detached context: the journal row should close even on cancellation.
	if err := r.journal.Finish(context.Background(), id, runErr); err != nil {
		r.logger.Warn("journal finish failed", logging.Error(err))
	}
}

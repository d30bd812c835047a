package syncer_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediapool/internal/config"
	"mediapool/internal/journal"
	"mediapool/internal/lockfile"
	"mediapool/internal/logging"
	"mediapool/internal/services"
	"mediapool/internal/services/rsync"
	"mediapool/internal/syncer"
	"mediapool/internal/testsupport"
)

type step struct {
	lines []string
	err   error
}

type scriptedExecutor struct {
	steps []step
	calls [][]string
}

func (s *scriptedExecutor) Run(ctx context.Context, binary string, args []string, onLine func(string)) error {
	s.calls = append(s.calls, append([]string(nil), args...))
	if len(s.steps) == 0 {
		return nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	for _, line := range st.lines {
		if onLine != nil {
			onLine(line)
		}
	}
	return st.err
}

type stubPrompter struct {
	approve bool
	asked   [][]string
}

func (p *stubPrompter) ConfirmBackSync(task syncer.Task, missing []string) (bool, error) {
	p.asked = append(p.asked, append([]string(nil), missing...))
	return p.approve, nil
}

func newRunner(t *testing.T, cfg *config.Config, exec *scriptedExecutor, opts ...syncer.Option) *syncer.Runner {
	t.Helper()
	client, err := rsync.New(cfg.RsyncBinary(), cfg.Sync.Rsync.Flags, rsync.WithExecutor(exec))
	if err != nil {
		t.Fatalf("rsync.New: %v", err)
	}
	opts = append(opts, syncer.WithOutput(io.Discard))
	runner, err := syncer.New(cfg, client, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("syncer.New: %v", err)
	}
	return runner
}

func globOne(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(pattern)
	if err != nil {
		t.Fatalf("glob %s: %v", pattern, err)
	}
	if len(matches) != 1 {
		t.Fatalf("glob %s matched %d files: %v", pattern, len(matches), matches)
	}
	return matches[0]
}

func TestRunForwardThenBackSync(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyAlways))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MediaPoolRoot, "ALICE", "20250906_01", "clip.mov"), 64)

	exec := &scriptedExecutor{steps: []step{
		{lines: []string{"sending incremental file list", "20250906_01/clip.mov"}},
		{lines: []string{">f+++++++ 20250906_01/render.mp4"}},
		{},
	}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.ForwardErr != nil {
		t.Fatalf("forward error: %v", res.ForwardErr)
	}
	if len(res.Missing) != 1 || res.Missing[0] != "20250906_01/render.mp4" {
		t.Fatalf("missing = %v", res.Missing)
	}
	if !res.BackSynced {
		t.Fatal("expected back-sync under always policy")
	}
	if len(exec.calls) != 3 {
		t.Fatalf("expected 3 rsync invocations, got %d", len(exec.calls))
	}

	// Forward mirror then reverse dry run then back-fill, each with the
	// expected direction.
	fwd := exec.calls[0]
	if fwd[len(fwd)-2] != res.Task.Src+"/" || fwd[len(fwd)-1] != res.Task.Dst+"/" {
		t.Fatalf("forward direction wrong: %v", fwd)
	}
	rev := exec.calls[1]
	if rev[0] != "-an" || rev[len(rev)-2] != res.Task.Dst+"/" || rev[len(rev)-1] != res.Task.Src+"/" {
		t.Fatalf("reverse dry-run wrong: %v", rev)
	}
	back := exec.calls[2]
	if back[len(back)-2] != res.Task.Dst+"/" || back[len(back)-1] != res.Task.Src+"/" {
		t.Fatalf("back-fill direction wrong: %v", back)
	}

	logDir := filepath.Join(res.Task.TopRoot(), "_reports", "sync_logs")
	fwdLog := globOne(t, filepath.Join(logDir, "*_ALICE_MEDIA_user_forward.log"))
	data, err := os.ReadFile(fwdLog)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(data), "20250906_01/clip.mov") {
		t.Fatalf("transcript missing teed output: %q", string(data))
	}
	globOne(t, filepath.Join(logDir, "*_ALICE_MEDIA_user_backsync.log"))

	// Locks must be gone after the run.
	if _, err := os.Stat(lockfile.Path(res.Task.TopRoot())); !os.IsNotExist(err) {
		t.Fatalf("pool lock still present: %v", err)
	}
}

func TestRunPolicyNeverSkipsBackSync(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyNever))
	exec := &scriptedExecutor{steps: []step{
		{},
		{lines: []string{">f+++++++ a/render.mp4"}},
	}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].BackSynced {
		t.Fatal("back-sync ran under never policy")
	}
	if len(results[0].Missing) != 1 {
		t.Fatalf("missing = %v", results[0].Missing)
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected 2 rsync invocations, got %d", len(exec.calls))
	}
}

func TestRunPromptDecides(t *testing.T) {
	for _, approve := range []bool{true, false} {
		cfg := testsupport.NewConfig(t)
		exec := &scriptedExecutor{steps: []step{
			{},
			{lines: []string{">f+++++++ a/render.mp4"}},
			{},
		}}
		prompt := &stubPrompter{approve: approve}
		runner := newRunner(t, cfg, exec, syncer.WithPrompter(prompt))

		results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(prompt.asked) != 1 || len(prompt.asked[0]) != 1 {
			t.Fatalf("prompter asked = %v", prompt.asked)
		}
		if results[0].BackSynced != approve {
			t.Fatalf("BackSynced = %v, want %v", results[0].BackSynced, approve)
		}
	}
}

func TestRunPromptPolicyWithoutPrompterDeclines(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	exec := &scriptedExecutor{steps: []step{
		{},
		{lines: []string{">f+++++++ a/render.mp4"}},
	}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].BackSynced {
		t.Fatal("back-sync ran without a prompter")
	}
}

func TestRunForwardFailureContinues(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyNever))
	exec := &scriptedExecutor{steps: []step{
		{err: &rsync.ExitError{Code: 23}},
		{},
	}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("Run should not fail on rsync exit: %v", err)
	}
	if results[0].ForwardErr == nil {
		t.Fatal("expected recorded forward error")
	}
	if len(exec.calls) != 2 {
		t.Fatalf("reverse dry-run should still run, got %d calls", len(exec.calls))
	}
}

func TestRunReverseFailureSkipsDetection(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyAlways))
	exec := &scriptedExecutor{steps: []step{
		{},
		{err: &rsync.ExitError{Code: 12}},
	}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results[0].Missing) != 0 || results[0].BackSynced {
		t.Fatalf("expected skipped detection, got %+v", results[0])
	}
	if len(exec.calls) != 2 {
		t.Fatalf("expected no back-fill call, got %d calls", len(exec.calls))
	}
}

func TestRunRefusesHeldPool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	tasks, err := syncer.BuildTasks(cfg, "ALICE", syncer.ModeMediaUser)
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	top := tasks[0].TopRoot()
	if err := os.MkdirAll(top, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	held, err := lockfile.Acquire(top)
	if err != nil {
		t.Fatalf("pre-lock: %v", err)
	}
	defer held.Release()

	exec := &scriptedExecutor{}
	runner := newRunner(t, cfg, exec)
	_, err = runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser)
	if !errors.Is(err, services.ErrLockHeld) {
		t.Fatalf("Run against held pool = %v, want lock-held error", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("rsync ran despite held lock: %d calls", len(exec.calls))
	}
}

func TestRunBothPoolsLocksAndReleases(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyNever))
	exec := &scriptedExecutor{steps: []step{{}, {}, {}, {}}}
	runner := newRunner(t, cfg, exec)

	results, err := runner.Run(context.Background(), "ALICE", syncer.ModeBothUser)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if _, err := os.Stat(lockfile.Path(res.Task.TopRoot())); !os.IsNotExist(err) {
			t.Fatalf("lock for %s still present", res.Task.Label)
		}
	}
	// Two pool pairs, two phases each (forward + reverse dry run).
	if len(exec.calls) != 4 {
		t.Fatalf("expected 4 rsync invocations, got %d", len(exec.calls))
	}
}

func TestRunRecordsJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPolicy(config.PolicyNever), testsupport.WithJournal())
	store := testsupport.MustOpenJournal(t, cfg)
	exec := &scriptedExecutor{steps: []step{{}, {}}}
	runner := newRunner(t, cfg, exec, syncer.WithJournal(store))

	if _, err := runner.Run(context.Background(), "ALICE", syncer.ModeMediaUser); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 journal run, got %d", len(runs))
	}
	run := runs[0]
	if run.Kind != journal.KindSync || run.User != "ALICE" || run.Detail != "MEDIA_user" {
		t.Fatalf("unexpected journal row: %+v", run)
	}
	if run.Status != journal.StatusDone {
		t.Fatalf("status = %q, want done", run.Status)
	}
}

package packager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediapool/internal/bins"
	"mediapool/internal/config"
	"mediapool/internal/fileutil"
	"mediapool/internal/journal"
	"mediapool/internal/logging"
	"mediapool/internal/services"
	"mediapool/internal/services/rsync"
)

// Mode selects how candidate folders are moved into the bucket.
type Mode int

const (
	// ModeCopy makes independent copies. This is the default.
	ModeCopy Mode = iota + 1
	// ModeHardlink links files instead of copying, falling back to a copy
	// where the filesystem refuses the link.
	ModeHardlink
	// ModeRsync shells out to rsync in plain archive mode.
	ModeRsync
)

// ParseMode resolves a mode flag value. Empty selects the default copy mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cp", "copy":
		return ModeCopy, nil
	case "hardlink", "link":
		return ModeHardlink, nil
	case "rsync":
		return ModeRsync, nil
	}
	return 0, services.Wrap(services.ErrValidation, "packager", "mode",
		fmt.Sprintf("unknown transfer mode %q (use hardlink, cp or rsync)", s), nil)
}

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "cp"
	case ModeHardlink:
		return "hardlink"
	case ModeRsync:
		return "rsync"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// verb returns the past-tense action word for logs and console output.
func (m Mode) verb() string {
	switch m {
	case ModeHardlink:
		return "linked"
	case ModeRsync:
		return "synced"
	}
	return "copied"
}

// Plan is the set of proxy folders that would go into the next sent bucket.
type Plan struct {
	User       string
	BaseDir    string
	SentDir    string
	Bucket     string
	BucketPath string
	Candidates []string
	Skipped    []string // already present in some sent bucket
	RequestURL string
}

// Transfer records one candidate's outcome.
type Transfer struct {
	Name string
	Dest string
	Err  error
}

// Result summarizes an executed package run.
type Result struct {
	Bucket    string
	Path      string
	Transfers []Transfer
	Sent      int
}

// Option configures a Packager.
type Option func(*Packager)

// WithJournal records package runs in the run journal.
func WithJournal(store *journal.Store) Option {
	return func(p *Packager) { p.journal = store }
}

// WithRsync supplies the client used by ModeRsync. Without one, rsync mode
// degrades to a plain copy.
func WithRsync(client *rsync.Client) Option {
	return func(p *Packager) { p.rsync = client }
}

// WithClock overrides the bucket-date clock.
func WithClock(now func() time.Time) Option {
	return func(p *Packager) {
		if now != nil {
			p.now = now
		}
	}
}

// Packager stages finished proxy folders into dated _sent buckets for upload.
type Packager struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Store
	rsync   *rsync.Client
	now     func() time.Time
}

// New constructs a packager.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Packager, error) {
	if cfg == nil {
		return nil, errors.New("packager requires config")
	}
	p := &Packager{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "packager"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Plan lists the user's unsent proxy folders and names the bucket a package
// run would create. The _sent directory is created if missing; nothing else
// is written.
func (p *Packager) Plan(ctx context.Context, user string) (*Plan, error) {
	baseDir := p.cfg.ProxyPoolUser(user)
	if _, err := os.Stat(baseDir); err != nil {
		if os.IsNotExist(err) {
			if mounted, merr := fileutil.Mounted(baseDir); merr == nil && !mounted {
				return nil, services.Wrap(services.ErrVolumeNotMounted, "packager", "plan",
					fmt.Sprintf("proxy pool volume for %s is not mounted", baseDir), nil)
			}
			return nil, services.Wrap(services.ErrNotFound, "packager", "plan",
				fmt.Sprintf("proxy pool %s not found", baseDir), nil)
		}
		return nil, services.Wrap(nil, "packager", "plan", fmt.Sprintf("stat %s", baseDir), err)
	}

	sentDir := p.cfg.SentDir(user)
	if err := os.MkdirAll(sentDir, 0o755); err != nil {
		return nil, fmt.Errorf("create sent dir %s: %w", sentDir, err)
	}

	plan := &Plan{
		User:    user,
		BaseDir: baseDir,
		SentDir: sentDir,
	}
	if url, ok := p.cfg.RequestURL(user); ok {
		plan.RequestURL = url
	}

	names, err := candidateDirs(baseDir, map[string]struct{}{
		p.cfg.Sync.ReportDirName: {},
		filepath.Base(sentDir):   {},
	})
	if err != nil {
		return nil, fmt.Errorf("list proxy folders: %w", err)
	}
	for _, name := range names {
		sent, serr := alreadySent(sentDir, name)
		if serr != nil {
			return nil, fmt.Errorf("scan sent buckets: %w", serr)
		}
		if sent {
			plan.Skipped = append(plan.Skipped, name)
			continue
		}
		plan.Candidates = append(plan.Candidates, name)
	}

	bucket, err := nextBucket(sentDir, p.now().Format("20060102"))
	if err != nil {
		return nil, err
	}
	plan.Bucket = bucket
	plan.BucketPath = filepath.Join(sentDir, bucket)

	p.logger.Info("package plan ready",
		logging.String(logging.FieldUser, user),
		logging.String(logging.FieldBin, plan.Bucket),
		logging.Int("candidates", len(plan.Candidates)),
		logging.Int("skipped", len(plan.Skipped)))
	return plan, nil
}

// Execute moves every candidate into the bucket using the chosen mode. A
// candidate that fails to transfer is logged and recorded; the rest still go
// through.
func (p *Packager) Execute(ctx context.Context, plan *Plan, mode Mode) (*Result, error) {
	if len(plan.Candidates) == 0 {
		return nil, services.Wrap(services.ErrValidation, "packager", "package",
			"no unsent proxy folders to package", nil)
	}

	runID := p.beginJournal(ctx, plan.User, plan.Bucket)

	if err := os.MkdirAll(plan.BucketPath, 0o755); err != nil {
		err = fmt.Errorf("create bucket %s: %w", plan.BucketPath, err)
		p.finishJournal(runID, err)
		return nil, err
	}

	res := &Result{Bucket: plan.Bucket, Path: plan.BucketPath}
	for _, name := range plan.Candidates {
		if err := ctx.Err(); err != nil {
			p.finishJournal(runID, err)
			return res, err
		}
		src := filepath.Join(plan.BaseDir, name)
		dst := uniqueDestination(plan.BucketPath, name)
		err := p.transfer(ctx, mode, src, dst)
		res.Transfers = append(res.Transfers, Transfer{Name: name, Dest: dst, Err: err})
		if err != nil {
			p.logger.Warn("transfer failed",
				logging.String("folder", name), logging.Error(err))
			continue
		}
		res.Sent++
		p.logger.Info(mode.verb()+" proxy folder",
			logging.String("folder", name),
			logging.String("dest", dst))
	}

	p.finishJournal(runID, nil)
	p.logger.Info("package complete",
		logging.String(logging.FieldUser, plan.User),
		logging.String(logging.FieldBin, plan.Bucket),
		logging.Int("sent", res.Sent),
		logging.Int("failed", len(res.Transfers)-res.Sent))
	return res, nil
}

func (p *Packager) transfer(ctx context.Context, mode Mode, src, dst string) error {
	switch mode {
	case ModeHardlink:
		return hardlinkTree(src, dst)
	case ModeRsync:
		if p.rsync == nil {
			p.logger.Warn("rsync unavailable, copying instead",
				logging.String("folder", filepath.Base(src)))
			return copyTree(src, dst)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return p.rsync.Archive(ctx, src, dst, nil)
	default:
		return copyTree(src, dst)
	}
}

// candidateDirs lists top-level directories under base, skipping hidden names
// and the excluded set, ordered case-insensitively.
func candidateDirs(base string, exclude map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if _, skip := exclude[name]; skip {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := strings.ToLower(names[i]), strings.ToLower(names[j])
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return names, nil
}

// alreadySent reports whether any sent bucket contains a folder of this name.
func alreadySent(sentDir, name string) (bool, error) {
	entries, err := os.ReadDir(sentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(sentDir, entry.Name(), name)); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// nextBucket names today's bucket: one past the highest unsuffixed sequence
// already used for that date.
func nextBucket(sentDir, date string) (string, error) {
	entries, err := os.ReadDir(sentDir)
	if err != nil {
		if os.IsNotExist(err) {
			return bins.FormatName(date, 1, ""), nil
		}
		return "", err
	}
	max := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		parsed, ok := bins.ParseName(entry.Name())
		if !ok || parsed.Suffix != "" || parsed.Date != date {
			continue
		}
		if parsed.Seq > max {
			max = parsed.Seq
		}
	}
	return bins.FormatName(date, max+1, ""), nil
}

// uniqueDestination picks a non-colliding directory name inside the bucket.
func uniqueDestination(bucket, name string) string {
	candidate := filepath.Join(bucket, name)
	if _, err := os.Lstat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate
	}
	for i := 1; ; i++ {
		alt := filepath.Join(bucket, fmt.Sprintf("%s-%d", name, i))
		if _, err := os.Lstat(alt); errors.Is(err, fs.ErrNotExist) {
			return alt
		}
	}
}

// copyTree copies src recursively into dst, preserving file timestamps.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(src, path)
		if rerr != nil {
			return rerr
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fileutil.CopyFilePreserve(path, target, nil)
	})
}

// hardlinkTree recreates src's directories under dst and hardlinks every
// file. Links that the filesystem rejects degrade to copies.
func hardlinkTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(src, path)
		if rerr != nil {
			return rerr
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, serr := os.Lstat(target); serr == nil {
			if rmErr := os.Remove(target); rmErr != nil {
				return rmErr
			}
		}
		if lerr := os.Link(path, target); lerr != nil {
			return fileutil.CopyFilePreserve(path, target, nil)
		}
		return nil
	})
}

func (p *Packager) beginJournal(ctx context.Context, user, bucket string) string {
	if p.journal == nil {
		return ""
	}
	id, err := p.journal.Begin(ctx, journal.KindPackage, user, bucket)
	if err != nil {
		p.logger.Warn("journal begin failed", logging.Error(err))
		return ""
	}
	return id
}

func (p *Packager) finishJournal(id string, runErr error) {
	if p.journal == nil || id == "" {
		return
	}
	if err := p.journal.Finish(context.Background(), id, runErr); err != nil {
		p.logger.Warn("journal finish failed", logging.Error(err))
	}
}

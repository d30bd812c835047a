package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"mediapool/internal/config"
	"mediapool/internal/fileutil"
	"mediapool/internal/journal"
	"mediapool/internal/logging"
	"mediapool/internal/mediaindex"
	"mediapool/internal/services"
)

// OrphanDirName is where rescued card files land inside a user's pool.
const OrphanDirName = "_orphan"

// Report is the outcome of checking a card against every pool.
type Report struct {
	User         string
	Source       string
	Files        []mediaindex.Record
	Present      []mediaindex.Record
	Missing      []mediaindex.Record
	TotalBytes   int64
	MissingBytes int64
	Indexed      int
	OrphanDir    string
}

// Safe reports whether every card file already lives somewhere in the pool.
func (r *Report) Safe() bool {
	return len(r.Missing) == 0
}

// OrphanResult describes a completed rescue copy.
type OrphanResult struct {
	Dir   string
	Files int
	Bytes int64
}

// WipeResult counts the top-level card entries removed and left behind.
type WipeResult struct {
	Removed int
	Failed  int
}

// Progress receives cumulative copied bytes against the rescue total.
type Progress func(copied, total int64)

// Option configures a Verifier.
type Option func(*Verifier)

// WithJournal records rescue copies and wipes in the run journal.
func WithJournal(store *journal.Store) Option {
	return func(v *Verifier) { v.journal = store }
}

// Verifier checks card contents against the media pool before a wipe.
type Verifier struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Store
}

// New constructs a verifier.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("verify requires config")
	}
	v := &Verifier{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "verify"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Inspect scans the card and splits its files into those already present in
// any pool and those the pool has never seen. Nothing is written.
func (v *Verifier) Inspect(ctx context.Context, user, source string) (*Report, error) {
	if source == "" {
		source = v.cfg.Paths.DailiesRoll
	}
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			if mounted, merr := fileutil.Mounted(source); merr == nil && !mounted {
				return nil, services.Wrap(services.ErrVolumeNotMounted, "verify", "inspect",
					fmt.Sprintf("card volume for %s is not mounted", source), nil)
			}
			return nil, services.Wrap(services.ErrNotFound, "verify", "inspect",
				fmt.Sprintf("card path %s not found", source), nil)
		}
		return nil, services.Wrap(nil, "verify", "inspect", fmt.Sprintf("stat %s", source), err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "verify", "inspect",
			fmt.Sprintf("card path %s is not a directory", source), nil)
	}

	files, err := mediaindex.ListFiles(source)
	if err != nil {
		return nil, fmt.Errorf("scan card: %w", err)
	}
	if len(files) == 0 {
		return nil, services.Wrap(services.ErrValidation, "verify", "inspect",
			"card has no files after skipping hidden entries", nil)
	}

	v.logger.Info("indexing pools",
		logging.String(logging.FieldUser, user),
		logging.String("root", v.cfg.Paths.MediaPoolRoot))
	index, err := mediaindex.Build(v.cfg.Paths.MediaPoolRoot)
	if err != nil {
		return nil, fmt.Errorf("index media pool: %w", err)
	}

	report := &Report{
		User:       user,
		Source:     source,
		Files:      files,
		TotalBytes: mediaindex.TotalSize(files),
		Indexed:    index.Instances(),
		OrphanDir:  filepath.Join(v.cfg.MediaPoolUser(user), OrphanDirName),
	}
	dups, uniques := mediaindex.Diff(files, index)
	for _, dup := range dups {
		report.Present = append(report.Present, dup.Record)
	}
	report.Missing = uniques
	report.MissingBytes = mediaindex.TotalSize(uniques)

	v.logger.Info("card verified",
		logging.Int("files", len(report.Files)),
		logging.Int("present", len(report.Present)),
		logging.Int("missing", len(report.Missing)))
	return report, nil
}

// CopyMissing rescues the unmatched files into the user's _orphan directory.
// The card layout is deliberately flattened; basename collisions get a
// __dupN suffix so nothing is overwritten.
func (v *Verifier) CopyMissing(ctx context.Context, report *Report, progress Progress) (*OrphanResult, error) {
	if len(report.Missing) == 0 {
		return nil, services.Wrap(services.ErrValidation, "verify", "orphan",
			"no missing files to copy", nil)
	}
	if err := os.MkdirAll(report.OrphanDir, 0o755); err != nil {
		return nil, fmt.Errorf("create orphan dir %s: %w", report.OrphanDir, err)
	}

	runID := v.beginJournal(ctx, report.User, fmt.Sprintf("orphan %d files", len(report.Missing)))

	total := report.MissingBytes
	var copied int64
	for _, rec := range report.Missing {
		if err := ctx.Err(); err != nil {
			v.finishJournal(runID, err)
			return nil, err
		}
		target := orphanTarget(report.OrphanDir, rec.Name)
		err := fileutil.CopyFilePreserve(rec.Path, target, func(n int64) {
			copied += n
			if progress != nil {
				progress(copied, total)
			}
		})
		if err != nil {
			err = fmt.Errorf("copy %s: %w", rec.Name, err)
			v.finishJournal(runID, err)
			return nil, err
		}
	}

	v.finishJournal(runID, nil)
	v.logger.Info("orphan copy complete",
		logging.String(logging.FieldUser, report.User),
		logging.Int("files", len(report.Missing)),
		logging.Int64("bytes", copied))
	return &OrphanResult{Dir: report.OrphanDir, Files: len(report.Missing), Bytes: copied}, nil
}

// Wipe deletes everything at the top level of the card directory, hidden
// entries included, leaving the directory itself in place. It refuses while
// any card file is still missing from the pool; removal failures are logged
// and counted rather than aborting mid-wipe.
func (v *Verifier) Wipe(ctx context.Context, report *Report) (*WipeResult, error) {
	if !report.Safe() {
		return nil, services.Wrap(services.ErrValidation, "verify", "wipe",
			fmt.Sprintf("%d files on the card are missing from the pool", len(report.Missing)), nil)
	}

	entries, err := os.ReadDir(report.Source)
	if err != nil {
		return nil, fmt.Errorf("read card %s: %w", report.Source, err)
	}

	runID := v.beginJournal(ctx, report.User, fmt.Sprintf("wipe %s", report.Source))

	res := &WipeResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			v.finishJournal(runID, err)
			return res, err
		}
		target := filepath.Join(report.Source, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			v.logger.Warn("could not remove card entry",
				logging.String("path", target), logging.Error(err))
			res.Failed++
			continue
		}
		res.Removed++
	}

	v.finishJournal(runID, nil)
	v.logger.Info("card wiped",
		logging.String("source", report.Source),
		logging.Int("removed", res.Removed),
		logging.Int("failed", res.Failed))
	return res, nil
}

// orphanTarget picks a non-colliding basename inside the orphan directory.
func orphanTarget(dir, name string) string {
	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); errors.Is(err, fs.ErrNotExist) {
		return target
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		alt := filepath.Join(dir, fmt.Sprintf("%s__dup%d%s", stem, i, ext))
		if _, err := os.Lstat(alt); errors.Is(err, fs.ErrNotExist) {
			return alt
		}
	}
}

func (v *Verifier) beginJournal(ctx context.Context, user, detail string) string {
	if v.journal == nil {
		return ""
	}
	id, err := v.journal.Begin(ctx, journal.KindVerify, user, detail)
	if err != nil {
		v.logger.Warn("journal begin failed", logging.Error(err))
		return ""
	}
	return id
}

func (v *Verifier) finishJournal(id string, runErr error) {
	if v.journal == nil || id == "" {
		return
	}
	if err := v.journal.Finish(context.Background(), id, runErr); err != nil {
		v.logger.Warn("journal finish failed", logging.Error(err))
	}
}

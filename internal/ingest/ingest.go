package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mediapool/internal/bins"
	"mediapool/internal/config"
	"mediapool/internal/fileutil"
	"mediapool/internal/journal"
	"mediapool/internal/logging"
	"mediapool/internal/mediaindex"
	"mediapool/internal/services"
)

// Selection says which of the scanned card files get copied.
type Selection int

const (
	// CopyUnique copies only files absent from every pool.
	CopyUnique Selection = iota + 1
	// CopyAll copies the whole card regardless of duplicates.
	CopyAll
)

// BinStat summarizes one existing bin for display.
type BinStat struct {
	Name  string
	Files int
	Bytes int64
}

// Plan is the computed offload state before any copy happens.
type Plan struct {
	User       string
	Source     string
	PoolDir    string
	Recent     []BinStat
	Suggested  string
	Files      []mediaindex.Record
	Duplicates []mediaindex.Duplicate
	Uniques    []mediaindex.Record
	TotalBytes int64
	Indexed    int
}

// BinName combines the suggested name with an optional operator suffix.
func (p *Plan) BinName(suffix string) (string, error) {
	if err := bins.ValidateSuffix(suffix); err != nil {
		return "", err
	}
	if suffix == "" {
		return p.Suggested, nil
	}
	return p.Suggested + "_" + suffix, nil
}

// Result summarizes a finished offload.
type Result struct {
	Dest  string
	Files int
	Bytes int64
}

// Progress receives copied and total byte counts as the offload advances.
type Progress func(copied, total int64)

// Option configures the ingestor.
type Option func(*Ingestor)

// WithJournal records offloads in the given store, best-effort.
func WithJournal(store *journal.Store) Option {
	return func(i *Ingestor) {
		i.journal = store
	}
}

// WithClock overrides the bin-date source.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) {
		if now != nil {
			i.now = now
		}
	}
}

// Ingestor offloads camera cards into dated media pool bins.
type Ingestor struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Store
	now     func() time.Time
}

// New constructs an ingestor.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Ingestor, error) {
	if cfg == nil {
		return nil, errors.New("ingest requires config")
	}
	ing := &Ingestor{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "ingest"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing, nil
}

// Plan scans the card and every pool, producing the duplicate split and the
// suggested bin name. Nothing is written except the user's pool directory.
func (i *Ingestor) Plan(ctx context.Context, user, source string) (*Plan, error) {
	if source == "" {
		source = i.cfg.Paths.DailiesRoll
	}
	info, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			if mounted, merr := fileutil.Mounted(source); merr == nil && !mounted {
				return nil, services.Wrap(services.ErrVolumeNotMounted, "ingest", "plan",
					fmt.Sprintf("card volume for %s is not mounted", source), nil)
			}
			return nil, services.Wrap(services.ErrNotFound, "ingest", "plan",
				fmt.Sprintf("card path %s not found", source), nil)
		}
		return nil, services.Wrap(nil, "ingest", "plan", fmt.Sprintf("stat %s", source), err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "ingest", "plan",
			fmt.Sprintf("card path %s is not a directory", source), nil)
	}

	poolDir := i.cfg.MediaPoolUser(user)
	if err := os.MkdirAll(poolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pool dir %s: %w", poolDir, err)
	}

	existing, err := bins.ListExisting(poolDir)
	if err != nil {
		return nil, fmt.Errorf("list bins: %w", err)
	}
	plan := &Plan{
		User:    user,
		Source:  source,
		PoolDir: poolDir,
		Recent:  recentStats(existing, 3),
	}

	parsed := make([]bins.Parsed, 0, len(existing))
	for _, b := range existing {
		parsed = append(parsed, b.Parsed)
	}
	plan.Suggested = bins.SuggestNext(i.now().Format("20060102"), parsed)

	i.logger.Info("indexing pools for duplicates",
		logging.String(logging.FieldUser, user),
		logging.String("root", i.cfg.Paths.MediaPoolRoot))
	index, err := mediaindex.Build(i.cfg.Paths.MediaPoolRoot)
	if err != nil {
		return nil, fmt.Errorf("index media pool: %w", err)
	}
	plan.Indexed = index.Instances()

	files, err := mediaindex.ListFiles(source)
	if err != nil {
		return nil, fmt.Errorf("scan card: %w", err)
	}
	plan.Files = files
	plan.TotalBytes = mediaindex.TotalSize(files)
	plan.Duplicates, plan.Uniques = mediaindex.Diff(files, index)

	i.logger.Info("card scan complete",
		logging.Int("files", len(plan.Files)),
		logging.Int("duplicates", len(plan.Duplicates)),
		logging.Int("indexed", plan.Indexed))
	return plan, nil
}

// recentStats sizes up the newest bins for the pre-offload display.
func recentStats(existing []bins.Bin, n int) []BinStat {
	if len(existing) > n {
		existing = existing[len(existing)-n:]
	}
	stats := make([]BinStat, 0, len(existing))
	for _, b := range existing {
		stat := BinStat{Name: b.Name}
		if files, err := mediaindex.ListFiles(b.Path); err == nil {
			stat.Files = len(files)
			stat.Bytes = mediaindex.TotalSize(files)
		}
		stats = append(stats, stat)
	}
	return stats
}

// Execute copies the selected files into a fresh bin, preserving the card's
// directory layout and timestamps. The bin must not exist yet; offloads never
// merge into earlier bins.
func (i *Ingestor) Execute(ctx context.Context, plan *Plan, binName string, sel Selection, progress Progress) (*Result, error) {
	dest := filepath.Join(plan.PoolDir, binName)
	if err := bins.EnsureAvailable(dest); err != nil {
		return nil, err
	}

	var files []mediaindex.Record
	switch sel {
	case CopyUnique:
		if len(plan.Uniques) == 0 {
			return nil, services.Wrap(services.ErrValidation, "ingest", "copy",
				"no unique files to copy", nil)
		}
		files = plan.Uniques
	case CopyAll:
		files = plan.Files
	default:
		return nil, services.Wrap(services.ErrValidation, "ingest", "copy",
			fmt.Sprintf("unknown selection %d", sel), nil)
	}

	runID := i.beginJournal(ctx, plan.User, binName)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		err = fmt.Errorf("create bin %s: %w", dest, err)
		i.finishJournal(runID, err)
		return nil, err
	}

	total := mediaindex.TotalSize(files)
	var copied int64
	for _, rec := range files {
		if err := ctx.Err(); err != nil {
			i.finishJournal(runID, err)
			return nil, err
		}
		target := filepath.Join(dest, rec.Rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			err = fmt.Errorf("create %s: %w", filepath.Dir(target), err)
			i.finishJournal(runID, err)
			return nil, err
		}
		err := fileutil.CopyFilePreserve(rec.Path, target, func(n int64) {
			copied += n
			if progress != nil {
				progress(copied, total)
			}
		})
		if err != nil {
			err = fmt.Errorf("copy %s: %w", rec.Rel, err)
			i.finishJournal(runID, err)
			return nil, err
		}
	}

	i.finishJournal(runID, nil)
	i.logger.Info("offload complete",
		logging.String(logging.FieldUser, plan.User),
		logging.String(logging.FieldBin, binName),
		logging.Int("files", len(files)),
		logging.Int64("bytes", copied))
	return &Result{Dest: dest, Files: len(files), Bytes: copied}, nil
}

func (i *Ingestor) beginJournal(ctx context.Context, user, binName string) string {
	if i.journal == nil {
		return ""
	}
	id, err := i.journal.Begin(ctx, journal.KindIngest, user, binName)
	if err != nil {
		i.logger.Warn("journal begin failed", logging.Error(err))
		return ""
	}
	return id
}

func (i *Ingestor) finishJournal(id string, runErr error) {
	if i.journal == nil || id == "" {
		return
	}
	if err := i.journal.Finish(context.Background(), id, runErr); err != nil {
		i.logger.Warn("journal finish failed", logging.Error(err))
	}
}

package ingest_test

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediapool/internal/config"
	"mediapool/internal/ingest"
	"mediapool/internal/journal"
	"mediapool/internal/logging"
	"mediapool/internal/services"
	"mediapool/internal/testsupport"
)

func fixedClock() time.Time {
	return time.Date(2025, 9, 6, 14, 30, 0, 0, time.UTC)
}

// seedPools lays out two users' pools and a card with two duplicates (one in
// another user's pool) and one unique file.
func seedPools(t *testing.T, cfg *config.Config) (card string) {
	t.Helper()
	alice := filepath.Join(cfg.Paths.MediaPoolRoot, "ALICE")
	noah := filepath.Join(cfg.Paths.MediaPoolRoot, "NOAH")
	testsupport.WriteFile(t, filepath.Join(alice, "20250906_01", "clip1.mov"), 2048)
	testsupport.WriteFile(t, filepath.Join(alice, "20250906_02", "roll2.mov"), 512)
	testsupport.WriteFile(t, filepath.Join(noah, "20250905_01", "shared.mov"), 4096)

	card = cfg.Paths.DailiesRoll
	testsupport.WriteFile(t, filepath.Join(card, "DCIM", "clip1.mov"), 2048)
	testsupport.WriteFile(t, filepath.Join(card, "DCIM", "shared.mov"), 4096)
	testsupport.WriteFile(t, filepath.Join(card, "DCIM", "B", "new.mov"), 1024)
	testsupport.WriteFile(t, filepath.Join(card, ".Trashes", "junk.mov"), 99)
	testsupport.WriteFile(t, filepath.Join(card, "DCIM", "._clip1.mov"), 10)
	return card
}

func newIngestor(t *testing.T, cfg *config.Config, opts ...ingest.Option) *ingest.Ingestor {
	t.Helper()
	opts = append(opts, ingest.WithClock(fixedClock))
	ing, err := ingest.New(cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("ingest.New: %v", err)
	}
	return ing
}

func TestPlanScansAndSplits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	card := seedPools(t, cfg)
	ing := newIngestor(t, cfg)

	plan, err := ing.Plan(context.Background(), "ALICE", card)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Suggested != "20250906_03" {
		t.Fatalf("Suggested = %q, want 20250906_03", plan.Suggested)
	}
	if plan.Indexed != 3 {
		t.Fatalf("Indexed = %d, want 3", plan.Indexed)
	}
	if len(plan.Files) != 3 {
		t.Fatalf("Files = %d, want 3 (hidden entries excluded)", len(plan.Files))
	}
	if plan.TotalBytes != 2048+4096+1024 {
		t.Fatalf("TotalBytes = %d", plan.TotalBytes)
	}
	if len(plan.Duplicates) != 2 || len(plan.Uniques) != 1 {
		t.Fatalf("split = %d dups / %d uniques", len(plan.Duplicates), len(plan.Uniques))
	}
	if plan.Uniques[0].Name != "new.mov" {
		t.Fatalf("unique = %+v", plan.Uniques[0])
	}

	// shared.mov matches across users.
	var sharedMatches []string
	for _, dup := range plan.Duplicates {
		if dup.Record.Name == "shared.mov" {
			sharedMatches = dup.Matches
		}
	}
	if len(sharedMatches) != 1 || filepath.Base(filepath.Dir(filepath.Dir(sharedMatches[0]))) != "NOAH" {
		t.Fatalf("cross-user match = %v", sharedMatches)
	}

	if len(plan.Recent) != 2 {
		t.Fatalf("Recent = %+v", plan.Recent)
	}
	newest := plan.Recent[len(plan.Recent)-1]
	if newest.Name != "20250906_02" || newest.Files != 1 || newest.Bytes != 512 {
		t.Fatalf("newest bin stat = %+v", newest)
	}
}

func TestPlanMissingCard(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ing := newIngestor(t, cfg)
	_, err := ing.Plan(context.Background(), "ALICE", filepath.Join(testsupport.BaseDir(cfg), "no-card"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("Plan on missing card = %v, want not-found error", err)
	}
}

func TestBinName(t *testing.T) {
	plan := &ingest.Plan{Suggested: "20250906_03"}
	name, err := plan.BinName("")
	if err != nil || name != "20250906_03" {
		t.Fatalf("BinName(\"\") = %q, %v", name, err)
	}
	name, err = plan.BinName("interviews")
	if err != nil || name != "20250906_03_interviews" {
		t.Fatalf("BinName(interviews) = %q, %v", name, err)
	}
	if _, err := plan.BinName("bad suffix!"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("BinName with bad suffix = %v, want validation error", err)
	}
}

func TestExecuteUniqueOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	card := seedPools(t, cfg)
	ing := newIngestor(t, cfg)

	plan, err := ing.Plan(context.Background(), "ALICE", card)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	var lastCopied, lastTotal int64
	res, err := ing.Execute(context.Background(), plan, "20250906_03", ingest.CopyUnique, func(copied, total int64) {
		lastCopied, lastTotal = copied, total
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Files != 1 || res.Bytes != 1024 {
		t.Fatalf("result = %+v", res)
	}
	if lastCopied != 1024 || lastTotal != 1024 {
		t.Fatalf("progress = %d/%d", lastCopied, lastTotal)
	}

	// Card layout is preserved under the new bin.
	copied := filepath.Join(plan.PoolDir, "20250906_03", "DCIM", "B", "new.mov")
	if _, err := os.Stat(copied); err != nil {
		t.Fatalf("expected copied file: %v", err)
	}
	dupPath := filepath.Join(plan.PoolDir, "20250906_03", "DCIM", "clip1.mov")
	if _, err := os.Stat(dupPath); !os.IsNotExist(err) {
		t.Fatalf("duplicate copied despite unique-only selection: %v", err)
	}

	// A second offload into the same bin must refuse.
	if _, err := ing.Execute(context.Background(), plan, "20250906_03", ingest.CopyUnique, nil); !errors.Is(err, services.ErrDestinationExists) {
		t.Fatalf("second Execute = %v, want destination-exists error", err)
	}
}

func TestExecuteCopyAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	card := seedPools(t, cfg)
	ing := newIngestor(t, cfg)

	plan, err := ing.Plan(context.Background(), "ALICE", card)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	res, err := ing.Execute(context.Background(), plan, "20250906_03", ingest.CopyAll, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Files != 3 || res.Bytes != 2048+4096+1024 {
		t.Fatalf("result = %+v", res)
	}
	for _, rel := range []string{"DCIM/clip1.mov", "DCIM/shared.mov", "DCIM/B/new.mov"} {
		if _, err := os.Stat(filepath.Join(res.Dest, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
	}
}

func TestExecuteNoUniques(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MediaPoolRoot, "ALICE", "20250906_01", "only.mov"), 100)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.DailiesRoll, "only.mov"), 100)
	ing := newIngestor(t, cfg)

	plan, err := ing.Plan(context.Background(), "ALICE", cfg.Paths.DailiesRoll)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := ing.Execute(context.Background(), plan, "20250906_02", ingest.CopyUnique, nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Execute with no uniques = %v, want validation error", err)
	}
}

func TestWriteDuplicateReport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	card := seedPools(t, cfg)
	ing := newIngestor(t, cfg)

	plan, err := ing.Plan(context.Background(), "ALICE", card)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	path, err := ing.WriteDuplicateReport(plan, "20250906_03")
	if err != nil {
		t.Fatalf("WriteDuplicateReport: %v", err)
	}
	if filepath.Base(path) != "duplicate_report_20250906_03.csv" {
		t.Fatalf("report name = %q", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "source_name" || rows[0][3] != "existing_paths" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][0] != "clip1.mov" || rows[1][1] != "2048" {
		t.Fatalf("first row = %v", rows[1])
	}
}

func TestExecuteRecordsJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithJournal())
	store := testsupport.MustOpenJournal(t, cfg)
	card := seedPools(t, cfg)
	ing := newIngestor(t, cfg, ingest.WithJournal(store))

	plan, err := ing.Plan(context.Background(), "ALICE", card)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := ing.Execute(context.Background(), plan, "20250906_03", ingest.CopyAll, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	runs, err := store.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 1 || runs[0].Kind != journal.KindIngest || runs[0].Detail != "20250906_03" {
		t.Fatalf("journal rows = %+v", runs)
	}
	if runs[0].Status != journal.StatusDone {
		t.Fatalf("status = %q", runs[0].Status)
	}
}

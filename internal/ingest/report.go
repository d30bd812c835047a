package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteDuplicateReport records every duplicate the plan found as CSV under
// the user's report directory. The report is written before the operator
// decides what to copy, so an aborted offload still leaves the evidence.
func (i *Ingestor) WriteDuplicateReport(plan *Plan, binName string) (string, error) {
	reportsDir := i.cfg.ReportsDir(plan.PoolDir)
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(reportsDir, "duplicate_report_"+binName+".csv")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"source_name", "source_size", "source_path", "existing_paths"}); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}
	for _, dup := range plan.Duplicates {
		row := []string{
			dup.Record.Name,
			strconv.FormatInt(dup.Record.Size, 10),
			dup.Record.Path,
			strings.Join(dup.Matches, " | "),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush report: %w", err)
	}
	return path, nil
}

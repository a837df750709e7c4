// Package report renders a driver.Report as the user-visible exit-time
// summary: unique-path count, solver time, achieved packet-sequence
// depth, coverage percentage, and, if any errors were found, the
// test-case directory they were written to.
package report

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gitrdm/symconcolic/pkg/driver"
)

// Print logs r through log at Info level (or Warn if errors were found),
// as a single structured record with one attribute per field, so it
// survives both human terminals and log aggregation.
func Print(log *slog.Logger, r driver.Report) {
	attrs := []any{
		"unique_paths", r.UniquePaths,
		"negated_branches", r.NegatedBranches,
		"max_pkt_seq_len", r.MaxPktSeqLen,
		"solver_time", r.SolverTime,
		"solver_queries", r.SolverQueries,
		"coverage_percent", r.CoveragePercent,
		"elapsed", r.Elapsed,
		"budget_expired", r.BudgetExpired,
	}

	if r.ErrorCount > 0 {
		attrs = append(attrs, "error_count", r.ErrorCount, "error_dir", r.ErrorDir)
		log.Warn("symbolic exploration finished with errors", attrs...)
		return
	}

	log.Info("symbolic exploration finished", attrs...)
}

// WriteCoverage writes the coverage summary to path, overwriting any
// previous report. The engine dumps this at a fixed location on
// termination so external tooling can pick it up without parsing logs.
func WriteCoverage(path string, r driver.Report) error {
	text := fmt.Sprintf(
		"coverage_percent=%.2f\nunique_paths=%d\nnegated_branches=%d\nmax_pkt_seq_len=%d\nerrors=%d\n",
		r.CoveragePercent, r.UniquePaths, r.NegatedBranches, r.MaxPktSeqLen, r.ErrorCount)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("report: write coverage %s: %w", path, err)
	}
	return nil
}

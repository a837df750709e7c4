// Command symconcolic drives the bounded concolic-execution engine
// against one of the reference fakevp scenarios. It exists to give the
// driver loop a runnable entry point; the real instruction-set simulator
// and SMT backend are external collaborators this binary necessarily
// stands in for with reference implementations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gitrdm/symconcolic/internal/parallel"
	"github.com/gitrdm/symconcolic/pkg/driver"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/fakevp"
	"github.com/gitrdm/symconcolic/pkg/report"
	"github.com/gitrdm/symconcolic/pkg/smt"
	"github.com/gitrdm/symconcolic/pkg/store"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// scenarios maps the -scenario flag to a fakevp builder and the byte
// widths of the symbolic arrays it reads, which the enumerative backend
// needs declared up front.
var scenarios = map[string]struct {
	build  func() *fakevp.Simulator
	arrays map[string]int
}{
	"single-byte": {fakevp.SingleByte, map[string]int{"x": 1}},
	"nested":      {fakevp.NestedBranches, map[string]int{"a": 1, "b": 1}},
	"assume":      {fakevp.AssumeThenBranch, map[string]int{"a": 1}},
	"early-exit":  {fakevp.TwoPacketEarlyExit, map[string]int{"p1": 1, "p2": 1}},
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("symconcolic", flag.ContinueOnError)
	scenario := fs.String("scenario", "single-byte", "reference fakevp scenario to explore (single-byte, nested, assume, early-exit)")
	solverName := fs.String("solver", "enum", "SMT backend to use (only \"enum\", the bounded-enumeration reference backend, is shipped)")
	outDir := fs.String("out", "", "directory for persisted test cases (defaults to a fresh temp directory)")
	maxPktSeq := fs.Uint("max-pkt-seq", 3, "fallback packet-sequence upper bound used only when SYMEX_MAXPKTSEQ is unset (0 = unbounded)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	scn, ok := scenarios[*scenario]
	if !ok {
		fmt.Fprintf(os.Stderr, "symconcolic: unknown scenario %q\n", *scenario)
		return 2
	}
	if *solverName != "enum" {
		fmt.Fprintf(os.Stderr, "symconcolic: unknown solver %q\n", *solverName)
		return 2
	}

	log := slog.Default()
	cfg := configFromEnv()
	if _, explicit := os.LookupEnv("SYMEX_MAXPKTSEQ"); !explicit {
		cfg.MaxPktSeq = uint32(*maxPktSeq)
	}

	dir := *outDir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "symconcolic-")
		if err != nil {
			log.Error("creating output directory", "error", err)
			return 1
		}
	}
	cfg.OutputDir = dir

	backend := smt.NewEnumBackend()
	for name, width := range scn.arrays {
		backend.Declare(name, width)
	}
	solver := smt.New(backend)
	solver.SetTimeout(cfg.SolverTimeout)

	rng := rand.New(rand.NewSource(1))
	tr := trace.New(solver, rng)
	ectx := execctx.New(rng)
	execctx.Init(ectx)

	storeDir, err := store.NewDir(cfg.OutputDir)
	if err != nil {
		log.Error("preparing test-case directory", "error", err)
		return 1
	}

	sim := scn.build()

	d := driver.New(sim, sim, tr, ectx, storeDir, cfg, rng, log)

	sup := parallel.NewSupervisor(context.Background(), cfg.TimeBudget)
	defer sup.Stop()

	rep, err := d.Run(sup.Context())
	if err != nil {
		log.Error("driver run failed", "error", err)
		return 1
	}
	rep.BudgetExpired = rep.BudgetExpired || sup.Expired()

	report.Print(log, rep)
	if err := report.WriteCoverage(coverageReportPath(), rep); err != nil {
		log.Error("writing coverage report", "error", err)
		return 1
	}

	// The auto-created test-case directory is kept only when it holds
	// error cases worth inspecting; an explicit -out directory is always
	// the caller's to manage.
	if *outDir == "" && rep.ErrorCount == 0 {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("removing clean test-case directory", "error", err)
		}
	}
	return 0
}

// coverageReportPath is the fixed location the coverage summary is
// written to on termination.
func coverageReportPath() string {
	return filepath.Join(os.TempDir(), "symconcolic-coverage")
}

// configFromEnv reads the SYMEX_* environment variables into a
// driver.Config. Malformed values are ignored in favor of the
// zero value (unbounded/disabled), matching the "never crashes the
// engine" spirit of the rest of the error-handling design.
func configFromEnv() driver.Config {
	var cfg driver.Config

	if v, ok := os.LookupEnv("SYMEX_TIMEBUDGET"); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TimeBudget = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := os.LookupEnv("SYMEX_ERREXIT"); ok {
		cfg.ErrExit = isTruthy(v)
	}
	if v, ok := os.LookupEnv("SYMEX_MAXPKTSEQ"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.MaxPktSeq = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("SYMEX_TIMEOUT"); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SolverTimeout = time.Duration(secs * float64(time.Second))
		}
	}
	cfg.TestCasePath = os.Getenv("SYMEX_TESTCASE")

	return cfg
}

func isTruthy(v string) bool {
	switch v {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

package driver_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/driver"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/fakevp"
	"github.com/gitrdm/symconcolic/pkg/smt"
	"github.com/gitrdm/symconcolic/pkg/store"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

func newDriver(t *testing.T, sim *fakevp.Simulator, arrays map[string]int, cfg driver.Config) *driver.Driver {
	t.Helper()
	backend := smt.NewEnumBackend()
	for name, width := range arrays {
		backend.Declare(name, width)
	}
	solver := smt.New(backend)
	rng := rand.New(rand.NewSource(1))
	tr := trace.New(solver, rng)
	ectx := execctx.New(rng)

	dir, err := store.NewDir(t.TempDir())
	require.NoError(t, err)

	cfg.OutputDir = dir.Root()
	if cfg.MaxPktSeq == 0 {
		cfg.MaxPktSeq = 1
	}

	return driver.New(sim, sim, tr, ectx, dir, cfg, rng, nil)
}

func TestDriverSingleByteDiscoversHostError(t *testing.T) {
	sim := fakevp.SingleByte()
	d := newDriver(t, sim, map[string]int{"x": 1}, driver.Config{})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, rep.ErrorCount, 0)
	require.NotEmpty(t, rep.ErrorDir)
}

func TestDriverErrExitStopsAfterFirstHostError(t *testing.T) {
	sim := fakevp.SingleByte()
	d := newDriver(t, sim, map[string]int{"x": 1}, driver.Config{ErrExit: true})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, rep.ErrorCount)
}

func TestDriverNestedBranchesDiscoversNewPaths(t *testing.T) {
	sim := fakevp.NestedBranches()
	d := newDriver(t, sim, map[string]int{"a": 1, "b": 1}, driver.Config{})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.GreaterOrEqual(t, rep.UniquePaths, 1)
}

func TestDriverAssumeThenBranchNeverReportsViolatingSeed(t *testing.T) {
	sim := fakevp.AssumeThenBranch()
	d := newDriver(t, sim, map[string]int{"a": 1}, driver.Config{})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rep.ErrorCount)
}

func TestDriverTwoPacketEarlyExitRunsWithoutHostError(t *testing.T) {
	sim := fakevp.TwoPacketEarlyExit()
	d := newDriver(t, sim, map[string]int{"p1": 1, "p2": 1}, driver.Config{MaxPktSeq: 2})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rep.ErrorCount)
}

func TestDriverReplayModeReproducesStoredTestCase(t *testing.T) {
	dirPath := t.TempDir()
	dir, err := store.NewDir(dirPath)
	require.NoError(t, err)

	path, err := dir.SaveError(1, execctx.Store{"x": {0x42}})
	require.NoError(t, err)

	backend := smt.NewEnumBackend()
	backend.Declare("x", 1)
	solver := smt.New(backend)
	rng := rand.New(rand.NewSource(1))
	tr := trace.New(solver, rng)
	ectx := execctx.New(rng)

	sim := fakevp.SingleByte()
	d := driver.New(sim, sim, tr, ectx, dir, driver.Config{TestCasePath: path}, rng, nil)

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, rep.ErrorCount) // replay mode doesn't re-tally errors, only logs
}

// stuckSim never increases coverage but keeps materializing fresh tree
// nodes: each run branches on every bit of x, so distinct witnesses take
// distinct paths and tree exhaustion alone would take hundreds of runs.
// The stuckness heuristic has to cut enumeration off first.
type stuckSim struct {
	ectx *execctx.Context
	tr   *trace.Trace
	runs int
}

func (s *stuckSim) Reset(ectx *execctx.Context, tr *trace.Trace) { s.ectx, s.tr = ectx, tr }

func (s *stuckSim) Run(ctx context.Context, k uint32) (driver.RunResult, error) {
	s.runs++
	x := s.ectx.GetSymbolicBytes("x", 1)
	xv, _ := concolic.Width64(x)
	for i := uint(0); i < 8; i++ {
		bit := concolic.Extract(x, i, 1)
		s.tr.Add(xv>>i&1 == 1, bit.Symbolic, uint64(0x100+i), k)
	}
	return driver.RunResult{ProcessedPackets: k}, nil
}

func (s *stuckSim) Count() int { return 1 }

func TestDriverStuckAdvancesWithoutExhaustingTree(t *testing.T) {
	backend := smt.NewEnumBackend()
	backend.Declare("x", 1)
	solver := smt.New(backend)
	rng := rand.New(rand.NewSource(1))
	tr := trace.New(solver, rng)
	ectx := execctx.New(rng)

	dir, err := store.NewDir(t.TempDir())
	require.NoError(t, err)

	sim := &stuckSim{}
	d := driver.New(sim, sim, tr, ectx, dir, driver.Config{MaxPktSeq: 1, OutputDir: dir.Root()}, rng, nil)

	_, err = d.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 50, sim.runs, "50 runs without new coverage must declare the level stuck")
}

func TestReportIncludesSolverStats(t *testing.T) {
	sim := fakevp.SingleByte()
	d := newDriver(t, sim, map[string]int{"x": 1}, driver.Config{})

	rep, err := d.Run(context.Background())
	require.NoError(t, err)
	require.Greater(t, rep.SolverQueries, 0)
}

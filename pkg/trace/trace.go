// Package trace records branch conditions observed during one concolic
// run, maintains the global execution tree of every branch ever observed
// across all runs, and drives path enumeration: selecting an unnegated
// branch, negating it, and asking the solver for an assignment that
// reaches the opposite direction.
package trace

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
	"github.com/gitrdm/symconcolic/pkg/smt"
)

// ErrAssumptionAdded is the signal Assume raises when it introduces a new
// predicate into the persistent assumption set. It is the only non-local
// control transfer in the engine; it is realized as an ordinary error
// return rather than a panic so it cannot escape to user code; callers
// (ultimately the driver) must check for it explicitly and reseed.
var ErrAssumptionAdded = errors.New("trace: assumption added")

// ErrExhausted is returned by FindNewPath when the tree exposes no
// unnegated tail to attempt.
var ErrExhausted = errors.New("trace: tree exhausted")

// Solver returns the backing solver facade, so callers outside this
// package (the driver's exit-time report) can read its accumulated
// query-time statistics without the Trace needing to re-expose them.
func (t *Trace) Solver() *smt.Solver { return t.solver }

// Stats summarizes a Trace for the engine's end-of-run report.
type Stats struct {
	UniquePaths     int
	NegatedBranches int
	MaxDepth        int
}

// Trace is the per-process tracer: it owns the global execution tree, the
// current run's constraint set, and the assumption set that persists
// across runs. It is not safe for concurrent use; the engine is
// single-threaded.
type Trace struct {
	solver *smt.Solver
	rng    *rand.Rand

	root    *node
	current *node

	runConstraints []*bitvector.Expr
	assumptions    []*bitvector.Expr

	uniquePaths int
}

// New creates a Trace backed by solver. rng, if nil, defaults to a
// time-seeded source; tests should pass a deterministic one.
func New(solver *smt.Solver, rng *rand.Rand) *Trace {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	t := &Trace{solver: solver, rng: rng, root: newNode()}
	t.current = t.root
	return t
}

// Reset clears the current run's constraint set and rewinds the current
// node pointer to the root. Must be called at the start of every run; the
// tree and the assumption set persist across it.
func (t *Trace) Reset() {
	t.runConstraints = nil
	t.current = t.root
}

// Add is called by the simulator at every observed branch. It appends
// "predicate == cond" to the current run's constraint set, populates the
// current node with a fresh Branch if it was a placeholder, and descends
// into the child cond indicates, allocating a placeholder there if needed.
func (t *Trace) Add(cond bool, predicate *bitvector.Expr, pc uint64, pktSeqLen uint32) {
	condExpr := boolConstraint(predicate, cond)
	t.runConstraints = append(t.runConstraints, condExpr)

	if t.current.isPlaceholder() {
		t.current.value = &Branch{Predicate: predicate, Addr: pc, PktSeqLen: pktSeqLen}
	}

	if cond {
		if t.current.trueChild == nil {
			t.current.trueChild = newNode()
		}
		t.current = t.current.trueChild
	} else {
		if t.current.falseChild == nil {
			t.current.falseChild = newNode()
		}
		t.current = t.current.falseChild
	}
}

func boolConstraint(predicate *bitvector.Expr, cond bool) *bitvector.Expr {
	want := bitvector.ConstU64(1, 0)
	if cond {
		want = bitvector.ConstU64(1, 1)
	}
	return bitvector.Eq(predicate, want)
}

// Assume appends predicate to the persistent assumption set and returns
// ErrAssumptionAdded so the driver boundary can reseed. It does not affect
// the tree. If predicate is already present in the assumption set
// (structurally, by rendered text) this is a no-op that still reports
// success without double-registering the constraint.
func (t *Trace) Assume(predicate *bitvector.Expr) error {
	text := predicate.String()
	for _, a := range t.assumptions {
		if a.String() == text {
			return nil
		}
	}
	t.assumptions = append(t.assumptions, predicate)
	return ErrAssumptionAdded
}

// GetQuery returns a query whose constraints are the current run's
// constraint set and whose goal is predicate.
func (t *Trace) GetQuery(predicate *bitvector.Expr) smt.Query {
	return smt.Query{Constraints: append([]*bitvector.Expr(nil), t.runConstraints...), Goal: predicate}
}

// FindNewPath repeatedly samples an unnegated tail from the tree at or
// above packet-sequence bound k, builds a query negating that tail's
// condition, and asks the solver for an assignment, looping until SAT or
// until the tree exposes no more unnegated tails at all, at which point it
// returns ErrExhausted.
func (t *Trace) FindNewPath(ctx context.Context, k uint32) (smt.Assignment, error) {
	for {
		var path Path
		if !t.root.randomUnnegated(t.rng, k, &path) {
			return nil, ErrExhausted
		}

		query := t.newQuery(path)
		assign, err := t.solver.GetAssignment(ctx, query)
		if err == nil {
			t.uniquePaths++
			return assign, nil
		}
		if !errors.Is(err, smt.ErrNoAssignment) {
			return nil, err
		}
		// UNSAT or timeout at this tail: it has still been marked
		// WasNegated by newQuery, so the next sample will pick a
		// different tail.
	}
}

// newQuery builds the query for attempting to negate path's tail: the
// assumption set plus every non-tail branch condition along path,
// asking for the negation of the tail condition. Marks the tail's
// WasNegated exactly once, before solving, regardless of whether the
// resulting query turns out SAT, since the engine must never attempt to
// flip the same branch twice.
func (t *Trace) newQuery(path Path) smt.Query {
	constraints := append([]*bitvector.Expr(nil), t.assumptions...)

	tailIdx := len(path) - 1
	for i, elem := range path {
		cond := boolConstraint(elem.Branch.Predicate, elem.Dir)
		if i < tailIdx {
			constraints = append(constraints, cond)
			continue
		}

		elem.Branch.WasNegated = true
		negated := boolConstraint(elem.Branch.Predicate, !elem.Dir)
		return smt.Query{Constraints: constraints, Goal: negated}
	}

	panic("trace: newQuery called with empty path")
}

// FromAssume solves for an assignment that merely satisfies the
// assumption set, used when a new assumption was just added and the
// driver must reseed the next run from scratch.
func (t *Trace) FromAssume(ctx context.Context) (smt.Assignment, error) {
	goal := bitvector.ConstU64(1, 1)
	return t.solver.GetAssignment(ctx, smt.Query{Constraints: t.assumptions, Goal: goal})
}

// GetStore converts a solver assignment into a ConcreteStore.
func (t *Trace) GetStore(assign smt.Assignment) map[string][]byte {
	store := make(map[string][]byte, len(assign))
	for name, bytes := range assign {
		store[name] = append([]byte(nil), bytes...)
	}
	return store
}

// Stats reports the running totals the engine prints at exit.
func (t *Trace) Stats() Stats {
	s := Stats{UniquePaths: t.uniquePaths}
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		if n == nil || n.isPlaceholder() {
			return
		}
		if depth > s.MaxDepth {
			s.MaxDepth = depth
		}
		if n.value.WasNegated {
			s.NegatedBranches++
		}
		walk(n.trueChild, depth+1)
		walk(n.falseChild, depth+1)
	}
	walk(t.root, 0)
	return s
}

// Close releases the execution tree iteratively (BFS), never using stack
// space proportional to the tree's depth.
func (t *Trace) Close() {
	freeTree(t.root)
	t.root = nil
	t.current = nil
}

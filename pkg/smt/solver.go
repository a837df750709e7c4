// Package smt is the facade between the concolic engine and a black-box
// SMT backend. The engine never depends on a particular solver's API;
// it builds a Query (a set of constraints plus a goal expression) and
// asks a Backend for SAT/UNSAT, receiving an Assignment on SAT.
//
// Backend is deliberately minimal: completeness, query optimization and
// theory support are the backend's problem, not this package's; achieving
// SMT completeness is explicitly out of scope for the engine itself.
package smt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
	"github.com/gitrdm/symconcolic/pkg/concolic"
)

// ErrNoAssignment is returned whenever a query could not be satisfied,
// either because it is actually UNSAT or because the backend gave up
// (timeout). Callers must not distinguish the two cases; the engine
// treats both as path exhaustion at the query's tail.
var ErrNoAssignment = errors.New("smt: no assignment")

// ErrSolverCrash wraps a hard backend failure (as opposed to UNSAT or
// timeout). Unlike ErrNoAssignment, this is fatal: it is expected to
// propagate to the top of the program.
var ErrSolverCrash = errors.New("smt: solver crashed")

// Assignment maps symbolic array name to a concrete byte vector, MSB-first,
// exactly the layout bitvector.Env expects.
type Assignment map[string][]byte

// Query bundles a conjunction of constraints with a single goal expression
// the backend must find a satisfying assignment for (or prove unsat).
// Every expression in a Query must be 1-bit wide.
type Query struct {
	Constraints []*bitvector.Expr
	Goal        *bitvector.Expr
}

// Backend is the black-box SMT/constraint solver the engine defers to.
// Implementations may be a real SMT solver bound over cgo/RPC, or, as
// shipped here, a bounded enumerative solver suitable for the engine's
// own tests.
type Backend interface {
	// Solve returns a satisfying assignment for q, or ErrNoAssignment if q
	// is unsat or the backend gives up within its configured timeout.
	Solve(ctx context.Context, q Query) (Assignment, error)
}

// Solver is the facade the rest of the engine talks to. It owns a Backend
// and the per-query timeout applied to every call into it.
type Solver struct {
	backend Backend
	timeout time.Duration

	mu        sync.Mutex
	solveTime time.Duration
	queries   int
}

// New wraps a Backend in a Solver facade.
func New(backend Backend) *Solver {
	return &Solver{backend: backend}
}

// SetTimeout sets the per-query wall-clock bound. A zero span means no
// timeout is applied.
func (s *Solver) SetTimeout(d time.Duration) {
	s.timeout = d
}

// Stats reports the accumulated wall-clock time spent inside the backend
// and the number of queries submitted, for the engine's exit-time report.
func (s *Solver) Stats() (elapsed time.Duration, queries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.solveTime, s.queries
}

// BVC builds a ConcolicValue. When name is non-empty it also creates a
// named symbolic array of the matching byte width, returning a value whose
// Symbolic side reads that array and whose Concrete side is value.
func (s *Solver) BVC(name string, width uint, value uint64) concolic.Value {
	if name == "" {
		return concolic.FromConst(width, value)
	}
	return concolic.FromSymbolic(name, width, value)
}

// BVCBytes lifts a concrete byte buffer into a purely concrete value. lsb
// selects whether buf[0] is the least- or most-significant byte.
func (s *Solver) BVCBytes(buf []byte, lsb bool) concolic.Value {
	return concolic.FromBytes(buf, lsb)
}

// BVCToBytes serializes the concrete side of v into a new n-byte buffer,
// in the byte order lsb selects.
func (s *Solver) BVCToBytes(v concolic.Value, n int, lsb bool) []byte {
	return concolic.Bytes(v, n, lsb)
}

// GetAssignment submits a query to the backend, applying the configured
// timeout. On SAT it returns the assignment; on UNSAT or timeout it
// returns ErrNoAssignment, which is the only error the engine recovers
// from locally. Any other error is wrapped in ErrSolverCrash and must be
// treated as fatal by the caller.
func (s *Solver) GetAssignment(ctx context.Context, q Query) (Assignment, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	assign, err := s.backend.Solve(ctx, q)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.solveTime += elapsed
	s.queries++
	s.mu.Unlock()

	switch {
	case err == nil:
		return assign, nil
	case errors.Is(err, ErrNoAssignment), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil, ErrNoAssignment
	default:
		return nil, fmt.Errorf("%w: %v", ErrSolverCrash, err)
	}
}

// EvalValue fetches one witness for goal under the given constraints and
// returns it as a full Assignment. It is a thin convenience over
// GetAssignment that builds the Query itself.
func (s *Solver) EvalValue(ctx context.Context, constraints []*bitvector.Expr, goal *bitvector.Expr) (Assignment, error) {
	return s.GetAssignment(ctx, Query{Constraints: constraints, Goal: goal})
}

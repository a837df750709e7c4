// Package memory implements the engine's concolic memory: a sparse,
// byte-addressable store keyed by concrete address. Loads and stores are
// byte-granular; absent bytes read back as concrete zero, and overlapping
// stores are last-writer-wins.
package memory

import (
	"context"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/smt"
)

// zeroByte is the concrete-and-symbolic-free default for unwritten bytes.
var zeroByte = concolic.FromConst(8, 0)

// Memory is a sparse byte-addressable concolic store, created by New. The
// zero value has no backing map and no solver, so Store and the
// symbolic-address operations need a Memory built by New.
type Memory struct {
	solver *smt.Solver
	bytes  map[uint64]concolic.Value
}

// New creates an empty memory backed by solver (used only for symbolic
// address concretization).
func New(solver *smt.Solver) *Memory {
	return &Memory{solver: solver, bytes: make(map[uint64]concolic.Value)}
}

// Load reads n bytes starting at addr and concatenates them MSB-first into
// a single value of width n*8.
func (m *Memory) Load(addr uint64, n int) concolic.Value {
	var result concolic.Value
	for i := 0; i < n; i++ {
		b := m.byteAt(addr + uint64(i))
		if i == 0 {
			result = b
		} else {
			result = concolic.Concat(result, b)
		}
	}
	return result
}

func (m *Memory) byteAt(addr uint64) concolic.Value {
	if v, ok := m.bytes[addr]; ok {
		return v
	}
	return zeroByte
}

// Store splits v into n bytes (MSB-first) and writes them starting at addr.
// Later stores to the same address always win over earlier ones.
func (m *Memory) Store(addr uint64, v concolic.Value, n int) {
	for i := 0; i < n; i++ {
		offset := uint(n-1-i) * 8
		m.bytes[addr+uint64(i)] = concolic.Extract(v, offset, 8)
	}
}

// Snapshot returns an independent clone of m's current contents: a
// shallow copy of the address map (concolic.Value entries are immutable,
// so sharing them is safe). Later writes to m do not affect the clone.
func (m *Memory) Snapshot() *Memory {
	clone := make(map[uint64]concolic.Value, len(m.bytes))
	for addr, v := range m.bytes {
		clone[addr] = v
	}
	return &Memory{solver: m.solver, bytes: clone}
}

// Restore replaces m's contents with a copy of snap's, in place. snap is
// left unchanged and can be restored from again.
func (m *Memory) Restore(snap *Memory) {
	m.bytes = make(map[uint64]concolic.Value, len(snap.bytes))
	for addr, v := range snap.bytes {
		m.bytes[addr] = v
	}
}

// LoadSymbolic concretizes addr by asking the solver for one witness
// consistent with constraints, then performs an ordinary Load at that
// concrete address. No fairness over alternative addresses is provided:
// the engine always takes the solver's first witness.
func (m *Memory) LoadSymbolic(ctx context.Context, addr concolic.Value, n int, constraints []*bitvector.Expr) (concolic.Value, error) {
	concrete, err := m.concretize(ctx, addr, constraints)
	if err != nil {
		return concolic.Value{}, err
	}
	return m.Load(concrete, n), nil
}

// StoreSymbolic is the symbolic-address counterpart to LoadSymbolic.
func (m *Memory) StoreSymbolic(ctx context.Context, addr concolic.Value, v concolic.Value, n int, constraints []*bitvector.Expr) error {
	concrete, err := m.concretize(ctx, addr, constraints)
	if err != nil {
		return err
	}
	m.Store(concrete, v, n)
	return nil
}

func (m *Memory) concretize(ctx context.Context, addr concolic.Value, constraints []*bitvector.Expr) (uint64, error) {
	if addr.Symbolic == nil {
		v, _ := concolic.Width64(addr)
		return v, nil
	}

	goal := bitvector.Eq(addr.Symbolic, bitvector.Const(addr.Width(), addr.Concrete.Value))
	assign, err := m.solver.GetAssignment(ctx, smt.Query{Constraints: constraints, Goal: goal})
	if err != nil {
		// Fall back to the concrete shadow: even if the solver could not
		// reproduce it under the current constraints, the concrete side is
		// always a valid witness for driving the concrete half of the run.
		v, _ := concolic.Width64(addr)
		return v, nil
	}

	env := bitvector.Env(assign)
	return bitvector.Eval(addr.Symbolic, env).Uint64(), nil
}

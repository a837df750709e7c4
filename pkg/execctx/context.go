// Package execctx implements the per-run symbolic-input source: it serves
// named symbolic byte arrays to the simulator, backed either by a
// concretization installed by the driver/solver for the upcoming run, or
// by fresh pseudo-random bytes when no seed is pending.
package execctx

import (
	"context"
	"math/rand"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// Store is engine-side representation of a solver assignment: a mapping
// from symbolic-array name to its concrete byte vector. Used both as the
// seed for an upcoming run and as the record of what the previous run
// actually consumed.
type Store map[string][]byte

// Clone returns a deep copy of s.
func (s Store) Clone() Store {
	c := make(Store, len(s))
	for k, v := range s {
		c[k] = append([]byte(nil), v...)
	}
	return c
}

// Empty reports whether the store has no entries.
func (s Store) Empty() bool { return len(s) == 0 }

// Context is the per-run assignment source. It is a process-wide
// singleton because the simulator's entry point cannot be parameterized;
// this package exposes that as an explicit, package-level value set once
// by Init and reset between tests by ResetForTest, rather than a hidden
// global struct.
type Context struct {
	nextRun Store
	lastRun Store
	rng     *rand.Rand
}

// New creates a fresh Context. rng, if nil, defaults to a math/rand
// source with the fixed seed 1; it is used only to synthesize inputs when
// no seed store is installed for a given name.
func New(rng *rand.Rand) *Context {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Context{nextRun: Store{}, lastRun: Store{}, rng: rng}
}

var global *Context

// Init installs ctx as the process-wide execution context.
func Init(ctx *Context) { global = ctx }

// Global returns the process-wide execution context installed by Init.
func Global() *Context { return global }

// ResetForTest clears the process-wide singleton; tests must call this
// between cases that each install their own Context.
func ResetForTest() { global = nil }

// GetSymbolicBytes serves the simulator's symbolic-input hook: it builds
// the same shape of value as smt.Solver.BVC(name, ...) would, seeded from
// this Context rather than directly from an assignment.
func (c *Context) GetSymbolicBytes(name string, n int) concolic.Value {
	var bytes []byte
	if seed, ok := c.nextRun[name]; ok {
		bytes = append([]byte(nil), seed...)
		if len(bytes) != n {
			// A mismatched seed is resized to n bytes, zero-padded.
			resized := make([]byte, n)
			copy(resized, bytes)
			bytes = resized
		}
		delete(c.nextRun, name)
	} else {
		bytes = make([]byte, n)
		c.rng.Read(bytes)
	}

	c.lastRun[name] = append([]byte(nil), bytes...)
	return concolic.FromSymbolicBytes(name, bytes)
}

// GetSymbolicWord is a 4-byte convenience wrapper over GetSymbolicBytes.
func (c *Context) GetSymbolicWord(name string) concolic.Value {
	return c.GetSymbolicBytes(name, 4)
}

// GetSymbolicByte is a 1-byte convenience wrapper over GetSymbolicBytes.
func (c *Context) GetSymbolicByte(name string) concolic.Value {
	return c.GetSymbolicBytes(name, 1)
}

// SetupNewValues installs store as the seed for the next run and clears
// lastRun, ready to record whatever that run actually consumes.
func (c *Context) SetupNewValues(store Store) {
	c.nextRun = store.Clone()
	c.lastRun = Store{}
}

// SetupNewValuesFromTrace asks tr.FindNewPath(k, ctx) for another
// unnegated branch; on success it installs the derived store and returns
// true, on exhaustion it returns false together with trace.ErrExhausted.
func (c *Context) SetupNewValuesFromTrace(ctx context.Context, k uint32, tr *trace.Trace) (bool, error) {
	assign, err := tr.FindNewPath(ctx, k)
	if err != nil {
		return false, err
	}
	c.SetupNewValues(Store(tr.GetStore(assign)))
	return true, nil
}

// LastRun returns the store the most recently completed run actually
// consumed, used for error-case dumps and for recording partially
// explored runs.
func (c *Context) LastRun() Store { return c.lastRun.Clone() }

package smt

import (
	"context"
	"fmt"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
)

// EnumBackend is a bounded-enumeration reference Backend. It is not a
// general SMT solver: it exhaustively tries every assignment to the free
// symbolic arrays referenced by a query, which is only tractable for
// narrow total bit width. It exists so the engine (and its own test
// suite) has something to run against without a real theory-of-bitvectors
// solver wired in; achieving SMT completeness is explicitly out of scope.
//
// ArrayWidths declares the byte width of every symbolic array name the
// backend may be asked to solve for; it must be populated through Declare
// (by whoever sets up the backend) before a query naming a given array is
// solved.
type EnumBackend struct {
	ArrayWidths map[string]int // name -> byte width

	// MaxTotalBits bounds the total free-bit budget across all arrays
	// referenced by a single query. Queries exceeding it fail fast with
	// ErrNoAssignment rather than enumerating an infeasible space.
	MaxTotalBits int
}

// NewEnumBackend creates an EnumBackend with a sane default bit budget.
func NewEnumBackend() *EnumBackend {
	return &EnumBackend{
		ArrayWidths:  make(map[string]int),
		MaxTotalBits: 24,
	}
}

// Declare registers the byte width of a symbolic array so later queries
// naming it can be enumerated.
func (b *EnumBackend) Declare(name string, byteWidth int) {
	b.ArrayWidths[name] = byteWidth
}

// Solve implements Backend by brute-forcing every assignment to the free
// arrays referenced by q until one satisfies every constraint and the goal.
func (b *EnumBackend) Solve(ctx context.Context, q Query) (Assignment, error) {
	names := freeNames(q)

	totalBits := 0
	widths := make(map[string]int, len(names))
	for _, n := range names {
		w, ok := b.ArrayWidths[n]
		if !ok {
			return nil, fmt.Errorf("smt: enumbackend: array %q has no declared width", n)
		}
		widths[n] = w
		totalBits += w * 8
	}
	if totalBits > b.MaxTotalBits {
		return nil, ErrNoAssignment
	}

	assign := make(Assignment, len(names))
	if ok, err := enumerate(ctx, names, widths, 0, assign, q); err != nil {
		return nil, err
	} else if ok {
		return assign, nil
	}
	return nil, ErrNoAssignment
}

func enumerate(ctx context.Context, names []string, widths map[string]int, idx int, assign Assignment, q Query) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if idx == len(names) {
		return satisfies(assign, q), nil
	}

	name := names[idx]
	w := widths[name]
	total := 1 << uint(w*8)
	buf := make([]byte, w)
	for v := 0; v < total; v++ {
		x := v
		for i := w - 1; i >= 0; i-- {
			buf[i] = byte(x & 0xff)
			x >>= 8
		}
		assign[name] = append([]byte(nil), buf...)
		ok, err := enumerate(ctx, names, widths, idx+1, assign, q)
		if err != nil || ok {
			return ok, err
		}
	}
	delete(assign, name)
	return false, nil
}

func satisfies(assign Assignment, q Query) bool {
	env := bitvector.Env(assign)
	for _, c := range q.Constraints {
		if bitvector.Eval(c, env).Sign() == 0 {
			return false
		}
	}
	if q.Goal != nil {
		return bitvector.Eval(q.Goal, env).Sign() != 0
	}
	return true
}

func freeNames(q Query) []string {
	seen := make(map[string]bool)
	var names []string
	collect := func(e *bitvector.Expr) {
		if e == nil {
			return
		}
		for _, n := range bitvector.SymbolicNames(e) {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for _, c := range q.Constraints {
		collect(c)
	}
	collect(q.Goal)
	return names
}

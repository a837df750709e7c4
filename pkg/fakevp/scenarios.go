package fakevp

import (
	"context"
	"fmt"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// SingleByte is a one-branch program over a single symbolic byte x; it
// reports a host error iff x == 0x42.
func SingleByte() *Simulator {
	sim := New(func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, k uint32) (Outcome, error) {
		x := ectx.GetSymbolicByte("x")
		eq := concolic.Eq(x, concolic.FromConst(8, 0x42))
		taken, _ := concolic.Width64(eq)
		s.Branch(tr, taken != 0, eq.Symbolic, 0x1000, k)
		if taken != 0 {
			return Outcome{HostError: fmt.Errorf("fakevp: reached error state (x == 0x42)")}, nil
		}
		return Outcome{}, nil
	})
	sim.TotalBranches = 1
	return sim
}

// NestedBranches is if (a<10) { if (b>20) error } over two single bytes
// a, b: a>=10; a<10 && b<=20; and a<10 && b>20 (error) are the
// discoverable outcomes.
func NestedBranches() *Simulator {
	sim := New(func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, k uint32) (Outcome, error) {
		a := ectx.GetSymbolicByte("a")
		b := ectx.GetSymbolicByte("b")

		aLess := concolic.Ult(a, concolic.FromConst(8, 10))
		aLessTaken, _ := concolic.Width64(aLess)
		s.Branch(tr, aLessTaken != 0, aLess.Symbolic, 0x2000, k)
		if aLessTaken == 0 {
			return Outcome{}, nil
		}

		bGreater := concolic.Ult(concolic.FromConst(8, 20), b)
		bGreaterTaken, _ := concolic.Width64(bGreater)
		s.Branch(tr, bGreaterTaken != 0, bGreater.Symbolic, 0x2010, k)
		if bGreaterTaken != 0 {
			return Outcome{HostError: fmt.Errorf("fakevp: a<10 && b>20")}, nil
		}
		return Outcome{}, nil
	})
	sim.TotalBranches = 2
	return sim
}

// AssumeThenBranch asserts a != 0 on its first run, then branches on a.
// Every subsequent seed the engine tries must satisfy the assumption; a
// seed that had a == 0 is discarded by the reseed the assumption
// triggers.
func AssumeThenBranch() *Simulator {
	sim := New(func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, k uint32) (Outcome, error) {
		a := ectx.GetSymbolicByte("a")
		nonZero := concolic.Ne(a, concolic.FromConst(8, 0))
		if err := tr.Assume(nonZero.Symbolic); err != nil {
			return Outcome{}, err
		}

		small := concolic.Ult(a, concolic.FromConst(8, 128))
		taken, _ := concolic.Width64(small)
		s.Branch(tr, taken != 0, small.Symbolic, 0x3000, k)
		return Outcome{}, nil
	})
	sim.TotalBranches = 1
	return sim
}

// TwoPacketEarlyExit processes two packets but rejects the second when
// its first byte is zero, exercising early exit and partial-path replay.
func TwoPacketEarlyExit() *Simulator {
	sim := New(
		func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, k uint32) (Outcome, error) {
			ectx.GetSymbolicByte("p1")
			return Outcome{}, nil
		},
		func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, k uint32) (Outcome, error) {
			p2 := ectx.GetSymbolicByte("p2")
			rejected := concolic.Eq(p2, concolic.FromConst(8, 0))
			taken, _ := concolic.Width64(rejected)
			s.Branch(tr, taken != 0, rejected.Symbolic, 0x4000, k)
			if taken != 0 {
				return Outcome{EarlyExit: true}, nil
			}
			return Outcome{}, nil
		},
	)
	sim.TotalBranches = 1
	return sim
}

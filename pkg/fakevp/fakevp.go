// Package fakevp is a minimal driver.Simulator standing in for the real
// instruction-set simulator, which the engine only ever talks to through
// its branch-observation and symbolic-input hooks. It is table-driven: a
// Program is a fixed sequence of Packet functions, each consuming
// whatever symbolic input it needs via execctx and reporting branches via
// trace.Trace. It is used by the driver's own tests and by the CLI demo
// command rather than by the core engine itself.
package fakevp

import (
	"context"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
	"github.com/gitrdm/symconcolic/pkg/driver"
	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// Outcome reports what a single Packet invocation did.
type Outcome struct {
	// EarlyExit marks that the scripted software rejected this packet,
	// ending the run before pktSeqLen packets were consumed.
	EarlyExit bool
	// HostError, if non-nil, signals that the scripted software hit a
	// bug, the tagged host-error channel.
	HostError error
}

// Packet is one step of a scripted program. It may call ectx.GetSymbolic*
// to request input, s.Branch to report a conditional decision, and
// tr.Assume to register an assumption; a non-nil returned error is always
// trace.ErrAssumptionAdded (the only control-flow signal a Packet may
// raise) and must propagate straight out of Run.
type Packet func(ctx context.Context, s *Simulator, ectx *execctx.Context, tr *trace.Trace, pktSeqLen uint32) (Outcome, error)

// Simulator plays back a fixed Program, one Packet per packet-sequence
// slot, wrapping around if pktSeqLen exceeds len(Program). It implements
// both driver.Simulator and driver.CoverageCounter/driver.PercentCoverage.
type Simulator struct {
	Program []Packet
	// TotalBranches, if positive, is the denominator Percent() divides
	// by; it stands in for the real engine's static branch count from
	// ELF coverage instrumentation. Zero means Percent always reports 0.
	TotalBranches int

	ectx *execctx.Context
	tr   *trace.Trace

	seen map[uint64]bool
}

// New builds a Simulator that plays back program in order.
func New(program ...Packet) *Simulator {
	return &Simulator{Program: program, seen: make(map[uint64]bool)}
}

// Reset implements driver.Simulator. The scripted program has no process
// to tear down and rebuild; it only needs this run's fresh collaborators.
func (s *Simulator) Reset(ectx *execctx.Context, tr *trace.Trace) {
	s.ectx = ectx
	s.tr = tr
}

// Branch reports a conditional decision to tr and records its program
// counter for coverage.
func (s *Simulator) Branch(tr *trace.Trace, cond bool, predicate *bitvector.Expr, pc uint64, pktSeqLen uint32) {
	tr.Add(cond, predicate, pc, pktSeqLen)
	s.seen[pc] = true
}

// Run implements driver.Simulator: it plays Program[0], Program[1], ...
// (wrapping around) until pktSeqLen packets have been processed, a
// Packet signals early exit or a host error, or the scripted program
// itself raises trace.ErrAssumptionAdded. A pktSeqLen of zero (the
// driver's replay mode) plays the program through exactly once.
func (s *Simulator) Run(ctx context.Context, pktSeqLen uint32) (driver.RunResult, error) {
	if pktSeqLen == 0 {
		pktSeqLen = uint32(len(s.Program))
	}
	var processed uint32
	for ; processed < pktSeqLen; processed++ {
		if len(s.Program) == 0 {
			break
		}
		pkt := s.Program[int(processed)%len(s.Program)]

		outcome, err := pkt(ctx, s, s.ectx, s.tr, pktSeqLen)
		if err != nil {
			return driver.RunResult{ProcessedPackets: processed}, err
		}
		if outcome.HostError != nil {
			return driver.RunResult{ProcessedPackets: processed + 1, HostError: outcome.HostError}, nil
		}
		if outcome.EarlyExit {
			return driver.RunResult{ProcessedPackets: processed, EarlyExit: true}, nil
		}
	}
	return driver.RunResult{ProcessedPackets: processed}, nil
}

// Count implements driver.CoverageCounter: the number of distinct branch
// addresses observed across every run so far.
func (s *Simulator) Count() int { return len(s.seen) }

// Percent implements driver.PercentCoverage.
func (s *Simulator) Percent() float64 {
	if s.TotalBranches <= 0 {
		return 0
	}
	return 100 * float64(len(s.seen)) / float64(s.TotalBranches)
}

// Package concolic pairs a concrete witness with an (optional) symbolic
// expression for every value flowing through a simulated execution. Every
// operator below applies the same operation to both sides, so the concrete
// side always equals what plain concrete execution would have produced:
// the defining invariant of concolic consistency.
package concolic

import (
	"math/big"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
)

// Value is a concrete witness optionally paired with a symbolic expression
// of the same width. Symbolic == nil means the value is purely concrete.
type Value struct {
	Concrete *bitvector.Expr
	Symbolic *bitvector.Expr
}

// Width returns the bit-width shared by Concrete and Symbolic.
func (v Value) Width() uint { return v.Concrete.Width }

// FromConst builds a purely concrete value.
func FromConst(width uint, value uint64) Value {
	return Value{Concrete: bitvector.ConstU64(width, value)}
}

// FromConstBig builds a purely concrete value from an arbitrary-precision int.
func FromConstBig(width uint, value *big.Int) Value {
	return Value{Concrete: bitvector.Const(width, value)}
}

// FromSymbolic builds a value backed by a named symbolic array, with the
// given concrete shadow.
func FromSymbolic(name string, width uint, concrete uint64) Value {
	return Value{
		Concrete: bitvector.ConstU64(width, concrete),
		Symbolic: bitvector.SymbolicRead(name, width),
	}
}

// symOf returns v's symbolic side, promoting the concrete side into a
// constant expression if v has no symbolic side: mixing a concrete and a
// symbolic operand lifts the concrete one into a constant so the operator
// can build a single symbolic expression for the result.
func symOf(v Value) *bitvector.Expr {
	if v.Symbolic != nil {
		return v.Symbolic
	}
	return v.Concrete
}

// fold collapses an operator applied to constant children back into a
// single constant leaf. Every Value's Concrete side stays a plain
// constant this way: operators compute through the same evaluator the
// solver-facing code uses, which is what keeps the concrete shadow equal
// to plain concrete execution.
func fold(e *bitvector.Expr) *bitvector.Expr {
	return bitvector.Const(e.Width, bitvector.Eval(e, nil))
}

// combine builds the result of a binary operator: the concrete side is
// always computed (and folded to a constant), and the symbolic side is
// built only if at least one operand carries one.
func combine(a, b Value, op func(a, b *bitvector.Expr) *bitvector.Expr) Value {
	v := Value{Concrete: fold(op(a.Concrete, b.Concrete))}
	if a.Symbolic != nil || b.Symbolic != nil {
		v.Symbolic = op(symOf(a), symOf(b))
	}
	return v
}

func Eq(a, b Value) Value  { return combine(a, b, bitvector.Eq) }
func Ne(a, b Value) Value  { return combine(a, b, bitvector.Ne) }
func Ult(a, b Value) Value { return combine(a, b, bitvector.Ult) }
func Ule(a, b Value) Value { return combine(a, b, bitvector.Ule) }
func Uge(a, b Value) Value { return combine(a, b, bitvector.Uge) }
func Slt(a, b Value) Value { return combine(a, b, bitvector.Slt) }
func Sge(a, b Value) Value { return combine(a, b, bitvector.Sge) }

func Add(a, b Value) Value  { return combine(a, b, bitvector.Add) }
func Sub(a, b Value) Value  { return combine(a, b, bitvector.Sub) }
func Mul(a, b Value) Value  { return combine(a, b, bitvector.Mul) }
func Udiv(a, b Value) Value { return combine(a, b, bitvector.Udiv) }
func Sdiv(a, b Value) Value { return combine(a, b, bitvector.Sdiv) }
func Urem(a, b Value) Value { return combine(a, b, bitvector.Urem) }
func Srem(a, b Value) Value { return combine(a, b, bitvector.Srem) }
func Lshl(a, b Value) Value { return combine(a, b, bitvector.Lshl) }
func Lshr(a, b Value) Value { return combine(a, b, bitvector.Lshr) }
func Ashr(a, b Value) Value { return combine(a, b, bitvector.Ashr) }
func And(a, b Value) Value  { return combine(a, b, bitvector.And) }
func Or(a, b Value) Value   { return combine(a, b, bitvector.Or) }
func Xor(a, b Value) Value  { return combine(a, b, bitvector.Xor) }

// Bnot is the one's-complement unary operator; named Bnot (not Not) to
// keep bitwise not distinct from logical negation.
func Bnot(a Value) Value {
	v := Value{Concrete: fold(bitvector.Not(a.Concrete))}
	if a.Symbolic != nil {
		v.Symbolic = bitvector.Not(a.Symbolic)
	}
	return v
}

// Concat concatenates hi (most significant) with lo.
func Concat(hi, lo Value) Value {
	v := Value{Concrete: fold(bitvector.Concat(hi.Concrete, lo.Concrete))}
	if hi.Symbolic != nil || lo.Symbolic != nil {
		v.Symbolic = bitvector.Concat(symOf(hi), symOf(lo))
	}
	return v
}

// Extract pulls out width bits of a starting at bit offset.
func Extract(a Value, offset, width uint) Value {
	v := Value{Concrete: fold(bitvector.Extract(a.Concrete, offset, width))}
	if a.Symbolic != nil {
		v.Symbolic = bitvector.Extract(a.Symbolic, offset, width)
	}
	return v
}

// Sext sign-extends a to width.
func Sext(a Value, width uint) Value {
	v := Value{Concrete: fold(bitvector.Sext(a.Concrete, width))}
	if a.Symbolic != nil {
		v.Symbolic = bitvector.Sext(a.Symbolic, width)
	}
	return v
}

// Zext zero-extends a to width.
func Zext(a Value, width uint) Value {
	v := Value{Concrete: fold(bitvector.Zext(a.Concrete, width))}
	if a.Symbolic != nil {
		v.Symbolic = bitvector.Zext(a.Symbolic, width)
	}
	return v
}

// Select chooses t or f based on cond's concrete value for the concrete
// side, while always building the full symbolic ITE so path exploration
// can later negate the condition. This preserves the concrete-shadow
// invariant even though the symbolic side is built by a different
// rewrite (an ITE, not a concrete branch).
func Select(cond, t, f Value) Value {
	var concrete *bitvector.Expr
	if cond.Concrete.Value.Sign() != 0 {
		concrete = t.Concrete
	} else {
		concrete = f.Concrete
	}
	v := Value{Concrete: concrete}
	if cond.Symbolic != nil || t.Symbolic != nil || f.Symbolic != nil {
		v.Symbolic = bitvector.Select(symOf(cond), symOf(t), symOf(f))
	}
	return v
}

// Package bitvector implements the append-only expression DAG shared by
// every concolic value in the engine. A node is an opaque handle: callers
// combine existing nodes into new ones through the constructors below, but
// never mutate a node after it has been built.
//
// The DAG does not canonicalize: two structurally identical expressions may
// live at different addresses. Canonicalization, if any, is the solver
// backend's job once an Expr reaches package smt.
package bitvector

import (
	"fmt"
	"math/big"
	"strings"
)

// Kind tags the operator (or leaf) an Expr node represents.
type Kind int

const (
	// KindConst is a leaf holding a concrete constant value.
	KindConst Kind = iota
	// KindSymbolicRead is a leaf reading a named symbolic array, MSB-first.
	KindSymbolicRead

	KindEq
	KindNe
	KindUlt
	KindUle
	KindUge
	KindSlt
	KindSge
	KindAdd
	KindSub
	KindMul
	KindUdiv
	KindSdiv
	KindUrem
	KindSrem
	KindLshl
	KindLshr
	KindAshr
	KindAnd
	KindOr
	KindXor
	KindNot
	KindConcat
	KindExtract
	KindSext
	KindZext
	KindSelect
)

var kindNames = map[Kind]string{
	KindConst:        "const",
	KindSymbolicRead: "read",
	KindEq:           "eq",
	KindNe:           "ne",
	KindUlt:          "ult",
	KindUle:          "ule",
	KindUge:          "uge",
	KindSlt:          "slt",
	KindSge:          "sge",
	KindAdd:          "add",
	KindSub:          "sub",
	KindMul:          "mul",
	KindUdiv:         "udiv",
	KindSdiv:         "sdiv",
	KindUrem:         "urem",
	KindSrem:         "srem",
	KindLshl:         "lshl",
	KindLshr:         "lshr",
	KindAshr:         "ashr",
	KindAnd:          "and",
	KindOr:           "or",
	KindXor:          "xor",
	KindNot:          "not",
	KindConcat:       "concat",
	KindExtract:      "extract",
	KindSext:         "sext",
	KindZext:         "zext",
	KindSelect:       "select",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Expr is one node of the immutable bit-vector expression DAG. The zero
// value is not meaningful; Exprs are always built through the package's
// constructors so that Width and Kind stay consistent with Children.
type Expr struct {
	Width    uint
	Kind     Kind
	Children []*Expr

	// Value holds the constant payload for KindConst leaves.
	Value *big.Int
	// Name holds the symbolic array name for KindSymbolicRead leaves.
	Name string
	// Offset is used by KindExtract (bit offset of the low bit kept).
	Offset uint
}

// Const builds a constant leaf of the given width. Bits above width are
// masked off so that Value always fits in Width bits.
func Const(width uint, value *big.Int) *Expr {
	return &Expr{Width: width, Kind: KindConst, Value: mask(value, width)}
}

// ConstU64 is a convenience constructor for constants that fit in a uint64.
func ConstU64(width uint, value uint64) *Expr {
	return Const(width, new(big.Int).SetUint64(value))
}

// SymbolicRead builds a leaf that reads a named symbolic array MSB-first
// into a bit-vector of the given width.
func SymbolicRead(name string, width uint) *Expr {
	return &Expr{Width: width, Kind: KindSymbolicRead, Name: name}
}

func mask(v *big.Int, width uint) *big.Int {
	if width == 0 {
		return big.NewInt(0)
	}
	m := new(big.Int).Lsh(big.NewInt(1), width)
	m.Sub(m, big.NewInt(1))
	r := new(big.Int).And(v, m)
	return r
}

func requireSameWidth(op string, a, b *Expr) {
	if a.Width != b.Width {
		panic(fmt.Sprintf("bitvector: %s width mismatch: %d != %d", op, a.Width, b.Width))
	}
}

func binary(kind Kind, width uint, a, b *Expr) *Expr {
	return &Expr{Width: width, Kind: kind, Children: []*Expr{a, b}}
}

// Eq, Ne and the comparison family always produce a 1-bit result.
func Eq(a, b *Expr) *Expr  { requireSameWidth("eq", a, b); return binary(KindEq, 1, a, b) }
func Ne(a, b *Expr) *Expr  { requireSameWidth("ne", a, b); return binary(KindNe, 1, a, b) }
func Ult(a, b *Expr) *Expr { requireSameWidth("ult", a, b); return binary(KindUlt, 1, a, b) }
func Ule(a, b *Expr) *Expr { requireSameWidth("ule", a, b); return binary(KindUle, 1, a, b) }
func Uge(a, b *Expr) *Expr { requireSameWidth("uge", a, b); return binary(KindUge, 1, a, b) }
func Slt(a, b *Expr) *Expr { requireSameWidth("slt", a, b); return binary(KindSlt, 1, a, b) }
func Sge(a, b *Expr) *Expr { requireSameWidth("sge", a, b); return binary(KindSge, 1, a, b) }

// Arithmetic and bitwise operators preserve the operand width.
func Add(a, b *Expr) *Expr  { requireSameWidth("add", a, b); return binary(KindAdd, a.Width, a, b) }
func Sub(a, b *Expr) *Expr  { requireSameWidth("sub", a, b); return binary(KindSub, a.Width, a, b) }
func Mul(a, b *Expr) *Expr  { requireSameWidth("mul", a, b); return binary(KindMul, a.Width, a, b) }
func Udiv(a, b *Expr) *Expr { requireSameWidth("udiv", a, b); return binary(KindUdiv, a.Width, a, b) }
func Sdiv(a, b *Expr) *Expr { requireSameWidth("sdiv", a, b); return binary(KindSdiv, a.Width, a, b) }
func Urem(a, b *Expr) *Expr { requireSameWidth("urem", a, b); return binary(KindUrem, a.Width, a, b) }
func Srem(a, b *Expr) *Expr { requireSameWidth("srem", a, b); return binary(KindSrem, a.Width, a, b) }
func Lshl(a, b *Expr) *Expr { requireSameWidth("lshl", a, b); return binary(KindLshl, a.Width, a, b) }
func Lshr(a, b *Expr) *Expr { requireSameWidth("lshr", a, b); return binary(KindLshr, a.Width, a, b) }
func Ashr(a, b *Expr) *Expr { requireSameWidth("ashr", a, b); return binary(KindAshr, a.Width, a, b) }
func And(a, b *Expr) *Expr  { requireSameWidth("and", a, b); return binary(KindAnd, a.Width, a, b) }
func Or(a, b *Expr) *Expr   { requireSameWidth("or", a, b); return binary(KindOr, a.Width, a, b) }
func Xor(a, b *Expr) *Expr  { requireSameWidth("xor", a, b); return binary(KindXor, a.Width, a, b) }

// Not builds a one's-complement of a.
func Not(a *Expr) *Expr {
	return &Expr{Width: a.Width, Kind: KindNot, Children: []*Expr{a}}
}

// Concat builds the concatenation of hi and lo, with hi occupying the most
// significant bits of the result.
func Concat(hi, lo *Expr) *Expr {
	return &Expr{Width: hi.Width + lo.Width, Kind: KindConcat, Children: []*Expr{hi, lo}}
}

// Extract pulls width bits starting at bit offset out of a.
func Extract(a *Expr, offset, width uint) *Expr {
	if offset+width > a.Width {
		panic(fmt.Sprintf("bitvector: extract [%d,%d) out of range for width %d", offset, offset+width, a.Width))
	}
	return &Expr{Width: width, Kind: KindExtract, Children: []*Expr{a}, Offset: offset}
}

// Sext sign-extends a to the given (larger) width.
func Sext(a *Expr, width uint) *Expr {
	if width < a.Width {
		panic("bitvector: sext to narrower width")
	}
	return &Expr{Width: width, Kind: KindSext, Children: []*Expr{a}}
}

// Zext zero-extends a to the given (larger) width.
func Zext(a *Expr, width uint) *Expr {
	if width < a.Width {
		panic("bitvector: zext to narrower width")
	}
	return &Expr{Width: width, Kind: KindZext, Children: []*Expr{a}}
}

// Select is a 3-way choose: cond must be 1 bit wide, t and f must share a
// width, which becomes the result width.
func Select(cond, t, f *Expr) *Expr {
	if cond.Width != 1 {
		panic("bitvector: select condition must be 1 bit wide")
	}
	requireSameWidth("select", t, f)
	return &Expr{Width: t.Width, Kind: KindSelect, Children: []*Expr{cond, t, f}}
}

// String renders a Lisp-ish textual form of the expression, useful for
// diagnostics and for dumping alongside error test cases.
func (e *Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e *Expr) write(b *strings.Builder) {
	switch e.Kind {
	case KindConst:
		fmt.Fprintf(b, "%s", e.Value.String())
	case KindSymbolicRead:
		fmt.Fprintf(b, "(read %s %d)", e.Name, e.Width)
	case KindExtract:
		fmt.Fprintf(b, "(extract %d %d ", e.Offset, e.Width)
		e.Children[0].write(b)
		b.WriteByte(')')
	case KindSext, KindZext:
		fmt.Fprintf(b, "(%s %d ", e.Kind, e.Width)
		e.Children[0].write(b)
		b.WriteByte(')')
	case KindNot:
		b.WriteString("(not ")
		e.Children[0].write(b)
		b.WriteByte(')')
	default:
		fmt.Fprintf(b, "(%s", e.Kind)
		for _, c := range e.Children {
			b.WriteByte(' ')
			c.write(b)
		}
		b.WriteByte(')')
	}
}

// Walk calls f on every node reachable from e in post-order (children
// before parents), including e itself. f's return value is ignored: the
// traversal always visits every node.
func Walk(e *Expr, f func(*Expr) bool) {
	if e == nil {
		return
	}
	for _, c := range e.Children {
		Walk(c, f)
	}
	f(e)
}

// SymbolicNames collects the distinct symbolic array names referenced by e.
func SymbolicNames(e *Expr) []string {
	seen := make(map[string]bool)
	var names []string
	Walk(e, func(n *Expr) bool {
		if n.Kind == KindSymbolicRead && !seen[n.Name] {
			seen[n.Name] = true
			names = append(names, n.Name)
		}
		return true
	})
	return names
}

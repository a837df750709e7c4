package trace

import (
	"math/rand"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
)

// Branch is one observed conditional decision: its symbolic predicate, the
// program counter of the branch instruction (kept for diagnostics and
// tie-breaks), the packet-sequence bound in force when it was first
// observed, and whether the engine has already committed to negating it.
// WasNegated is the only mutable field, and is set to true exactly once.
type Branch struct {
	Predicate  *bitvector.Expr
	WasNegated bool
	Addr       uint64
	PktSeqLen  uint32
}

// PathElement is one step of a Path: the branch encountered, and which
// child (true/false) the path took at that branch.
type PathElement struct {
	Branch *Branch
	Dir    bool
}

// Path is an ordered sequence of branch/direction pairs. The last
// element's Dir is the direction the engine intends to negate: the path
// leads up to that branch, and a new query asks the solver for the
// opposite direction.
type Path []PathElement

// node is one vertex of the execution tree. A nil Value marks a
// placeholder: reserved but never visited by any run. Children are
// allocated lazily the first time a run traverses into them.
type node struct {
	value      *Branch
	trueChild  *node
	falseChild *node
}

func newNode() *node { return &node{} }

func (n *node) isPlaceholder() bool { return n.value == nil }

// randomUnnegated samples a candidate tail for negation: a
// depth-first traversal that flips a fair coin to decide which child to
// try first, recursing into both before considering this node itself. A
// node is selected if its own branch is unnegated, satisfies
// pktSeqLen >= k, and has at least one unallocated child slot. When both
// child slots are unallocated, the true direction is chosen as a
// tie-break; the false direction will be rediscovered on a later call
// once the true direction has been materialized.
func (n *node) randomUnnegated(rng *rand.Rand, k uint32, path *Path) bool {
	if n.isPlaceholder() {
		return false
	}

	*path = append(*path, PathElement{Branch: n.value, Dir: false})
	idx := len(*path) - 1

	tryTrue := func() bool {
		return n.trueChild != nil && n.trueChild.randomUnnegated(rng, k, path)
	}
	tryFalse := func() bool {
		return n.falseChild != nil && n.falseChild.randomUnnegated(rng, k, path)
	}

	if rng.Intn(2) == 0 {
		if tryTrue() {
			(*path)[idx].Dir = true
			return true
		}
		if tryFalse() {
			(*path)[idx].Dir = false
			return true
		}
	} else {
		if tryFalse() {
			(*path)[idx].Dir = false
			return true
		}
		if tryTrue() {
			(*path)[idx].Dir = true
			return true
		}
	}

	if n.value.PktSeqLen >= k && !n.value.WasNegated && (n.trueChild == nil || n.falseChild == nil) {
		// Exactly one child allocated: select that direction. Both
		// unallocated: tie-break to the true direction (the false
		// direction is rediscovered once true materializes).
		(*path)[idx].Dir = n.falseChild == nil
		return true
	}

	*path = (*path)[:idx]
	return false
}

// freeTree releases every node reachable from root using an explicit
// queue rather than recursion, so tearing down a deep tree never uses
// stack proportional to its depth.
func freeTree(root *node) {
	if root == nil {
		return
	}
	queue := []*node{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.trueChild != nil {
			queue = append(queue, n.trueChild)
		}
		if n.falseChild != nil {
			queue = append(queue, n.falseChild)
		}
		n.trueChild = nil
		n.falseChild = nil
		n.value = nil
	}
}

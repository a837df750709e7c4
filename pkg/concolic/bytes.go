package concolic

import (
	"math/big"

	"github.com/gitrdm/symconcolic/pkg/bitvector"
)

// FromBytes lifts a concrete byte buffer into a purely concrete Value with
// no symbolic side. lsb=true interprets buf[0] as the least-significant
// byte; lsb=false (the default wire order used by the symbolic array
// convention) interprets buf[0] as the most-significant byte.
func FromBytes(buf []byte, lsb bool) Value {
	v := new(big.Int)
	if lsb {
		for i := len(buf) - 1; i >= 0; i-- {
			v.Lsh(v, 8)
			v.Or(v, big.NewInt(int64(buf[i])))
		}
	} else {
		for _, b := range buf {
			v.Lsh(v, 8)
			v.Or(v, big.NewInt(int64(b)))
		}
	}
	return FromConstBig(uint(len(buf))*8, v)
}

// Bytes serializes the concrete side of v into a byte buffer of the given
// byte length, in the same MSB/LSB order FromBytes accepts.
func Bytes(v Value, n int, lsb bool) []byte {
	buf := make([]byte, n)
	val := new(big.Int).Set(v.Concrete.Value)
	mask := big.NewInt(0xff)
	tmp := new(big.Int)
	for i := 0; i < n; i++ {
		tmp.And(val, mask)
		b := byte(tmp.Uint64())
		if lsb {
			buf[i] = b
		} else {
			buf[n-1-i] = b
		}
		val.Rsh(val, 8)
	}
	return buf
}

// FromSymbolicBytes builds a value whose concrete side is the byte buffer
// (MSB-first, matching FromBytes' lsb=false order) and whose symbolic side
// is a named array read of matching width. Used to seed simulator-visible
// symbolic inputs from a concrete witness produced by the execution context.
func FromSymbolicBytes(name string, bytes []byte) Value {
	concrete := FromBytes(bytes, false)
	return Value{
		Concrete: concrete.Concrete,
		Symbolic: bitvector.SymbolicRead(name, uint(len(bytes))*8),
	}
}

// Width64 reports whether v's concrete value fits in a uint64, and if so
// returns it. Used by call sites that only need narrow-width witnesses
// (e.g. the packet-sequence length counters, loop bounds).
func Width64(v Value) (uint64, bool) {
	if !v.Concrete.Value.IsUint64() {
		return 0, false
	}
	return v.Concrete.Value.Uint64(), true
}

package bitvector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvalConstantOps(t *testing.T) {
	cases := []struct {
		name string
		expr *Expr
		want uint64
	}{
		{"add", Add(ConstU64(8, 200), ConstU64(8, 100)), (200 + 100) % 256},
		{"sub", Sub(ConstU64(8, 5), ConstU64(8, 10)), uint64((5 - 10 + 256) % 256)},
		{"mul", Mul(ConstU64(8, 16), ConstU64(8, 16)), (16 * 16) % 256},
		{"udiv", Udiv(ConstU64(8, 10), ConstU64(8, 3)), 3},
		{"urem", Urem(ConstU64(8, 10), ConstU64(8, 3)), 1},
		{"and", And(ConstU64(8, 0xF0), ConstU64(8, 0x3C)), 0x30},
		{"or", Or(ConstU64(8, 0xF0), ConstU64(8, 0x0F)), 0xFF},
		{"xor", Xor(ConstU64(8, 0xFF), ConstU64(8, 0x0F)), 0xF0},
		{"lshl", Lshl(ConstU64(8, 1), ConstU64(8, 3)), 8},
		{"lshr", Lshr(ConstU64(8, 0x80), ConstU64(8, 3)), 0x10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Eval(tc.expr, nil).Uint64())
		})
	}
}

func TestEvalDivisionByZeroReturnsZeroNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		got := Eval(Udiv(ConstU64(8, 10), ConstU64(8, 0)), nil)
		require.Equal(t, uint64(0), got.Uint64())
	})
}

func TestEvalRemByZeroReturnsDividend(t *testing.T) {
	got := Eval(Urem(ConstU64(8, 10), ConstU64(8, 0)), nil)
	require.Equal(t, uint64(10), got.Uint64())
}

func TestEvalSignedComparison(t *testing.T) {
	negOne := ConstU64(8, 0xFF) // -1
	one := ConstU64(8, 1)
	require.Equal(t, uint64(1), Eval(Slt(negOne, one), nil).Uint64())
	require.Equal(t, uint64(0), Eval(Sge(negOne, one), nil).Uint64())
	// unsigned comparison disagrees: 0xFF > 1.
	require.Equal(t, uint64(0), Eval(Ult(negOne, one), nil).Uint64())
}

func TestEvalAshrSignExtends(t *testing.T) {
	negFour := ConstU64(8, 0xFC) // -4
	got := Eval(Ashr(negFour, ConstU64(8, 1)), nil)
	require.Equal(t, uint64(0xFE), got.Uint64()) // -2 as 8-bit
}

func TestEvalSelect(t *testing.T) {
	tVal := ConstU64(8, 0xAA)
	fVal := ConstU64(8, 0x55)
	require.Equal(t, uint64(0xAA), Eval(Select(ConstU64(1, 1), tVal, fVal), nil).Uint64())
	require.Equal(t, uint64(0x55), Eval(Select(ConstU64(1, 0), tVal, fVal), nil).Uint64())
}

func TestEvalSymbolicReadFromEnv(t *testing.T) {
	e := SymbolicRead("x", 16)
	env := Env{"x": {0x12, 0x34}}
	require.Equal(t, uint64(0x1234), Eval(e, env).Uint64())
}

func TestEvalUnboundSymbolicPanics(t *testing.T) {
	e := SymbolicRead("missing", 8)
	require.Panics(t, func() { Eval(e, Env{}) })
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitrdm/symconcolic/pkg/concolic"
	"github.com/gitrdm/symconcolic/pkg/smt"
)

func newTestSolver() *smt.Solver {
	backend := smt.NewEnumBackend()
	backend.Declare("addr", 1)
	return smt.New(backend)
}

func TestLoadFromEmptyMemoryReturnsZero(t *testing.T) {
	m := New(newTestSolver())
	v := m.Load(0x1000, 4)
	require.Nil(t, v.Symbolic)
	require.Equal(t, uint64(0), v.Concrete.Value.Uint64())
}

func TestStoreThenLoadRoundTrips(t *testing.T) {
	m := New(newTestSolver())
	val := concolic.FromConst(32, 0xDEADBEEF)
	m.Store(0x1000, val, 4)

	got := m.Load(0x1000, 4)
	require.Equal(t, uint64(0xDEADBEEF), got.Concrete.Value.Uint64())
}

func TestStoreIsByteGranular(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x1000, concolic.FromConst(16, 0xAABB), 2)

	require.Equal(t, uint64(0xAA), m.Load(0x1000, 1).Concrete.Value.Uint64())
	require.Equal(t, uint64(0xBB), m.Load(0x1001, 1).Concrete.Value.Uint64())
}

func TestLastWriterWinsOnOverlap(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x1000, concolic.FromConst(16, 0x1111), 2)
	m.Store(0x1000, concolic.FromConst(8, 0x22), 1)

	require.Equal(t, uint64(0x22), m.Load(0x1000, 1).Concrete.Value.Uint64())
	require.Equal(t, uint64(0x11), m.Load(0x1001, 1).Concrete.Value.Uint64())
}

func TestLoadPreservesSymbolicSide(t *testing.T) {
	m := New(newTestSolver())
	sym := concolic.FromSymbolic("x", 8, 5)
	m.Store(0x2000, sym, 1)

	got := m.Load(0x2000, 1)
	require.NotNil(t, got.Symbolic)
	require.Equal(t, uint64(5), got.Concrete.Value.Uint64())
}

func TestSnapshotIsIndependentOfSubsequentWrites(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x1000, concolic.FromConst(8, 1), 1)

	snap := m.Snapshot()
	m.Store(0x1000, concolic.FromConst(8, 2), 1)

	require.Equal(t, uint64(1), snap.Load(0x1000, 1).Concrete.Value.Uint64())
	require.Equal(t, uint64(2), m.Load(0x1000, 1).Concrete.Value.Uint64())
}

func TestRestoreReplacesContents(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x1000, concolic.FromConst(8, 1), 1)
	snap := m.Snapshot()

	m.Store(0x1000, concolic.FromConst(8, 9), 1)
	m.Store(0x2000, concolic.FromConst(8, 9), 1)

	m.Restore(snap)
	require.Equal(t, uint64(1), m.Load(0x1000, 1).Concrete.Value.Uint64())
	require.Equal(t, uint64(0), m.Load(0x2000, 1).Concrete.Value.Uint64())
}

func TestLoadSymbolicConcreteAddressFallsBackToWidth64(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x10, concolic.FromConst(8, 0x42), 1)

	addr := concolic.FromConst(64, 0x10)
	got, err := m.LoadSymbolic(context.Background(), addr, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0x42), got.Concrete.Value.Uint64())
}

func TestStoreSymbolicConcreteAddressWrites(t *testing.T) {
	m := New(newTestSolver())
	addr := concolic.FromConst(64, 0x20)

	err := m.StoreSymbolic(context.Background(), addr, concolic.FromConst(8, 0x7), 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0x7), m.Load(0x20, 1).Concrete.Value.Uint64())
}

func TestLoadSymbolicSymbolicAddressUsesSolverWitness(t *testing.T) {
	m := New(newTestSolver())
	m.Store(0x05, concolic.FromConst(8, 0x99), 1)

	addr := concolic.FromSymbolic("addr", 8, 0x05)
	got, err := m.LoadSymbolic(context.Background(), addr, 1, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0x99), got.Concrete.Value.Uint64())
}

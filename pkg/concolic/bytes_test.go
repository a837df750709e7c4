package concolic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromBytesMSBFirst(t *testing.T) {
	v := FromBytes([]byte{0x12, 0x34}, false)
	require.EqualValues(t, 16, v.Width())
	require.Equal(t, uint64(0x1234), v.Concrete.Value.Uint64())
}

func TestFromBytesLSBFirst(t *testing.T) {
	v := FromBytes([]byte{0x34, 0x12}, true)
	require.Equal(t, uint64(0x1234), v.Concrete.Value.Uint64())
}

func TestBytesRoundTripsBothOrderings(t *testing.T) {
	orig := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	v := FromBytes(orig, false)
	require.Equal(t, orig, Bytes(v, 4, false))

	vLsb := FromBytes(orig, true)
	require.Equal(t, orig, Bytes(vLsb, 4, true))
}

func TestBytesCrossOrderingProducesReverse(t *testing.T) {
	v := FromBytes([]byte{0x01, 0x02, 0x03}, false)
	require.Equal(t, []byte{0x03, 0x02, 0x01}, Bytes(v, 3, true))
}

func TestFromSymbolicBytesWidthAndConcreteShadow(t *testing.T) {
	v := FromSymbolicBytes("pkt", []byte{0xAA, 0xBB})
	require.NotNil(t, v.Symbolic)
	require.EqualValues(t, 16, v.Width())
	require.Equal(t, uint64(0xAABB), v.Concrete.Value.Uint64())
}

func TestWidth64FitsSmallValues(t *testing.T) {
	v := FromConst(32, 42)
	got, ok := Width64(v)
	require.True(t, ok)
	require.Equal(t, uint64(42), got)
}

func TestWidth64RejectsOversizedValues(t *testing.T) {
	wide := FromBytes([]byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0}, false) // 9 bytes, MSB=1 => > 64 bits
	_, ok := Width64(wide)
	require.False(t, ok)
}

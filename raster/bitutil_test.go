package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCheck(t *testing.T) {
	v, err := AddCheck(10, 20)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), v)

	_, err = AddCheck(0xFFFFFFFF, 1)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOverflow))
}

func TestAdd0Check(t *testing.T) {
	v, err := Add0Check(5, 10)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)

	_, err = Add0Check(0xFFFFFFFF, 1)
	require.Error(t, err)
}

func TestMultiplyCheck(t *testing.T) {
	v, err := MultiplyCheck(1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, uint32(2000000), v)

	_, err = MultiplyCheck(0xFFFFFFFF, 2)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOverflow))
}

func TestPaeth(t *testing.T) {
	// Paeth(a, a, a) == a.
	for _, a := range []byte{0, 1, 127, 200, 255} {
		assert.Equal(t, a, Paeth(a, a, a))
	}

	// The result is always one of a, b, c.
	cases := [][3]byte{{10, 20, 30}, {200, 5, 250}, {0, 255, 128}}
	for _, c := range cases {
		p := Paeth(c[0], c[1], c[2])
		assert.Contains(t, []byte{c[0], c[1], c[2]}, p)
	}

	// Concrete case: with all three inputs equal, every distance is 0 and
	// the tie breaks toward a.
	assert.Equal(t, byte(10), Paeth(10, 10, 10))
}

func TestPutUint32BE(t *testing.T) {
	buf := make([]byte, 4)
	PutUint32BE(buf, 0x01020304)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
	assert.Equal(t, uint32(0x01020304), ReadUint32BE(buf))
}

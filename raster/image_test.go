package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageDimensions(t *testing.T) {
	img, err := NewImage(7, 3, 1, Gray)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), img.RowLength()) // ceil(7*1*1/8) = 1
	assert.Equal(t, 3, len(img.Pixels)/int(img.RowLength()))

	_, err = NewImage(0, 3, 8, Gray)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))

	_, err = NewImage(4, 4, 16, Gray)
	require.Error(t, err)

	// Sub-8-bit RGB is accepted: extended-mode PNGs carry it.
	_, err = NewImage(4, 4, 4, RGB)
	require.NoError(t, err)
}

func TestRowLength(t *testing.T) {
	assert.Equal(t, uint32(1), RowLength(8, 1, 1))
	assert.Equal(t, uint32(2), RowLength(9, 1, 1))
	assert.Equal(t, uint32(3), RowLength(1, 3, 8))
	assert.Equal(t, uint32(1), RowLength(2, 1, 4))
}

func TestLeftDelta(t *testing.T) {
	img, err := NewImage(4, 1, 8, RGB)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.LeftDelta())

	img2, err := NewImage(4, 1, 4, Gray)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), img2.LeftDelta())
}

func TestMaskTrailingBits(t *testing.T) {
	img, err := NewImage(3, 1, 1, Gray) // 3 bits used, row length 1 byte
	require.NoError(t, err)
	img.Pixels[0] = 0xFF
	MaskTrailingBits(img)
	assert.Equal(t, byte(0xE0), img.Pixels[0])
}

func TestCheckPaletteOK(t *testing.T) {
	img, err := NewImage(2, 1, 8, Indexed)
	require.NoError(t, err)
	img.Palette = []byte{0, 0, 0, 255, 255, 255}
	img.Pixels = []byte{0, 1}
	assert.NoError(t, CheckPalette(img))
}

func TestCheckPaletteOutOfRange(t *testing.T) {
	img, err := NewImage(2, 1, 8, Indexed)
	require.NoError(t, err)
	img.Palette = []byte{0, 0, 0}
	img.Pixels = []byte{0, 5}
	err = CheckPalette(img)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindMalformed))
}

func TestForEachIndexSubByte(t *testing.T) {
	img, err := NewImage(4, 1, 2, Indexed)
	require.NoError(t, err)
	img.Pixels[0] = 0b01_10_11_00
	var got []byte
	require.NoError(t, ForEachIndex(img, func(idx byte) error {
		got = append(got, idx)
		return nil
	}))
	assert.Equal(t, []byte{0b01, 0b10, 0b11, 0b00}, got)
}

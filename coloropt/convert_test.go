package coloropt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortesi/pngslim/raster"
)

func TestConvertToRGBFromGray(t *testing.T) {
	img := &raster.Image{Width: 2, Height: 1, BPC: 8, ColorType: raster.Gray, Pixels: []byte{10, 20}}
	require.NoError(t, ConvertToRGB(img))
	assert.Equal(t, raster.RGB, img.ColorType)
	assert.Equal(t, []byte{10, 10, 10, 20, 20, 20}, img.Pixels)
}

func TestConvertToRGBFromIndexed(t *testing.T) {
	img := &raster.Image{
		Width: 2, Height: 1, BPC: 8, ColorType: raster.Indexed,
		Pixels:  []byte{0, 1},
		Palette: []byte{1, 2, 3, 4, 5, 6},
	}
	require.NoError(t, ConvertToRGB(img))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, img.Pixels)
	assert.Nil(t, img.Palette)
}

func TestConvertToGrayRoundTrip(t *testing.T) {
	img := &raster.Image{Width: 2, Height: 1, BPC: 8, ColorType: raster.Gray, Pixels: []byte{10, 20}}
	require.NoError(t, ConvertToRGB(img))
	require.NoError(t, ConvertToGray(img))
	assert.Equal(t, raster.Gray, img.ColorType)
	assert.Equal(t, []byte{10, 20}, img.Pixels)
}

func TestConvertToGrayFailsOnColor(t *testing.T) {
	img := rgbImage(1, 1, []byte{1, 2, 3})
	err := ConvertToGray(img)
	require.Error(t, err)
	assert.True(t, raster.IsKind(err, raster.KindMalformed))
}

func TestConvertToIndexedAndBack(t *testing.T) {
	img := rgbImage(3, 1, []byte{
		255, 0, 0,
		0, 255, 0,
		255, 0, 0,
	})
	require.NoError(t, ConvertToIndexed(img))
	assert.Equal(t, raster.Indexed, img.ColorType)
	require.NoError(t, raster.CheckPalette(img))

	require.NoError(t, ConvertToRGB(img))
	assert.Equal(t, []byte{255, 0, 0, 0, 255, 0, 255, 0, 0}, img.Pixels)
}

func TestConvertToBPCDownAndUp(t *testing.T) {
	img := &raster.Image{Width: 2, Height: 1, BPC: 8, ColorType: raster.Gray, Pixels: []byte{0x00, 0xFF}}
	require.NoError(t, ConvertToBPC(img, 1))
	assert.Equal(t, uint8(1), img.BPC)

	require.NoError(t, ConvertToBPC(img, 8))
	assert.Equal(t, uint8(8), img.BPC)
	assert.Equal(t, []byte{0x00, 0xFF}, img.Pixels)
}

func TestConvertToBPCRefusesBelowMin(t *testing.T) {
	img := &raster.Image{Width: 2, Height: 1, BPC: 8, ColorType: raster.Gray, Pixels: []byte{0x11, 0x22}}
	err := ConvertToBPC(img, 1)
	require.Error(t, err)
	assert.True(t, raster.IsKind(err, raster.KindUnsupported))
}

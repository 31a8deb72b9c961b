package coloropt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortesi/pngslim/raster"
)

func rgbImage(w, h uint32, pixels []byte) *raster.Image {
	return &raster.Image{Width: w, Height: h, BPC: 8, ColorType: raster.RGB, Pixels: pixels}
}

func TestIsGrayOK(t *testing.T) {
	gray := rgbImage(2, 1, []byte{10, 10, 10, 200, 200, 200})
	ok, err := IsGrayOK(gray)
	require.NoError(t, err)
	assert.True(t, ok)

	notGray := rgbImage(2, 1, []byte{10, 10, 10, 1, 2, 3})
	ok, err = IsGrayOK(notGray)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestColorCountRGB(t *testing.T) {
	img := rgbImage(3, 1, []byte{
		1, 2, 3,
		1, 2, 3,
		4, 5, 6,
	})
	count, err := ColorCount(img)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestColorCountCapsAt257(t *testing.T) {
	pixels := make([]byte, 0, 300*3)
	for i := 0; i < 300; i++ {
		pixels = append(pixels, byte(i>>8), byte(i), byte(i*3))
	}
	img := rgbImage(300, 1, pixels)
	count, err := ColorCount(img)
	require.NoError(t, err)
	assert.Equal(t, 257, count)
}

func TestMinRGBBPC(t *testing.T) {
	// Every byte a multiple of 0x11 fits at bpc=4.
	img := rgbImage(1, 1, []byte{0x33, 0x44, 0x55})
	bpc, err := MinRGBBPC(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), bpc)

	img2 := rgbImage(1, 1, []byte{0x01, 0x02, 0x03})
	bpc2, err := MinRGBBPC(img2)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), bpc2)

	img3 := rgbImage(1, 1, []byte{0x00, 0xFF, 0x00})
	bpc3, err := MinRGBBPC(img3)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), bpc3)
}

func TestMinBPCIndexed(t *testing.T) {
	img := &raster.Image{
		Width: 4, Height: 1, BPC: 8, ColorType: raster.Indexed,
		Pixels:  []byte{0, 1, 2, 3},
		Palette: []byte{0, 0, 0, 1, 1, 1, 2, 2, 2, 3, 3, 3},
	}
	bpc, err := MinBPC(img)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), bpc) // 4 colors fit in 2 bits
}

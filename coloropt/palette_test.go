package coloropt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPaletteFromRGB8Simple(t *testing.T) {
	pixels := []byte{
		255, 0, 0, // red
		0, 255, 0, // green
		255, 0, 0, // red again
		0, 0, 255, // blue
	}
	palette, indices, err := BuildPaletteFromRGB8(pixels)
	require.NoError(t, err)
	assert.Equal(t, 9, len(palette)) // 3 distinct colors

	// Palette must be in ascending packed-color order.
	for i := 0; i+3 < len(palette); i += 3 {
		a := packColor(palette[i], palette[i+1], palette[i+2])
		b := packColor(palette[i+3], palette[i+4], palette[i+5])
		assert.Less(t, a, b)
	}

	// Every index must reference a palette entry equal to the original color.
	require.Equal(t, 4, len(indices))
	for i, idx := range indices {
		r, g, b := pixels[3*i], pixels[3*i+1], pixels[3*i+2]
		assert.Equal(t, r, palette[3*int(idx)])
		assert.Equal(t, g, palette[3*int(idx)+1])
		assert.Equal(t, b, palette[3*int(idx)+2])
	}
}

func TestBuildPaletteFromRGB8TooManyColors(t *testing.T) {
	pixels := make([]byte, 0, 257*3)
	for i := 0; i < 257; i++ {
		pixels = append(pixels, byte(i>>8), byte(i), byte(i*7))
	}
	_, _, err := BuildPaletteFromRGB8(pixels)
	require.Error(t, err)
	assert.Equal(t, ErrTooManyColors, err)
}

func TestBuildPaletteFromRGB8ExactLimit(t *testing.T) {
	pixels := make([]byte, 0, 256*3)
	for i := 0; i < 256; i++ {
		pixels = append(pixels, byte(i), 0, 0)
	}
	palette, _, err := BuildPaletteFromRGB8(pixels)
	require.NoError(t, err)
	assert.Equal(t, 256*3, len(palette))
}

func TestBuildPaletteFromRGB8BadLength(t *testing.T) {
	_, _, err := BuildPaletteFromRGB8([]byte{1, 2})
	require.Error(t, err)
}

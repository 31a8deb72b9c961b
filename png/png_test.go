package png

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortesi/pngslim/raster"
)

// seekBuffer adapts a bytes.Buffer into an io.WriteSeeker, the same role a
// *os.File plays for the real CLI; tests never touch the filesystem.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	end := s.pos + len(p)
	if end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	copy(s.buf[s.pos:end], p)
	s.pos = end
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = int(offset)
	case 1:
		s.pos += int(offset)
	case 2:
		s.pos = len(s.buf) + int(offset)
	}
	return int64(s.pos), nil
}

func checkerboard(w, h uint32) *raster.Image {
	img, err := raster.NewImage(w, h, 8, raster.Gray)
	if err != nil {
		panic(err)
	}
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			if (x+y)%2 == 0 {
				img.Pixels[y*w+x] = 255
			}
		}
	}
	return img
}

func rgbGradient(w, h uint32) *raster.Image {
	img, err := raster.NewImage(w, h, 8, raster.RGB)
	if err != nil {
		panic(err)
	}
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			i := (y*w + x) * 3
			img.Pixels[i] = byte(x * 7)
			img.Pixels[i+1] = byte(y * 13)
			img.Pixels[i+2] = byte((x + y) * 3)
		}
	}
	return img
}

func roundTrip(t *testing.T, img *raster.Image, opts WriterOptions) *raster.Image {
	t.Helper()
	sb := &seekBuffer{}
	require.NoError(t, Encode(sb, img, opts))
	decoded, err := Decode(bytes.NewReader(sb.buf))
	require.NoError(t, err)
	return decoded
}

func TestRoundTripAutoFilterGray(t *testing.T) {
	img := checkerboard(9, 7)
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorPNGAuto})
	assert.Equal(t, img.Width, decoded.Width)
	assert.Equal(t, img.Height, decoded.Height)
	assert.Equal(t, img.ColorType, decoded.ColorType)
	assert.Equal(t, img.BPC, decoded.BPC)
	assert.Equal(t, img.Pixels, decoded.Pixels)
}

func TestRoundTripAutoFilterRGB(t *testing.T) {
	img := rgbGradient(11, 5)
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorPNGAuto})
	assert.Equal(t, img.Pixels, decoded.Pixels)
}

func TestRoundTripPNGNoneStandardMode(t *testing.T) {
	img := checkerboard(5, 5)
	// Extended: false forces any non-auto predictor to PNGNone.
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorNone, Extended: false})
	assert.Equal(t, img.Pixels, decoded.Pixels)
}

func TestRoundTripExtendedPredictorNone(t *testing.T) {
	img := checkerboard(6, 4)
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorNone, Extended: true})
	assert.Equal(t, img.Pixels, decoded.Pixels)
}

func TestRoundTripIndexed(t *testing.T) {
	img := &raster.Image{
		Width: 4, Height: 2, BPC: 8, ColorType: raster.Indexed,
		Pixels:  []byte{0, 1, 2, 1, 2, 0, 1, 2},
		Palette: []byte{10, 10, 10, 20, 20, 20, 30, 30, 30},
	}
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorPNGAuto})
	assert.Equal(t, img.Pixels, decoded.Pixels)
	assert.Equal(t, img.Palette, decoded.Palette)
}

func TestPredictorTIFF2Rejected(t *testing.T) {
	img := checkerboard(2, 2)
	sb := &seekBuffer{}
	err := Encode(sb, img, WriterOptions{Predictor: PredictorTIFF2})
	require.Error(t, err)
	assert.True(t, raster.IsKind(err, raster.KindUnsupported))
}

func TestConstantColorRoundTripAutoFilter(t *testing.T) {
	img, err := raster.NewImage(8, 3, 8, raster.Gray)
	require.NoError(t, err)
	for i := range img.Pixels {
		img.Pixels[i] = 42
	}
	decoded := roundTrip(t, img, WriterOptions{Predictor: PredictorPNGAuto})
	assert.Equal(t, img.Pixels, decoded.Pixels)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a png")))
	require.Error(t, err)
	assert.True(t, raster.IsKind(err, raster.KindMalformed))
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	img := checkerboard(4, 4)
	sb := &seekBuffer{}
	require.NoError(t, Encode(sb, img, WriterOptions{Predictor: PredictorPNGAuto}))
	corrupt := append([]byte(nil), sb.buf...)
	corrupt[len(corrupt)-1] ^= 0xFF // flip the bits of the last byte of IEND's CRC
	_, err := Decode(bytes.NewReader(corrupt))
	require.Error(t, err)
	assert.True(t, raster.IsKind(err, raster.KindMalformed))
}

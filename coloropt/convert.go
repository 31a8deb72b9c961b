package coloropt

import (
	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

func requireBPC8(img *raster.Image, op string) error {
	if img.BPC != 8 {
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "%s requires bpc=8, got %d", op, img.BPC))
	}
	return nil
}

// ConvertToRGB expands a Gray or Indexed, bpc=8 image into packed RGB
// triplets in place, dropping the palette. Gray samples are replicated
// three times; Indexed samples are looked up in the palette.
func ConvertToRGB(img *raster.Image) error {
	if err := requireBPC8(img, "ConvertToRGB"); err != nil {
		return err
	}
	if img.ColorType == raster.RGB {
		return nil
	}
	n := int(img.Width) * int(img.Height)
	out := make([]byte, n*3)
	switch img.ColorType {
	case raster.Gray:
		for i := 0; i < n; i++ {
			v := img.Pixels[i]
			out[3*i], out[3*i+1], out[3*i+2] = v, v, v
		}
	case raster.Indexed:
		for i := 0; i < n; i++ {
			idx := int(img.Pixels[i])
			out[3*i] = img.Palette[3*idx]
			out[3*i+1] = img.Palette[3*idx+1]
			out[3*i+2] = img.Palette[3*idx+2]
		}
	default:
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown color type %d", img.ColorType))
	}
	img.ColorType = raster.RGB
	img.Pixels = out
	img.Palette = nil
	return nil
}

// ConvertToGray collapses an Indexed or RGB, bpc=8 image with R=G=B at every
// pixel into single-sample Gray form in place. It fails if any pixel is not
// actually gray.
func ConvertToGray(img *raster.Image) error {
	if err := requireBPC8(img, "ConvertToGray"); err != nil {
		return err
	}
	if img.ColorType == raster.Gray {
		return nil
	}
	if err := ConvertToRGB(img); err != nil {
		return err
	}
	n := int(img.Width) * int(img.Height)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		r, g, b := img.Pixels[3*i], img.Pixels[3*i+1], img.Pixels[3*i+2]
		if r != g || g != b {
			return perrors.WithStack(raster.NewError(raster.KindMalformed, "pixel %d is not gray: (%d,%d,%d)", i, r, g, b))
		}
		out[i] = r
	}
	img.ColorType = raster.Gray
	img.Pixels = out
	return nil
}

// identityGrayPalette returns the 256-entry palette where entry i is
// (i,i,i), used as the starting point for converting a Gray image to
// Indexed before normalization drops unused entries.
func identityGrayPalette() []byte {
	p := make([]byte, 256*3)
	for i := 0; i < 256; i++ {
		p[3*i], p[3*i+1], p[3*i+2] = byte(i), byte(i), byte(i)
	}
	return p
}

// ConvertToIndexed converts a Gray or RGB, bpc=8 image into Indexed form in
// place, failing if the image uses more than 256 distinct colors.
func ConvertToIndexed(img *raster.Image) error {
	if err := requireBPC8(img, "ConvertToIndexed"); err != nil {
		return err
	}
	if img.ColorType == raster.Indexed {
		return nil
	}
	if img.ColorType == raster.Gray {
		indices := make([]byte, len(img.Pixels))
		copy(indices, img.Pixels)
		img.ColorType = raster.Indexed
		img.Pixels = indices
		img.Palette = identityGrayPalette()
		return NormalizePalette(img)
	}
	// RGB -> Indexed.
	palette, indices, err := BuildPaletteFromRGB8(img.Pixels)
	if err != nil {
		if err == ErrTooManyColors {
			return perrors.WithStack(raster.NewError(raster.KindUnsupported, "image uses more than 256 colors, cannot index"))
		}
		return err
	}
	img.ColorType = raster.Indexed
	img.Pixels = indices
	img.Palette = palette
	return nil
}

// expandToBPC8 takes an image currently packed at some bpc < 8 and returns a
// new one-sample-per-byte buffer at bpc=8: for Indexed images the sample
// value is the raw palette index; for Gray/RGB samples, the value is
// expanded via bit replication (e.g. a 4-bit nibble n becomes (n<<4)|n).
func expandToBPC8(img *raster.Image) []byte {
	samplesPerRow := img.Width * img.CPP()
	out := make([]byte, int(samplesPerRow)*int(img.Height))
	rowLength := img.RowLength()
	perByte := 8 / uint32(img.BPC)
	mask := byte(1<<img.BPC) - 1
	replicate := img.ColorType != raster.Indexed

	oi := 0
	for y := uint32(0); y < img.Height; y++ {
		row := img.Pixels[y*rowLength : y*rowLength+rowLength]
		for x := uint32(0); x < samplesPerRow; x++ {
			b := row[x/perByte]
			shift := uint(8) - uint(img.BPC)*(x%perByte+1)
			v := (b >> shift) & mask
			if replicate {
				var expanded uint32
				var filled uint8
				for filled < 8 {
					expanded = (expanded << img.BPC) | uint32(v)
					filled += img.BPC
				}
				out[oi] = byte(expanded)
			} else {
				out[oi] = v
			}
			oi++
		}
	}
	return out
}

// packFromBPC8 packs a one-sample-per-byte buffer (as produced by
// expandToBPC8, or a native bpc=8 pixel buffer) down to toBPC bits per
// sample, MSB-first within each byte, zeroing unused trailing bits of the
// last byte of every row. For Indexed samples the low toBPC bits of each
// index are kept; for Gray/RGB samples the high toBPC bits are kept.
func packFromBPC8(samples8 []byte, width, height, cpp uint32, toBPC uint8, indexed bool) []byte {
	samplesPerRow := width * cpp
	rowLength := RowLengthFor(width, cpp, toBPC)
	out := make([]byte, int(rowLength)*int(height))
	perByte := 8 / uint32(toBPC)

	si := 0
	for y := uint32(0); y < height; y++ {
		row := out[y*rowLength : y*rowLength+rowLength]
		for x := uint32(0); x < samplesPerRow; x++ {
			v8 := samples8[si]
			si++
			var v byte
			if indexed {
				v = v8 & (byte(1<<toBPC) - 1)
			} else {
				v = v8 >> (8 - toBPC)
			}
			shift := uint(8) - uint(toBPC)*(x%perByte+1)
			row[x/perByte] |= v << shift
		}
	}
	return out
}

// RowLengthFor is a small alias kept alongside the converter helpers above so
// this file does not need to import raster.RowLength under a different name
// at every call site.
func RowLengthFor(width, cpp uint32, bpc uint8) uint32 {
	return raster.RowLength(width, cpp, bpc)
}

// ConvertToBPC reversibly repacks img to toBPC bits per component. If the
// source is not already bpc=8, it is first expanded to one sample per byte.
// Downconversion below MinBPC is refused.
func ConvertToBPC(img *raster.Image, toBPC uint8) error {
	switch toBPC {
	case 1, 2, 4, 8:
	default:
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "unsupported target bpc %d", toBPC))
	}

	var samples8 []byte
	if img.BPC == 8 {
		samples8 = img.Pixels
	} else {
		samples8 = expandToBPC8(img)
	}

	if toBPC < 8 {
		min, err := MinBPC(&raster.Image{
			Width: img.Width, Height: img.Height, BPC: 8,
			ColorType: img.ColorType, Pixels: samples8, Palette: img.Palette,
		})
		if err != nil {
			return err
		}
		if toBPC < min {
			return perrors.WithStack(raster.NewError(raster.KindUnsupported,
				"cannot reduce to bpc=%d: image needs at least bpc=%d", toBPC, min))
		}
	}

	if toBPC == 8 {
		img.Pixels = samples8
		img.BPC = 8
		return nil
	}

	img.Pixels = packFromBPC8(samples8, img.Width, img.Height, img.CPP(), toBPC, img.ColorType == raster.Indexed)
	img.BPC = toBPC
	return nil
}

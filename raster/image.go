// Package raster holds the byte/integer utilities and the Image container
// that the png codec and coloropt optimizer build on. It owns no I/O.
package raster

import "github.com/pkg/errors"

// ColorType is the PNG color type subset this codec supports.
type ColorType uint8

const (
	Gray    ColorType = 0
	RGB     ColorType = 2
	Indexed ColorType = 3
)

func (c ColorType) String() string {
	switch c {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// CPP returns the components per pixel for c: 3 for RGB, 1 otherwise.
func (c ColorType) CPP() uint32 {
	if c == RGB {
		return 3
	}
	return 1
}

// Image is the central data container: a packed raster buffer plus the
// metadata needed to interpret it. An Image exclusively owns Pixels and
// Palette; no aliasing between Images is permitted.
type Image struct {
	Width, Height uint32
	BPC           uint8 // bits per component, one of {1, 2, 4, 8}
	ColorType     ColorType
	Pixels        []byte
	Palette       []byte // RGB triplets, only set when ColorType == Indexed
}

// validBPC reports whether bpc is one of the four depths this codec supports.
func validBPC(bpc uint8) bool {
	switch bpc {
	case 1, 2, 4, 8:
		return true
	default:
		return false
	}
}

// RowLength returns ceil(width*cpp*bpc / 8), the number of packed bytes per
// image row.
func RowLength(width uint32, cpp uint32, bpc uint8) uint32 {
	bits := width * cpp * uint32(bpc)
	return (bits + 7) / 8
}

// CPP returns components per pixel for the image's color type.
func (img *Image) CPP() uint32 { return img.ColorType.CPP() }

// RowLength returns the packed row length in bytes for the image's current
// width/bpc/color type.
func (img *Image) RowLength() uint32 {
	return RowLength(img.Width, img.CPP(), img.BPC)
}

// LeftDelta returns ceil(bpc*cpp / 8), the byte offset used by the Sub,
// Average and Paeth predictors to find the "left" neighbor sample.
func (img *Image) LeftDelta() uint32 {
	bits := uint32(img.BPC) * img.CPP()
	return (bits + 7) / 8
}

// PaletteSize returns the byte length of the palette (0 unless Indexed).
func (img *Image) PaletteSize() int { return len(img.Palette) }

// NewImage allocates an Image with a zeroed pixel buffer sized exactly
// rowLength*height, checking that the product fits in 32 bits (and in a Go
// int, which bounds buffer sizes on the host platform).
func NewImage(width, height uint32, bpc uint8, colorType ColorType) (*Image, error) {
	if width == 0 || height == 0 {
		return nil, errors.WithStack(NewError(KindMalformed, "zero image dimension: %dx%d", width, height))
	}
	if !validBPC(bpc) {
		return nil, errors.WithStack(NewError(KindMalformed, "unsupported bit depth: %d", bpc))
	}
	switch colorType {
	case Gray, RGB, Indexed:
	default:
		return nil, errors.WithStack(NewError(KindMalformed, "unsupported color type: %d", colorType))
	}

	rowLength := RowLength(width, colorType.CPP(), bpc)
	total, err := MultiplyCheck(rowLength, height)
	if err != nil {
		return nil, err
	}
	if uint64(total) > uint64(^uint(0)>>1) {
		return nil, errors.WithStack(NewError(KindOutOfMemory, "pixel buffer too large: %d bytes", total))
	}

	return &Image{
		Width:     width,
		Height:    height,
		BPC:       bpc,
		ColorType: colorType,
		Pixels:    make([]byte, total),
	}, nil
}

// CheckPalette verifies that every packed index in img.Pixels is strictly
// less than len(Palette)/3, as required for Indexed images. It is a no-op
// for non-indexed images.
func CheckPalette(img *Image) error {
	if img.ColorType != Indexed {
		return nil
	}
	numColors := len(img.Palette) / 3
	if numColors == 0 {
		return errors.WithStack(NewError(KindMalformed, "indexed image has empty palette"))
	}
	return ForEachIndex(img, func(idx byte) error {
		if int(idx) >= numColors {
			return errors.WithStack(NewError(KindMalformed, "palette index %d >= %d colors", idx, numColors))
		}
		return nil
	})
}

// ForEachIndex walks every packed sample of an Indexed image's pixel buffer,
// calling fn with each palette index in row-major order. It stops at the
// first error fn returns.
func ForEachIndex(img *Image, fn func(idx byte) error) error {
	rowLength := img.RowLength()
	samplesPerRow := img.Width
	switch img.BPC {
	case 8:
		for y := uint32(0); y < img.Height; y++ {
			row := img.Pixels[y*rowLength : y*rowLength+rowLength]
			for x := uint32(0); x < samplesPerRow; x++ {
				if err := fn(row[x]); err != nil {
					return err
				}
			}
		}
	default:
		perByte := 8 / uint32(img.BPC)
		mask := byte(1<<img.BPC) - 1
		for y := uint32(0); y < img.Height; y++ {
			row := img.Pixels[y*rowLength : y*rowLength+rowLength]
			for x := uint32(0); x < samplesPerRow; x++ {
				b := row[x/perByte]
				shift := uint(8) - uint(img.BPC)*(x%perByte+1)
				if err := fn((b >> shift) & mask); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// MaskTrailingBits zeroes the unused trailing bits of the last byte of every
// row in img.Pixels, as PNG requires after reconstruction.
func MaskTrailingBits(img *Image) {
	bitsUsed := (img.Width * img.CPP() * uint32(img.BPC)) % 8
	if bitsUsed == 0 {
		return
	}
	mask := byte(0xFF00>>bitsUsed) & 0xFF
	rowLength := img.RowLength()
	for y := uint32(0); y < img.Height; y++ {
		last := y*rowLength + rowLength - 1
		img.Pixels[last] &= mask
	}
}

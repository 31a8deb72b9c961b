package coloropt

import (
	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// maxColorCount is the sentinel ColorCount returns once an image is proven
// to use more colors than fit in a palette (256); the exact count beyond
// that point is not meaningful to the optimizer.
const maxColorCount = 257

// IsGrayOK reports whether every color of the image has R=G=B. For Indexed
// images every palette entry is checked, whether or not a pixel references
// it. The image must be bpc=8.
func IsGrayOK(img *raster.Image) (bool, error) {
	if img.BPC != 8 {
		return false, perrors.WithStack(raster.NewError(raster.KindUnsupported, "IsGrayOK requires bpc=8"))
	}
	switch img.ColorType {
	case raster.Gray:
		return true, nil
	case raster.Indexed:
		for i := 0; i+2 < len(img.Palette); i += 3 {
			if img.Palette[i] != img.Palette[i+1] || img.Palette[i+1] != img.Palette[i+2] {
				return false, nil
			}
		}
		return true, nil
	case raster.RGB:
		for i := 0; i+2 < len(img.Pixels); i += 3 {
			if img.Pixels[i] != img.Pixels[i+1] || img.Pixels[i+1] != img.Pixels[i+2] {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown color type %d", img.ColorType))
	}
}

// countDistinctRGB8 streams a flat RGB8 triplet sequence through the
// open-addressing palette hash, stopping (and reporting maxColorCount) as
// soon as a 257th distinct color is seen.
func countDistinctRGB8(pixels []byte) int {
	h := &paletteHash{}
	count := 0
	for i := 0; i+2 < len(pixels); i += 3 {
		k := packColor(pixels[i], pixels[i+1], pixels[i+2])
		if _, isNew, ok := h.findUncapped(k); ok {
			if isNew {
				count++
				if count >= maxColorCount {
					return maxColorCount
				}
			}
		}
	}
	return count
}

// findUncapped behaves like find but never refuses an insert (the 256-color
// cap in find exists only for BuildPaletteFromRGB8; counting needs to keep
// going a little past it to recognize "more than 256").
func (h *paletteHash) findUncapped(k uint32) (slotIdx int, isNew bool, ok bool) {
	step := 1 + int(k%uint32(hashSlots-1))
	i := int(k % uint32(hashSlots))
	for probes := 0; probes < hashSlots; probes++ {
		if h.slot[i] == 0 {
			h.slot[i] = int32(len(h.used)) + 1
			h.color[i] = k
			h.used = append(h.used, i)
			return i, true, true
		}
		if h.color[i] == k {
			return i, false, true
		}
		i = (i + step) % hashSlots
	}
	return 0, false, false
}

// ColorCount returns the number of distinct RGB colors actually used by the
// image, capped at 257 (any value above 256 means "does not fit a palette").
// The image must be bpc=8.
func ColorCount(img *raster.Image) (int, error) {
	if img.BPC != 8 {
		return 0, perrors.WithStack(raster.NewError(raster.KindUnsupported, "ColorCount requires bpc=8"))
	}
	switch img.ColorType {
	case raster.Gray:
		seen := make(map[byte]bool)
		for _, b := range img.Pixels {
			seen[b] = true
		}
		return len(seen), nil
	case raster.RGB:
		return countDistinctRGB8(img.Pixels), nil
	case raster.Indexed:
		numColors := len(img.Palette) / 3
		used := make([]bool, numColors)
		if err := raster.ForEachIndex(img, func(idx byte) error {
			used[idx] = true
			return nil
		}); err != nil {
			return 0, err
		}
		var referenced []byte
		for i := 0; i < numColors; i++ {
			if used[i] {
				referenced = append(referenced, img.Palette[3*i], img.Palette[3*i+1], img.Palette[3*i+2])
			}
		}
		return countDistinctRGB8(referenced), nil
	default:
		return 0, perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown color type %d", img.ColorType))
	}
}

// fitsBPC reports whether an 8-bit sample v round-trips exactly through
// bit-replication downconversion to bpc bits and back (the same scaling PNG
// viewers use to expand sub-8-bit samples to 8 bits).
func fitsBPC(v byte, bpc uint8) bool {
	top := v >> (8 - bpc)
	var expanded uint32
	var filled uint8
	for filled < 8 {
		expanded = (expanded << bpc) | uint32(top)
		filled += bpc
	}
	return byte(expanded) == v
}

// MinRGBBPC returns the smallest bpc in {1,2,4,8} such that every component
// of every pixel (or, for Indexed, every palette entry) round-trips losslessly
// through bit-replication downconversion. The image must be bpc=8.
func MinRGBBPC(img *raster.Image) (uint8, error) {
	if img.BPC != 8 {
		return 0, perrors.WithStack(raster.NewError(raster.KindUnsupported, "MinRGBBPC requires bpc=8"))
	}
	var samples []byte
	switch img.ColorType {
	case raster.Gray:
		samples = img.Pixels
	case raster.RGB:
		samples = img.Pixels
	case raster.Indexed:
		samples = img.Palette
	default:
		return 0, perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown color type %d", img.ColorType))
	}

	for _, bpc := range []uint8{1, 2, 4} {
		ok := true
		for _, v := range samples {
			if !fitsBPC(v, bpc) {
				ok = false
				break
			}
		}
		if ok {
			return bpc, nil
		}
	}
	return 8, nil
}

// ceilLog2Quantized rounds n up to the smallest value in {1,2,4,8} whose
// represented range (2^bpc) is >= n.
func ceilLog2Quantized(n int) uint8 {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	default:
		return 8
	}
}

// MinBPC returns the smallest bpc that losslessly represents the image: for
// Indexed images, the bit depth needed to index the actual color count; for
// Gray/RGB, MinRGBBPC. The image must be bpc=8.
func MinBPC(img *raster.Image) (uint8, error) {
	if img.ColorType == raster.Indexed {
		count, err := ColorCount(img)
		if err != nil {
			return 0, err
		}
		if count == 0 {
			count = 1
		}
		return ceilLog2Quantized(count), nil
	}
	return MinRGBBPC(img)
}

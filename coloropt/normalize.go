package coloropt

import (
	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// NormalizePalette rewrites an Indexed, bpc=8 image so that its palette
// contains exactly the distinct colors actually referenced by pixels, sorted
// ascending by packed RGB, with pixel indexes remapped accordingly. Palette
// entries that are never referenced are first collapsed onto the first
// referenced entry so they vanish under BuildPaletteFromRGB8's deduplication
// pass.
func NormalizePalette(img *raster.Image) error {
	if img.ColorType != raster.Indexed {
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "NormalizePalette requires an Indexed image"))
	}
	if img.BPC != 8 {
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "NormalizePalette requires bpc=8"))
	}

	numColors := len(img.Palette) / 3
	used := make([]bool, numColors)
	if err := raster.ForEachIndex(img, func(idx byte) error {
		used[idx] = true
		return nil
	}); err != nil {
		return err
	}

	first := 0
	for first < numColors && !used[first] {
		first++
	}
	if first == numColors {
		first = 0
	}
	collapsed := make([]byte, len(img.Palette))
	copy(collapsed, img.Palette)
	for i := 0; i < numColors; i++ {
		if !used[i] {
			collapsed[3*i+0] = img.Palette[3*first+0]
			collapsed[3*i+1] = img.Palette[3*first+1]
			collapsed[3*i+2] = img.Palette[3*first+2]
		}
	}

	newPalette, byOldIndex, err := BuildPaletteFromRGB8(collapsed)
	if err != nil {
		return perrors.WithStack(err)
	}

	rowLength := img.RowLength()
	for y := uint32(0); y < img.Height; y++ {
		row := img.Pixels[y*rowLength : y*rowLength+rowLength]
		for x := uint32(0); x < img.Width; x++ {
			row[x] = byOldIndex[row[x]]
		}
	}
	img.Palette = newPalette
	return nil
}

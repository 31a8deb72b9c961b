package coloropt

import (
	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// Target describes the color representation OptimizeForPNG has chosen for
// an image: the color type and bit depth to convert to.
type Target struct {
	ColorType raster.ColorType
	BPC       uint8
}

// OptimizeForPNG inspects img (which must be bpc=8) and returns the smallest
// lossless PNG representation for it, honoring forceGray (refuse anything
// but Gray) and extended (allow RGB at less than 8 bits, a non-standard PNG
// extension). It does not mutate img; callers apply the returned Target via
// the ConvertTo* functions.
func OptimizeForPNG(img *raster.Image, forceGray, extended bool) (Target, error) {
	if img.BPC != 8 {
		return Target{}, perrors.WithStack(raster.NewError(raster.KindUnsupported, "OptimizeForPNG requires bpc=8"))
	}

	grayOK, err := IsGrayOK(img)
	if err != nil {
		return Target{}, err
	}
	minRGBBPC, err := MinRGBBPC(img)
	if err != nil {
		return Target{}, err
	}
	colorCount, err := ColorCount(img)
	if err != nil {
		return Target{}, err
	}

	if forceGray && !grayOK {
		return Target{}, perrors.WithStack(raster.NewError(raster.KindUnsupported, "force_gray set but image is not gray"))
	}

	switch {
	case grayOK && minRGBBPC == 1:
		return Target{raster.Gray, 1}, nil
	case colorCount <= 2 && !forceGray:
		return Target{raster.Indexed, 1}, nil
	case grayOK && minRGBBPC == 2:
		return Target{raster.Gray, 2}, nil
	case colorCount <= 4 && !forceGray:
		return Target{raster.Indexed, 2}, nil
	case minRGBBPC == 1 && !forceGray && extended:
		return Target{raster.RGB, 1}, nil
	case grayOK && minRGBBPC == 4:
		return Target{raster.Gray, 4}, nil
	case colorCount <= 16 && !forceGray:
		return Target{raster.Indexed, 4}, nil
	case minRGBBPC == 2 && !forceGray && extended:
		return Target{raster.RGB, 2}, nil
	case grayOK && minRGBBPC == 8:
		return Target{raster.Gray, 8}, nil
	case colorCount <= 256 && !forceGray:
		return Target{raster.Indexed, 8}, nil
	case minRGBBPC == 4 && !forceGray && extended:
		return Target{raster.RGB, 4}, nil
	case minRGBBPC == 8 && !forceGray:
		return Target{raster.RGB, 8}, nil
	default:
		return Target{}, perrors.WithStack(raster.NewError(raster.KindUnsupported, "no lossless PNG representation found"))
	}
}

// Apply converts img (bpc=8) to the representation t describes, in place.
func (t Target) Apply(img *raster.Image) error {
	switch t.ColorType {
	case raster.Gray:
		if err := ConvertToGray(img); err != nil {
			return err
		}
	case raster.Indexed:
		if err := ConvertToIndexed(img); err != nil {
			return err
		}
	case raster.RGB:
		if err := ConvertToRGB(img); err != nil {
			return err
		}
	default:
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown target color type %d", t.ColorType))
	}
	return ConvertToBPC(img, t.BPC)
}

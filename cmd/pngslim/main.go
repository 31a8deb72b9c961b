// Command pngslim rewrites a PNG or PNM image as the smallest lossless PNG
// representation it can find: the narrowest color model and bit depth, with
// a chosen row-predictor strategy.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexflint/go-arg"
	perrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cortesi/pngslim/coloropt"
	"github.com/cortesi/pngslim/pnm"
	"github.com/cortesi/pngslim/png"
	"github.com/cortesi/pngslim/raster"
)

type args struct {
	Input  string `arg:"positional,required" help:"input image (.png, .ppm, .pgm, .pbm, .pnm)"`
	Output string `arg:"positional,required" help:"output image (.png, .ppm, .pgm, .pbm, .pnm)"`

	Extended       bool   `arg:"--extended" help:"allow non-standard output: filter method 1 and sub-8-bit RGB"`
	Predictor      string `arg:"--predictor" default:"smart" help:"none|pngnone|pngauto|smart"`
	ForceGray      bool   `arg:"--force-gray" help:"refuse any representation but gray"`
	Level          int    `arg:"--level" default:"-1" help:"deflate level 0-9, or -1 for default"`
	RegressionTest bool   `arg:"--regression-test" help:"decode the existing output and diff its pixels against the input, instead of overwriting it"`
}

func (args) Description() string {
	return "Rewrite a raster image as the smallest lossless PNG (or PNM) representation."
}

func parsePredictor(s string) (png.Predictor, error) {
	switch strings.ToLower(s) {
	case "none":
		return png.PredictorNone, nil
	case "pngnone":
		return png.PredictorPNGNone, nil
	case "pngauto":
		return png.PredictorPNGAuto, nil
	case "smart":
		return png.PredictorSmart, nil
	default:
		return 0, perrors.WithStack(raster.NewError(raster.KindUnsupported, "unknown predictor %q", s))
	}
}

func extOf(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func readImage(path string, logger *zap.Logger) (*raster.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch extOf(path) {
	case "png":
		dec := &png.Decoder{Logger: logger}
		img, err := dec.Decode(f)
		if err != nil {
			return nil, err
		}
		if err := coloropt.ConvertToBPC(img, 8); err != nil {
			return nil, err
		}
		return img, nil
	case "ppm", "pgm", "pbm", "pnm":
		img, err := pnm.Read(f)
		if err != nil {
			return nil, err
		}
		if err := coloropt.ConvertToBPC(img, 8); err != nil {
			return nil, err
		}
		return img, nil
	default:
		return nil, perrors.WithStack(raster.NewError(raster.KindUnsupported, "unrecognized input extension for %s", path))
	}
}

func writeImage(path string, img *raster.Image, a *args) error {
	switch extOf(path) {
	case "png":
		predictor, err := parsePredictor(a.Predictor)
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return png.Encode(f, img, png.WriterOptions{
			Extended:  a.Extended,
			Predictor: predictor,
			Level:     a.Level,
		})
	case "ppm", "pgm", "pbm", "pnm":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return pnm.Write(f, img)
	default:
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "unrecognized output extension for %s", path))
	}
}

// samePixels reports whether two images are byte-identical in their
// canonical (bpc=8, RGB) form, used by regressionTest to diff results
// independent of the color model each happened to be encoded in.
func samePixels(a, b *raster.Image) (bool, error) {
	ac := &raster.Image{Width: a.Width, Height: a.Height, BPC: a.BPC, ColorType: a.ColorType, Pixels: append([]byte(nil), a.Pixels...), Palette: append([]byte(nil), a.Palette...)}
	bc := &raster.Image{Width: b.Width, Height: b.Height, BPC: b.BPC, ColorType: b.ColorType, Pixels: append([]byte(nil), b.Pixels...), Palette: append([]byte(nil), b.Palette...)}
	if err := coloropt.ConvertToBPC(ac, 8); err != nil {
		return false, err
	}
	if err := coloropt.ConvertToBPC(bc, 8); err != nil {
		return false, err
	}
	if err := coloropt.ConvertToRGB(ac); err != nil {
		return false, err
	}
	if err := coloropt.ConvertToRGB(bc); err != nil {
		return false, err
	}
	if ac.Width != bc.Width || ac.Height != bc.Height {
		return false, nil
	}
	if len(ac.Pixels) != len(bc.Pixels) {
		return false, nil
	}
	for i := range ac.Pixels {
		if ac.Pixels[i] != bc.Pixels[i] {
			return false, nil
		}
	}
	return true, nil
}

func regressionTest(original *raster.Image, outputPath string, logger *zap.Logger) error {
	f, err := os.Open(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var reDecoded *raster.Image
	switch extOf(outputPath) {
	case "png":
		dec := &png.Decoder{Logger: logger}
		reDecoded, err = dec.Decode(f)
	case "ppm", "pgm", "pbm", "pnm":
		reDecoded, err = pnm.Read(f)
	default:
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "unrecognized output extension for %s", outputPath))
	}
	if err != nil {
		return err
	}

	ok, err := samePixels(original, reDecoded)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "pngslim: regression test failed: %s does not reproduce the input pixels\n", outputPath)
	}
	return nil
}

func run(a *args, logger *zap.Logger) error {
	img, err := readImage(a.Input, logger)
	if err != nil {
		return err
	}

	target, err := coloropt.OptimizeForPNG(img, a.ForceGray, a.Extended)
	if err != nil {
		return err
	}
	original := &raster.Image{Width: img.Width, Height: img.Height, BPC: img.BPC, ColorType: img.ColorType, Pixels: append([]byte(nil), img.Pixels...), Palette: append([]byte(nil), img.Palette...)}
	if err := target.Apply(img); err != nil {
		return err
	}

	if a.RegressionTest {
		if _, err := os.Stat(a.Output); err != nil {
			return perrors.WithStack(raster.NewError(raster.KindIO, "regression test requires an existing output file: %v", err))
		}
		return regressionTest(original, a.Output, logger)
	}

	return writeImage(a.Output, img, a)
}

func main() {
	var a args
	arg.MustParse(&a)

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	if err := run(&a, logger); err != nil {
		if ce, ok := perrors.Cause(err).(*raster.CodecError); ok {
			fmt.Fprintf(os.Stderr, "pngslim: %v\n", ce)
			os.Exit(120)
		}
		fmt.Fprintf(os.Stderr, "pngslim: %v\n", err)
		os.Exit(1)
	}
}

// Package png implements the streaming PNG reader and writer: chunk framing,
// CRC-32 verification, DEFLATE encapsulation via klauspost/compress/zlib, and
// the five row-predictor filters. It knows nothing about color-model choice;
// that policy lives in package coloropt.
package png

import "github.com/cortesi/pngslim/raster"

var pngSignature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// Filter type, as per the PNG spec (filter method 0).
const (
	filterNone = 0
	filterSub  = 1
	filterUp   = 2
	filterAvg  = 3
	filterPaeth = 4
	numFilters  = 5
)

// Filter method, as carried in IHDR byte 11.
const (
	filterMethodStandard = 0 // adaptive per-row filter, filter byte present
	filterMethodPMNone    = 1 // extension: raw rows, no filter byte
	filterMethodTIFF2     = 2 // reserved, always rejected
)

// Predictor selects the row-prediction strategy the writer uses.
type Predictor int

const (
	// PredictorNone emits raw rows with no per-row filter byte (filter
	// method 1). Only valid in extended mode.
	PredictorNone Predictor = iota
	// PredictorTIFF2 is never supported; requesting it is always fatal.
	PredictorTIFF2
	// PredictorPNGNone emits filter method 0 with every row using filter
	// id 0 (None).
	PredictorPNGNone
	// PredictorPNGAuto emits filter method 0, choosing the best filter
	// independently for each row via the row-sum heuristic.
	PredictorPNGAuto
	// PredictorSmart resolves to PredictorPNGAuto for bpc=8 gray/RGB
	// images, else to PredictorNone, mirroring the historical libpng
	// heuristic.
	PredictorSmart
)

func colorTypeByte(c raster.ColorType) byte { return byte(c) }

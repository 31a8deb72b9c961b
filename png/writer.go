package png

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// WriterOptions configures Encode. The zero value selects standard
// (non-extended) output with PredictorNone, which standard mode resolves to
// PNGNone (filter id 0 on every row), at deflate level 0 (no compression).
type WriterOptions struct {
	// Extended allows non-standard output: PredictorNone (filter method 1)
	// and sub-8-bit RGB. When false, any predictor other than PNGAuto is
	// forced to PNGNone.
	Extended bool
	// Predictor selects the row-prediction strategy.
	Predictor Predictor
	// Level is the deflate compression level: 0-9 an explicit zlib level
	// (0 is no compression), any other value (such as -1) the zlib default.
	Level int
}

// EncoderBufferPool lets a caller reuse the scratch row buffers an Encoder
// allocates across many Encode calls.
type EncoderBufferPool interface {
	Get() *EncoderBuffer
	Put(*EncoderBuffer)
}

// EncoderBuffer holds the buffers used across Encode calls.
type EncoderBuffer struct {
	cr [numFilters + 1][]byte // 0..4 are filter candidates, 5 is the previous unfiltered row
}

// Encoder writes raster.Image values as PNG files. The zero value is ready
// to use.
type Encoder struct {
	BufferPool EncoderBufferPool
}

// Encode writes img to w per opts. w must support Seek because the IDAT
// chunk's length is patched in after the deflate stream is finalized.
func Encode(w io.WriteSeeker, img *raster.Image, opts WriterOptions) error {
	var e Encoder
	return e.Encode(w, img, opts)
}

// Encode writes img to w per opts, reusing e's BufferPool if set.
func (e *Encoder) Encode(w io.WriteSeeker, img *raster.Image, opts WriterOptions) error {
	predictor, filterMethod, err := resolvePredictor(opts.Predictor, opts.Extended, img)
	if err != nil {
		return err
	}

	rowLength := img.RowLength()
	if rowLength >= 1<<24 {
		return perrors.WithStack(raster.NewError(raster.KindOverflow, "row length %d too large for row-sum heuristic", rowLength))
	}

	var buf *EncoderBuffer
	if e.BufferPool != nil {
		buf = e.BufferPool.Get()
		defer e.BufferPool.Put(buf)
	} else {
		buf = &EncoderBuffer{}
	}
	for i := range buf.cr {
		sz := int(rowLength) + 1
		if i == numFilters {
			sz = int(rowLength)
		}
		if cap(buf.cr[i]) < sz {
			buf.cr[i] = make([]byte, sz)
		} else {
			buf.cr[i] = buf.cr[i][:sz]
			for j := range buf.cr[i] {
				buf.cr[i][j] = 0
			}
		}
	}

	if _, err := w.Write(pngSignature[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write signature: %v", err))
	}

	if err := writeIHDR(w, img, filterMethod); err != nil {
		return err
	}
	if img.ColorType == raster.Indexed {
		if err := writePLTE(w, img.Palette); err != nil {
			return err
		}
	}
	if err := writeIDAT(w, img, predictor, rowLength, buf, opts.Level); err != nil {
		return err
	}
	if err := writeChunk(w, "IEND", nil); err != nil {
		return err
	}
	return nil
}

// resolvePredictor applies the predictor-mode resolution rules of the
// writer's design: TIFF2 is always rejected; Smart reduces to PNGAuto or
// None depending on the image's native representation; and, outside
// extended mode, anything but PNGAuto collapses to PNGNone.
func resolvePredictor(p Predictor, extended bool, img *raster.Image) (Predictor, byte, error) {
	switch p {
	case PredictorTIFF2:
		return 0, 0, perrors.WithStack(raster.NewError(raster.KindUnsupported, "TIFF2 predictor is not supported"))
	case PredictorSmart:
		if img.BPC == 8 && (img.ColorType == raster.Gray || img.ColorType == raster.RGB) {
			p = PredictorPNGAuto
		} else {
			p = PredictorNone
		}
	}
	if !extended && p != PredictorPNGAuto {
		p = PredictorPNGNone
	}
	if p == PredictorNone {
		return PredictorNone, filterMethodPMNone, nil
	}
	return p, filterMethodStandard, nil
}

func writeChunk(w io.Writer, name string, payload []byte) error {
	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:8], name)

	crc := crc32.NewIEEE()
	crc.Write(header[4:8])
	crc.Write(payload)
	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc.Sum32())

	if _, err := w.Write(header[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write %s header: %v", name, err))
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return perrors.WithStack(raster.NewError(raster.KindIO, "write %s payload: %v", name, err))
		}
	}
	if _, err := w.Write(footer[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write %s crc: %v", name, err))
	}
	return nil
}

func writeIHDR(w io.Writer, img *raster.Image, filterMethod byte) error {
	var payload [13]byte
	binary.BigEndian.PutUint32(payload[0:4], img.Width)
	binary.BigEndian.PutUint32(payload[4:8], img.Height)
	payload[8] = img.BPC
	payload[9] = colorTypeByte(img.ColorType)
	payload[10] = 0 // compression method
	payload[11] = filterMethod
	payload[12] = 0 // interlace method
	return writeChunk(w, "IHDR", payload[:])
}

func writePLTE(w io.Writer, palette []byte) error {
	if len(palette) == 0 || len(palette)%3 != 0 || len(palette) > 768 {
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "bad palette length: %d", len(palette)))
	}
	return writeChunk(w, "PLTE", palette)
}

// idatCRCWriter streams IDAT payload bytes through w while accumulating
// their CRC-32 (seeded with the "IDAT" tag), so the writer never has to hold
// the whole compressed stream in memory before framing it.
type idatCRCWriter struct {
	w     io.Writer
	crc   hash32
	total uint32
	err   error
}

type hash32 interface {
	Write(p []byte) (int, error)
	Sum32() uint32
}

func (cw *idatCRCWriter) Write(p []byte) (int, error) {
	if cw.err != nil {
		return 0, cw.err
	}
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.crc.Write(p[:n])
		cw.total += uint32(n)
	}
	if err != nil {
		cw.err = perrors.WithStack(raster.NewError(raster.KindIO, "write IDAT payload: %v", err))
		return n, cw.err
	}
	return n, nil
}

func zlibLevel(level int) int {
	if level < 0 || level > 9 {
		return zlib.DefaultCompression
	}
	return level
}

// writeIDAT writes a single IDAT chunk: an 8-byte placeholder header
// (length patched in afterward), the deflate-compressed, filtered pixel
// stream, and the CRC footer.
func writeIDAT(w io.WriteSeeker, img *raster.Image, predictor Predictor, rowLength uint32, buf *EncoderBuffer, level int) error {
	lenOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "seek before IDAT: %v", err))
	}

	var placeholder [8]byte
	copy(placeholder[4:8], "IDAT")
	if _, err := w.Write(placeholder[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write IDAT placeholder: %v", err))
	}

	cw := &idatCRCWriter{w: w, crc: crc32.NewIEEE()}
	cw.crc.Write([]byte("IDAT"))

	bw := bufio.NewWriterSize(cw, 1<<15)
	zw, err := zlib.NewWriterLevel(bw, zlibLevel(level))
	if err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "create deflate writer: %v", err))
	}

	if err := writeRows(zw, img, predictor, rowLength, buf); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "close deflate writer: %v", err))
	}
	if err := bw.Flush(); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "flush IDAT buffer: %v", err))
	}
	if cw.err != nil {
		return cw.err
	}

	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], cw.crc.Sum32())
	if _, err := w.Write(footer[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write IDAT crc: %v", err))
	}

	endOffset, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "seek after IDAT: %v", err))
	}
	if _, err := w.Seek(lenOffset, io.SeekStart); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "seek to patch IDAT length: %v", err))
	}
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], cw.total)
	if _, err := w.Write(lenBytes[:]); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "patch IDAT length: %v", err))
	}
	if _, err := w.Seek(endOffset, io.SeekStart); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "seek past IDAT: %v", err))
	}
	return nil
}

func writeRows(zw io.Writer, img *raster.Image, predictor Predictor, rowLength uint32, buf *EncoderBuffer) error {
	height := img.Height
	switch predictor {
	case PredictorNone:
		for y := uint32(0); y < height; y++ {
			row := img.Pixels[y*rowLength : y*rowLength+rowLength]
			if _, err := zw.Write(row); err != nil {
				return perrors.WithStack(raster.NewError(raster.KindIO, "write raw row: %v", err))
			}
		}
		return nil
	case PredictorPNGNone:
		filterByte := []byte{filterNone}
		for y := uint32(0); y < height; y++ {
			row := img.Pixels[y*rowLength : y*rowLength+rowLength]
			if _, err := zw.Write(filterByte); err != nil {
				return perrors.WithStack(raster.NewError(raster.KindIO, "write filter byte: %v", err))
			}
			if _, err := zw.Write(row); err != nil {
				return perrors.WithStack(raster.NewError(raster.KindIO, "write row: %v", err))
			}
		}
		return nil
	case PredictorPNGAuto:
		return writeRowsAuto(zw, img, rowLength, buf)
	default:
		return perrors.WithStack(raster.NewError(raster.KindUnsupported, "unresolved predictor %d", predictor))
	}
}

func abs8(d byte) int {
	if d < 128 {
		return int(d)
	}
	return 256 - int(d)
}

// writeRowsAuto implements the PNGAuto per-row filter selection: five
// candidate filterings of each row are computed into buf.cr[0..4], their
// row-sums of absolute signed differences compared, and the smallest (ties
// favoring the lowest filter id) is fed to the deflate writer. buf.cr[5]
// holds the previous row's unfiltered bytes for the Up/Average/Paeth
// filters' "above" term.
func writeRowsAuto(zw io.Writer, img *raster.Image, rowLength uint32, buf *EncoderBuffer) error {
	leftDelta := img.LeftDelta()
	prev := buf.cr[numFilters]
	for i := range prev {
		prev[i] = 0
	}

	for y := uint32(0); y < img.Height; y++ {
		raw := img.Pixels[y*rowLength : y*rowLength+rowLength]

		none := buf.cr[filterNone]
		none[0] = filterNone
		copy(none[1:], raw)

		sub := buf.cr[filterSub]
		sub[0] = filterSub
		up := buf.cr[filterUp]
		up[0] = filterUp
		avg := buf.cr[filterAvg]
		avg[0] = filterAvg
		pth := buf.cr[filterPaeth]
		pth[0] = filterPaeth

		for i := uint32(0); i < rowLength; i++ {
			var left, above, upperLeft byte
			if i >= leftDelta {
				left = raw[i-leftDelta]
			}
			above = prev[i]
			if i >= leftDelta {
				upperLeft = prev[i-leftDelta]
			}
			sub[i+1] = raw[i] - left
			up[i+1] = raw[i] - above
			avg[i+1] = raw[i] - byte((int(left)+int(above))/2)
			pth[i+1] = raw[i] - raster.Paeth(left, above, upperLeft)
		}

		best := filterNone
		bestSum := rowSum(none[1:])
		if s := rowSum(sub[1:]); s < bestSum {
			bestSum, best = s, filterSub
		}
		if s := rowSum(up[1:]); s < bestSum {
			bestSum, best = s, filterUp
		}
		if s := rowSum(avg[1:]); s < bestSum {
			bestSum, best = s, filterAvg
		}
		if s := rowSum(pth[1:]); s < bestSum {
			bestSum, best = s, filterPaeth
		}

		chosen := buf.cr[best]
		if _, err := zw.Write(chosen); err != nil {
			return perrors.WithStack(raster.NewError(raster.KindIO, "write filtered row: %v", err))
		}

		copy(prev, raw)
	}
	return nil
}

func rowSum(row []byte) int {
	sum := 0
	for _, b := range row {
		sum += abs8(b)
	}
	return sum
}

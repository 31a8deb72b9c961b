package png

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zlib"
	perrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cortesi/pngslim/raster"
)

// Decoder reads raster.Image values from a PNG byte stream. The zero value
// uses zap.NewNop() for its warning log; set Logger to capture warnings.
type Decoder struct {
	// Logger receives Warn-level events for non-fatal conditions: a
	// clamped PLTE, a short or over-long inflate stream, or a late adler32
	// mismatch.
	Logger *zap.Logger
	// Decode returns the image at the bit depth stored in the file; the
	// Decoder has no option to upconvert it. cmd/pngslim converts the
	// decoded image to bpc=8 with coloropt.ConvertToBPC.
}

func (d *Decoder) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// Decode reads a complete PNG stream from r and returns the decoded image.
func Decode(r io.Reader) (*raster.Image, error) {
	var d Decoder
	return d.Decode(r)
}

// chunkHeader is the 8-byte length+tag prefix of every chunk.
type chunkHeader struct {
	length uint32
	tag    string
}

func readChunkHeader(r io.Reader) (chunkHeader, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return chunkHeader{}, perrors.WithStack(raster.NewError(raster.KindMalformed, "read chunk header: %v", err))
	}
	return chunkHeader{length: binary.BigEndian.Uint32(buf[:4]), tag: string(buf[4:8])}, nil
}

// readChunkBody reads a chunk's payload and verifies its trailing CRC-32,
// which covers the tag and payload.
func readChunkBody(r io.Reader, hdr chunkHeader) ([]byte, error) {
	payload := make([]byte, hdr.length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "read %s payload: %v", hdr.tag, err))
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "read %s crc: %v", hdr.tag, err))
	}
	crc := crc32.NewIEEE()
	crc.Write([]byte(hdr.tag))
	crc.Write(payload)
	if binary.BigEndian.Uint32(crcBuf[:]) != crc.Sum32() {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "%s: crc mismatch", hdr.tag))
	}
	return payload, nil
}

// skipChunk discards a chunk's payload and trailing CRC without verifying
// it, for ancillary tags the codec never interprets.
func skipChunk(r io.Reader, hdr chunkHeader) error {
	if _, err := io.CopyN(io.Discard, r, int64(hdr.length)+4); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "skip %s: %v", hdr.tag, err))
	}
	return nil
}

// idatChunkReader presents the payloads of one or more consecutive IDAT
// chunks read from the underlying chunk stream as a single continuous
// io.Reader, the input the zlib reader needs. next holds the already-read
// header of the first IDAT chunk. It stops supplying bytes at the first
// non-IDAT tag, stashing that header in pending so the caller can resume
// ordinary chunk iteration from it without re-reading its 8 header bytes.
type idatChunkReader struct {
	r       io.Reader
	next    *chunkHeader
	cur     []byte
	pending *chunkHeader
	err     error
}

func (c *idatChunkReader) Read(p []byte) (int, error) {
	for len(c.cur) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		if c.pending != nil {
			return 0, io.EOF
		}
		var hdr chunkHeader
		if c.next != nil {
			hdr = *c.next
			c.next = nil
		} else {
			h, err := readChunkHeader(c.r)
			if err != nil {
				c.err = err
				return 0, err
			}
			hdr = h
		}
		if hdr.tag != "IDAT" {
			c.pending = &hdr
			return 0, io.EOF
		}
		payload, err := readChunkBody(c.r, hdr)
		if err != nil {
			c.err = err
			return 0, err
		}
		c.cur = payload
	}
	n := copy(p, c.cur)
	c.cur = c.cur[n:]
	return n, nil
}

// Decode reads a complete PNG stream from r and returns the decoded image.
func (d *Decoder) Decode(r io.Reader) (*raster.Image, error) {
	log := d.logger()

	var sig [8]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil || sig != pngSignature {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "missing or corrupt PNG signature"))
	}

	hdr, err := readChunkHeader(r)
	if err != nil {
		return nil, err
	}
	if hdr.tag != "IHDR" || hdr.length != 13 {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "expected 13-byte IHDR, got %s/%d", hdr.tag, hdr.length))
	}
	ihdr, err := readChunkBody(r, hdr)
	if err != nil {
		return nil, err
	}

	width := binary.BigEndian.Uint32(ihdr[0:4])
	height := binary.BigEndian.Uint32(ihdr[4:8])
	bpc := ihdr[8]
	colorTypeByte := ihdr[9]
	compressionMethod := ihdr[10]
	filterMethod := ihdr[11]
	interlaceMethod := ihdr[12]

	if width == 0 || height == 0 {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "zero image dimension"))
	}
	var colorType raster.ColorType
	switch colorTypeByte {
	case 0:
		colorType = raster.Gray
	case 2:
		colorType = raster.RGB
	case 3:
		colorType = raster.Indexed
	default:
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "unsupported color type %d", colorTypeByte))
	}
	switch bpc {
	case 1, 2, 4, 8:
	default:
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "unsupported bit depth %d", bpc))
	}
	if compressionMethod != 0 {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "unsupported compression method %d", compressionMethod))
	}
	if interlaceMethod != 0 {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "interlacing not supported"))
	}
	switch filterMethod {
	case filterMethodStandard, filterMethodPMNone:
	case filterMethodTIFF2:
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "TIFF2 filter method not supported"))
	default:
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "unknown filter method %d", filterMethod))
	}

	img, err := raster.NewImage(width, height, bpc, colorType)
	if err != nil {
		return nil, err
	}

	seenPLTE := false
	seenIDAT := false
	var pendingHeader *chunkHeader

	for {
		var ch chunkHeader
		if pendingHeader != nil {
			ch = *pendingHeader
			pendingHeader = nil
		} else {
			ch, err = readChunkHeader(r)
			if err != nil {
				return nil, err
			}
		}

		switch ch.tag {
		case "PLTE":
			if seenPLTE {
				return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "duplicate PLTE chunk"))
			}
			if seenIDAT {
				return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "PLTE after IDAT"))
			}
			seenPLTE = true
			if img.ColorType != raster.Indexed {
				if err := skipChunk(r, ch); err != nil {
					return nil, err
				}
				continue
			}
			payload, err := readChunkBody(r, ch)
			if err != nil {
				return nil, err
			}
			if len(payload) == 0 || len(payload)%3 != 0 || len(payload) > 768 {
				return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "bad PLTE length %d", len(payload)))
			}
			maxEntries := 3 * (1 << img.BPC)
			if len(payload) > maxEntries {
				log.Warn("PLTE larger than bit depth allows, clamping", zap.Int("length", len(payload)), zap.Int("max", maxEntries))
				payload = payload[:maxEntries]
			}
			img.Palette = payload
		case "IDAT":
			if img.ColorType == raster.Indexed && !seenPLTE {
				return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "IDAT before PLTE in indexed image"))
			}
			seenIDAT = true
			idr := &idatChunkReader{r: r, next: &ch}
			if err := decodePixels(img, idr, filterMethod, log); err != nil {
				return nil, err
			}
			pendingHeader = idr.pending
		case "IEND":
			if _, err := readChunkBody(r, ch); err != nil {
				return nil, err
			}
			if err := raster.CheckPalette(img); err != nil {
				return nil, err
			}
			return img, nil
		default:
			if err := skipChunk(r, ch); err != nil {
				return nil, err
			}
		}
	}
}

// decodePixels streams the IDAT run through zlib inflate and reconstructs
// img.Pixels according to filterMethod.
func decodePixels(img *raster.Image, idat *idatChunkReader, filterMethod byte, log *zap.Logger) error {
	zr, err := zlib.NewReader(idat)
	if err != nil {
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "open deflate stream: %v", err))
	}
	defer zr.Close()

	var decodeErr error
	switch filterMethod {
	case filterMethodPMNone:
		decodeErr = decodeRawRows(img, zr, log)
	default:
		decodeErr = decodeFilteredRows(img, zr, log)
	}
	if decodeErr != nil {
		return decodeErr
	}

	raster.MaskTrailingBits(img)

	// Drain the stream so the adler32 trailer is checked; report a
	// mismatch or truncation, and any inflated bytes beyond the pixel
	// area, as warnings now that the pixel area is complete.
	var sink [512]byte
	extra := 0
	for {
		n, err := zr.Read(sink[:])
		extra += n
		if err != nil {
			if err != io.EOF {
				log.Warn("bad image data or bad adler32", zap.Error(err))
			}
			break
		}
	}
	if extra > 0 {
		log.Warn("inflated data longer than the image, extra bytes discarded", zap.Int("extra", extra))
	}
	return nil
}

// decodeFilteredRows implements filter method 0: each row is prefixed with a
// one-byte filter id and reconstructed via the Sub/Up/Average/Paeth rules.
func decodeFilteredRows(img *raster.Image, zr io.Reader, log *zap.Logger) error {
	rowLength := img.RowLength()
	leftDelta := img.LeftDelta()
	prev := make([]byte, rowLength)
	cur := make([]byte, rowLength)
	framed := make([]byte, rowLength+1)

	for y := uint32(0); y < img.Height; y++ {
		_, err := io.ReadFull(zr, framed)
		if err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				log.Warn("inflate stream ended early, zero-filling remainder", zap.Uint32("row", y))
				zeroFillFromRow(img, y)
				return nil
			}
			return perrors.WithStack(raster.NewError(raster.KindMalformed, "read row %d: %v", y, err))
		}

		filterID := framed[0]
		copy(cur, framed[1:])

		switch filterID {
		case filterNone:
		case filterSub:
			for i := leftDelta; i < rowLength; i++ {
				cur[i] += cur[i-leftDelta]
			}
		case filterUp:
			for i := uint32(0); i < rowLength; i++ {
				cur[i] += prev[i]
			}
		case filterAvg:
			for i := uint32(0); i < rowLength; i++ {
				var left byte
				if i >= leftDelta {
					left = cur[i-leftDelta]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case filterPaeth:
			for i := uint32(0); i < rowLength; i++ {
				var left, upperLeft byte
				if i >= leftDelta {
					left = cur[i-leftDelta]
					upperLeft = prev[i-leftDelta]
				}
				cur[i] += raster.Paeth(left, prev[i], upperLeft)
			}
		default:
			return perrors.WithStack(raster.NewError(raster.KindMalformed, "row %d: bad filter id %d", y, filterID))
		}

		copy(img.Pixels[y*rowLength:y*rowLength+rowLength], cur)
		prev, cur = cur, prev
	}
	return nil
}

// decodeRawRows implements filter method 1 (PM_NONE): the whole pixel buffer
// is raw, with no per-row filter byte and no prediction.
func decodeRawRows(img *raster.Image, zr io.Reader, log *zap.Logger) error {
	n, err := io.ReadFull(zr, img.Pixels)
	if err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			log.Warn("inflate stream ended early, zero-filling remainder", zap.Int("bytesRead", n))
			for i := n; i < len(img.Pixels); i++ {
				img.Pixels[i] = 0
			}
			return nil
		}
		return perrors.WithStack(raster.NewError(raster.KindMalformed, "read raw pixel data: %v", err))
	}
	return nil
}

// zeroFillFromRow zeroes every row from fromRow (inclusive) to the end of
// the image, used when the inflate stream ends before supplying all rows.
func zeroFillFromRow(img *raster.Image, fromRow uint32) {
	rowLength := img.RowLength()
	for i := fromRow * rowLength; i < uint32(len(img.Pixels)); i++ {
		img.Pixels[i] = 0
	}
}

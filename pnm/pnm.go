// Package pnm reads and writes the trivial PNM raster formats the CLI
// accepts as an alternative input/output to PNG: P4 (1bpp bitmap), P5
// (8-bit gray) and P6 (8-bit RGB). It is a thin, strict collaborator: no
// comments, no variable whitespace, maxval fixed at 255 for P5/P6.
package pnm

import (
	"bufio"
	"io"

	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// readToken reads bytes up to and including the next single whitespace
// character (space or newline), returning the bytes before it. The PNM
// header grammar this package accepts uses exactly one separator character
// between tokens, never runs of whitespace and never comments.
func readToken(r *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return "", perrors.WithStack(raster.NewError(raster.KindMalformed, "unexpected EOF reading PNM header"))
			}
			return "", perrors.WithStack(raster.NewError(raster.KindIO, "read PNM header: %v", err))
		}
		if c == ' ' || c == '\n' {
			return string(tok), nil
		}
		tok = append(tok, c)
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", perrors.WithStack(raster.NewError(raster.KindMalformed, "unexpected EOF reading PNM header: %v", err))
	}
	return line[:len(line)-1], nil
}

func parseUint(s string) (uint32, error) {
	var v uint32
	if s == "" {
		return 0, perrors.WithStack(raster.NewError(raster.KindMalformed, "empty PNM header field"))
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, perrors.WithStack(raster.NewError(raster.KindMalformed, "bad PNM header field %q", s))
		}
		v = v*10 + uint32(c-'0')
	}
	return v, nil
}

// Read decodes a P4/P5/P6 image from r.
func Read(r io.Reader) (*raster.Image, error) {
	br := bufio.NewReader(r)

	magic, err := readToken(br)
	if err != nil {
		return nil, err
	}

	widthTok, err := readToken(br)
	if err != nil {
		return nil, err
	}
	width, err := parseUint(widthTok)
	if err != nil {
		return nil, err
	}

	var height uint32
	switch magic {
	case "P4":
		heightLine, err := readLine(br)
		if err != nil {
			return nil, err
		}
		height, err = parseUint(heightLine)
		if err != nil {
			return nil, err
		}
	case "P5", "P6":
		heightTok, err := readToken(br)
		if err != nil {
			return nil, err
		}
		height, err = parseUint(heightTok)
		if err != nil {
			return nil, err
		}
		maxvalLine, err := readLine(br)
		if err != nil {
			return nil, err
		}
		maxval, err := parseUint(maxvalLine)
		if err != nil {
			return nil, err
		}
		if maxval != 255 {
			return nil, perrors.WithStack(raster.NewError(raster.KindUnsupported, "PNM maxval must be 255, got %d", maxval))
		}
	default:
		return nil, perrors.WithStack(raster.NewError(raster.KindUnsupported, "unsupported PNM magic %q", magic))
	}

	var colorType raster.ColorType
	var bpc uint8
	switch magic {
	case "P4":
		colorType, bpc = raster.Gray, 1
	case "P5":
		colorType, bpc = raster.Gray, 8
	case "P6":
		colorType, bpc = raster.RGB, 8
	}

	img, err := raster.NewImage(width, height, bpc, colorType)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(br, img.Pixels); err != nil {
		return nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "short PNM pixel data: %v", err))
	}
	raster.MaskTrailingBits(img)
	return img, nil
}

// Write encodes img as P4, P5 or P6 depending on its color type and bpc.
// img must be bpc=1 Gray (P4), bpc=8 Gray (P5), or bpc=8 RGB (P6).
func Write(w io.Writer, img *raster.Image) error {
	bw := bufio.NewWriter(w)

	var magic string
	switch {
	case img.ColorType == raster.Gray && img.BPC == 1:
		magic = "P4"
	case img.ColorType == raster.Gray && img.BPC == 8:
		magic = "P5"
	case img.ColorType == raster.RGB && img.BPC == 8:
		magic = "P6"
	default:
		return perrors.WithStack(raster.NewError(raster.KindUnsupported,
			"PNM output requires gray bpc=1, gray bpc=8 or rgb bpc=8, got %s bpc=%d", img.ColorType, img.BPC))
	}

	if _, err := bw.WriteString(magic); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM magic: %v", err))
	}
	if _, err := bw.WriteString(" "); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM header: %v", err))
	}
	if _, err := bw.WriteString(uitoa(img.Width)); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM width: %v", err))
	}
	if _, err := bw.WriteString(" "); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM header: %v", err))
	}
	if _, err := bw.WriteString(uitoa(img.Height)); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM height: %v", err))
	}
	if magic == "P4" {
		if _, err := bw.WriteString("\n"); err != nil {
			return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM header: %v", err))
		}
	} else {
		if _, err := bw.WriteString(" 255\n"); err != nil {
			return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM header: %v", err))
		}
	}

	if _, err := bw.Write(img.Pixels); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "write PNM pixel data: %v", err))
	}
	if err := bw.Flush(); err != nil {
		return perrors.WithStack(raster.NewError(raster.KindIO, "flush PNM output: %v", err))
	}
	return nil
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

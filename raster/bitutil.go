package raster

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ReadUint32BE reads a big-endian uint32 from the front of b. Callers must
// ensure len(b) >= 4.
func ReadUint32BE(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// PutUint32BE writes v as big-endian into the front of b. Callers must ensure
// len(b) >= 4.
func PutUint32BE(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

// PutUint32LE writes v as little-endian into the front of b.
func PutUint32LE(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// PutUint16LE writes v as little-endian into the front of b.
func PutUint16LE(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// AddCheck returns a+b, failing with KindOverflow if the exact sum does not
// fit in 32 bits.
func AddCheck(a, b uint32) (uint32, error) {
	sum := uint64(a) + uint64(b)
	if sum > 0xFFFFFFFF {
		return 0, errors.WithStack(NewError(KindOverflow, "add overflow: %d + %d", a, b))
	}
	return uint32(sum), nil
}

// Add0Check checks that a+b fits in 32 bits and, if so, returns a unchanged.
// It exists for call sites that only need the overflow check as a guard
// before using a by itself.
func Add0Check(a, b uint32) (uint32, error) {
	if _, err := AddCheck(a, b); err != nil {
		return 0, err
	}
	return a, nil
}

// MultiplyCheck returns a*b, failing with KindOverflow if the exact product
// does not fit in 32 bits.
func MultiplyCheck(a, b uint32) (uint32, error) {
	product := uint64(a) * uint64(b)
	if product > 0xFFFFFFFF {
		return 0, errors.WithStack(NewError(KindOverflow, "multiply overflow: %d * %d", a, b))
	}
	return uint32(product), nil
}

// Paeth implements the PNG Paeth predictor (RFC 2083 6.6): given the left,
// above and upper-left octets, predicts the current sample. Ties between a,
// b and c break in that order.
func Paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

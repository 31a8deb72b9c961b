package coloropt

import (
	"errors"

	perrors "github.com/pkg/errors"

	"github.com/cortesi/pngslim/raster"
)

// ErrTooManyColors is returned by BuildPaletteFromRGB8 when the input uses
// more than 256 distinct colors and therefore cannot be represented as a
// PNG palette.
var ErrTooManyColors = errors.New("coloropt: more than 256 distinct colors")

// hashSlots is the prime table size for the open-addressing palette hash.
const hashSlots = 1409

// paletteHash is an open-addressing hash table mapping a packed 24-bit RGB
// color to the order in which it was first seen. It bounds memory to a
// fixed 1409 slots and rejects a build once more than 256 distinct colors
// have been seen, exactly mirroring the probe sequence and overflow
// behavior specified for build_palette_from_rgb8.
type paletteHash struct {
	slot  [hashSlots]int32 // 0 == empty; otherwise 1+insertionOrder; the packed color is in color[i]
	color [hashSlots]uint32
	used  []int // slot indices, in insertion order
}

func packColor(r, g, b byte) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// find returns the slot index holding k, inserting a new (empty) slot for it
// if not already present. ok is false once the table would need to hold a
// 257th distinct color.
func (h *paletteHash) find(k uint32) (slotIdx int, isNew bool, ok bool) {
	step := 1 + int(k%uint32(hashSlots-1))
	i := int(k % uint32(hashSlots))
	for {
		if h.slot[i] == 0 {
			if len(h.used) >= 256 {
				return 0, false, false
			}
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
}

// BuildPaletteFromRGB8 scans pixels (a flat sequence of 3*N RGB samples),
// returning a palette of the distinct colors used (sorted ascending by
// packed RGB value, <= 256 entries, i.e. <= 768 bytes) and a parallel N-byte
// slice of palette indices — one per input pixel. If more than 256 distinct
// colors are present, it returns ErrTooManyColors and no other result is
// meaningful.
func BuildPaletteFromRGB8(pixels []byte) (palette []byte, indices []byte, err error) {
	if len(pixels)%3 != 0 {
		return nil, nil, perrors.WithStack(raster.NewError(raster.KindMalformed, "RGB pixel buffer length %d not a multiple of 3", len(pixels)))
	}
	n := len(pixels) / 3
	h := &paletteHash{}
	rawIndices := make([]int, n)

	for i := 0; i < n; i++ {
		r, g, b := pixels[3*i], pixels[3*i+1], pixels[3*i+2]
		k := packColor(r, g, b)
		slotIdx, _, ok := h.find(k)
		if !ok {
			return nil, nil, ErrTooManyColors
		}
		rawIndices[i] = slotIdx
	}

	// Sort the used slots by packed color ascending (Algorithm H heap-sort;
	// colors are distinct so stability does not matter).
	order := make([]int, len(h.used))
	copy(order, h.used)
	heapSortSlots(order, h.color[:])

	// rank[slot] = final ascending-order palette index.
	rank := make(map[int]byte, len(order))
	palette = make([]byte, 3*len(order))
	for newIdx, slotIdx := range order {
		rank[slotIdx] = byte(newIdx)
		c := h.color[slotIdx]
		palette[3*newIdx+0] = byte(c >> 16)
		palette[3*newIdx+1] = byte(c >> 8)
		palette[3*newIdx+2] = byte(c)
	}

	indices = make([]byte, n)
	for i, slotIdx := range rawIndices {
		indices[i] = rank[slotIdx]
	}
	return palette, indices, nil
}

// heapSortSlots sorts slots (indices into color) ascending by color[slots[i]]
// using a binary max-heap, per Knuth 5.2.3 Algorithm H.
func heapSortSlots(slots []int, color []uint32) {
	n := len(slots)
	less := func(i, j int) bool { return color[slots[i]] < color[slots[j]] }
	siftDown := func(start, end int) {
		root := start
		for {
			child := 2*root + 1
			if child > end {
				return
			}
			if child+1 <= end && less(child, child+1) {
				child++
			}
			if !less(root, child) {
				return
			}
			slots[root], slots[child] = slots[child], slots[root]
			root = child
		}
	}
	for start := n/2 - 1; start >= 0; start-- {
		siftDown(start, n-1)
	}
	for end := n - 1; end > 0; end-- {
		slots[0], slots[end] = slots[end], slots[0]
		siftDown(0, end-1)
	}
}

// Package interlace implements the Adam7 deinterleaver: pass geometry and
// the two reassembly modes that place pass pixels into final image rows.
package interlace

// Pass holds the fixed origin and stride of one Adam7 pass.
type Pass struct {
	XStart, YStart int
	XStep, YStep   int
}

// Passes is the Adam7 pass table.
var Passes = [7]Pass{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// blockWidth and blockHeight are the per-pass replication extents for
// block (coarse-to-fine) display: the rectangle for which a pass pixel is
// currently the best estimate.
var (
	blockWidth  = [7]int{8, 4, 4, 2, 2, 1, 1}
	blockHeight = [7]int{8, 8, 4, 4, 2, 2, 1}
)

// Rows returns the number of scanlines pass contributes for an image of
// the given height.
func Rows(height uint32, pass int) int {
	p := Passes[pass]
	if uint32(p.YStart) >= height {
		return 0
	}
	return int((height - uint32(p.YStart) + uint32(p.YStep) - 1) / uint32(p.YStep))
}

// Cols returns the number of pixels per scanline in pass for an image of
// the given width.
func Cols(width uint32, pass int) int {
	p := Passes[pass]
	if uint32(p.XStart) >= width {
		return 0
	}
	return int((width - uint32(p.XStart) + uint32(p.XStep) - 1) / uint32(p.XStep))
}

// Empty reports whether the pass contributes no pixels at all. Empty
// passes are skipped entirely, including their per-row filter bytes.
func Empty(width, height uint32, pass int) bool {
	return Rows(height, pass) == 0 || Cols(width, pass) == 0
}

// getPixel extracts pixel i of a packed row at the given pixel depth.
// Sub-byte pixels are packed most-significant-bits first.
func getPixel(row []byte, i, depth int) uint64 {
	switch {
	case depth >= 8:
		n := depth / 8
		off := i * n
		var v uint64
		for k := 0; k < n; k++ {
			v = v<<8 | uint64(row[off+k])
		}
		return v
	default:
		bit := i * depth
		b := row[bit>>3]
		shift := 8 - depth - (bit & 7)
		return uint64((b >> shift) & byte(1<<depth-1))
	}
}

// putPixel stores a pixel value at index i, preserving the bits of
// neighbouring pixels in shared bytes (including the unused bits of the
// final byte of the row).
func putPixel(row []byte, i, depth int, v uint64) {
	switch {
	case depth >= 8:
		n := depth / 8
		off := i * n
		for k := n - 1; k >= 0; k-- {
			row[off+k] = byte(v)
			v >>= 8
		}
	default:
		bit := i * depth
		shift := 8 - depth - (bit & 7)
		mask := byte((1<<depth)-1) << shift
		row[bit>>3] = row[bit>>3]&^mask | byte(v<<shift)&mask
	}
}

// Sparkle places one decoded pass row into its exact final positions in
// the full-width destination row. Positions the pass does not touch keep
// their previous value.
func Sparkle(dst, src []byte, pass int, width uint32, pixelDepth int) {
	p := Passes[pass]
	cols := Cols(width, pass)
	for i := 0; i < cols; i++ {
		x := p.XStart + i*p.XStep
		putPixel(dst, x, pixelDepth, getPixel(src, i, pixelDepth))
	}
}

// Block replicates one decoded pass row across the rectangle each pixel
// currently best estimates. fb is the full framebuffer, rowBytes its
// stride, and y the final row of the pass row being placed.
func Block(fb []byte, rowBytes int, y int, src []byte, pass int, width, height uint32, pixelDepth int) {
	p := Passes[pass]
	cols := Cols(width, pass)
	ymax := y + blockHeight[pass]
	if ymax > int(height) {
		ymax = int(height)
	}
	for i := 0; i < cols; i++ {
		v := getPixel(src, i, pixelDepth)
		x := p.XStart + i*p.XStep
		xmax := x + blockWidth[pass]
		if xmax > int(width) {
			xmax = int(width)
		}
		for yy := y; yy < ymax; yy++ {
			row := fb[yy*rowBytes : (yy+1)*rowBytes]
			for xx := x; xx < xmax; xx++ {
				putPixel(row, xx, pixelDepth, v)
			}
		}
	}
}

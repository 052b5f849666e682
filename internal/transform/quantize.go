package transform

import (
	"github.com/pkg/errors"

	"github.com/deepteams/png/internal/chunk"
)

// Quantization cube geometry: 5 bits per channel.
const (
	quantBits  = 5
	quantShift = 8 - quantBits
	quantSide  = 1 << quantBits
)

// initQuantize prepares the palette-reduction state: for palette images a
// reduced palette plus an index remap, for truecolor images a lookup cube
// over the caller-supplied target palette.
func (p *Pipeline) initQuantize() error {
	q := p.cfg.Quantize
	if q.MaxColors <= 0 || q.MaxColors > chunk.MaxPalette {
		return errors.Wrap(chunk.ErrConfig, "quantize max colors")
	}
	if p.info.ColorType == chunk.ColorPalette {
		if len(p.palette) > q.MaxColors {
			if q.Histogram != nil {
				p.reduceWithHistogram(q)
			} else {
				p.reduceByMerging(q)
			}
		}
		if q.Full {
			p.buildCube(p.palette)
		}
		return nil
	}
	if len(q.Palette) == 0 {
		return errors.Wrap(chunk.ErrConfig, "quantize without a target palette")
	}
	target := q.Palette
	if len(target) > q.MaxColors {
		target = target[:q.MaxColors]
	}
	p.palette = append([]chunk.RGB(nil), target...)
	p.buildCube(p.palette)
	return nil
}

// reduceWithHistogram keeps the most-used palette entries: a bubble sort
// by descending count moves the least-used entries past the cut, then the
// palette is rewritten and a remap built.
func (p *Pipeline) reduceWithHistogram(q *QuantizeSpec) {
	n := len(p.palette)
	max := q.MaxColors
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	hist := func(i int) int {
		if order[i] < len(q.Histogram) {
			return int(q.Histogram[order[i]])
		}
		return 0
	}
	// Bubble the least-used entries toward the tail, repeating passes
	// until one completes without a swap.
	for done := false; !done; {
		done = true
		for i := 0; i < n-1; i++ {
			if hist(i) < hist(i+1) {
				order[i], order[i+1] = order[i+1], order[i]
				done = false
			}
		}
	}
	p.applyPaletteOrder(order, max)
}

// reduceByMerging repeatedly folds the closest pair of entries until the
// palette fits. Each pass scans every pair of surviving entries; no
// distance bucketing is used.
func (p *Pipeline) reduceByMerging(q *QuantizeSpec) {
	n := len(p.palette)
	max := q.MaxColors
	alive := make([]bool, n)
	remap := make([]int, n)
	for i := range alive {
		alive[i] = true
		remap[i] = i
	}
	count := n
	for count > max {
		bi, bj, best := -1, -1, int(^uint(0)>>1)
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] {
					continue
				}
				d := rgbDistance(p.palette[i], p.palette[j])
				if d < best {
					best, bi, bj = d, i, j
				}
			}
		}
		// Fold j into i, averaging the pair.
		a, b := p.palette[bi], p.palette[bj]
		p.palette[bi] = chunk.RGB{
			R: uint8((int(a.R) + int(b.R)) / 2),
			G: uint8((int(a.G) + int(b.G)) / 2),
			B: uint8((int(a.B) + int(b.B)) / 2),
		}
		alive[bj] = false
		for k := range remap {
			if remap[k] == bj {
				remap[k] = bi
			}
		}
		count--
	}
	// Compact the surviving entries.
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if alive[i] {
			order = append(order, i)
		}
	}
	for i := 0; i < n; i++ {
		if !alive[i] {
			order = append(order, i)
		}
	}
	// remap indirection: entry i first maps through remap, then to the
	// compacted position.
	pos := make([]int, n)
	for newIdx, old := range order {
		pos[old] = newIdx
	}
	newPal := make([]chunk.RGB, max)
	for i := 0; i < max && i < len(order); i++ {
		newPal[i] = p.palette[order[i]]
	}
	idx := make([]uint8, n)
	for i := 0; i < n; i++ {
		t := pos[remap[i]]
		if t >= max {
			t = 0
		}
		idx[i] = uint8(t)
	}
	p.palette = newPal
	p.quantIndex = idx
}

// applyPaletteOrder rewrites the palette to the first max entries of
// order and builds the remap, pointing dropped entries at their nearest
// survivor.
func (p *Pipeline) applyPaletteOrder(order []int, max int) {
	n := len(p.palette)
	newPal := make([]chunk.RGB, max)
	pos := make([]int, n)
	for newIdx, old := range order {
		pos[old] = newIdx
	}
	for i := 0; i < max; i++ {
		newPal[i] = p.palette[order[i]]
	}
	idx := make([]uint8, n)
	for i := 0; i < n; i++ {
		if pos[i] < max {
			idx[i] = uint8(pos[i])
			continue
		}
		// Dropped: nearest surviving entry.
		best, bestD := 0, int(^uint(0)>>1)
		for j := 0; j < max; j++ {
			d := rgbDistance(p.palette[i], newPal[j])
			if d < bestD {
				best, bestD = j, d
			}
		}
		idx[i] = uint8(best)
	}
	p.palette = newPal
	p.quantIndex = idx
}

// rgbDistance is the quantization metric: the L1 distance plus the
// largest single-component difference.
func rgbDistance(a, b chunk.RGB) int {
	dr := absInt(int(a.R) - int(b.R))
	dg := absInt(int(a.G) - int(b.G))
	db := absInt(int(a.B) - int(b.B))
	m := dr
	if dg > m {
		m = dg
	}
	if db > m {
		m = db
	}
	return dr + dg + db + m
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// buildCube fills the 5:5:5 lookup cube: every cell records the palette
// entry closest to the cell's center.
func (p *Pipeline) buildCube(pal []chunk.RGB) {
	cube := make([]uint8, quantSide*quantSide*quantSide)
	for r := 0; r < quantSide; r++ {
		for g := 0; g < quantSide; g++ {
			for b := 0; b < quantSide; b++ {
				c := chunk.RGB{
					R: uint8(r<<quantShift | 1<<(quantShift-1)),
					G: uint8(g<<quantShift | 1<<(quantShift-1)),
					B: uint8(b<<quantShift | 1<<(quantShift-1)),
				}
				best, bestD := 0, int(^uint(0)>>1)
				for i, e := range pal {
					d := rgbDistance(c, e)
					if d < bestD {
						best, bestD = i, d
					}
				}
				cube[(r<<quantBits|g)<<quantBits|b] = uint8(best)
			}
		}
	}
	p.quantCube = cube
}

// quantizeRow maps a row to palette indices: index remap for palette
// sources, cube lookup for 8-bit RGB(A) sources.
func (p *Pipeline) quantizeRow(ri *RowInfo, row []byte) {
	w := int(ri.Width)
	if ri.Flags&FlagIndexed != 0 {
		if ri.BitDepth != 8 || p.quantIndex == nil {
			return
		}
		for i := 0; i < w; i++ {
			if int(row[i]) < len(p.quantIndex) {
				row[i] = p.quantIndex[row[i]]
			}
		}
		return
	}
	if ri.BitDepth != 8 || ri.Channels < 3 || p.quantCube == nil {
		return
	}
	step := int(ri.Channels)
	for i := 0; i < w; i++ {
		r := int(row[i*step]) >> quantShift
		g := int(row[i*step+1]) >> quantShift
		b := int(row[i*step+2]) >> quantShift
		row[i] = p.quantCube[(r<<quantBits|g)<<quantBits|b]
	}
	ri.Channels = 1
	ri.Flags |= FlagIndexed
	ri.recompute()
}

// QuantizedPalette exposes the palette after reduction so the caller can
// interpret the emitted indices.
func (p *Pipeline) QuantizedPalette() []chunk.RGB { return p.palette }

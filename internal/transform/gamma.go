package transform

import (
	"math"

	"github.com/deepteams/png/internal/chunk"
)

// gammaTables holds every precomputed gamma table the row transforms use.
// They are built once, before the first row, and are read-only afterward.
//
// The 16-bit tables are reduced by shift so they fit in memory: samples
// index them as v >> shift. The compositing tables convert between the
// encoded sample space and a 16-bit linear space.
type gammaTables struct {
	shift  uint // 16-bit sample index reduction
	shift8 uint // linear-to-8-bit index reduction (from1_8)

	tbl8  [256]uint8 // 8-bit file → screen correction
	tbl16 []uint16   // 16-bit file → screen correction

	to1_8   [256]uint16 // 8-bit sample → 16-bit linear
	from1_8 []uint8     // 16-bit linear >> shift8 → 8-bit screen

	to1_16   []uint16 // 16-bit sample >> shift → 16-bit linear
	from1_16 []uint16 // 16-bit linear >> shift → 16-bit screen

	// The rgb→gray stage runs before the gamma stage, so its weighted
	// result must return to the file encoding, not the screen one.
	file1_8  []uint8  // 16-bit linear >> shift8 → 8-bit file-encoded
	file1_16 []uint16 // 16-bit linear >> shift → 16-bit file-encoded
}

// gammaShift16 reduces the 16-bit tables to 2048 entries, keeping 11
// significant bits.
const gammaShift16 = 5

// initGamma decides whether gamma correction is active and builds the
// tables. Compositing and the alpha modes need the linear tables even
// when the end-to-end correction is insignificant.
func (p *Pipeline) initGamma() error {
	fileFixed := p.fileGamma()
	screen := p.cfg.ScreenGamma
	if p.flags&Gamma == 0 && p.cfg.Background == nil && p.cfg.Mode == AlphaPNG {
		return nil
	}
	if fileFixed == 0 {
		// No gAMA and no override: assume the sRGB encoding.
		fileFixed = 45455
	}
	if screen == 0 {
		if p.cfg.ModeOutputGamma != 0 {
			screen = p.cfg.ModeOutputGamma
		} else if p.flags&Gamma != 0 {
			screen = 2.2
		} else {
			return nil
		}
	}
	file := float64(fileFixed) / 100000

	needCorrect := gammaSignificant(file * screen)
	needLinear := p.cfg.Background != nil || p.cfg.Mode != AlphaPNG
	if !needCorrect && !needLinear {
		return nil
	}

	g := &gammaTables{shift: gammaShift16, shift8: 8}
	correct := 1.0 / (file * screen)
	toLinear := 1.0 / file
	fromLinear := 1.0 / screen

	for i := 0; i < 256; i++ {
		v := float64(i) / 255
		g.tbl8[i] = uint8(math.Round(255 * math.Pow(v, correct)))
		g.to1_8[i] = uint16(math.Round(65535 * math.Pow(v, toLinear)))
	}
	n8 := 1 << (16 - g.shift8)
	g.from1_8 = make([]uint8, n8)
	g.file1_8 = make([]uint8, n8)
	for i := 0; i < n8; i++ {
		v := float64(i<<g.shift8|(1<<g.shift8-1)/2) / 65535
		g.from1_8[i] = uint8(math.Round(255 * math.Pow(v, fromLinear)))
		g.file1_8[i] = uint8(math.Round(255 * math.Pow(v, file)))
	}

	n16 := 1 << (16 - g.shift)
	g.tbl16 = make([]uint16, n16)
	g.to1_16 = make([]uint16, n16)
	g.from1_16 = make([]uint16, n16)
	g.file1_16 = make([]uint16, n16)
	for i := 0; i < n16; i++ {
		v := float64(i<<g.shift|(1<<g.shift-1)/2) / 65535
		g.tbl16[i] = uint16(math.Round(65535 * math.Pow(v, correct)))
		g.to1_16[i] = uint16(math.Round(65535 * math.Pow(v, toLinear)))
		g.from1_16[i] = uint16(math.Round(65535 * math.Pow(v, fromLinear)))
		g.file1_16[i] = uint16(math.Round(65535 * math.Pow(v, file)))
	}

	if !needCorrect {
		// Identity correction keeps opaque pixels byte-exact while the
		// linear tables serve compositing.
		for i := 0; i < 256; i++ {
			g.tbl8[i] = uint8(i)
		}
		for i := 0; i < n16; i++ {
			g.tbl16[i] = uint16(i<<g.shift | (1<<g.shift-1)/2)
		}
	}

	p.gamma = g
	return nil
}

// applyGamma corrects the color channels in place, leaving alpha alone.
func (p *Pipeline) applyGamma(ri *RowInfo, row []byte) {
	g := p.gamma
	if g == nil || ri.Flags&FlagIndexed != 0 || ri.BitDepth < 8 {
		return
	}
	w := int(ri.Width)
	colors := int(ri.Channels)
	hasAlpha := ri.Channels == 2 || ri.Channels == 4
	if hasAlpha {
		colors--
	}
	if ri.BitDepth == 8 {
		step := int(ri.Channels)
		for i := 0; i < w; i++ {
			off := i * step
			for c := 0; c < colors; c++ {
				row[off+c] = g.tbl8[row[off+c]]
			}
		}
	} else {
		step := 2 * int(ri.Channels)
		for i := 0; i < w; i++ {
			off := i * step
			for c := 0; c < colors; c++ {
				v := uint16(row[off+2*c])<<8 | uint16(row[off+2*c+1])
				v = g.tbl16[v>>g.shift]
				row[off+2*c] = byte(v >> 8)
				row[off+2*c+1] = byte(v)
			}
		}
	}
}

// initPaletteTransforms applies gamma and background compositing to the
// palette itself when the image stays indexed, so row processing is a
// plain lookup.
func (p *Pipeline) initPaletteTransforms() {
	if p.info.ColorType != chunk.ColorPalette || p.flags&Expand != 0 {
		return
	}
	bg := p.cfg.Background
	g := p.gamma
	if bg == nil && g == nil {
		return
	}

	var bgR, bgG, bgB uint8
	if bg != nil {
		if int(bg.Index) < len(p.palette) {
			e := p.palette[bg.Index]
			bgR, bgG, bgB = e.R, e.G, e.B
		} else {
			bgR, bgG, bgB = uint8(bg.Red), uint8(bg.Green), uint8(bg.Blue)
		}
	}

	for i := range p.palette {
		e := &p.palette[i]
		a := 255
		if i < p.numTrans {
			a = int(p.trans[i])
		}
		if bg != nil && a != 255 {
			e.R = compose8(e.R, bgR, uint8(a), g)
			e.G = compose8(e.G, bgG, uint8(a), g)
			e.B = compose8(e.B, bgB, uint8(a), g)
			if p.flags&StripAlpha != 0 && i < p.numTrans {
				p.trans[i] = 255
			}
		} else if g != nil {
			e.R = g.tbl8[e.R]
			e.G = g.tbl8[e.G]
			e.B = g.tbl8[e.B]
		}
	}
}

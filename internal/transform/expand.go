package transform

import (
	"github.com/deepteams/png/internal/chunk"
	"github.com/deepteams/png/internal/pool"
)

// grayScale maps sub-byte gray depths to the factor that replicates the
// sample bits across 8.
var grayScale = map[uint8]uint8{1: 0xFF, 2: 0x55, 4: 0x11}

// unpackTo8 rewrites a packed single-channel row as one byte per sample,
// working backward so the row can grow in place. scale replicates sample
// bits for gray; palette indices use scale 1.
func unpackTo8(ri *RowInfo, row []byte, scale uint8) {
	depth := int(ri.BitDepth)
	w := int(ri.Width)
	for i := w - 1; i >= 0; i-- {
		row[i] = getSample(row, i, depth) * scale
	}
	ri.BitDepth = 8
	ri.recompute()
}

// expandPalette turns palette indices into RGB or RGBA samples. Indices
// beyond the palette substitute opaque black and raise the bad-index flag.
func (p *Pipeline) expandPalette(ri *RowInfo, row []byte) {
	if ri.BitDepth < 8 {
		unpackTo8(ri, row, 1)
	}
	w := int(ri.Width)
	n := len(p.palette)
	for i := 0; i < w; i++ {
		if int(row[i]) >= n {
			ri.Flags |= FlagBadIndex
			break
		}
	}

	if p.numTrans > 0 {
		p.expandPaletteRGBA(ri, row)
	} else {
		// RGB output: backward copy, three bytes per index.
		for i := w - 1; i >= 0; i-- {
			var e chunk.RGB
			if int(row[i]) < n {
				e = p.palette[row[i]]
			}
			row[3*i] = e.R
			row[3*i+1] = e.G
			row[3*i+2] = e.B
		}
		ri.Channels = 3
	}
	ri.Flags &^= FlagIndexed
	ri.recompute()
	if ri.Flags&FlagBadIndex != 0 && p.Warn != nil {
		p.Warn("palette index out of range")
	}
}

// expandPaletteRGBA expands indices to RGBA, through the riffled-palette
// fast path when the capability layer accepts, scalar otherwise. The fast
// path reads the indices from scratch because the output overlaps them.
func (p *Pipeline) expandPaletteRGBA(ri *RowInfo, row []byte) {
	w := int(ri.Width)
	if p.riffled != nil && p.caps != nil {
		idx := pool.Get(w)
		copy(idx, row[:w])
		done := p.caps.ExpandPalette(row, idx, w, p.riffled)
		// Finish the tail scalar.
		for i := w - 1; i >= done; i-- {
			p.putRGBA(row[4*i:], idx[i])
		}
		pool.Put(idx)
	} else {
		for i := w - 1; i >= 0; i-- {
			p.putRGBA(row[4*i:], row[i])
		}
	}
	ri.Channels = 4
}

func (p *Pipeline) putRGBA(dst []byte, idx uint8) {
	var e chunk.RGB
	a := uint8(255)
	if int(idx) < len(p.palette) {
		e = p.palette[idx]
	}
	if int(idx) < p.numTrans {
		a = p.trans[idx]
	}
	dst[0], dst[1], dst[2], dst[3] = e.R, e.G, e.B, a
}

// expandNonPalette expands sub-byte gray to 8 bits and converts a tRNS
// transparent color into an explicit alpha channel.
func (p *Pipeline) expandNonPalette(ri *RowInfo, row []byte) {
	info := p.info
	wantAlpha := p.flags&(Expand|TRNSToAlpha) != 0

	if info.ColorType == chunk.ColorGray {
		transGray := info.Trans.Gray
		if ri.BitDepth < 8 && (p.flags&(Expand|ExpandGray124) != 0 || wantAlpha && info.Trans.Kind == chunk.TransGray) {
			scale := grayScale[ri.BitDepth]
			unpackTo8(ri, row, scale)
			transGray *= uint16(scale)
		}
		if wantAlpha && info.Trans.Kind == chunk.TransGray && ri.BitDepth >= 8 {
			p.attachGrayAlpha(ri, row, transGray)
		}
		return
	}
	if info.ColorType == chunk.ColorRGB && wantAlpha && info.Trans.Kind == chunk.TransRGB {
		p.attachRGBAlpha(ri, row)
	}
}

// attachGrayAlpha appends alpha 0 for samples matching the transparent
// gray level and full opacity otherwise.
func (p *Pipeline) attachGrayAlpha(ri *RowInfo, row []byte, transGray uint16) {
	w := int(ri.Width)
	if ri.BitDepth == 8 {
		for i := w - 1; i >= 0; i-- {
			g := row[i]
			a := uint8(255)
			if uint16(g) == transGray {
				a = 0
			}
			row[2*i] = g
			row[2*i+1] = a
		}
	} else {
		for i := w - 1; i >= 0; i-- {
			hi, lo := row[2*i], row[2*i+1]
			var a uint8 = 0xFF
			if uint16(hi)<<8|uint16(lo) == transGray {
				a = 0
			}
			row[4*i] = hi
			row[4*i+1] = lo
			row[4*i+2] = a
			row[4*i+3] = a
		}
	}
	ri.Channels = 2
	ri.recompute()
}

// attachRGBAlpha appends alpha derived from the RGB transparent color.
// All sample bytes take part in the comparison, including the low bytes
// of 16-bit samples.
func (p *Pipeline) attachRGBAlpha(ri *RowInfo, row []byte) {
	w := int(ri.Width)
	t := p.info.Trans
	if ri.BitDepth == 8 {
		tr, tg, tb := uint8(t.Red), uint8(t.Green), uint8(t.Blue)
		for i := w - 1; i >= 0; i-- {
			r, g, b := row[3*i], row[3*i+1], row[3*i+2]
			a := uint8(255)
			if r == tr && g == tg && b == tb {
				a = 0
			}
			row[4*i] = r
			row[4*i+1] = g
			row[4*i+2] = b
			row[4*i+3] = a
		}
	} else {
		for i := w - 1; i >= 0; i-- {
			s := row[6*i : 6*i+6]
			r := uint16(s[0])<<8 | uint16(s[1])
			g := uint16(s[2])<<8 | uint16(s[3])
			b := uint16(s[4])<<8 | uint16(s[5])
			var a uint8 = 0xFF
			if r == t.Red && g == t.Green && b == t.Blue {
				a = 0
			}
			d := row[8*i : 8*i+8]
			copy(d[:6], s)
			d[6], d[7] = a, a
		}
	}
	ri.Channels = 4
	ri.recompute()
}

// stripAlpha drops the trailing alpha channel.
func stripAlpha(ri *RowInfo, row []byte) {
	if ri.Channels != 2 && ri.Channels != 4 {
		return
	}
	w := int(ri.Width)
	keep := int(ri.Channels) - 1
	if ri.BitDepth == 8 {
		for i := 0; i < w; i++ {
			copy(row[keep*i:], row[(keep+1)*i:(keep+1)*i+keep])
		}
	} else {
		for i := 0; i < w; i++ {
			copy(row[2*keep*i:], row[2*(keep+1)*i:2*(keep+1)*i+2*keep])
		}
	}
	ri.Channels--
	ri.Flags &^= FlagFillerInAlpha
	ri.recompute()
}

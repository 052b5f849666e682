package transform

import (
	"math"

	"github.com/deepteams/png/internal/chunk"
)

// bgState is the background color resolved into screen-encoded samples at
// both depths plus 16-bit linear values for compositing.
type bgState struct {
	r8, g8, b8    uint8
	r16, g16, b16 uint16
	lr, lg, lb    uint16
}

// background resolves the configured background into bgState once the
// gamma tables exist. Returns nil when compositing is off.
func (p *Pipeline) background() *bgState {
	if p.bg != nil {
		return p.bg
	}
	bg := p.cfg.Background
	if bg == nil {
		return nil
	}
	r, g, b := bg.Red, bg.Green, bg.Blue
	if p.info.ColorType&chunk.ColorMaskColor == 0 {
		r, g, b = bg.Gray, bg.Gray, bg.Gray
	}
	if p.info.ColorType == chunk.ColorPalette && int(bg.Index) < len(p.palette) {
		e := p.palette[bg.Index]
		r, g, b = uint16(e.R), uint16(e.G), uint16(e.B)
	}

	// Scale to 16 bits. Palette samples are 8-bit regardless of the
	// index depth.
	depth := p.info.BitDepth
	if p.info.ColorType == chunk.ColorPalette {
		depth = 8
	}
	if bg.NeedExpand && depth < 8 {
		s := uint16(grayScale[depth])
		r, g, b = r*s, g*s, b*s
		depth = 8
	}
	if depth <= 8 {
		r, g, b = r*257, g*257, b*257
	}

	st := &bgState{}
	if gt := p.gamma; gt != nil {
		file := float64(p.effectiveFileGamma()) / 100000
		screen := p.screenGamma()
		lin := func(v uint16) uint16 {
			f := float64(v) / 65535
			switch bg.GammaCode {
			case BackgroundGammaFile:
				f = math.Pow(f, 1/file)
			case BackgroundGammaScreen:
				f = math.Pow(f, screen)
			case BackgroundGammaUnique:
				if bg.Gamma > 0 {
					f = math.Pow(f, 1/bg.Gamma)
				}
			}
			return uint16(math.Round(65535 * f))
		}
		st.lr, st.lg, st.lb = lin(r), lin(g), lin(b)
		enc := func(l uint16) uint16 {
			return uint16(math.Round(65535 * math.Pow(float64(l)/65535, 1/screen)))
		}
		st.r16, st.g16, st.b16 = enc(st.lr), enc(st.lg), enc(st.lb)
	} else {
		st.r16, st.g16, st.b16 = r, g, b
		st.lr, st.lg, st.lb = r, g, b
	}
	st.r8, st.g8, st.b8 = uint8(st.r16>>8), uint8(st.g16>>8), uint8(st.b16>>8)
	p.bg = st
	return st
}

func (p *Pipeline) effectiveFileGamma() int32 {
	if g := p.fileGamma(); g != 0 {
		return g
	}
	return 45455
}

func (p *Pipeline) screenGamma() float64 {
	if p.cfg.ScreenGamma != 0 {
		return p.cfg.ScreenGamma
	}
	if p.cfg.ModeOutputGamma != 0 {
		return p.cfg.ModeOutputGamma
	}
	return 2.2
}

// compose8 composites one 8-bit sample over a background sample of the
// same encoding, in linear space when gamma tables are present.
func compose8(fg, bg, a uint8, g *gammaTables) uint8 {
	if a == 255 {
		if g != nil {
			return g.tbl8[fg]
		}
		return fg
	}
	if a == 0 {
		return bg
	}
	if g != nil {
		lf := int(g.to1_8[fg])
		lb := int(g.to1_8[bg])
		l := (lf*int(a) + lb*(255-int(a)) + 127) / 255
		return g.from1_8[uint(l)>>g.shift8]
	}
	return uint8((int(fg)*int(a) + int(bg)*(255-int(a)) + 127) / 255)
}

// composeSample8 composites one sample against a prepared linear background.
func (p *Pipeline) composeSample8(fg uint8, bgScreen uint8, bgLin uint16, a uint8) uint8 {
	g := p.gamma
	switch a {
	case 255:
		if g != nil {
			return g.tbl8[fg]
		}
		return fg
	case 0:
		return bgScreen
	}
	if g != nil {
		lf := int(g.to1_8[fg])
		l := (lf*int(a) + int(bgLin)*(255-int(a)) + 127) / 255
		return g.from1_8[uint(l)>>g.shift8]
	}
	return uint8((int(fg)*int(a) + int(bgScreen)*(255-int(a)) + 127) / 255)
}

func (p *Pipeline) composeSample16(fg uint16, bgScreen, bgLin uint16, a uint16) uint16 {
	g := p.gamma
	switch a {
	case 0xFFFF:
		if g != nil {
			return g.tbl16[fg>>g.shift]
		}
		return fg
	case 0:
		return bgScreen
	}
	if g != nil {
		lf := uint64(g.to1_16[fg>>g.shift])
		l := (lf*uint64(a) + uint64(bgLin)*uint64(0xFFFF-a) + 0x7FFF) / 0xFFFF
		return g.from1_16[uint(l)>>g.shift]
	}
	return uint16((uint64(fg)*uint64(a) + uint64(bgScreen)*uint64(0xFFFF-a) + 0x7FFF) / 0xFFFF)
}

// compose replaces transparent and partially transparent pixels with the
// configured background. It owns gamma application for the whole row, so
// opaque pixels are corrected here too.
func (p *Pipeline) compose(ri *RowInfo, row []byte) {
	st := p.background()
	if st == nil || ri.Flags&FlagIndexed != 0 {
		// Palette compositing happened in the palette itself.
		return
	}
	w := int(ri.Width)
	t := p.info.Trans

	switch {
	case ri.Channels == 1 && ri.BitDepth < 8:
		// Packed gray with a transparent level: plain substitution.
		if t.Kind != chunk.TransGray {
			return
		}
		bg := uint8(st.r16 >> (16 - uint(ri.BitDepth)))
		for i := 0; i < w; i++ {
			if uint16(getSample(row, i, int(ri.BitDepth))) == t.Gray {
				putSample(row, i, int(ri.BitDepth), bg)
			}
		}
	case ri.Channels == 1 && ri.BitDepth == 8:
		for i := 0; i < w; i++ {
			if t.Kind == chunk.TransGray && uint16(row[i]) == t.Gray {
				row[i] = st.r8
			} else if g := p.gamma; g != nil {
				row[i] = g.tbl8[row[i]]
			}
		}
	case ri.Channels == 1 && ri.BitDepth == 16:
		for i := 0; i < w; i++ {
			v := uint16(row[2*i])<<8 | uint16(row[2*i+1])
			if t.Kind == chunk.TransGray && v == t.Gray {
				v = st.r16
			} else if g := p.gamma; g != nil {
				v = g.tbl16[v>>g.shift]
			}
			row[2*i] = byte(v >> 8)
			row[2*i+1] = byte(v)
		}
	case ri.Channels == 2 && ri.BitDepth == 8:
		for i := 0; i < w; i++ {
			a := row[2*i+1]
			row[2*i] = p.composeSample8(row[2*i], st.r8, st.lr, a)
		}
	case ri.Channels == 2 && ri.BitDepth == 16:
		for i := 0; i < w; i++ {
			a := uint16(row[4*i+2])<<8 | uint16(row[4*i+3])
			v := uint16(row[4*i])<<8 | uint16(row[4*i+1])
			v = p.composeSample16(v, st.r16, st.lr, a)
			row[4*i] = byte(v >> 8)
			row[4*i+1] = byte(v)
		}
	case ri.Channels == 3 && ri.BitDepth == 8:
		for i := 0; i < w; i++ {
			r, g8, b := row[3*i], row[3*i+1], row[3*i+2]
			if t.Kind == chunk.TransRGB &&
				uint16(r) == t.Red && uint16(g8) == t.Green && uint16(b) == t.Blue {
				row[3*i], row[3*i+1], row[3*i+2] = st.r8, st.g8, st.b8
			} else if g := p.gamma; g != nil {
				row[3*i] = g.tbl8[r]
				row[3*i+1] = g.tbl8[g8]
				row[3*i+2] = g.tbl8[b]
			}
		}
	case ri.Channels == 3 && ri.BitDepth == 16:
		for i := 0; i < w; i++ {
			s := row[6*i : 6*i+6]
			r := uint16(s[0])<<8 | uint16(s[1])
			gg := uint16(s[2])<<8 | uint16(s[3])
			b := uint16(s[4])<<8 | uint16(s[5])
			// All six bytes take part in the transparency match.
			if t.Kind == chunk.TransRGB && r == t.Red && gg == t.Green && b == t.Blue {
				r, gg, b = st.r16, st.g16, st.b16
			} else if g := p.gamma; g != nil {
				r = g.tbl16[r>>g.shift]
				gg = g.tbl16[gg>>g.shift]
				b = g.tbl16[b>>g.shift]
			}
			s[0], s[1] = byte(r>>8), byte(r)
			s[2], s[3] = byte(gg>>8), byte(gg)
			s[4], s[5] = byte(b>>8), byte(b)
		}
	case ri.Channels == 4 && ri.BitDepth == 8:
		for i := 0; i < w; i++ {
			px := row[4*i : 4*i+4]
			a := px[3]
			px[0] = p.composeSample8(px[0], st.r8, st.lr, a)
			px[1] = p.composeSample8(px[1], st.g8, st.lg, a)
			px[2] = p.composeSample8(px[2], st.b8, st.lb, a)
		}
	case ri.Channels == 4 && ri.BitDepth == 16:
		for i := 0; i < w; i++ {
			px := row[8*i : 8*i+8]
			a := uint16(px[6])<<8 | uint16(px[7])
			r := p.composeSample16(uint16(px[0])<<8|uint16(px[1]), st.r16, st.lr, a)
			gg := p.composeSample16(uint16(px[2])<<8|uint16(px[3]), st.g16, st.lg, a)
			b := p.composeSample16(uint16(px[4])<<8|uint16(px[5]), st.b16, st.lb, a)
			px[0], px[1] = byte(r>>8), byte(r)
			px[2], px[3] = byte(gg>>8), byte(gg)
			px[4], px[5] = byte(b>>8), byte(b)
		}
	}
}

// encodeAlpha applies the selected alpha mode: premultiplication for
// associated alpha, gamma-encoding of the alpha channel for the broken
// legacy mode. The png and optimized modes leave rows untouched here.
func (p *Pipeline) encodeAlpha(ri *RowInfo, row []byte) {
	if ri.Channels != 2 && ri.Channels != 4 {
		return
	}
	w := int(ri.Width)
	colors := int(ri.Channels) - 1
	switch p.cfg.Mode {
	case AlphaAssociated:
		if ri.BitDepth == 8 {
			step := int(ri.Channels)
			for i := 0; i < w; i++ {
				px := row[i*step : i*step+step]
				a := int(px[colors])
				for c := 0; c < colors; c++ {
					px[c] = uint8((int(px[c])*a + 127) / 255)
				}
			}
		} else {
			step := 2 * int(ri.Channels)
			for i := 0; i < w; i++ {
				px := row[i*step : i*step+step]
				a := uint64(uint16(px[2*colors])<<8 | uint16(px[2*colors+1]))
				for c := 0; c < colors; c++ {
					v := uint64(uint16(px[2*c])<<8 | uint16(px[2*c+1]))
					v = (v*a + 0x7FFF) / 0xFFFF
					px[2*c] = byte(v >> 8)
					px[2*c+1] = byte(v)
				}
			}
		}
	case AlphaBroken:
		g := p.gamma
		if g == nil {
			return
		}
		if ri.BitDepth == 8 {
			step := int(ri.Channels)
			for i := 0; i < w; i++ {
				off := i*step + colors
				row[off] = g.tbl8[row[off]]
			}
		} else {
			step := 2 * int(ri.Channels)
			for i := 0; i < w; i++ {
				off := i*step + 2*colors
				v := uint16(row[off])<<8 | uint16(row[off+1])
				v = g.tbl16[v>>g.shift]
				row[off] = byte(v >> 8)
				row[off+1] = byte(v)
			}
		}
	}
}

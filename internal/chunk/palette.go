package chunk

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// handlePLTE installs the palette. PLTE is critical, so structural problems
// (bad length on a palette image, duplicates, placement after IDAT) are
// fatal; on truecolor images the palette is only a suggestion and problems
// degrade to warnings.
func (p *Parser) handlePLTE(data []byte) error {
	info := p.info
	required := info.ColorType == ColorPalette

	if p.seen[NamePLTE] {
		return errors.Wrap(ErrDuplicate, "PLTE")
	}
	if p.state >= stateInIDAT {
		return errors.Wrap(ErrChunkOrder, "PLTE after IDAT")
	}
	if info.ColorType&ColorMaskColor == 0 {
		p.warn(NamePLTE, WarnValue, "PLTE in grayscale PNG")
		return nil
	}
	if len(data)%3 != 0 || len(data) == 0 || len(data) > 3*MaxPalette {
		if required {
			return errors.Wrapf(ErrBadLength, "PLTE length %d", len(data))
		}
		p.warn(NamePLTE, WarnLength, "invalid PLTE length")
		return nil
	}
	n := len(data) / 3
	if required && n > 1<<info.BitDepth {
		return errors.Wrapf(ErrBadLength, "PLTE with %d entries at bit depth %d",
			n, info.BitDepth)
	}
	pal := make([]RGB, n)
	for i := range pal {
		pal[i] = RGB{R: data[3*i], G: data[3*i+1], B: data[3*i+2]}
	}
	info.Palette = pal
	p.seen[NamePLTE] = true
	p.state = stateBeforeIDAT

	// A tRNS parsed ahead of PLTE may now be over-long.
	if info.Trans.Kind == TransPalette && len(info.Trans.Alpha) > n {
		p.warn(NametRNS, WarnLength, "tRNS longer than palette")
		info.Trans.Alpha = info.Trans.Alpha[:n]
	}
	return nil
}

// handletRNS parses transparency in its three shapes.
func (p *Parser) handletRNS(data []byte) error {
	info := p.info
	switch info.ColorType {
	case ColorPalette:
		if len(data) == 0 || len(data) > MaxPalette {
			p.warn(NametRNS, WarnLength, "invalid tRNS length")
			return nil
		}
		alpha := make([]uint8, len(data))
		copy(alpha, data)
		if n := len(info.Palette); n > 0 && len(alpha) > n {
			p.warn(NametRNS, WarnLength, "tRNS longer than palette")
			alpha = alpha[:n]
		}
		info.Trans = Transparency{Kind: TransPalette, Alpha: alpha}
	case ColorGray:
		if len(data) != 2 {
			p.warn(NametRNS, WarnLength, "invalid tRNS length")
			return nil
		}
		gray := binary.BigEndian.Uint16(data)
		if gray >= 1<<info.BitDepth {
			p.warn(NametRNS, WarnValue, "tRNS gray level exceeds bit depth")
		}
		info.Trans = Transparency{Kind: TransGray, Gray: gray}
	case ColorRGB:
		if len(data) != 6 {
			p.warn(NametRNS, WarnLength, "invalid tRNS length")
			return nil
		}
		t := Transparency{
			Kind:  TransRGB,
			Red:   binary.BigEndian.Uint16(data[0:2]),
			Green: binary.BigEndian.Uint16(data[2:4]),
			Blue:  binary.BigEndian.Uint16(data[4:6]),
		}
		if info.BitDepth < 16 {
			limit := uint16(1) << info.BitDepth
			if t.Red >= limit || t.Green >= limit || t.Blue >= limit {
				p.warn(NametRNS, WarnValue, "tRNS color exceeds bit depth")
			}
		}
		info.Trans = t
	default:
		p.warn(NametRNS, WarnValue, "tRNS with alpha channel")
	}
	return nil
}

// handlehIST parses the palette histogram: one 16-bit count per entry.
func (p *Parser) handlehIST(data []byte) error {
	info := p.info
	if len(info.Palette) == 0 {
		p.warn(NamehIST, WarnOrder, "hIST without PLTE")
		return nil
	}
	if len(data) != 2*len(info.Palette) {
		p.warn(NamehIST, WarnLength, "hIST length does not match palette")
		return nil
	}
	hist := make([]uint16, len(info.Palette))
	for i := range hist {
		hist[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	info.Hist = hist
	return nil
}

// handlesPLT parses a suggested palette. Multiple sPLT chunks are legal as
// long as their names differ.
func (p *Parser) handlesPLT(data []byte) error {
	name, rest, err := p.splitKeyword(NamesPLT, data)
	if err != nil {
		return nil // benign, already warned
	}
	if len(rest) == 0 {
		p.warn(NamesPLT, WarnLength, "sPLT missing sample depth")
		return nil
	}
	depth := rest[0]
	rest = rest[1:]
	var entrySize int
	switch depth {
	case 8:
		entrySize = 6
	case 16:
		entrySize = 10
	default:
		p.warn(NamesPLT, WarnValue, "invalid sPLT sample depth")
		return nil
	}
	if len(rest)%entrySize != 0 {
		p.warn(NamesPLT, WarnLength, "invalid sPLT length")
		return nil
	}
	for _, sp := range p.info.SPLT {
		if sp.Name == name {
			p.warn(NamesPLT, WarnDuplicate, "duplicate sPLT name")
			return nil
		}
	}
	if p.cached >= p.cfg.Limits.cachedChunks() {
		p.warn(NamesPLT, WarnLimit, "chunk cache full")
		return nil
	}
	p.cached++

	entries := make([]SPLTEntry, len(rest)/entrySize)
	for i := range entries {
		e := rest[i*entrySize:]
		if depth == 8 {
			entries[i] = SPLTEntry{
				Red: uint16(e[0]), Green: uint16(e[1]), Blue: uint16(e[2]),
				Alpha:     uint16(e[3]),
				Frequency: binary.BigEndian.Uint16(e[4:6]),
			}
		} else {
			entries[i] = SPLTEntry{
				Red:       binary.BigEndian.Uint16(e[0:2]),
				Green:     binary.BigEndian.Uint16(e[2:4]),
				Blue:      binary.BigEndian.Uint16(e[4:6]),
				Alpha:     binary.BigEndian.Uint16(e[6:8]),
				Frequency: binary.BigEndian.Uint16(e[8:10]),
			}
		}
	}
	p.info.SPLT = append(p.info.SPLT, SuggestedPalette{
		Name: name, Depth: depth, Entries: entries,
	})
	return nil
}

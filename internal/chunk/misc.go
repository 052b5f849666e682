package chunk

import (
	"bytes"
	"encoding/binary"
)

// handlesBIT parses per-channel significant-bit counts. The shape depends
// on the color type; each count must be 1..sample-depth.
func (p *Parser) handlesBIT(data []byte) error {
	info := p.info
	sampleDepth := info.BitDepth
	if info.ColorType == ColorPalette {
		sampleDepth = 8
	}
	var want int
	switch info.ColorType {
	case ColorGray:
		want = 1
	case ColorGrayAlpha:
		want = 2
	case ColorRGB, ColorPalette:
		want = 3
	case ColorRGBA:
		want = 4
	}
	if len(data) != want {
		p.warn(NamesBIT, WarnLength, "invalid sBIT length")
		return nil
	}
	for _, b := range data {
		if b == 0 || b > sampleDepth {
			p.warn(NamesBIT, WarnValue, "sBIT exceeds bit depth")
			return nil
		}
	}
	sb := &SigBits{}
	switch info.ColorType {
	case ColorGray:
		sb.Gray = data[0]
	case ColorGrayAlpha:
		sb.Gray, sb.Alpha = data[0], data[1]
	case ColorRGB, ColorPalette:
		sb.Red, sb.Green, sb.Blue = data[0], data[1], data[2]
	case ColorRGBA:
		sb.Red, sb.Green, sb.Blue, sb.Alpha = data[0], data[1], data[2], data[3]
	}
	p.info.SBits = sb
	return nil
}

// handlebKGD parses the default background color; its shape must match
// the color type.
func (p *Parser) handlebKGD(data []byte) error {
	info := p.info
	bg := &Background{}
	switch info.ColorType {
	case ColorPalette:
		if len(data) != 1 {
			p.warn(NamebKGD, WarnLength, "invalid bKGD length")
			return nil
		}
		if n := len(info.Palette); n > 0 && int(data[0]) >= n {
			p.warn(NamebKGD, WarnValue, "bKGD index exceeds palette")
			return nil
		}
		bg.Index = data[0]
		if int(data[0]) < len(info.Palette) {
			e := info.Palette[data[0]]
			bg.Red, bg.Green, bg.Blue = uint16(e.R), uint16(e.G), uint16(e.B)
		}
	case ColorGray, ColorGrayAlpha:
		if len(data) != 2 {
			p.warn(NamebKGD, WarnLength, "invalid bKGD length")
			return nil
		}
		bg.Gray = binary.BigEndian.Uint16(data)
		if bg.Gray >= 1<<info.BitDepth {
			p.warn(NamebKGD, WarnValue, "bKGD gray level exceeds bit depth")
			return nil
		}
		bg.Red, bg.Green, bg.Blue = bg.Gray, bg.Gray, bg.Gray
	default:
		if len(data) != 6 {
			p.warn(NamebKGD, WarnLength, "invalid bKGD length")
			return nil
		}
		bg.Red = binary.BigEndian.Uint16(data[0:2])
		bg.Green = binary.BigEndian.Uint16(data[2:4])
		bg.Blue = binary.BigEndian.Uint16(data[4:6])
		if info.BitDepth < 16 {
			limit := uint16(1) << info.BitDepth
			if bg.Red >= limit || bg.Green >= limit || bg.Blue >= limit {
				p.warn(NamebKGD, WarnValue, "bKGD color exceeds bit depth")
				return nil
			}
		}
	}
	p.info.Background = bg
	return nil
}

// handlepHYs parses the physical pixel dimensions.
func (p *Parser) handlepHYs(data []byte) error {
	if len(data) != 9 {
		p.warn(NamepHYs, WarnLength, "invalid pHYs length")
		return nil
	}
	unit := data[8]
	if unit > 1 {
		p.warn(NamepHYs, WarnValue, "invalid pHYs unit")
		return nil
	}
	p.info.Phys = &Phys{
		X:    binary.BigEndian.Uint32(data[0:4]),
		Y:    binary.BigEndian.Uint32(data[4:8]),
		Unit: unit,
	}
	return nil
}

// handleoFFs parses the image offset.
func (p *Parser) handleoFFs(data []byte) error {
	if len(data) != 9 {
		p.warn(NameoFFs, WarnLength, "invalid oFFs length")
		return nil
	}
	unit := data[8]
	if unit > 1 {
		p.warn(NameoFFs, WarnValue, "invalid oFFs unit")
		return nil
	}
	p.info.Offset = &Offset{
		X:    int32(binary.BigEndian.Uint32(data[0:4])),
		Y:    int32(binary.BigEndian.Uint32(data[4:8])),
		Unit: unit,
	}
	return nil
}

// pCAL equation types and their required parameter counts.
var pcalParams = [4]int{2, 3, 3, 4}

// handlepCAL parses the pixel calibration chunk: purpose NUL X0 X1 type
// nparams unit NUL then NUL-separated ASCII parameters.
func (p *Parser) handlepCAL(data []byte) error {
	purpose, rest, err := p.splitKeyword(NamepCAL, data)
	if err != nil {
		return nil
	}
	if len(rest) < 10 {
		p.warn(NamepCAL, WarnLength, "pCAL truncated")
		return nil
	}
	x0 := int32(binary.BigEndian.Uint32(rest[0:4]))
	x1 := int32(binary.BigEndian.Uint32(rest[4:8]))
	eqType := rest[8]
	nparams := int(rest[9])
	rest = rest[10:]
	if int(eqType) >= len(pcalParams) {
		p.warn(NamepCAL, WarnValue, "invalid pCAL equation type")
		return nil
	}
	if nparams != pcalParams[eqType] {
		p.warn(NamepCAL, WarnValue, "pCAL parameter count does not match equation")
		return nil
	}
	unitEnd := bytes.IndexByte(rest, 0)
	if unitEnd < 0 {
		p.warn(NamepCAL, WarnLength, "pCAL missing unit terminator")
		return nil
	}
	unit := latin1String(rest[:unitEnd])
	rest = rest[unitEnd+1:]
	params := make([]string, 0, nparams)
	for i := 0; i < nparams; i++ {
		var field []byte
		if j := bytes.IndexByte(rest, 0); j >= 0 && i < nparams-1 {
			field, rest = rest[:j], rest[j+1:]
		} else if i == nparams-1 {
			field, rest = rest, nil
		} else {
			p.warn(NamepCAL, WarnLength, "pCAL missing parameters")
			return nil
		}
		if !validASCIIFloat(field) {
			p.warn(NamepCAL, WarnValue, "invalid pCAL parameter")
			return nil
		}
		params = append(params, string(field))
	}
	p.info.Cal = &Calibration{
		Purpose: purpose, X0: x0, X1: x1, Type: eqType, Unit: unit, Params: params,
	}
	return nil
}

// handlesCAL parses the physical scale chunk: unit byte, width ASCII float,
// NUL, height ASCII float.
func (p *Parser) handlesCAL(data []byte) error {
	if len(data) < 4 {
		p.warn(NamesCAL, WarnLength, "sCAL truncated")
		return nil
	}
	unit := data[0]
	if unit != 1 && unit != 2 {
		p.warn(NamesCAL, WarnValue, "invalid sCAL unit")
		return nil
	}
	rest := data[1:]
	sep := bytes.IndexByte(rest, 0)
	if sep < 0 {
		p.warn(NamesCAL, WarnLength, "sCAL missing separator")
		return nil
	}
	w, h := rest[:sep], rest[sep+1:]
	if !validASCIIFloat(w) || !validASCIIFloat(h) || w[0] == '-' || h[0] == '-' {
		p.warn(NamesCAL, WarnValue, "invalid sCAL dimension")
		return nil
	}
	p.info.Scale = &PhysScale{Unit: unit, Width: string(w), Height: string(h)}
	return nil
}

// validASCIIFloat checks the PNG ASCII floating-point grammar:
// [sign] digits [.digits] [eE [sign] digits], with at least one digit in
// the mantissa.
func validASCIIFloat(b []byte) bool {
	i, n := 0, len(b)
	if n == 0 {
		return false
	}
	if b[i] == '+' || b[i] == '-' {
		i++
	}
	digits := 0
	for i < n && b[i] >= '0' && b[i] <= '9' {
		i++
		digits++
	}
	if i < n && b[i] == '.' {
		i++
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}
	if i < n && (b[i] == 'e' || b[i] == 'E') {
		i++
		if i < n && (b[i] == '+' || b[i] == '-') {
			i++
		}
		if i == n {
			return false
		}
		for i < n && b[i] >= '0' && b[i] <= '9' {
			i++
		}
	}
	return i == n
}

// handletIME parses the last-modification time.
func (p *Parser) handletIME(data []byte) error {
	if len(data) != 7 {
		p.warn(NametIME, WarnLength, "invalid tIME length")
		return nil
	}
	t := &Time{
		Year:   binary.BigEndian.Uint16(data[0:2]),
		Month:  data[2],
		Day:    data[3],
		Hour:   data[4],
		Minute: data[5],
		Second: data[6],
	}
	if t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 ||
		t.Hour > 23 || t.Minute > 59 || t.Second > 60 {
		p.warn(NametIME, WarnValue, "invalid tIME value")
		return nil
	}
	p.info.Time = t
	return nil
}

// handleeXIf records the raw EXIF payload.
func (p *Parser) handleeXIf(data []byte) error {
	if len(data) < 2 || (data[0] != 'I' || data[1] != 'I') && (data[0] != 'M' || data[1] != 'M') {
		p.warn(NameeXIf, WarnValue, "eXIf missing byte-order marker")
		return nil
	}
	p.info.Exif = data
	return nil
}

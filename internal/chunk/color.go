package chunk

import "encoding/binary"

// sRGB reference chromaticities in fixed point, used for the consistency
// check when both cHRM and sRGB are present.
var srgbChroma = Chromaticities{
	WhiteX: 31270, WhiteY: 32900,
	RedX: 64000, RedY: 33000,
	GreenX: 30000, GreenY: 60000,
	BlueX: 15000, BlueY: 6000,
}

func fixedDiff(a, b int32) int32 {
	if a > b {
		return a - b
	}
	return b - a
}

// handlegAMA parses the file gamma. When an sRGB chunk has already been
// seen the sRGB gamma wins; an explicit value outside the tolerance only
// earns a warning.
func (p *Parser) handlegAMA(data []byte) error {
	if len(data) != 4 {
		p.warn(NamegAMA, WarnLength, "invalid gAMA length")
		return nil
	}
	g := binary.BigEndian.Uint32(data)
	if g == 0 || g > MaxFixedPoint {
		p.warn(NamegAMA, WarnValue, "gAMA out of range")
		return nil
	}
	if p.info.SRGBIntent >= 0 {
		if fixedDiff(int32(g), SRGBGamma) > SRGBGammaTolerance {
			p.warn(NamegAMA, WarnValue, "gAMA inconsistent with sRGB")
		}
		// sRGB already fixed the gamma.
		return nil
	}
	p.info.FileGamma = int32(g)
	return nil
}

// handlecHRM parses the eight chromaticity values and, when sRGB is
// present, checks them against the sRGB reference.
func (p *Parser) handlecHRM(data []byte) error {
	if len(data) != 32 {
		p.warn(NamecHRM, WarnLength, "invalid cHRM length")
		return nil
	}
	var v [8]int32
	for i := range v {
		u := binary.BigEndian.Uint32(data[4*i:])
		if u > MaxFixedPoint {
			p.warn(NamecHRM, WarnValue, "cHRM value out of range")
			return nil
		}
		v[i] = int32(u)
	}
	c := &Chromaticities{
		WhiteX: v[0], WhiteY: v[1],
		RedX: v[2], RedY: v[3],
		GreenX: v[4], GreenY: v[5],
		BlueX: v[6], BlueY: v[7],
	}
	if p.info.SRGBIntent >= 0 {
		if !chromaMatchesSRGB(c) {
			p.warn(NamecHRM, WarnValue, "cHRM inconsistent with sRGB")
		}
		return nil
	}
	p.info.Chroma = c
	return nil
}

func chromaMatchesSRGB(c *Chromaticities) bool {
	pairs := [8][2]int32{
		{c.WhiteX, srgbChroma.WhiteX}, {c.WhiteY, srgbChroma.WhiteY},
		{c.RedX, srgbChroma.RedX}, {c.RedY, srgbChroma.RedY},
		{c.GreenX, srgbChroma.GreenX}, {c.GreenY, srgbChroma.GreenY},
		{c.BlueX, srgbChroma.BlueX}, {c.BlueY, srgbChroma.BlueY},
	}
	for _, pr := range pairs {
		if fixedDiff(pr[0], pr[1]) > SRGBChromaTolerance {
			return false
		}
	}
	return true
}

// handlesRGB records the rendering intent and imposes the sRGB gamma and
// chromaticities, checking any previously parsed explicit values.
func (p *Parser) handlesRGB(data []byte) error {
	if len(data) != 1 {
		p.warn(NamesRGB, WarnLength, "invalid sRGB length")
		return nil
	}
	intent := data[0]
	if intent > 3 {
		p.warn(NamesRGB, WarnValue, "invalid sRGB rendering intent")
		return nil
	}
	if p.info.ICC != nil {
		p.warn(NamesRGB, WarnOrder, "sRGB after iCCP")
		return nil
	}
	if g := p.info.FileGamma; g != 0 && fixedDiff(g, SRGBGamma) > SRGBGammaTolerance {
		p.warn(NamesRGB, WarnValue, "sRGB inconsistent with gAMA")
	}
	if c := p.info.Chroma; c != nil && !chromaMatchesSRGB(c) {
		p.warn(NamesRGB, WarnValue, "sRGB inconsistent with cHRM")
	}
	p.info.SRGBIntent = int(intent)
	p.info.FileGamma = SRGBGamma
	p.info.Chroma = &srgbChroma
	return nil
}

// handleiCCP parses an embedded ICC profile: canonicalised name, NUL,
// compression method 0, then a deflate stream inflated with the bounded
// two-pass scheme.
func (p *Parser) handleiCCP(data []byte) error {
	if p.info.SRGBIntent >= 0 {
		p.warn(NameiCCP, WarnOrder, "iCCP after sRGB")
		return nil
	}
	name, rest, err := p.splitKeyword(NameiCCP, data)
	if err != nil {
		return nil
	}
	if len(rest) < 1 {
		p.warn(NameiCCP, WarnLength, "iCCP missing compression method")
		return nil
	}
	if rest[0] != 0 {
		p.warn(NameiCCP, WarnValue, "unknown iCCP compression method")
		return nil
	}
	profile, err := p.inflateBounded(NameiCCP, rest[1:], p.cfg.Limits.profileSize())
	if err != nil {
		p.warn(NameiCCP, WarnInflate, err.Error())
		return nil
	}
	if len(profile) < MinICCProfile {
		p.warn(NameiCCP, WarnValue, "ICC profile too short")
		return nil
	}
	if declared := binary.BigEndian.Uint32(profile[0:4]); int(declared) != len(profile) {
		p.warn(NameiCCP, WarnValue, "ICC profile length mismatch")
		return nil
	}
	p.info.ICC = &ICCProfile{Name: name, Data: profile}
	return nil
}

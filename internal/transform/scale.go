package transform

import "github.com/deepteams/png/internal/chunk"

// scale16 reduces 16-bit samples to 8 bits with accurate rounding:
// (v*255 + 32895) >> 16, which maps 0x0080→0 and 0x0081→1.
func scale16(ri *RowInfo, row []byte) {
	if ri.BitDepth != 16 {
		return
	}
	n := int(ri.Width) * int(ri.Channels)
	for i := 0; i < n; i++ {
		v := uint32(row[2*i])<<8 | uint32(row[2*i+1])
		row[i] = uint8((v*255 + 32895) >> 16)
	}
	ri.BitDepth = 8
	ri.recompute()
}

// strip16 chops 16-bit samples to their high byte.
func strip16(ri *RowInfo, row []byte) {
	if ri.BitDepth != 16 {
		return
	}
	n := int(ri.Width) * int(ri.Channels)
	for i := 0; i < n; i++ {
		row[i] = row[2*i]
	}
	ri.BitDepth = 8
	ri.recompute()
}

// expand16 widens 8-bit samples to 16 bits by byte replication (v*257).
func expand16(ri *RowInfo, row []byte) {
	if ri.BitDepth != 8 {
		return
	}
	n := int(ri.Width) * int(ri.Channels)
	for i := n - 1; i >= 0; i-- {
		row[2*i] = row[i]
		row[2*i+1] = row[i]
	}
	ri.BitDepth = 16
	ri.recompute()
}

// invertMono inverts gray samples. Whole bytes are flipped for packed
// depths, so padding bits at end of row invert too.
func invertMono(ri *RowInfo, row []byte) {
	if ri.Channels != 1 && ri.Channels != 2 {
		return
	}
	if ri.Flags&FlagIndexed != 0 {
		return
	}
	switch {
	case ri.Channels == 1:
		for i := 0; i < ri.RowBytes; i++ {
			row[i] = ^row[i]
		}
	case ri.BitDepth == 8:
		for i := 0; i < int(ri.Width); i++ {
			row[2*i] = ^row[2*i]
		}
	default:
		for i := 0; i < int(ri.Width); i++ {
			row[4*i] = ^row[4*i]
			row[4*i+1] = ^row[4*i+1]
		}
	}
}

// invertAlpha XORs the alpha channel with full scale.
func invertAlpha(ri *RowInfo, row []byte) {
	if ri.Channels != 2 && ri.Channels != 4 {
		return
	}
	w := int(ri.Width)
	if ri.BitDepth == 8 {
		step := int(ri.Channels)
		for i := 0; i < w; i++ {
			off := i*step + step - 1
			row[off] = ^row[off]
		}
	} else {
		step := 2 * int(ri.Channels)
		for i := 0; i < w; i++ {
			off := i*step + step - 2
			row[off] = ^row[off]
			row[off+1] = ^row[off+1]
		}
	}
	ri.Flags ^= FlagAlphaInverted
}

// shiftSignificant right-shifts every channel down to its significant
// bits, per the sBIT chunk or the caller override.
func (p *Pipeline) shiftSignificant(ri *RowInfo, row []byte) {
	sb := p.cfg.ShiftBits
	if sb == nil {
		sb = p.info.SBits
	}
	if sb == nil || ri.Flags&FlagIndexed != 0 {
		return
	}
	depth := int(ri.BitDepth)
	var shifts [4]int
	switch ri.Channels {
	case 1:
		shifts[0] = depth - int(sb.Gray)
	case 2:
		shifts[0] = depth - int(sb.Gray)
		shifts[1] = depth - int(sb.Alpha)
	case 3:
		shifts[0] = depth - int(sb.Red)
		shifts[1] = depth - int(sb.Green)
		shifts[2] = depth - int(sb.Blue)
	case 4:
		shifts[0] = depth - int(sb.Red)
		shifts[1] = depth - int(sb.Green)
		shifts[2] = depth - int(sb.Blue)
		shifts[3] = depth - int(sb.Alpha)
	}
	for c := range shifts[:ri.Channels] {
		if shifts[c] < 0 {
			shifts[c] = 0
		}
	}

	w := int(ri.Width)
	switch {
	case depth < 8:
		// Single channel; shift each packed sample in place.
		s := shifts[0]
		if s == 0 {
			return
		}
		for i := 0; i < w; i++ {
			putSample(row, i, depth, getSample(row, i, depth)>>s)
		}
	case depth == 8:
		step := int(ri.Channels)
		for i := 0; i < w; i++ {
			for c := 0; c < step; c++ {
				row[i*step+c] >>= shifts[c]
			}
		}
	default:
		step := 2 * int(ri.Channels)
		for i := 0; i < w; i++ {
			for c := 0; c < int(ri.Channels); c++ {
				off := i*step + 2*c
				v := uint16(row[off])<<8 | uint16(row[off+1])
				v >>= shifts[c]
				row[off] = byte(v >> 8)
				row[off+1] = byte(v)
			}
		}
	}
	ri.Flags |= FlagBitsShifted
}

// packRow packs one-byte samples back into the original sub-byte depth.
func packRow(ri *RowInfo, row []byte, depth uint8) {
	if ri.BitDepth != 8 || ri.Channels != 1 || depth >= 8 {
		return
	}
	w := int(ri.Width)
	out := make([]byte, chunk.RowBytesFor(ri.Width, int(depth)))
	for i := 0; i < w; i++ {
		putSample(out, i, int(depth), row[i])
	}
	copy(row, out)
	ri.BitDepth = depth
	ri.recompute()
}

package transform

import (
	"github.com/pkg/errors"

	"github.com/deepteams/png/internal/chunk"
)

// rgbToGray collapses RGB(A) to gray(A) using the configured coefficients.
// Pixels whose channels already agree pass through exactly; others are
// weighted, optionally through linear space when gamma is active, and the
// mismatch is reported per the configured action.
func (p *Pipeline) rgbToGray(ri *RowInfo, row []byte) error {
	if ri.Channels < 3 || ri.Flags&FlagIndexed != 0 {
		return nil
	}
	w := int(ri.Width)
	hasAlpha := ri.Channels == 4
	rc, gc, bc := p.grayRed, p.grayGreen, p.grayBlue
	mismatch := false

	if ri.BitDepth == 8 {
		si, di := 0, 0
		for i := 0; i < w; i++ {
			r, g, b := row[si], row[si+1], row[si+2]
			var y uint8
			if r == g && g == b {
				y = g
			} else {
				mismatch = true
				if gt := p.gamma; gt != nil {
					lin := (rc*int(gt.to1_8[r]) + gc*int(gt.to1_8[g]) +
						bc*int(gt.to1_8[b]) + 16384) >> 15
					y = gt.file1_8[lin>>gt.shift8]
				} else {
					y = uint8((rc*int(r) + gc*int(g) + bc*int(b) + 16384) >> 15)
				}
			}
			row[di] = y
			di++
			if hasAlpha {
				row[di] = row[si+3]
				di++
			}
			si += int(ri.Channels)
		}
	} else {
		si, di := 0, 0
		for i := 0; i < w; i++ {
			r := uint16(row[si])<<8 | uint16(row[si+1])
			g := uint16(row[si+2])<<8 | uint16(row[si+3])
			b := uint16(row[si+4])<<8 | uint16(row[si+5])
			var y uint16
			if r == g && g == b {
				y = g
			} else {
				mismatch = true
				if gt := p.gamma; gt != nil {
					lr := int(gt.to1_16[r>>gt.shift])
					lg := int(gt.to1_16[g>>gt.shift])
					lb := int(gt.to1_16[b>>gt.shift])
					lin := (rc*lr + gc*lg + bc*lb + 16384) >> 15
					y = gt.file1_16[lin>>gt.shift]
				} else {
					y = uint16((rc*int(r) + gc*int(g) + bc*int(b) + 16384) >> 15)
				}
			}
			row[di] = byte(y >> 8)
			row[di+1] = byte(y)
			di += 2
			if hasAlpha {
				row[di] = row[si+6]
				row[di+1] = row[si+7]
				di += 2
			}
			si += 2 * int(ri.Channels)
		}
	}

	ri.Channels -= 2
	ri.recompute()
	if mismatch {
		p.grayStatus = true
		switch p.cfg.GrayError {
		case GrayErrorWarn:
			if p.Warn != nil {
				p.Warn("non-gray pixel in rgb_to_gray")
			}
		case GrayErrorFatal:
			return errors.Wrap(chunk.ErrConfig, "non-gray pixel in rgb_to_gray")
		}
	}
	return nil
}

// grayToRGB replicates the gray channel into R, G and B, keeping alpha.
func grayToRGB(ri *RowInfo, row []byte) {
	if ri.Channels > 2 || ri.Flags&FlagIndexed != 0 || ri.BitDepth < 8 {
		return
	}
	w := int(ri.Width)
	hasAlpha := ri.Channels == 2
	if ri.BitDepth == 8 {
		in := int(ri.Channels)
		out := in + 2
		for i := w - 1; i >= 0; i-- {
			g := row[in*i]
			if hasAlpha {
				row[out*i+3] = row[in*i+1]
			}
			row[out*i] = g
			row[out*i+1] = g
			row[out*i+2] = g
		}
	} else {
		in := 2 * int(ri.Channels)
		out := in + 4
		for i := w - 1; i >= 0; i-- {
			hi, lo := row[in*i], row[in*i+1]
			if hasAlpha {
				row[out*i+6] = row[in*i+2]
				row[out*i+7] = row[in*i+3]
			}
			row[out*i] = hi
			row[out*i+1] = lo
			row[out*i+2] = hi
			row[out*i+3] = lo
			row[out*i+4] = hi
			row[out*i+5] = lo
		}
	}
	ri.Channels += 2
	ri.recompute()
}

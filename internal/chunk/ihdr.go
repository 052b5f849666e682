package chunk

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// legalDepths maps each color type to its permitted bit depths.
var legalDepths = map[uint8][]uint8{
	ColorGray:      {1, 2, 4, 8, 16},
	ColorRGB:       {8, 16},
	ColorPalette:   {1, 2, 4, 8},
	ColorGrayAlpha: {8, 16},
	ColorRGBA:      {8, 16},
}

// handleIHDR parses the fixed 13-byte header payload and fills the derived
// geometry fields.
func (p *Parser) handleIHDR(data []byte) error {
	if len(data) != IHDRSize {
		return errors.Wrapf(ErrBadIHDR, "length %d", len(data))
	}
	info := p.info
	info.Width = binary.BigEndian.Uint32(data[0:4])
	info.Height = binary.BigEndian.Uint32(data[4:8])
	info.BitDepth = data[8]
	info.ColorType = data[9]
	info.CompressionMethod = data[10]
	info.FilterMethod = data[11]
	info.InterlaceMethod = data[12]

	if info.Width == 0 || info.Width > MaxDimension {
		return errors.Wrapf(ErrBadIHDR, "width %d", info.Width)
	}
	if info.Height == 0 || info.Height > MaxDimension {
		return errors.Wrapf(ErrBadIHDR, "height %d", info.Height)
	}
	depths, ok := legalDepths[info.ColorType]
	if !ok {
		return errors.Wrapf(ErrBadIHDR, "color type %d", info.ColorType)
	}
	legal := false
	for _, d := range depths {
		if d == info.BitDepth {
			legal = true
			break
		}
	}
	if !legal {
		return errors.Wrapf(ErrBadIHDR, "bit depth %d for color type %d",
			info.BitDepth, info.ColorType)
	}
	if info.CompressionMethod != 0 {
		return errors.Wrapf(ErrBadIHDR, "compression method %d", info.CompressionMethod)
	}
	switch info.FilterMethod {
	case FilterMethodBase:
	case FilterMethodIntrapixel:
		if !p.cfg.AllowMNGFilter {
			return errors.Wrapf(ErrBadIHDR, "filter method %d", info.FilterMethod)
		}
	default:
		return errors.Wrapf(ErrBadIHDR, "filter method %d", info.FilterMethod)
	}
	if info.InterlaceMethod != InterlaceNone && info.InterlaceMethod != InterlaceAdam7 {
		return errors.Wrapf(ErrBadIHDR, "interlace method %d", info.InterlaceMethod)
	}

	info.Channels = channelCount(info.ColorType)
	info.PixelDepth = info.Channels * int(info.BitDepth)
	info.RowBytes = RowBytesFor(info.Width, info.PixelDepth)
	return nil
}

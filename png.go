package png

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/deepteams/png/internal/chunk"
)

func init() {
	image.RegisterFormat("png", "\x89PNG\r\n\x1a\n", Decode, DecodeConfig)
}

// Decode reads a PNG image from r and returns it as an *image.NRGBA.
// Every color type is normalized to 8-bit RGBA through the transform
// pipeline; use NewDecoder directly for format-preserving row access.
func Decode(r io.Reader) (image.Image, error) {
	d, err := NewDecoder(r,
		WithExpand(),
		WithScale16(),
		WithGrayToRGB(),
		WithFiller(0xFF, true),
	)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	w, h := d.Width(), d.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	if d.OutputRowBytes() != 4*w {
		return nil, fmt.Errorf("png: internal: unexpected output geometry")
	}
	for y := 0; y < h; y++ {
		if _, err := d.NextRow(img.Pix[y*img.Stride : y*img.Stride+4*w]); err != nil {
			return nil, err
		}
	}
	// Consume the trailing chunks through IEND.
	if _, err := d.NextRow(nil); err != io.EOF {
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

// DecodeConfig returns the color model and dimensions of a PNG image
// without decoding pixel data. Only the chunks before the image data are
// read.
func DecodeConfig(r io.Reader) (image.Config, error) {
	d, err := NewDecoder(r)
	if err != nil {
		return image.Config{}, err
	}
	info := d.Metadata()

	var cm color.Model
	switch info.ColorType {
	case chunk.ColorGray:
		if info.BitDepth == 16 {
			cm = color.Gray16Model
		} else {
			cm = color.GrayModel
		}
	case chunk.ColorRGB:
		if info.BitDepth == 16 {
			cm = color.NRGBA64Model
		} else {
			cm = color.NRGBAModel
		}
	case chunk.ColorPalette:
		pal := make(color.Palette, len(info.Palette))
		for i, e := range info.Palette {
			a := uint8(0xFF)
			if info.Trans.Kind == chunk.TransPalette && i < len(info.Trans.Alpha) {
				a = info.Trans.Alpha[i]
			}
			pal[i] = color.NRGBA{R: e.R, G: e.G, B: e.B, A: a}
		}
		cm = pal
	case chunk.ColorGrayAlpha:
		if info.BitDepth == 16 {
			cm = color.NRGBA64Model
		} else {
			cm = color.NRGBAModel
		}
	case chunk.ColorRGBA:
		if info.BitDepth == 16 {
			cm = color.NRGBA64Model
		} else {
			cm = color.NRGBAModel
		}
	}

	return image.Config{
		ColorModel: cm,
		Width:      d.Width(),
		Height:     d.Height(),
	}, nil
}

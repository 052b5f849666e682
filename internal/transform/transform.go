// Package transform implements the ordered pixel-transform pipeline
// applied to each decoded row before it is handed to the caller: palette
// and bit-depth expansion, transparency, gamma, background compositing,
// color conversions, channel reshaping, and palette quantization.
package transform

import (
	"math"

	"github.com/pkg/errors"

	"github.com/deepteams/png/internal/chunk"
	"github.com/deepteams/png/internal/filter"
)

// Transforms is the bitset of requested row transforms.
type Transforms uint32

const (
	Expand Transforms = 1 << iota
	Expand16
	PaletteToRGB
	ExpandGray124
	TRNSToAlpha
	Strip16
	Scale16
	StripAlpha
	GrayToRGB
	RGBToGray
	Compose // background compositing
	Gamma
	Quantize
	InvertMono
	InvertAlpha
	SwapAlpha
	SwapBytes
	BGR
	Pack
	PackSwap
	Shift
	Filler
)

// Row flag bits carried in RowInfo.Flags.
const (
	FlagBitsShifted = 1 << iota
	FlagIndexed
	FlagAlphaInverted
	FlagAlphaSwapped
	FlagBadIndex
	FlagFillerInAlpha
)

// RowInfo is the control record each transform reads and updates as it
// rewrites a row.
type RowInfo struct {
	Width    uint32
	BitDepth uint8
	Channels uint8
	RowBytes int
	Flags    uint32
}

// PixelDepth returns bits per pixel.
func (ri *RowInfo) PixelDepth() int { return int(ri.BitDepth) * int(ri.Channels) }

func (ri *RowInfo) recompute() {
	ri.RowBytes = chunk.RowBytesFor(ri.Width, ri.PixelDepth())
}

// GrayErrorAction selects what happens when rgb_to_gray meets a pixel
// whose channels disagree.
type GrayErrorAction int

const (
	GrayErrorNone GrayErrorAction = iota
	GrayErrorWarn
	GrayErrorFatal
)

// AlphaMode selects the compositing interpretation of the alpha channel.
type AlphaMode int

const (
	AlphaPNG        AlphaMode = iota // non-premultiplied, no alpha encoding
	AlphaAssociated                  // premultiply color by alpha
	AlphaOptimized                   // as PNG; opaque pixels skip linearization
	AlphaBroken                      // gamma-encode the alpha channel too
)

// BackgroundGammaCode says which gamma space the background color is in.
type BackgroundGammaCode int

const (
	BackgroundGammaScreen BackgroundGammaCode = iota
	BackgroundGammaFile
	BackgroundGammaUnique
)

// BackgroundSpec configures compositing over a constant background.
type BackgroundSpec struct {
	Red, Green, Blue uint16
	Gray             uint16
	Index            uint8 // palette images
	GammaCode        BackgroundGammaCode
	Gamma            float64 // used with BackgroundGammaUnique
	// NeedExpand says the color is at the file's (pre-expansion) depth.
	NeedExpand bool
}

// QuantizeSpec configures palette reduction.
type QuantizeSpec struct {
	// Palette is the target palette for non-palette images; for palette
	// images the file palette is reduced in place.
	Palette   []chunk.RGB
	MaxColors int
	Histogram []uint16
	// Full also builds the lookup cube for palette images. Their rows are
	// still mapped only through the index remap, so the cube does not
	// change palette output.
	Full bool
}

// Config is the complete transform selection. The zero value applies no
// transforms.
type Config struct {
	Transforms Transforms

	// ScreenGamma is the display gamma (e.g. 2.2). Zero falls back to
	// ModeOutputGamma when set, else to 2.2 when the Gamma transform is
	// requested; otherwise no gamma tables are built.
	ScreenGamma float64
	// OverrideFileGamma replaces the file's gAMA value (fixed point,
	// scaled by 100000). Zero uses the file value.
	OverrideFileGamma int32

	Background *BackgroundSpec

	Mode            AlphaMode
	ModeOutputGamma float64

	// GrayRed and GrayGreen are the rgb→gray coefficients scaled by
	// 32768; blue is the remainder. Zero means "use defaults".
	GrayRed, GrayGreen int
	GrayError          GrayErrorAction

	FillerValue uint16
	FillerAfter bool

	// ShiftBits overrides the sBIT chunk for the shift transform.
	ShiftBits *chunk.SigBits

	Quantize *QuantizeSpec

	// User runs last and may change the row geometry; it must keep
	// RowBytes within the reserve it declares via UserReserve.
	User        func(ri *RowInfo, row []byte)
	UserReserve int // worst-case row size in bytes the user transform may produce
}

// Pipeline is the compiled per-decoder transform state: resolved flags,
// gamma and quantize tables, and the output geometry from update-info.
type Pipeline struct {
	cfg  Config
	info *chunk.Info

	flags Transforms

	// Palette state. The working palette may be rewritten by gamma,
	// background or quantization before any row is seen.
	palette  []chunk.RGB
	trans    []uint8
	numTrans int

	gamma   *gammaTables
	bg      *bgState
	caps    filter.Caps
	riffled *[256]uint32

	quantIndex []uint8 // palette remap after reduction
	quantCube  []uint8 // 5:5:5 lookup cube for non-palette sources

	grayRed, grayGreen, grayBlue int
	grayStatus                   bool // non-gray pixel seen

	backgroundIsGray bool

	origDepth uint8 // file bit depth, for Pack

	// Out is the authoritative post-transform geometry.
	Out RowInfo
	// MaxRowBytes is the worst-case row size across all stages; row
	// buffers must hold this many bytes.
	MaxRowBytes int

	// Warn receives benign per-row anomalies (bad palette indexes).
	Warn func(msg string)
}

// New validates the configuration against the image and compiles the
// pipeline, computing the output geometry (update-info).
func New(cfg Config, info *chunk.Info, caps filter.Caps) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, info: info, flags: cfg.Transforms, caps: caps}
	p.origDepth = info.BitDepth

	// palette_to_rgb is expand restricted to palette images.
	if p.flags&PaletteToRGB != 0 && info.ColorType == chunk.ColorPalette {
		p.flags |= Expand
	}
	if p.flags&RGBToGray != 0 && info.ColorType == chunk.ColorPalette && p.flags&Expand == 0 {
		return nil, errors.Wrap(chunk.ErrConfig, "rgb_to_gray on a palette image requires expand")
	}
	if p.flags&GrayToRGB != 0 && p.flags&RGBToGray != 0 {
		return nil, errors.Wrap(chunk.ErrConfig, "gray_to_rgb conflicts with rgb_to_gray")
	}
	if p.flags&Strip16 != 0 && p.flags&Scale16 != 0 {
		// Accurate scaling wins.
		p.flags &^= Strip16
	}
	if cfg.Background != nil {
		p.flags |= Compose
	}
	if cfg.Quantize != nil {
		p.flags |= Quantize
	}

	p.palette = append([]chunk.RGB(nil), info.Palette...)
	if info.Trans.Kind == chunk.TransPalette {
		p.trans = append([]uint8(nil), info.Trans.Alpha...)
		p.numTrans = len(p.trans)
	}

	p.initGrayCoefficients()
	if err := p.initGamma(); err != nil {
		return nil, err
	}
	if p.flags&Quantize != 0 {
		if err := p.initQuantize(); err != nil {
			return nil, err
		}
	}
	p.initPaletteTransforms()
	if bg := cfg.Background; bg != nil {
		p.backgroundIsGray = bg.Red == bg.Green && bg.Green == bg.Blue
	}
	if p.expandsPaletteAlpha() {
		pal := make([][3]uint8, len(p.palette))
		for i, e := range p.palette {
			pal[i] = [3]uint8{e.R, e.G, e.B}
		}
		p.riffled = filter.Riffle(pal, p.trans)
	}

	p.updateInfo()
	return p, nil
}

// expandsPaletteAlpha reports whether palette expansion will emit RGBA.
func (p *Pipeline) expandsPaletteAlpha() bool {
	return p.info.ColorType == chunk.ColorPalette &&
		p.flags&Expand != 0 && p.numTrans > 0
}

// initGrayCoefficients resolves the rgb→gray coefficients: caller values,
// else sRGB-derived defaults.
func (p *Pipeline) initGrayCoefficients() {
	r, g := p.cfg.GrayRed, p.cfg.GrayGreen
	if r <= 0 || g <= 0 || r+g > 32768 {
		r, g = 6968, 23434
	}
	p.grayRed, p.grayGreen = r, g
	p.grayBlue = 32768 - r - g
}

// fileGamma returns the effective file gamma in fixed point.
func (p *Pipeline) fileGamma() int32 {
	if p.cfg.OverrideFileGamma != 0 {
		return p.cfg.OverrideFileGamma
	}
	return p.info.FileGamma
}

// gammaSignificant reports whether correction between the two exponents
// is observable.
func gammaSignificant(product float64) bool {
	return math.Abs(product-1.0) >= 0.001
}

// Teardown releases capability scratch. Gamma and quantize tables are
// garbage collected with the pipeline.
func (p *Pipeline) Teardown() {
	if p.caps != nil {
		p.caps.FreeData()
	}
}

// GrayMismatch reports whether rgb_to_gray met a pixel whose channels
// disagreed.
func (p *Pipeline) GrayMismatch() bool { return p.grayStatus }

// updateInfo recomputes the final channel count, bit depth and row stride
// the caller's buffer must hold. It simulates the Run order on geometry
// alone and records the worst-case intermediate row size.
func (p *Pipeline) updateInfo() {
	info := p.info
	ri := RowInfo{
		Width:    info.Width,
		BitDepth: info.BitDepth,
		Channels: uint8(info.Channels),
	}
	if info.ColorType == chunk.ColorPalette {
		ri.Flags |= FlagIndexed
	}
	ri.recompute()
	max := ri.RowBytes

	grow := func() {
		ri.recompute()
		if ri.RowBytes > max {
			max = ri.RowBytes
		}
	}

	// 1. expand
	if p.flags&Expand != 0 || p.flags&ExpandGray124 != 0 || p.flags&TRNSToAlpha != 0 {
		switch info.ColorType {
		case chunk.ColorPalette:
			if p.flags&Expand != 0 {
				ri.BitDepth = 8
				ri.Channels = 3
				ri.Flags &^= FlagIndexed
				if p.numTrans > 0 {
					ri.Channels = 4
				}
			}
		case chunk.ColorGray:
			if ri.BitDepth < 8 && p.flags&(Expand|ExpandGray124) != 0 {
				ri.BitDepth = 8
			}
			if info.Trans.Kind == chunk.TransGray && p.flags&(Expand|TRNSToAlpha) != 0 {
				ri.BitDepth = maxu8(ri.BitDepth, 8)
				ri.Channels = 2
			}
		case chunk.ColorRGB:
			if info.Trans.Kind == chunk.TransRGB && p.flags&(Expand|TRNSToAlpha) != 0 {
				ri.Channels = 4
			}
		}
		grow()
	}
	// 2. strip alpha (pre-compose)
	if p.flags&StripAlpha != 0 && p.flags&Compose == 0 && ri.Channels%2 == 0 {
		ri.Channels--
		grow()
	}
	// 3. rgb→gray
	if p.flags&RGBToGray != 0 && ri.Channels >= 3 {
		ri.Channels -= 2
		grow()
	}
	// 4. gray→rgb (non-gray background, or no background)
	grayToRGBNow := p.flags&GrayToRGB != 0 &&
		(p.cfg.Background == nil || !p.backgroundIsGray)
	if grayToRGBNow && ri.Channels <= 2 && ri.Flags&FlagIndexed == 0 {
		ri.BitDepth = maxu8(ri.BitDepth, 8)
		ri.Channels += 2
		grow()
	}
	// 5–8: compose, gamma, post-compose strip, alpha encode — no
	// geometry change except the strip.
	if p.flags&StripAlpha != 0 && p.flags&Compose != 0 && ri.Channels%2 == 0 {
		ri.Channels--
		grow()
	}
	// 9. 16→8
	if ri.BitDepth == 16 && p.flags&(Scale16|Strip16) != 0 {
		ri.BitDepth = 8
		grow()
	}
	// 10. quantize
	if p.flags&Quantize != 0 && ri.Flags&FlagIndexed == 0 && ri.BitDepth == 8 && ri.Channels >= 3 {
		ri.Channels = 1
		ri.Flags |= FlagIndexed
		grow()
	}
	// 11. expand 8→16
	if p.flags&Expand16 != 0 && ri.BitDepth == 8 && ri.Flags&FlagIndexed == 0 {
		ri.BitDepth = 16
		grow()
	}
	// 12. deferred gray→rgb (gray background)
	if p.flags&GrayToRGB != 0 && !grayToRGBNow && ri.Channels <= 2 && ri.Flags&FlagIndexed == 0 {
		ri.BitDepth = maxu8(ri.BitDepth, 8)
		ri.Channels += 2
		grow()
	}
	// 15. shift — no geometry change. 16. pack.
	if p.flags&Pack != 0 && ri.BitDepth == 8 && ri.Channels == 1 && p.origDepth < 8 {
		ri.BitDepth = p.origDepth
		grow()
	}
	// 19. filler
	if p.flags&Filler != 0 && ri.BitDepth >= 8 && (ri.Channels == 1 || ri.Channels == 3) &&
		ri.Flags&FlagIndexed == 0 {
		ri.Channels++
		ri.Flags |= FlagFillerInAlpha
		grow()
	}
	// 22. user transform reserve
	if p.cfg.User != nil && p.cfg.UserReserve > max {
		max = p.cfg.UserReserve
	}

	p.Out = ri
	p.MaxRowBytes = max
}

func maxu8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// Run applies the pipeline to one decoded row in place. ri must describe
// the row as it came off the filter stage; on return it describes the
// emitted row and matches p.Out except for per-row flag bits.
func (p *Pipeline) Run(ri *RowInfo, row []byte) error {
	info := p.info

	// 1. expand
	if p.flags&Expand != 0 || p.flags&ExpandGray124 != 0 || p.flags&TRNSToAlpha != 0 {
		switch info.ColorType {
		case chunk.ColorPalette:
			if p.flags&Expand != 0 {
				p.expandPalette(ri, row)
			}
		default:
			p.expandNonPalette(ri, row)
		}
	}
	// 2. strip alpha (pre-compose)
	if p.flags&StripAlpha != 0 && p.flags&Compose == 0 {
		stripAlpha(ri, row)
	}
	// 3. rgb→gray
	if p.flags&RGBToGray != 0 {
		if err := p.rgbToGray(ri, row); err != nil {
			return err
		}
	}
	// 4. gray→rgb
	grayToRGBNow := p.flags&GrayToRGB != 0 &&
		(p.cfg.Background == nil || !p.backgroundIsGray)
	if grayToRGBNow {
		grayToRGB(ri, row)
	}
	// 5. compose over background (applies gamma to every pixel).
	if p.flags&Compose != 0 {
		p.compose(ri, row)
	} else if p.gamma != nil {
		// 6. gamma
		p.applyGamma(ri, row)
	}
	// 7. strip alpha (post-compose)
	if p.flags&StripAlpha != 0 && p.flags&Compose != 0 {
		stripAlpha(ri, row)
	}
	// 8. encode alpha per alpha mode
	p.encodeAlpha(ri, row)
	// 9. 16→8
	if ri.BitDepth == 16 {
		if p.flags&Scale16 != 0 {
			scale16(ri, row)
		} else if p.flags&Strip16 != 0 {
			strip16(ri, row)
		}
	}
	// 10. quantize
	if p.flags&Quantize != 0 {
		p.quantizeRow(ri, row)
	}
	// 11. 8→16
	if p.flags&Expand16 != 0 && ri.BitDepth == 8 && ri.Flags&FlagIndexed == 0 {
		expand16(ri, row)
	}
	// 12. deferred gray→rgb
	if p.flags&GrayToRGB != 0 && !grayToRGBNow {
		grayToRGB(ri, row)
	}
	// 13. invert mono
	if p.flags&InvertMono != 0 {
		invertMono(ri, row)
	}
	// 14. invert alpha
	if p.flags&InvertAlpha != 0 {
		invertAlpha(ri, row)
	}
	// 15. shift to significant bits
	if p.flags&Shift != 0 {
		p.shiftSignificant(ri, row)
	}
	// 16. pack
	if p.flags&Pack != 0 {
		packRow(ri, row, p.origDepth)
	}
	// 17. bgr
	if p.flags&BGR != 0 {
		bgr(ri, row)
	}
	// 18. packswap
	if p.flags&PackSwap != 0 {
		packSwap(ri, row)
	}
	// 19. filler
	if p.flags&Filler != 0 {
		filler(ri, row, p.cfg.FillerValue, p.cfg.FillerAfter)
	}
	// 20. swap alpha
	if p.flags&SwapAlpha != 0 {
		swapAlpha(ri, row)
	}
	// 21. byte swap
	if p.flags&SwapBytes != 0 {
		swapBytes(ri, row)
	}
	// 22. user transform
	if p.cfg.User != nil {
		p.cfg.User(ri, row)
	}
	return nil
}

// --- packed-sample helpers shared by the sub-byte transforms ---

func getSample(row []byte, i, depth int) uint8 {
	bit := i * depth
	shift := 8 - depth - (bit & 7)
	return (row[bit>>3] >> shift) & byte(1<<depth-1)
}

func putSample(row []byte, i, depth int, v uint8) {
	bit := i * depth
	shift := 8 - depth - (bit & 7)
	mask := byte((1<<depth)-1) << shift
	row[bit>>3] = row[bit>>3]&^mask | (v<<shift)&mask
}

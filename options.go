package png

import (
	"github.com/deepteams/png/internal/chunk"
	"github.com/deepteams/png/internal/transform"
)

// Option configures a Decoder. All transforms are disabled by default;
// the decoder then emits rows exactly as stored in the file.
type Option func(*Decoder)

// CRC mismatch policies for WithCRCAction.
const (
	CRCDefault     = chunk.CRCDefault
	CRCNoChange    = chunk.CRCNoChange
	CRCWarnUse     = chunk.CRCWarnUse
	CRCQuietUse    = chunk.CRCQuietUse
	CRCWarnDiscard = chunk.CRCWarnDiscard
	CRCErrorQuit   = chunk.CRCErrorQuit
)

// Unknown-chunk policies for WithKeepUnknown.
const (
	UnknownDefault = chunk.UnknownDefault
	UnknownNever   = chunk.UnknownNever
	UnknownIfSafe  = chunk.UnknownIfSafe
	UnknownAlways  = chunk.UnknownAlways
)

// WithWarningHandler routes benign decode anomalies to fn. Without a
// handler, warnings are counted (for strict mode) but otherwise dropped.
func WithWarningHandler(fn func(Warning)) Option {
	return func(d *Decoder) { d.ccfg.Warn = fn }
}

// WithStrict promotes accumulated warnings to an error at end-of-decode.
func WithStrict() Option {
	return func(d *Decoder) { d.strict = true }
}

// WithCRCAction sets the per-class CRC mismatch policy.
func WithCRCAction(critical, ancillary CRCAction) Option {
	return func(d *Decoder) {
		if critical != chunk.CRCNoChange {
			d.ccfg.CRCCritical = critical
		}
		if ancillary != chunk.CRCNoChange {
			d.ccfg.CRCAncillary = ancillary
		}
	}
}

// WithKeepUnknown sets the default unknown-chunk policy, with optional
// per-chunk-type overrides that outrank it.
func WithKeepUnknown(policy UnknownPolicy, chunks ...ChunkName) Option {
	return func(d *Decoder) {
		if len(chunks) == 0 {
			d.ccfg.Unknown = policy
			return
		}
		if d.ccfg.UnknownOverrides == nil {
			d.ccfg.UnknownOverrides = make(map[ChunkName]UnknownPolicy)
		}
		for _, c := range chunks {
			d.ccfg.UnknownOverrides[c] = policy
		}
	}
}

// WithUnknownHandler offers every unknown chunk to fn before the keep
// policy applies. Returning true consumes the chunk; this can rescue
// unknown critical chunks.
func WithUnknownHandler(fn func(name ChunkName, data []byte) (bool, error)) Option {
	return func(d *Decoder) { d.ccfg.UnknownHandler = fn }
}

// WithLimits caps the resources a hostile stream can claim.
func WithLimits(l Limits) Option {
	return func(d *Decoder) { d.ccfg.Limits = l }
}

// WithMNGFilter accepts IHDR filter method 64 (the MNG intrapixel
// extension).
func WithMNGFilter() Option {
	return func(d *Decoder) { d.ccfg.AllowMNGFilter = true }
}

// WithDisplayMode selects sparkle or block reassembly for interlaced
// images.
func WithDisplayMode(m DisplayMode) Option {
	return func(d *Decoder) { d.mode = m }
}

// WithProgress calls fn after each decoded row. Returning false cancels
// the decode; the next NextRow returns an error.
func WithProgress(fn func(row int) bool) Option {
	return func(d *Decoder) { d.onRow = fn }
}

// --- transform selection ---

func addTransforms(t transform.Transforms) Option {
	return func(d *Decoder) { d.tcfg.Transforms |= t }
}

// WithExpand expands palette images to RGB(A), sub-byte gray to 8 bits,
// and a tRNS chunk to an explicit alpha channel.
func WithExpand() Option { return addTransforms(transform.Expand) }

// WithExpand16 widens 8-bit components to 16 bits by byte replication.
func WithExpand16() Option { return addTransforms(transform.Expand16) }

// WithPaletteToRGB is WithExpand restricted to palette images.
func WithPaletteToRGB() Option { return addTransforms(transform.PaletteToRGB) }

// WithExpandGray124 expands only sub-byte gray to 8 bits.
func WithExpandGray124() Option { return addTransforms(transform.ExpandGray124) }

// WithTRNSToAlpha expands the tRNS chunk to an explicit alpha channel.
func WithTRNSToAlpha() Option { return addTransforms(transform.TRNSToAlpha) }

// WithStrip16 reduces 16-bit samples to 8 by dropping the low byte.
func WithStrip16() Option { return addTransforms(transform.Strip16) }

// WithScale16 reduces 16-bit samples to 8 with accurate rounding.
func WithScale16() Option { return addTransforms(transform.Scale16) }

// WithStripAlpha removes the alpha channel.
func WithStripAlpha() Option { return addTransforms(transform.StripAlpha) }

// WithGrayToRGB promotes gray rows to RGB.
func WithGrayToRGB() Option { return addTransforms(transform.GrayToRGB) }

// GrayErrorAction is re-exported for WithRGBToGray.
type GrayErrorAction = transform.GrayErrorAction

// Non-gray pixel policies for WithRGBToGray.
const (
	GrayErrorNone  = transform.GrayErrorNone
	GrayErrorWarn  = transform.GrayErrorWarn
	GrayErrorFatal = transform.GrayErrorFatal
)

// WithRGBToGray collapses RGB to gray. red and green are coefficients
// scaled by 32768 (blue is the remainder); pass 0,0 for the defaults.
func WithRGBToGray(action GrayErrorAction, red, green int) Option {
	return func(d *Decoder) {
		d.tcfg.Transforms |= transform.RGBToGray
		d.tcfg.GrayError = action
		d.tcfg.GrayRed = red
		d.tcfg.GrayGreen = green
	}
}

// BackgroundSpec configures compositing; see the transform package for
// field semantics.
type BackgroundSpec = transform.BackgroundSpec

// Background gamma codes.
const (
	BackgroundGammaScreen = transform.BackgroundGammaScreen
	BackgroundGammaFile   = transform.BackgroundGammaFile
	BackgroundGammaUnique = transform.BackgroundGammaUnique
)

// WithBackground composites transparent and partially transparent pixels
// over a constant background color.
func WithBackground(bg BackgroundSpec) Option {
	return func(d *Decoder) { d.tcfg.Background = &bg }
}

// AlphaMode is re-exported for WithAlphaMode.
type AlphaMode = transform.AlphaMode

// Alpha compositing modes.
const (
	AlphaPNG        = transform.AlphaPNG
	AlphaAssociated = transform.AlphaAssociated
	AlphaOptimized  = transform.AlphaOptimized
	AlphaBroken     = transform.AlphaBroken
)

// WithAlphaMode sets the compositing interpretation of alpha and the
// output gamma it implies.
func WithAlphaMode(mode AlphaMode, outputGamma float64) Option {
	return func(d *Decoder) {
		d.tcfg.Mode = mode
		d.tcfg.ModeOutputGamma = outputGamma
	}
}

// WithGamma enables gamma correction from the file gamma (or fileGamma
// fixed-point override when nonzero) to the given screen gamma.
func WithGamma(screenGamma float64, fileGamma int32) Option {
	return func(d *Decoder) {
		d.tcfg.Transforms |= transform.Gamma
		d.tcfg.ScreenGamma = screenGamma
		d.tcfg.OverrideFileGamma = fileGamma
	}
}

// QuantizeSpec configures palette reduction.
type QuantizeSpec = transform.QuantizeSpec

// WithQuantize reduces the image to at most spec.MaxColors palette
// entries; see the transform package for the reduction strategies.
func WithQuantize(spec QuantizeSpec) Option {
	return func(d *Decoder) { d.tcfg.Quantize = &spec }
}

// WithInvertMono inverts gray samples.
func WithInvertMono() Option { return addTransforms(transform.InvertMono) }

// WithInvertAlpha XORs the alpha channel with full scale.
func WithInvertAlpha() Option { return addTransforms(transform.InvertAlpha) }

// WithSwapAlpha moves alpha to the front of each pixel.
func WithSwapAlpha() Option { return addTransforms(transform.SwapAlpha) }

// WithSwapBytes emits 16-bit samples little-endian.
func WithSwapBytes() Option { return addTransforms(transform.SwapBytes) }

// WithBGR swaps the red and blue channels.
func WithBGR() Option { return addTransforms(transform.BGR) }

// WithPack re-packs single-channel 8-bit rows to the file's sub-byte
// depth.
func WithPack() Option { return addTransforms(transform.Pack) }

// WithPackSwap reverses the in-byte pixel order for packed depths.
func WithPackSwap() Option { return addTransforms(transform.PackSwap) }

// WithShift right-shifts samples to the significant bits recorded in the
// sBIT chunk.
func WithShift() Option { return addTransforms(transform.Shift) }

// WithFiller inserts a constant filler channel, producing RGBX from RGB
// or GX from G. after places it behind the color channels.
func WithFiller(value uint16, after bool) Option {
	return func(d *Decoder) {
		d.tcfg.Transforms |= transform.Filler
		d.tcfg.FillerValue = value
		d.tcfg.FillerAfter = after
	}
}

// RowInfo describes a row passing through a user transform.
type RowInfo = transform.RowInfo

// WithUserTransform runs fn as the final pipeline stage. reserve is the
// worst-case row size fn may grow a row to, in bytes.
func WithUserTransform(fn func(ri *RowInfo, row []byte), reserve int) Option {
	return func(d *Decoder) {
		d.tcfg.User = fn
		d.tcfg.UserReserve = reserve
	}
}

package png

import (
	"fmt"
	"io"

	"github.com/deepteams/png/internal/chunk"
	"github.com/deepteams/png/internal/filter"
	"github.com/deepteams/png/internal/interlace"
	"github.com/deepteams/png/internal/pool"
	"github.com/deepteams/png/internal/transform"
)

// DisplayMode selects how Adam7 passes are reassembled.
type DisplayMode int

const (
	// Sparkle writes pass pixels to their exact final positions.
	Sparkle DisplayMode = iota
	// Block replicates each pass pixel across the rectangle it currently
	// best estimates, giving a coarse-to-fine rendition.
	Block
)

// Metadata is the structured record populated incrementally from the
// chunk stream.
type Metadata = chunk.Info

// Warning is a recoverable decode anomaly.
type Warning = chunk.Warning

// Re-exported configuration enums.
type (
	CRCAction     = chunk.CRCAction
	UnknownPolicy = chunk.UnknownPolicy
	Limits        = chunk.Limits
	ChunkName     = chunk.Name
)

// Errors surfaced by the decoder. Fatal errors latch: once one is
// returned, every later call returns the same error.
var (
	ErrBadSignature = chunk.ErrBadSignature
	ErrTruncated    = chunk.ErrTruncated
	ErrCRC          = chunk.ErrCRC
	ErrBadIHDR      = chunk.ErrBadIHDR
	ErrChunkOrder   = chunk.ErrChunkOrder
	ErrConfig       = chunk.ErrConfig
	ErrStrict       = fmt.Errorf("png: warnings promoted by strict mode")
)

// Decoder is the pull-mode row decoder. Create one with NewDecoder, read
// rows with NextRow, and drop it when done; decoders are single-use.
type Decoder struct {
	parser *chunk.Parser
	info   *chunk.Info

	ccfg   chunk.Config
	tcfg   transform.Config
	mode   DisplayMode
	strict bool
	onRow  func(row int) bool

	pipe *transform.Pipeline
	caps filter.Caps
	rev  *filter.Reverser

	zr io.ReadCloser

	cur, prev []byte // filtered row pair, including the filter byte
	work      []byte // transform working row
	out       []byte // fallback output buffer when the caller passes nil

	fb         []byte // interlaced framebuffer of unfiltered rows
	fbRowBytes int

	y         int
	rowInit   bool
	finished  bool
	canceled  bool
	warnCount int // decoder-level warnings, beyond the parser's
	err       error
}

// NewDecoder reads the signature and every chunk up to the image data,
// so the metadata for header-dependent decisions is available before the
// first row is requested.
func NewDecoder(r io.Reader, opts ...Option) (*Decoder, error) {
	d := &Decoder{}
	for _, o := range opts {
		o(d)
	}
	d.parser = chunk.NewParser(r, d.ccfg)
	if err := d.parser.ReadHeader(); err != nil {
		return nil, err
	}
	d.info = d.parser.Info()

	bpp := filter.Stride(int(d.info.BitDepth), d.info.Channels)
	d.caps = filter.Choose(bpp)
	d.rev = filter.NewReverser(bpp, d.caps)

	pipe, err := transform.New(d.tcfg, d.info, d.caps)
	if err != nil {
		return nil, err
	}
	pipe.Warn = func(msg string) { d.warn(chunk.WarnValue, msg) }
	d.pipe = pipe
	return d, nil
}

// Metadata returns the chunk metadata collected so far. Chunks that
// follow the image data (late tEXt, tIME) appear only once NextRow has
// returned io.EOF.
func (d *Decoder) Metadata() *Metadata { return d.info }

// Width returns the image width in pixels.
func (d *Decoder) Width() int { return int(d.info.Width) }

// Height returns the image height in pixels.
func (d *Decoder) Height() int { return int(d.info.Height) }

// OutputRowBytes is the authoritative post-transform row size; the
// buffer passed to NextRow must hold at least this many bytes.
func (d *Decoder) OutputRowBytes() int { return d.pipe.Out.RowBytes }

// OutputChannels returns the post-transform channel count.
func (d *Decoder) OutputChannels() int { return int(d.pipe.Out.Channels) }

// OutputBitDepth returns the post-transform bit depth.
func (d *Decoder) OutputBitDepth() int { return int(d.pipe.Out.BitDepth) }

// fail latches the decoder into its terminal error state.
func (d *Decoder) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return d.err
}

func (d *Decoder) warn(code chunk.WarnCode, msg string) {
	d.warnCount++
	if d.ccfg.Warn != nil {
		d.ccfg.Warn(chunk.Warning{Chunk: chunk.NameIDAT, Code: code, Message: msg})
	}
}

// initRows claims the inflate context and allocates the row buffers,
// deferring until the first row so a metadata-only caller pays nothing.
func (d *Decoder) initRows() error {
	zr, err := d.parser.ClaimIDAT()
	if err != nil {
		return err
	}
	d.zr = zr

	n := d.info.RowBytes + 1
	d.cur = pool.GetZero(n)
	d.prev = pool.GetZero(n)
	d.work = pool.Get(d.pipe.MaxRowBytes)
	d.rowInit = true

	if d.info.InterlaceMethod == chunk.InterlaceAdam7 {
		return d.decodeInterlaced()
	}
	return nil
}

// readFiltered reads one filter byte plus n row bytes from the inflate
// stream.
func (d *Decoder) readFiltered(n int) error {
	if _, err := io.ReadFull(d.zr, d.cur[:1+n]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return chunk.ErrTruncated
		}
		return fmt.Errorf("png: inflate: %w", err)
	}
	return nil
}

// decodeInterlaced reads all seven Adam7 passes into a framebuffer of
// unfiltered rows, combining each pass row per the display mode.
func (d *Decoder) decodeInterlaced() error {
	info := d.info
	d.fbRowBytes = info.RowBytes
	d.fb = make([]byte, d.fbRowBytes*int(info.Height))

	for pass := 0; pass < 7; pass++ {
		if interlace.Empty(info.Width, info.Height, pass) {
			continue
		}
		rows := interlace.Rows(info.Height, pass)
		cols := interlace.Cols(info.Width, pass)
		passBytes := chunk.RowBytesFor(uint32(cols), info.PixelDepth)

		// The previous row is implicitly zero at the start of a pass.
		clear(d.prev[:1+passBytes])
		for r := 0; r < rows; r++ {
			if err := d.readFiltered(passBytes); err != nil {
				return err
			}
			ft := d.cur[0]
			if err := d.rev.Reverse(ft, d.cur[1:1+passBytes], d.prev[1:1+passBytes]); err != nil {
				return err
			}
			y := interlace.Passes[pass].YStart + r*interlace.Passes[pass].YStep
			if d.mode == Block {
				interlace.Block(d.fb, d.fbRowBytes, y, d.cur[1:1+passBytes],
					pass, info.Width, info.Height, info.PixelDepth)
			} else {
				row := d.fb[y*d.fbRowBytes : (y+1)*d.fbRowBytes]
				interlace.Sparkle(row, d.cur[1:1+passBytes], pass, info.Width, info.PixelDepth)
			}
			d.cur, d.prev = d.prev, d.cur
		}
	}
	return nil
}

// NextRow decodes and returns the next image row. dst must hold at least
// OutputRowBytes bytes, or be nil to use an internal buffer that is
// overwritten by the following call. After the final row, NextRow
// processes the trailing chunks and returns io.EOF.
func (d *Decoder) NextRow(dst []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.canceled {
		return nil, d.fail(fmt.Errorf("png: decode canceled by progress callback"))
	}
	if d.y >= int(d.info.Height) {
		if err := d.finish(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	if !d.rowInit {
		if err := d.initRows(); err != nil {
			return nil, d.fail(err)
		}
	}
	if dst != nil && len(dst) < d.OutputRowBytes() {
		return nil, fmt.Errorf("png: row buffer too small: %d < %d", len(dst), d.OutputRowBytes())
	}

	var raw []byte
	if d.fb != nil {
		raw = d.fb[d.y*d.fbRowBytes : d.y*d.fbRowBytes+d.info.RowBytes]
	} else {
		if err := d.readFiltered(d.info.RowBytes); err != nil {
			return nil, d.fail(err)
		}
		if err := d.rev.Reverse(d.cur[0], d.cur[1:1+d.info.RowBytes], d.prev[1:1+d.info.RowBytes]); err != nil {
			return nil, d.fail(err)
		}
		raw = d.cur[1 : 1+d.info.RowBytes]
	}

	copy(d.work, raw)
	ri := transform.RowInfo{
		Width:    d.info.Width,
		BitDepth: d.info.BitDepth,
		Channels: uint8(d.info.Channels),
		RowBytes: d.info.RowBytes,
	}
	if d.info.ColorType == chunk.ColorPalette {
		ri.Flags |= transform.FlagIndexed
	}
	if err := d.pipe.Run(&ri, d.work); err != nil {
		return nil, d.fail(err)
	}

	if d.fb == nil {
		d.cur, d.prev = d.prev, d.cur
	}
	d.y++

	if dst == nil {
		if d.out == nil {
			d.out = pool.Get(d.pipe.MaxRowBytes)
		}
		dst = d.out
	}
	n := copy(dst[:ri.RowBytes], d.work[:ri.RowBytes])

	if d.onRow != nil && !d.onRow(d.y-1) {
		d.canceled = true
	}
	return dst[:n], nil
}

// finish drains trailing IDAT bytes, validates the remaining chunk
// stream through IEND, and applies strict-mode promotion.
func (d *Decoder) finish() error {
	if d.finished {
		if d.strict && d.parser.WarnCount()+d.warnCount > 0 {
			return ErrStrict
		}
		return nil
	}
	d.finished = true

	if !d.rowInit {
		// Zero-row reads never happen (height >= 1), but claim/release
		// symmetry keeps the context single-owner.
		if err := d.initRows(); err != nil {
			return d.fail(err)
		}
	}

	// The deflate stream may continue past the last row (a final empty
	// block, or garbage); read it off and classify.
	var tail [64]byte
	extra := 0
	for {
		n, err := d.zr.Read(tail[:])
		extra += n
		if err != nil {
			if err == io.ErrUnexpectedEOF {
				d.warn(chunk.WarnTruncatedIDAT, "deflate stream ended prematurely")
			} else if err != io.EOF {
				d.warn(chunk.WarnTruncatedIDAT, err.Error())
			}
			break
		}
		if n == 0 {
			break
		}
	}
	if extra > 0 {
		d.warn(chunk.WarnTrailingIDAT, "extra compressed data after image")
	}
	d.zr.Close()
	d.parser.ReleaseZStream()

	if skipped, err := d.parser.DrainIDAT(); err != nil {
		return d.fail(err)
	} else if skipped {
		d.warn(chunk.WarnTrailingIDAT, "trailing data in IDAT")
	}
	if err := d.parser.Finish(); err != nil {
		return d.fail(err)
	}

	d.releaseBuffers()

	if d.strict && d.parser.WarnCount()+d.warnCount > 0 {
		return ErrStrict
	}
	return nil
}

func (d *Decoder) releaseBuffers() {
	if d.cur != nil {
		pool.Put(d.cur)
		d.cur = nil
	}
	if d.prev != nil {
		pool.Put(d.prev)
		d.prev = nil
	}
	if d.work != nil {
		pool.Put(d.work)
		d.work = nil
	}
}

// Close releases the decoder's buffers and capability scratch. It is safe
// to call at any point, including after an error; the decoder must not be
// used afterwards.
func (d *Decoder) Close() error {
	if d.zr != nil {
		d.zr.Close()
		d.zr = nil
		d.parser.ReleaseZStream()
	}
	d.releaseBuffers()
	if d.out != nil {
		pool.Put(d.out)
		d.out = nil
	}
	if d.pipe != nil {
		d.pipe.Teardown()
	}
	if d.err == nil {
		d.err = fmt.Errorf("png: decoder closed")
	}
	return nil
}

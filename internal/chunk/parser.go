package chunk

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// WarnCode classifies benign anomalies reported through Config.Warn.
type WarnCode int

const (
	WarnCRC WarnCode = iota
	WarnDuplicate
	WarnOrder
	WarnLength
	WarnValue
	WarnInflate
	WarnLimit
	WarnKeyword
	WarnTruncatedIDAT
	WarnTrailingIDAT
	WarnUnknown
)

// Warning is a recoverable anomaly: the offending chunk is discarded or
// partially used, and the decode continues.
type Warning struct {
	Chunk   Name
	Code    WarnCode
	Message string
}

// UnknownPolicy is the four-way routing for unrecognized chunk types.
type UnknownPolicy int

const (
	UnknownDefault UnknownPolicy = iota // critical: fatal; ancillary: skip
	UnknownNever                        // discard, critical still fatal
	UnknownIfSafe                       // keep ancillary, discard critical (fatal)
	UnknownAlways                       // keep both
)

// Limits caps the resources a hostile stream can claim. Zero fields use
// the package defaults; negative fields disable the cap.
type Limits struct {
	MaxTextSize     int // inflated bytes per text chunk
	MaxProfileSize  int // inflated ICC profile bytes
	MaxCachedChunks int // stored ancillary/unknown chunks
}

func (l Limits) textSize() int    { return defaulted(l.MaxTextSize, DefaultMaxTextSize) }
func (l Limits) profileSize() int { return defaulted(l.MaxProfileSize, DefaultMaxProfileSize) }
func (l Limits) cachedChunks() int {
	return defaulted(l.MaxCachedChunks, DefaultMaxCachedChunks)
}

func defaulted(v, def int) int {
	switch {
	case v == 0:
		return def
	case v < 0:
		return int(^uint(0) >> 1)
	}
	return v
}

// Config carries the host policies the parser consults while reading.
type Config struct {
	// Warn receives benign anomalies. Nil means warnings are dropped.
	Warn func(Warning)

	CRCCritical  CRCAction
	CRCAncillary CRCAction

	Unknown          UnknownPolicy
	UnknownOverrides map[Name]UnknownPolicy
	// UnknownHandler, when set, is offered every unknown chunk before the
	// policy applies. Returning true consumes the chunk; this is the only
	// way (besides UnknownAlways) to rescue an unknown critical chunk.
	UnknownHandler func(name Name, data []byte) (bool, error)

	Limits Limits

	// AllowMNGFilter accepts IHDR filter method 64 (MNG intrapixel).
	AllowMNGFilter bool
}

// parseState is the position of the parser within the chunk stream.
type parseState int

const (
	stateSignature parseState = iota
	stateIHDR                 // signature read, IHDR expected
	stateBeforePLTE           // IHDR read
	stateBeforeIDAT           // PLTE read (or not applicable)
	stateInIDAT               // inside the IDAT run
	stateAfterIDAT            // first non-IDAT chunk after the run seen
	stateDone                 // IEND read
)

// Parser reads the PNG chunk stream from a byte source, enforces ordering,
// validates CRCs, and dispatches per-chunk handlers into an Info.
type Parser struct {
	r    io.Reader
	cfg  Config
	info *Info

	crc   crcEngine
	z     zstream
	state parseState
	seen  map[Name]bool // unique-chunk tracking

	// Current IDAT run position. pending holds a non-IDAT header that was
	// consumed while serving IDAT bytes and must be handled by Finish.
	idatRemaining uint32
	pending       Name
	pendingLen    uint32
	havePending   bool

	cached    int // chunks stored toward Limits.MaxCachedChunks
	warnCount int
	err       error // latched fatal error

	tmp [13]byte
}

// NewParser wraps the byte source. Nothing is read until ReadHeader.
func NewParser(r io.Reader, cfg Config) *Parser {
	return &Parser{
		r:    r,
		cfg:  cfg,
		info: &Info{SRGBIntent: -1},
		seen: make(map[Name]bool),
	}
}

// Info returns the metadata sink. It is populated incrementally: IHDR and
// all pre-IDAT chunks after ReadHeader, post-IDAT chunks after Finish.
func (p *Parser) Info() *Info { return p.info }

// WarnCount returns the number of warnings emitted so far.
func (p *Parser) WarnCount() int { return p.warnCount }

// Err returns the latched fatal error, if any.
func (p *Parser) Err() error { return p.err }

func (p *Parser) warn(chunk Name, code WarnCode, msg string) {
	p.warnCount++
	if p.cfg.Warn != nil {
		p.cfg.Warn(Warning{Chunk: chunk, Code: code, Message: msg})
	}
}

// fail latches err as the terminal state and returns it.
func (p *Parser) fail(err error) error {
	if p.err == nil {
		p.err = err
	}
	return p.err
}

func (p *Parser) readFull(buf []byte) error {
	if _, err := io.ReadFull(p.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrTruncated
		}
		return err
	}
	return nil
}

// ReadHeader consumes the signature and every chunk up to and including the
// first IDAT header. On return the parser is positioned at the start of the
// IDAT payload and Info holds all pre-IDAT metadata.
func (p *Parser) ReadHeader() error {
	if p.err != nil {
		return p.err
	}
	if err := p.readSignature(); err != nil {
		return p.fail(err)
	}
	for {
		name, length, err := p.readChunkHeader()
		if err != nil {
			return p.fail(err)
		}
		if name == NameIDAT {
			if p.state == stateIHDR {
				return p.fail(errors.Wrap(ErrChunkOrder, "IDAT before IHDR"))
			}
			if p.info.ColorType == ColorPalette && len(p.info.Palette) == 0 {
				return p.fail(errors.Wrap(ErrChunkOrder, "IDAT before required PLTE"))
			}
			p.state = stateInIDAT
			p.seen[NameIDAT] = true
			p.idatRemaining = length
			return nil
		}
		if name == NameIEND {
			return p.fail(errors.Wrap(ErrChunkOrder, "IEND before IDAT"))
		}
		if err := p.consumeChunk(name, length); err != nil {
			return p.fail(err)
		}
	}
}

func (p *Parser) readSignature() error {
	if p.state != stateSignature {
		return nil
	}
	sig := p.tmp[:8]
	if err := p.readFull(sig); err != nil {
		return ErrBadSignature
	}
	for i, b := range Signature {
		if sig[i] != b {
			return ErrBadSignature
		}
	}
	p.state = stateIHDR
	return nil
}

// readChunkHeader reads the 4-byte length and 4-byte type, starts the CRC
// over the type, and enforces the IHDR-first rule.
func (p *Parser) readChunkHeader() (Name, uint32, error) {
	hdr := p.tmp[:8]
	if err := p.readFull(hdr); err != nil {
		return 0, 0, err
	}
	length := binary.BigEndian.Uint32(hdr[:4])
	name := Name(binary.BigEndian.Uint32(hdr[4:8]))
	if length > MaxChunkLength {
		return 0, 0, errors.Wrapf(ErrBadLength, "%s length %d", name, length)
	}
	if !name.Valid() {
		return 0, 0, errors.Wrapf(ErrBadLength, "invalid chunk type %08x", uint32(name))
	}
	p.crc.reset()
	p.crc.absorbName(name)
	if p.state == stateIHDR && name != NameIHDR {
		return 0, 0, errors.Wrapf(ErrMissingIHDR, "first chunk is %s", name)
	}
	if p.state != stateIHDR && name == NameIHDR {
		return 0, 0, errors.Wrap(ErrDuplicate, "IHDR")
	}
	return name, length, nil
}

// consumeChunk reads one complete non-IDAT chunk body, validates the CRC
// per policy, and dispatches the handler.
func (p *Parser) consumeChunk(name Name, length uint32) error {
	data, err := p.readChunkData(name, length)
	if err != nil {
		return err
	}
	use, err := p.readTrailer(name)
	if err != nil {
		return err
	}
	if !use {
		return nil
	}
	return p.dispatch(name, data)
}

// readChunkData buffers a chunk payload, running the CRC over it.
func (p *Parser) readChunkData(name Name, length uint32) ([]byte, error) {
	data := make([]byte, length)
	if err := p.readFull(data); err != nil {
		return nil, errors.Wrapf(err, "reading %s", name)
	}
	p.crc.absorb(data)
	return data, nil
}

// readTrailer reads and checks the stored CRC. It reports whether the
// chunk data should be used.
func (p *Parser) readTrailer(name Name) (bool, error) {
	buf := p.tmp[:4]
	if err := p.readFull(buf); err != nil {
		return false, errors.Wrapf(err, "reading %s CRC", name)
	}
	stored := binary.BigEndian.Uint32(buf)
	if stored == p.crc.sum() {
		return true, nil
	}
	action := p.cfg.CRCAncillary
	if name.Critical() {
		action = p.cfg.CRCCritical
	}
	verdict, doWarn := resolveCRC(action, name.Critical())
	if doWarn {
		p.warn(name, WarnCRC, "CRC error")
	}
	switch verdict {
	case crcUse:
		return true, nil
	case crcDiscard:
		return false, nil
	}
	return false, errors.Wrapf(ErrCRC, "%s", name)
}

// dispatch routes a complete chunk to its handler, enforcing ordering and
// duplicate rules first.
func (p *Parser) dispatch(name Name, data []byte) error {
	switch name {
	case NameIHDR:
		if err := p.handleIHDR(data); err != nil {
			return err
		}
		p.state = stateBeforePLTE
		p.seen[NameIHDR] = true
		return nil
	case NamePLTE:
		return p.handlePLTE(data)
	}

	if dup := uniqueChunks[name]; dup && p.seen[name] {
		p.warn(name, WarnDuplicate, "duplicate "+name.String())
		return nil
	}

	if handler, ok := handlers[name]; ok {
		p.checkOrder(name)
		if err := handler(p, data); err != nil {
			return err
		}
		p.seen[name] = true
		return nil
	}
	return p.handleUnknown(name, data)
}

// handlers maps ancillary chunk types to their parse functions. IHDR, PLTE,
// IDAT and IEND are handled structurally by the parser itself.
var handlers = map[Name]func(*Parser, []byte) error{
	NametRNS: (*Parser).handletRNS,
	NamegAMA: (*Parser).handlegAMA,
	NamecHRM: (*Parser).handlecHRM,
	NamesRGB: (*Parser).handlesRGB,
	NameiCCP: (*Parser).handleiCCP,
	NamesBIT: (*Parser).handlesBIT,
	NamebKGD: (*Parser).handlebKGD,
	NamehIST: (*Parser).handlehIST,
	NamepHYs: (*Parser).handlepHYs,
	NameoFFs: (*Parser).handleoFFs,
	NamepCAL: (*Parser).handlepCAL,
	NamesCAL: (*Parser).handlesCAL,
	NamesPLT: (*Parser).handlesPLT,
	NametIME: (*Parser).handletIME,
	NametEXt: (*Parser).handletEXt,
	NamezTXt: (*Parser).handlezTXt,
	NameiTXt: (*Parser).handleiTXt,
	NameeXIf: (*Parser).handleeXIf,
}

// uniqueChunks lists types that may appear at most once.
var uniqueChunks = map[Name]bool{
	NametRNS: true, NamegAMA: true, NamecHRM: true, NamesRGB: true,
	NameiCCP: true, NamesBIT: true, NamebKGD: true, NamehIST: true,
	NamepHYs: true, NameoFFs: true, NamepCAL: true, NamesCAL: true,
	NametIME: true, NameeXIf: true,
}

// sPLT and the text chunks may repeat; their handlers police duplicate
// names themselves.

// beforePLTE lists types that must precede PLTE when PLTE is present.
var beforePLTE = map[Name]bool{
	NamegAMA: true, NamecHRM: true, NamesRGB: true, NameiCCP: true, NamesBIT: true,
}

// afterPLTE lists types that must follow PLTE when PLTE is present.
var afterPLTE = map[Name]bool{
	NametRNS: true, NamebKGD: true, NamehIST: true,
}

// anywhereAfterIDAT lists ancillary types that are legal after the IDAT run.
var anywhereAfterIDAT = map[Name]bool{
	NametEXt: true, NamezTXt: true, NameiTXt: true, NametIME: true, NameeXIf: true,
}

// checkOrder emits out-of-order warnings for recoverable placements. The
// chunk is still processed; structural violations never reach here.
func (p *Parser) checkOrder(name Name) {
	switch {
	case beforePLTE[name] && p.seen[NamePLTE]:
		p.warn(name, WarnOrder, name.String()+" after PLTE")
	case afterPLTE[name] && p.info.ColorType == ColorPalette && !p.seen[NamePLTE]:
		p.warn(name, WarnOrder, name.String()+" before PLTE")
	case p.state >= stateInIDAT && !anywhereAfterIDAT[name]:
		p.warn(name, WarnOrder, name.String()+" after IDAT")
	}
}

// handleUnknown applies the four-way unknown-chunk policy.
func (p *Parser) handleUnknown(name Name, data []byte) error {
	if p.cfg.UnknownHandler != nil {
		handled, err := p.cfg.UnknownHandler(name, data)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	policy := p.cfg.Unknown
	if o, ok := p.cfg.UnknownOverrides[name]; ok {
		policy = o
	}
	keep := false
	switch policy {
	case UnknownAlways:
		keep = true
	case UnknownIfSafe:
		keep = !name.Critical()
	case UnknownNever, UnknownDefault:
		keep = false
	}
	if name.Critical() && !keep {
		return errors.Wrapf(ErrUnknownCritical, "%s", name)
	}
	if !keep {
		return nil
	}
	if p.cached >= p.cfg.Limits.cachedChunks() {
		p.warn(name, WarnLimit, "chunk cache full")
		return nil
	}
	p.cached++
	p.info.Unknown = append(p.info.Unknown, UnknownChunk{Name: name, Data: data})
	return nil
}

// Read serves the concatenated IDAT payload bytes, transparently crossing
// chunk boundaries and validating each chunk's CRC. It returns io.EOF at
// the first non-IDAT chunk header, which is held for Finish.
func (p *Parser) Read(buf []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	for p.idatRemaining == 0 {
		if p.state != stateInIDAT {
			return 0, io.EOF
		}
		// Current IDAT chunk exhausted: check its CRC and look at the
		// next header.
		if _, err := p.readTrailer(NameIDAT); err != nil {
			return 0, p.fail(err)
		}
		name, length, err := p.readChunkHeader()
		if err != nil {
			return 0, p.fail(err)
		}
		if name == NameIDAT {
			p.idatRemaining = length
			continue
		}
		p.state = stateAfterIDAT
		p.pending = name
		p.pendingLen = length
		p.havePending = true
		return 0, io.EOF
	}
	if len(buf) == 0 {
		return 0, nil
	}
	n := len(buf)
	if uint32(n) > p.idatRemaining {
		n = int(p.idatRemaining)
	}
	if err := p.readFull(buf[:n]); err != nil {
		return 0, p.fail(errors.Wrap(err, "reading IDAT"))
	}
	p.crc.absorb(buf[:n])
	p.idatRemaining -= uint32(n)
	return n, nil
}

// DrainIDAT discards any unread IDAT payload. It reports whether any bytes
// were skipped, so the driver can warn about trailing garbage.
func (p *Parser) DrainIDAT() (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	skipped := false
	var scratch [4096]byte
	for {
		n, err := p.Read(scratch[:])
		if err == io.EOF {
			return skipped, nil
		}
		if err != nil {
			return skipped, err
		}
		if n > 0 {
			skipped = true
		}
	}
}

// Finish processes every chunk after the IDAT run through IEND. The IDAT
// payload must already be fully consumed (see DrainIDAT).
func (p *Parser) Finish() error {
	if p.err != nil {
		return p.err
	}
	if p.state == stateDone {
		return nil
	}
	for {
		var name Name
		var length uint32
		if p.havePending {
			name, length = p.pending, p.pendingLen
			p.havePending = false
		} else {
			var err error
			name, length, err = p.readChunkHeader()
			if err != nil {
				return p.fail(err)
			}
		}
		switch name {
		case NameIDAT:
			// The IDAT run is contiguous; a revival after any other
			// chunk is structural.
			return p.fail(errors.Wrap(ErrChunkOrder, "IDAT after non-IDAT chunk"))
		case NameIEND:
			if length != 0 {
				p.warn(NameIEND, WarnLength, "IEND with nonzero length")
			}
			if err := p.consumeIEND(length); err != nil {
				return p.fail(err)
			}
			p.state = stateDone
			return nil
		}
		if err := p.consumeChunk(name, length); err != nil {
			return p.fail(err)
		}
	}
}

func (p *Parser) consumeIEND(length uint32) error {
	if length > 0 {
		if _, err := p.readChunkData(NameIEND, length); err != nil {
			return err
		}
	}
	_, err := p.readTrailer(NameIEND)
	return err
}

package chunk

import "hash/crc32"

// CRCAction selects what to do with a chunk whose stored CRC does not match
// the computed one. The zero value, CRCDefault, resolves to the per-class
// default: fatal for critical chunks, warn-and-discard for ancillary.
type CRCAction int

const (
	CRCDefault CRCAction = iota
	CRCNoChange            // keep the currently configured action
	CRCWarnUse             // warn, keep the data
	CRCQuietUse            // keep the data silently
	CRCWarnDiscard         // warn, drop the chunk (ancillary only)
	CRCErrorQuit           // fatal
)

// crcEngine is a running IEEE 802.3 CRC-32 over the chunk type and data
// fields. The IEEE table is shared and immutable, so engines are cheap.
type crcEngine struct {
	crc uint32
}

func (e *crcEngine) reset() { e.crc = 0 }

func (e *crcEngine) absorb(p []byte) {
	e.crc = crc32.Update(e.crc, crc32.IEEETable, p)
}

func (e *crcEngine) absorbName(n Name) {
	var b [4]byte
	b[0], b[1], b[2], b[3] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
	e.absorb(b[:])
}

func (e *crcEngine) sum() uint32 { return e.crc }

// crcVerdict is the resolved outcome of a CRC mismatch.
type crcVerdict int

const (
	crcUse crcVerdict = iota // accept the data
	crcDiscard               // drop the chunk
	crcFatal                 // abort the decode
)

// resolveCRC maps the configured per-class action and the chunk class to a
// verdict plus whether a warning should be emitted.
func resolveCRC(action CRCAction, critical bool) (crcVerdict, bool) {
	if action == CRCDefault || action == CRCNoChange {
		if critical {
			return crcFatal, false
		}
		return crcDiscard, true
	}
	switch action {
	case CRCWarnUse:
		return crcUse, true
	case CRCQuietUse:
		return crcUse, false
	case CRCWarnDiscard:
		if critical {
			// Discarding a critical chunk is not survivable.
			return crcFatal, false
		}
		return crcDiscard, true
	case CRCErrorQuit:
		return crcFatal, false
	}
	return crcFatal, false
}

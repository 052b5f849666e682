package chunk

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/pkg/errors"

	"github.com/deepteams/png/internal/pool"
)

// zstream tracks ownership of the decoder's single inflate context. The
// owner token is the chunk type currently consuming it; claiming while
// another chunk holds it is an internal error.
type zstream struct {
	owner Name
}

func (z *zstream) claim(owner Name) error {
	if z.owner != 0 {
		return errors.Wrapf(ErrZStreamBusy, "%s claimed while %s holds it", owner, z.owner)
	}
	z.owner = owner
	return nil
}

func (z *zstream) release() { z.owner = 0 }

// ClaimIDAT hands the inflate context to the IDAT consumer and returns the
// streamed zlib reader over the concatenated IDAT payload. The caller must
// call ReleaseZStream when done.
func (p *Parser) ClaimIDAT() (io.ReadCloser, error) {
	if err := p.z.claim(NameIDAT); err != nil {
		return nil, p.fail(err)
	}
	zr, err := zlib.NewReader(p)
	if err != nil {
		p.z.release()
		return nil, p.fail(errors.Wrap(ErrInflate, err.Error()))
	}
	return zr, nil
}

// ReleaseZStream returns the inflate context so the next claimant starts
// clean.
func (p *Parser) ReleaseZStream() { p.z.release() }

// inflateBounded is the two-pass scheme for compressed ancillary chunks:
// the first pass measures the inflated size against max, the second fills
// an exact-size buffer. A length disagreement between passes is treated as
// malicious and rejected.
func (p *Parser) inflateBounded(owner Name, data []byte, max int) ([]byte, error) {
	if err := p.z.claim(owner); err != nil {
		return nil, p.fail(err)
	}
	defer p.z.release()

	n, err := inflatedSize(data, max)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(ErrInflate, err.Error())
	}
	defer zr.Close()
	out := make([]byte, n)
	got, err := io.ReadFull(zr, out)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrap(ErrInflate, err.Error())
	}
	if got != n || oneMore(zr) {
		return nil, errors.Wrap(ErrInflate, "inconsistent inflate length")
	}
	return out, nil
}

// inflatedSize runs the measuring pass, failing once the output exceeds max.
func inflatedSize(data []byte, max int) (int, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return 0, errors.Wrap(ErrInflate, err.Error())
	}
	defer zr.Close()
	scratch := pool.Get(pool.Size16K)
	defer pool.Put(scratch)
	total := 0
	for {
		n, err := zr.Read(scratch)
		total += n
		if total > max {
			return 0, errors.Wrapf(ErrLimit, "inflated chunk exceeds %d bytes", max)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, errors.Wrap(ErrInflate, err.Error())
		}
	}
}

// oneMore reports whether the stream still has bytes past the expected end.
func oneMore(r io.Reader) bool {
	var b [1]byte
	n, _ := r.Read(b[:])
	return n > 0
}

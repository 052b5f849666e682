package chunk

import (
	"bytes"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// errBadKeyword marks a keyword rejected by canonicalisation. Text chunks
// carrying one are dropped as a benign error.
var errBadKeyword = errors.New("invalid keyword")

// canonicalKeyword strips leading and trailing spaces, collapses runs of
// interior spaces, and rejects characters outside the printable Latin-1
// ranges. The result must be 1..79 bytes.
func canonicalKeyword(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	space := true // swallow leading spaces
	for _, c := range raw {
		if c == ' ' {
			if !space {
				out = append(out, c)
				space = true
			}
			continue
		}
		if c < 32 || (c > 126 && c < 161) {
			return nil, errBadKeyword
		}
		out = append(out, c)
		space = false
	}
	out = bytes.TrimRight(out, " ")
	if len(out) == 0 || len(out) > MaxKeyword {
		return nil, errBadKeyword
	}
	return out, nil
}

// latin1String transcodes Latin-1 bytes to a UTF-8 Go string.
func latin1String(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// ISO 8859-1 decodes every byte; unreachable.
		return string(b)
	}
	return string(s)
}

// splitKeyword splits a chunk payload at the keyword NUL separator and
// canonicalises the keyword. Failures warn and return an error the caller
// treats as chunk-discarded.
func (p *Parser) splitKeyword(chunk Name, data []byte) (string, []byte, error) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		p.warn(chunk, WarnKeyword, "missing keyword terminator")
		return "", nil, errBadKeyword
	}
	kw, err := canonicalKeyword(data[:i])
	if err != nil {
		p.warn(chunk, WarnKeyword, "invalid keyword")
		return "", nil, err
	}
	return latin1String(kw), data[i+1:], nil
}

// addText appends a text entry, honouring the chunk cache cap.
func (p *Parser) addText(chunk Name, e TextEntry) {
	if p.cached >= p.cfg.Limits.cachedChunks() {
		p.warn(chunk, WarnLimit, "chunk cache full")
		return
	}
	p.cached++
	p.info.Text = append(p.info.Text, e)
}

// handletEXt parses an uncompressed Latin-1 text chunk.
func (p *Parser) handletEXt(data []byte) error {
	kw, rest, err := p.splitKeyword(NametEXt, data)
	if err != nil {
		return nil
	}
	p.addText(NametEXt, TextEntry{
		Kind:    TextLatin1,
		Keyword: kw,
		Text:    latin1String(rest),
	})
	return nil
}

// handlezTXt parses a deflate-compressed Latin-1 text chunk.
func (p *Parser) handlezTXt(data []byte) error {
	kw, rest, err := p.splitKeyword(NamezTXt, data)
	if err != nil {
		return nil
	}
	if len(rest) < 1 {
		p.warn(NamezTXt, WarnLength, "zTXt missing compression method")
		return nil
	}
	if rest[0] != 0 {
		p.warn(NamezTXt, WarnValue, "unknown zTXt compression method")
		return nil
	}
	text, err := p.inflateBounded(NamezTXt, rest[1:], p.cfg.Limits.textSize())
	if err != nil {
		p.warn(NamezTXt, WarnInflate, err.Error())
		return nil
	}
	p.addText(NamezTXt, TextEntry{
		Kind:    TextCompressed,
		Keyword: kw,
		Text:    latin1String(text),
	})
	return nil
}

// handleiTXt parses an international text chunk: keyword NUL
// compression_flag compression_method language NUL translated_keyword NUL
// then UTF-8 text, raw or deflated.
func (p *Parser) handleiTXt(data []byte) error {
	kw, rest, err := p.splitKeyword(NameiTXt, data)
	if err != nil {
		return nil
	}
	if len(rest) < 2 {
		p.warn(NameiTXt, WarnLength, "iTXt truncated")
		return nil
	}
	compFlag, compMethod := rest[0], rest[1]
	rest = rest[2:]
	if compFlag > 1 {
		p.warn(NameiTXt, WarnValue, "invalid iTXt compression flag")
		return nil
	}
	if compFlag == 1 && compMethod != 0 {
		p.warn(NameiTXt, WarnValue, "unknown iTXt compression method")
		return nil
	}
	langEnd := bytes.IndexByte(rest, 0)
	if langEnd < 0 {
		p.warn(NameiTXt, WarnLength, "iTXt missing language terminator")
		return nil
	}
	lang := string(rest[:langEnd])
	rest = rest[langEnd+1:]
	trEnd := bytes.IndexByte(rest, 0)
	if trEnd < 0 {
		p.warn(NameiTXt, WarnLength, "iTXt missing translated keyword terminator")
		return nil
	}
	translated := rest[:trEnd]
	text := rest[trEnd+1:]
	if compFlag == 1 {
		text, err = p.inflateBounded(NameiTXt, text, p.cfg.Limits.textSize())
		if err != nil {
			p.warn(NameiTXt, WarnInflate, err.Error())
			return nil
		}
	}
	if !utf8.Valid(text) || !utf8.Valid(translated) {
		p.warn(NameiTXt, WarnValue, "iTXt text is not valid UTF-8")
		return nil
	}
	p.addText(NameiTXt, TextEntry{
		Kind:       TextUTF8,
		Keyword:    kw,
		Text:       string(text),
		Language:   lang,
		Translated: string(translated),
	})
	return nil
}

package png

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"io"
	"testing"
)

func mkChunk(name string, data []byte) []byte {
	buf := make([]byte, 8+len(data)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:8], name)
	copy(buf[8:], data)
	binary.BigEndian.PutUint32(buf[8+len(data):], crc32.ChecksumIEEE(buf[4:8+len(data)]))
	return buf
}

func mkIHDR(w, h uint32, depth, colorType, interlaceMethod uint8) []byte {
	data := make([]byte, 13)
	binary.BigEndian.PutUint32(data[0:4], w)
	binary.BigEndian.PutUint32(data[4:8], h)
	data[8] = depth
	data[9] = colorType
	data[12] = interlaceMethod
	return mkChunk("IHDR", data)
}

func mkIDAT(t *testing.T, scanlines []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(scanlines); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	return mkChunk("IDAT", buf.Bytes())
}

func mkPNG(chunks ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	for _, c := range chunks {
		buf.Write(c)
	}
	buf.Write(mkChunk("IEND", nil))
	return buf.Bytes()
}

func readAllRows(t *testing.T, d *Decoder) [][]byte {
	t.Helper()
	var rows [][]byte
	for {
		row, err := d.NextRow(nil)
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, append([]byte(nil), row...))
	}
}

func TestDecode_Gray1x1None(t *testing.T) {
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 0),
		mkIDAT(t, []byte{0x00, 0xAB}),
	)
	var warnings []Warning
	d, err := NewDecoder(bytes.NewReader(data),
		WithWarningHandler(func(w Warning) { warnings = append(warnings, w) }))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0] != 0xAB {
		t.Fatalf("rows = %v, want [[0xAB]]", rows)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
}

func TestDecode_Gray1x1Paeth(t *testing.T) {
	// Paeth on the first pixel of the first row: predictor 0.
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 0),
		mkIDAT(t, []byte{0x04, 0xAB}),
	)
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 1 || rows[0][0] != 0xAB {
		t.Fatalf("rows = %v, want [[0xAB]]", rows)
	}
}

func TestDecode_Adam7_2x2RGB(t *testing.T) {
	// 2x2 RGB interlaced. Contributing passes: 0 → (0,0), 5 → (1,0),
	// 6 → row 1. Empty passes produce no filter bytes at all.
	scanlines := []byte{
		0, 1, 2, 3, // pass 0
		0, 4, 5, 6, // pass 5
		0, 7, 8, 9, 10, 11, 12, // pass 6
	}
	data := mkPNG(
		mkIHDR(2, 2, 8, 2, 1),
		mkIDAT(t, scanlines),
	)
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if want := []byte{1, 2, 3, 4, 5, 6}; !bytes.Equal(rows[0], want) {
		t.Errorf("row 0 = %v, want %v", rows[0], want)
	}
	if want := []byte{7, 8, 9, 10, 11, 12}; !bytes.Equal(rows[1], want) {
		t.Errorf("row 1 = %v, want %v", rows[1], want)
	}
}

func TestDecode_Adam7_BlockModeSameFinalImage(t *testing.T) {
	scanlines := []byte{
		0, 1, 2, 3,
		0, 4, 5, 6,
		0, 7, 8, 9, 10, 11, 12,
	}
	data := mkPNG(mkIHDR(2, 2, 8, 2, 1), mkIDAT(t, scanlines))
	d, err := NewDecoder(bytes.NewReader(data), WithDisplayMode(Block))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if want := []byte{1, 2, 3, 4, 5, 6}; !bytes.Equal(rows[0], want) {
		t.Errorf("row 0 = %v, want %v", rows[0], want)
	}
	if want := []byte{7, 8, 9, 10, 11, 12}; !bytes.Equal(rows[1], want) {
		t.Errorf("row 1 = %v, want %v", rows[1], want)
	}
}

func TestDecode_PaletteExpandWithTRNS(t *testing.T) {
	data := mkPNG(
		mkIHDR(2, 1, 8, 3, 0),
		mkChunk("PLTE", []byte{10, 20, 30, 40, 50, 60}),
		mkChunk("tRNS", []byte{255, 128}),
		mkIDAT(t, []byte{0x00, 0, 1}),
	)
	d, err := NewDecoder(bytes.NewReader(data), WithExpand())
	if err != nil {
		t.Fatal(err)
	}
	if d.OutputRowBytes() != 8 || d.OutputChannels() != 4 {
		t.Fatalf("output geometry %d bytes / %d channels", d.OutputRowBytes(), d.OutputChannels())
	}
	rows := readAllRows(t, d)
	want := []byte{10, 20, 30, 255, 40, 50, 60, 128}
	if len(rows) != 1 || !bytes.Equal(rows[0], want) {
		t.Fatalf("rows = %v, want %v", rows, want)
	}
}

func TestDecode_CorruptAncillaryCRC(t *testing.T) {
	text := mkChunk("tEXt", []byte("Comment\x00hello"))
	text[len(text)-1] ^= 1
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 0),
		mkIDAT(t, []byte{0x00, 0x55}),
		text,
	)
	var warnings []Warning
	d, err := NewDecoder(bytes.NewReader(data),
		WithWarningHandler(func(w Warning) { warnings = append(warnings, w) }))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 1 || rows[0][0] != 0x55 {
		t.Fatalf("rows = %v", rows)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if len(d.Metadata().Text) != 0 {
		t.Fatal("corrupted tEXt must not be stored")
	}
}

func TestDecode_StrictPromotesWarnings(t *testing.T) {
	text := mkChunk("tEXt", []byte("Comment\x00hello"))
	text[len(text)-1] ^= 1
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 0),
		mkIDAT(t, []byte{0x00, 0x55}),
		text,
	)
	d, err := NewDecoder(bytes.NewReader(data), WithStrict())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); !errors.Is(err, ErrStrict) {
		t.Fatalf("err = %v, want ErrStrict", err)
	}
}

// TestDecode_FilterRoundTrip exercises all five filters with transforms
// disabled: refiltering the emitted rows must reproduce the inflate
// output exactly.
func TestDecode_FilterRoundTrip(t *testing.T) {
	// 4x5 RGB, one filter type per row.
	width, height, bpp := 4, 5, 3
	pixels := make([][]byte, height)
	v := byte(1)
	for y := range pixels {
		pixels[y] = make([]byte, width*bpp)
		for i := range pixels[y] {
			pixels[y][i] = v
			v = v*7 + 3
		}
	}

	paeth := func(a, b, c int) int {
		p := a + b - c
		pa, pb, pc := abs(p-a), abs(p-b), abs(p-c)
		if pa <= pb && pa <= pc {
			return a
		}
		if pb <= pc {
			return b
		}
		return c
	}

	var scanlines []byte
	zero := make([]byte, width*bpp)
	for y := 0; y < height; y++ {
		prev := zero
		if y > 0 {
			prev = pixels[y-1]
		}
		ft := byte(y % 5)
		scanlines = append(scanlines, ft)
		for i, x := range pixels[y] {
			var a, b, c int
			if i >= bpp {
				a = int(pixels[y][i-bpp])
				c = int(prev[i-bpp])
			}
			b = int(prev[i])
			switch ft {
			case 0:
				scanlines = append(scanlines, x)
			case 1:
				scanlines = append(scanlines, x-byte(a))
			case 2:
				scanlines = append(scanlines, x-byte(b))
			case 3:
				scanlines = append(scanlines, x-byte((a+b)/2))
			case 4:
				scanlines = append(scanlines, x-byte(paeth(a, b, c)))
			}
		}
	}

	data := mkPNG(mkIHDR(uint32(width), uint32(height), 8, 2, 0), mkIDAT(t, scanlines))
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	for y := range pixels {
		if !bytes.Equal(rows[y], pixels[y]) {
			t.Errorf("row %d = %v, want %v", y, rows[y], pixels[y])
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestDecode_TruncatedIDATFatal(t *testing.T) {
	// Scanlines for 2 rows, but only 1 provided.
	data := mkPNG(
		mkIHDR(1, 2, 8, 0, 0),
		mkIDAT(t, []byte{0x00, 0x11}),
	)
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	// The error latches.
	if _, err2 := d.NextRow(nil); !errors.Is(err2, ErrTruncated) {
		t.Fatalf("latched err = %v", err2)
	}
}

func TestDecode_RowBufferTooSmall(t *testing.T) {
	data := mkPNG(mkIHDR(4, 1, 8, 2, 0), mkIDAT(t, append([]byte{0}, make([]byte, 12)...)))
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(make([]byte, 3)); err == nil {
		t.Fatal("expected error for undersized row buffer")
	}
}

// countingReader tracks how many bytes the decoder pulls from the source.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestDecode_ConsumesExactlyTheChunkStream(t *testing.T) {
	chunks := [][]byte{
		mkIHDR(1, 1, 8, 0, 0),
		mkChunk("gAMA", binary.BigEndian.AppendUint32(nil, 45455)),
		mkIDAT(t, []byte{0x00, 0x42}),
	}
	data := mkPNG(chunks...)
	cr := &countingReader{r: bytes.NewReader(data)}
	d, err := NewDecoder(cr)
	if err != nil {
		t.Fatal(err)
	}
	readAllRows(t, d)
	if cr.n != len(data) {
		t.Fatalf("consumed %d bytes, stream is %d", cr.n, len(data))
	}
}

func TestDecode_1x1EveryLegalCombination(t *testing.T) {
	combos := []struct {
		colorType, depth uint8
	}{
		{0, 1}, {0, 2}, {0, 4}, {0, 8}, {0, 16},
		{2, 8}, {2, 16},
		{3, 1}, {3, 2}, {3, 4}, {3, 8},
		{4, 8}, {4, 16},
		{6, 8}, {6, 16},
	}
	for _, tt := range combos {
		channels := map[uint8]int{0: 1, 2: 3, 3: 1, 4: 2, 6: 4}[tt.colorType]
		rowBytes := (channels*int(tt.depth) + 7) / 8
		chunks := [][]byte{mkIHDR(1, 1, tt.depth, tt.colorType, 0)}
		if tt.colorType == 3 {
			chunks = append(chunks, mkChunk("PLTE", []byte{1, 2, 3}))
		}
		chunks = append(chunks, mkIDAT(t, append([]byte{0}, make([]byte, rowBytes)...)))
		d, err := NewDecoder(bytes.NewReader(mkPNG(chunks...)))
		if err != nil {
			t.Fatalf("ct %d depth %d: %v", tt.colorType, tt.depth, err)
		}
		rows := readAllRows(t, d)
		if len(rows) != 1 || len(rows[0]) != rowBytes {
			t.Errorf("ct %d depth %d: %d rows, row size %d, want 1 row of %d",
				tt.colorType, tt.depth, len(rows), len(rows[0]), rowBytes)
		}
	}
}

func TestDecode_Adam7_1x1(t *testing.T) {
	// Only pass 0 contributes a single pixel; all other passes are empty
	// and must not consume filter bytes.
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 1),
		mkIDAT(t, []byte{0x00, 0x77}),
	)
	d, err := NewDecoder(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 1 || rows[0][0] != 0x77 {
		t.Fatalf("rows = %v", rows)
	}
}

func TestDecode_ImageAPI(t *testing.T) {
	data := mkPNG(
		mkIHDR(2, 1, 8, 3, 0),
		mkChunk("PLTE", []byte{10, 20, 30, 40, 50, 60}),
		mkChunk("tRNS", []byte{255, 128}),
		mkIDAT(t, []byte{0x00, 0, 1}),
	)
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("got %T, want *image.NRGBA", img)
	}
	want := []byte{10, 20, 30, 255, 40, 50, 60, 128}
	if !bytes.Equal(nrgba.Pix[:8], want) {
		t.Fatalf("pix = %v, want %v", nrgba.Pix[:8], want)
	}

	cfg, err := DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 2 || cfg.Height != 1 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestDecode_GrayToNRGBA(t *testing.T) {
	data := mkPNG(mkIHDR(1, 1, 8, 0, 0), mkIDAT(t, []byte{0x00, 0x80}))
	img, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	nrgba := img.(*image.NRGBA)
	want := []byte{0x80, 0x80, 0x80, 0xFF}
	if !bytes.Equal(nrgba.Pix[:4], want) {
		t.Fatalf("pix = %v, want %v", nrgba.Pix[:4], want)
	}
}

func TestDecode_UnknownCriticalFatal(t *testing.T) {
	data := mkPNG(
		mkIHDR(1, 1, 8, 0, 0),
		mkChunk("ABCD", []byte{1}),
		mkIDAT(t, []byte{0x00, 0x55}),
	)
	if _, err := NewDecoder(bytes.NewReader(data)); err == nil {
		t.Fatal("expected failure on unknown critical chunk")
	}
	// The always policy rescues it into the metadata.
	d, err := NewDecoder(bytes.NewReader(data), WithKeepUnknown(UnknownAlways))
	if err != nil {
		t.Fatal(err)
	}
	if u := d.Metadata().Unknown; len(u) != 1 || u[0].Name.String() != "ABCD" {
		t.Fatalf("unknown = %v", u)
	}
}

func TestDecode_ProgressCallbackCancels(t *testing.T) {
	scan := []byte{0, 1, 0, 2, 0, 3}
	data := mkPNG(mkIHDR(1, 3, 8, 0, 0), mkIDAT(t, scan))
	calls := 0
	d, err := NewDecoder(bytes.NewReader(data), WithProgress(func(row int) bool {
		calls++
		return row < 1 // cancel after the second row
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := d.NextRow(nil); err == nil {
		t.Fatal("expected cancellation error")
	}
	if calls != 2 {
		t.Fatalf("progress called %d times, want 2", calls)
	}
}

func TestDecode_ScaleAndSwap16(t *testing.T) {
	// 1x1 16-bit gray 0x0081 → scale_16 → 1.
	scan := []byte{0x00, 0x00, 0x81}
	data := mkPNG(mkIHDR(1, 1, 16, 0, 0), mkIDAT(t, scan))
	d, err := NewDecoder(bytes.NewReader(data), WithScale16())
	if err != nil {
		t.Fatal(err)
	}
	rows := readAllRows(t, d)
	if len(rows) != 1 || len(rows[0]) != 1 || rows[0][0] != 1 {
		t.Fatalf("rows = %v, want [[1]]", rows)
	}

	// Same input with swap_bytes only: little-endian 16-bit out.
	d2, err := NewDecoder(bytes.NewReader(mkPNG(mkIHDR(1, 1, 16, 0, 0), mkIDAT(t, scan))),
		WithSwapBytes())
	if err != nil {
		t.Fatal(err)
	}
	rows2 := readAllRows(t, d2)
	if want := []byte{0x81, 0x00}; !bytes.Equal(rows2[0], want) {
		t.Fatalf("rows = %v, want %v", rows2, want)
	}
}

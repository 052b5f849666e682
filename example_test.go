package png_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/deepteams/png"
)

// tinyPNG assembles a 2x1 paletted PNG with a transparent second entry.
func tinyPNG() []byte {
	chunk := func(name string, data []byte) []byte {
		buf := make([]byte, 8+len(data)+4)
		binary.BigEndian.PutUint32(buf[0:4], uint32(len(data)))
		copy(buf[4:8], name)
		copy(buf[8:], data)
		binary.BigEndian.PutUint32(buf[8+len(data):], crc32.ChecksumIEEE(buf[4:8+len(data)]))
		return buf
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 2)
	binary.BigEndian.PutUint32(ihdr[4:8], 1)
	ihdr[8], ihdr[9] = 8, 3 // 8-bit palette

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	zw.Write([]byte{0x00, 0, 1}) // filter None, indices 0 and 1
	zw.Close()

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	out.Write(chunk("IHDR", ihdr))
	out.Write(chunk("PLTE", []byte{255, 0, 0, 0, 0, 255}))
	out.Write(chunk("tRNS", []byte{255, 128}))
	out.Write(chunk("IDAT", idat.Bytes()))
	out.Write(chunk("IEND", nil))
	return out.Bytes()
}

func ExampleDecode() {
	img, err := png.Decode(bytes.NewReader(tinyPNG()))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("bounds: %v\n", img.Bounds())
	// Output:
	// bounds: (0,0)-(2,1)
}

func ExampleDecodeConfig() {
	cfg, err := png.DecodeConfig(bytes.NewReader(tinyPNG()))
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%dx%d\n", cfg.Width, cfg.Height)
	// Output:
	// 2x1
}

func ExampleDecoder_NextRow() {
	d, err := png.NewDecoder(bytes.NewReader(tinyPNG()), png.WithExpand())
	if err != nil {
		fmt.Println(err)
		return
	}
	defer d.Close()

	row := make([]byte, d.OutputRowBytes())
	for {
		if _, err := d.NextRow(row); err != nil {
			if err == io.EOF {
				break
			}
			fmt.Println(err)
			return
		}
		fmt.Println(row)
	}
	// Output:
	// [255 0 0 255 0 0 255 128]
}

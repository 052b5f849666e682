// Package png implements the read side of the PNG image format: a
// chunk-stream parser with CRC validation and ordering enforcement, the
// zlib IDAT pipeline with per-row reverse filtering, the Adam7
// deinterleaver, and the ordered pixel-transform pipeline that rewrites
// decoded rows for the caller.
//
// The package registers itself with the standard library's image package
// so that image.Decode can transparently read PNG files.
//
// Basic usage:
//
//	img, err := png.Decode(reader)
//
// Row-by-row decoding with explicit transform selection:
//
//	d, err := png.NewDecoder(reader, png.WithExpand(), png.WithScale16())
//	if err != nil { ... }
//	row := make([]byte, d.OutputRowBytes())
//	for {
//		_, err := d.NextRow(row)
//		if err == io.EOF {
//			break
//		}
//		...
//	}
//
// The decoder never seeks: it consumes the byte source exactly once. Two
// decoders are fully independent and may run on different goroutines;
// one decoder must not be shared.
package png

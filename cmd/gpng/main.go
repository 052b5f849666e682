// Command gpng inspects and decodes PNG images from the command line.
//
// Usage:
//
//	gpng info <input.png>              Display PNG metadata
//	gpng dec [options] <input.png>     PNG → PPM (use "-" for stdin, -o - for stdout)
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/deepteams/png"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = runInfo(os.Args[2:])
	case "dec":
		err = runDec(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "gpng: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "gpng: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  gpng info <input.png>              Display PNG metadata
  gpng dec [options] <input.png>     Decode PNG to PPM

Use "-" as input to read from stdin, "-o -" to write to stdout.

Run "gpng <command> -h" for command-specific options.
`)
}

// openInput returns an io.ReadCloser for the given path.
// If path is "-", stdin is returned (caller should not close).
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// --- info ---

var colorTypeNames = map[uint8]string{
	0: "grayscale", 2: "truecolor", 3: "palette",
	4: "grayscale+alpha", 6: "truecolor+alpha",
}

func runInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("info: expected one input file")
	}
	in, err := openInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()

	var warnings []string
	d, err := png.NewDecoder(in, png.WithWarningHandler(func(w png.Warning) {
		warnings = append(warnings, fmt.Sprintf("%s: %s", w.Chunk, w.Message))
	}), png.WithKeepUnknown(png.UnknownIfSafe))
	if err != nil {
		return err
	}
	defer d.Close()

	// Pull the whole image so post-IDAT chunks are collected too.
	for {
		if _, err := d.NextRow(nil); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
	}

	m := d.Metadata()
	fmt.Printf("dimensions:  %dx%d\n", m.Width, m.Height)
	fmt.Printf("color type:  %s\n", colorTypeNames[m.ColorType])
	fmt.Printf("bit depth:   %d\n", m.BitDepth)
	fmt.Printf("interlaced:  %v\n", m.InterlaceMethod == 1)
	if len(m.Palette) > 0 {
		fmt.Printf("palette:     %d entries\n", len(m.Palette))
	}
	if m.FileGamma != 0 {
		fmt.Printf("gamma:       %.5f\n", float64(m.FileGamma)/100000)
	}
	if m.SRGBIntent >= 0 {
		fmt.Printf("sRGB intent: %d\n", m.SRGBIntent)
	}
	if m.ICC != nil {
		fmt.Printf("ICC profile: %q (%d bytes)\n", m.ICC.Name, len(m.ICC.Data))
	}
	if m.Phys != nil {
		fmt.Printf("pixel size:  %dx%d (unit %d)\n", m.Phys.X, m.Phys.Y, m.Phys.Unit)
	}
	if m.Time != nil {
		fmt.Printf("modified:    %04d-%02d-%02d %02d:%02d:%02d\n",
			m.Time.Year, m.Time.Month, m.Time.Day, m.Time.Hour, m.Time.Minute, m.Time.Second)
	}
	for _, t := range m.Text {
		fmt.Printf("text:        %s: %s\n", t.Keyword, t.Text)
	}
	for _, u := range m.Unknown {
		fmt.Printf("unknown:     %s (%d bytes)\n", u.Name, len(u.Data))
	}
	for _, w := range warnings {
		fmt.Printf("warning:     %s\n", w)
	}
	return nil
}

// --- dec ---

func runDec(args []string) error {
	fs := flag.NewFlagSet("dec", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default: input path with .ppm appended)")
	strict := fs.Bool("strict", false, "treat warnings as errors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("dec: expected one input file")
	}
	in, err := openInput(fs.Arg(0))
	if err != nil {
		return err
	}
	defer in.Close()

	opts := []png.Option{
		png.WithExpand(),
		png.WithScale16(),
		png.WithGrayToRGB(),
		png.WithStripAlpha(),
	}
	if *strict {
		opts = append(opts, png.WithStrict())
	}
	d, err := png.NewDecoder(in, opts...)
	if err != nil {
		return err
	}
	defer d.Close()

	outPath := *output
	if outPath == "" {
		outPath = fs.Arg(0) + ".ppm"
	}
	var out io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w, h := d.Width(), d.Height()
	if _, err := fmt.Fprintf(out, "P6\n%d %d\n255\n", w, h); err != nil {
		return err
	}
	row := make([]byte, d.OutputRowBytes())
	for y := 0; y < h; y++ {
		if _, err := d.NextRow(row); err != nil {
			return err
		}
		if _, err := out.Write(row[:3*w]); err != nil {
			return err
		}
	}
	// Trailing chunks, strict-mode promotion.
	if _, err := d.NextRow(nil); err != io.EOF {
		return err
	}
	return nil
}

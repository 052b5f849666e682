package filter

import (
	"bytes"
	"math/rand"
	"testing"
)

// applyFilter runs the forward (encoder-side) filter so tests can verify
// that Reverse is its exact inverse.
func applyFilter(ft byte, cur, prev []byte, bpp int) []byte {
	out := make([]byte, len(cur))
	for i := range cur {
		var a, b, c byte
		if i >= bpp {
			a = cur[i-bpp]
			c = prev[i-bpp]
		}
		b = prev[i]
		switch ft {
		case None:
			out[i] = cur[i]
		case Sub:
			out[i] = cur[i] - a
		case Up:
			out[i] = cur[i] - b
		case Average:
			out[i] = cur[i] - uint8((int(a)+int(b))/2)
		case Paeth:
			out[i] = cur[i] - paeth(a, b, c)
		}
	}
	return out
}

func TestReverse_InvertsForwardFilter(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bpp := range []int{1, 2, 3, 4, 6, 8} {
		for ft := byte(None); ft <= Paeth; ft++ {
			width := 31
			n := width * bpp
			cur := make([]byte, n)
			prev := make([]byte, n)
			rng.Read(cur)
			rng.Read(prev)

			filtered := applyFilter(ft, cur, prev, bpp)
			r := NewReverser(bpp, Choose(bpp))
			got := append([]byte(nil), filtered...)
			if err := r.Reverse(ft, got, prev); err != nil {
				t.Fatalf("bpp=%d ft=%d: %v", bpp, ft, err)
			}
			if !bytes.Equal(got, cur) {
				t.Errorf("bpp=%d ft=%d: reverse(forward(row)) != row", bpp, ft)
			}
		}
	}
}

func TestReverse_FastMatchesScalar(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, bpp := range []int{3, 4} {
		for ft := byte(Sub); ft <= Paeth; ft++ {
			n := 64 * bpp
			cur := make([]byte, n)
			prev := make([]byte, n)
			rng.Read(cur)
			rng.Read(prev)

			scalar := append([]byte(nil), cur...)
			NewReverser(bpp, scalarCaps{}).tbl[ft](scalar, prev, bpp)

			fast := append([]byte(nil), cur...)
			NewReverser(bpp, &strideCaps{}).tbl[ft](fast, prev, bpp)

			if !bytes.Equal(scalar, fast) {
				t.Errorf("bpp=%d ft=%d: fast output differs from scalar", bpp, ft)
			}
		}
	}
}

func TestReverse_PaethFirstPixel(t *testing.T) {
	// a = b = c = 0 on the first pixel of the first row, so the
	// predictor is zero and the byte passes through.
	cur := []byte{0xAB}
	prev := []byte{0}
	r := NewReverser(1, nil)
	if err := r.Reverse(Paeth, cur, prev); err != nil {
		t.Fatal(err)
	}
	if cur[0] != 0xAB {
		t.Fatalf("got %#x, want 0xAB", cur[0])
	}
}

func TestPaeth_TieBreaking(t *testing.T) {
	tests := []struct {
		a, b, c, want uint8
	}{
		{0, 0, 0, 0},
		{1, 2, 3, 1},   // p = 0: |p-a|=1, |p-b|=2, |p-c|=3 → a
		{5, 5, 5, 5},   // all equal → a wins the tie
		{10, 20, 10, 20}, // p = 20: b exact
		{20, 10, 10, 20}, // p = 20: a exact
		{100, 100, 1, 100},
	}
	for _, tt := range tests {
		if got := paeth(tt.a, tt.b, tt.c); got != tt.want {
			t.Errorf("paeth(%d,%d,%d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestReverse_InvalidFilterType(t *testing.T) {
	r := NewReverser(1, nil)
	if err := r.Reverse(5, []byte{0}, []byte{0}); err == nil {
		t.Fatal("expected error for filter type 5")
	}
}

func TestStride(t *testing.T) {
	tests := []struct {
		depth, channels, want int
	}{
		{1, 1, 1},
		{2, 1, 1},
		{4, 1, 1},
		{8, 1, 1},
		{8, 2, 2},
		{8, 3, 3},
		{8, 4, 4},
		{16, 1, 2},
		{16, 3, 6},
		{16, 4, 8},
	}
	for _, tt := range tests {
		if got := Stride(tt.depth, tt.channels); got != tt.want {
			t.Errorf("Stride(%d,%d) = %d, want %d", tt.depth, tt.channels, got, tt.want)
		}
	}
}

func TestExpandPalette_FastPath(t *testing.T) {
	pal := make([][3]uint8, 4)
	for i := range pal {
		pal[i] = [3]uint8{uint8(10 * i), uint8(10*i + 1), uint8(10*i + 2)}
	}
	trans := []uint8{255, 128}
	riffled := Riffle(pal, trans)

	width := 19 // 16 accelerated + 3 tail
	src := make([]byte, width)
	for i := range src {
		src[i] = uint8(i % 4)
	}
	dst := make([]byte, 4*width)
	caps := &strideCaps{}
	done := caps.ExpandPalette(dst, src, width, riffled)
	if done != 16 {
		t.Fatalf("done = %d, want 16", done)
	}
	for i := 0; i < done; i++ {
		idx := src[i]
		wantA := uint8(255)
		if int(idx) < len(trans) {
			wantA = trans[idx]
		}
		got := dst[4*i : 4*i+4]
		if got[0] != pal[idx][0] || got[1] != pal[idx][1] || got[2] != pal[idx][2] || got[3] != wantA {
			t.Fatalf("pixel %d = %v, want %v + alpha %d", i, got, pal[idx], wantA)
		}
	}
}

func TestRiffle_OutOfRangeEntries(t *testing.T) {
	riffled := Riffle(make([][3]uint8, 2), []uint8{10})
	// Entry past the palette: opaque black.
	if riffled[200] != 0xFF000000 {
		t.Fatalf("riffled[200] = %#x, want opaque black", riffled[200])
	}
	// Entry past the transparency array but inside the palette: opaque.
	if riffled[1]>>24 != 0xFF {
		t.Fatalf("riffled[1] alpha = %#x, want 0xFF", riffled[1]>>24)
	}
}

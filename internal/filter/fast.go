package filter

// Stride-specialised reverse filters for the 3- and 4-byte pixel strides.
// These keep the previous pixel in locals instead of re-reading the row,
// mirroring what the vector implementations do one register at a time.
// Output is byte-identical to the scalar versions.

func reverseSub3(cur, prev []byte, bpp int) {
	if len(cur) < 3 {
		reverseSub(cur, prev, 3)
		return
	}
	a0, a1, a2 := cur[0], cur[1], cur[2]
	for i := 3; i+3 <= len(cur); i += 3 {
		a0 += cur[i]
		a1 += cur[i+1]
		a2 += cur[i+2]
		cur[i], cur[i+1], cur[i+2] = a0, a1, a2
	}
}

func reverseSub4(cur, prev []byte, bpp int) {
	if len(cur) < 4 {
		reverseSub(cur, prev, 4)
		return
	}
	a0, a1, a2, a3 := cur[0], cur[1], cur[2], cur[3]
	for i := 4; i+4 <= len(cur); i += 4 {
		a0 += cur[i]
		a1 += cur[i+1]
		a2 += cur[i+2]
		a3 += cur[i+3]
		cur[i], cur[i+1], cur[i+2], cur[i+3] = a0, a1, a2, a3
	}
}

func reverseAverage3(cur, prev []byte, bpp int) {
	if len(cur) < 3 {
		reverseAverage(cur, prev, 3)
		return
	}
	a0 := cur[0] + prev[0]/2
	a1 := cur[1] + prev[1]/2
	a2 := cur[2] + prev[2]/2
	cur[0], cur[1], cur[2] = a0, a1, a2
	for i := 3; i+3 <= len(cur); i += 3 {
		a0 = cur[i] + uint8((int(a0)+int(prev[i]))/2)
		a1 = cur[i+1] + uint8((int(a1)+int(prev[i+1]))/2)
		a2 = cur[i+2] + uint8((int(a2)+int(prev[i+2]))/2)
		cur[i], cur[i+1], cur[i+2] = a0, a1, a2
	}
}

func reverseAverage4(cur, prev []byte, bpp int) {
	if len(cur) < 4 {
		reverseAverage(cur, prev, 4)
		return
	}
	a0 := cur[0] + prev[0]/2
	a1 := cur[1] + prev[1]/2
	a2 := cur[2] + prev[2]/2
	a3 := cur[3] + prev[3]/2
	cur[0], cur[1], cur[2], cur[3] = a0, a1, a2, a3
	for i := 4; i+4 <= len(cur); i += 4 {
		a0 = cur[i] + uint8((int(a0)+int(prev[i]))/2)
		a1 = cur[i+1] + uint8((int(a1)+int(prev[i+1]))/2)
		a2 = cur[i+2] + uint8((int(a2)+int(prev[i+2]))/2)
		a3 = cur[i+3] + uint8((int(a3)+int(prev[i+3]))/2)
		cur[i], cur[i+1], cur[i+2], cur[i+3] = a0, a1, a2, a3
	}
}

func reversePaeth3(cur, prev []byte, bpp int) {
	if len(cur) < 3 {
		reversePaeth(cur, prev, 3)
		return
	}
	a0 := cur[0] + prev[0]
	a1 := cur[1] + prev[1]
	a2 := cur[2] + prev[2]
	cur[0], cur[1], cur[2] = a0, a1, a2
	c0, c1, c2 := prev[0], prev[1], prev[2]
	for i := 3; i+3 <= len(cur); i += 3 {
		b0, b1, b2 := prev[i], prev[i+1], prev[i+2]
		a0 = cur[i] + paeth(a0, b0, c0)
		a1 = cur[i+1] + paeth(a1, b1, c1)
		a2 = cur[i+2] + paeth(a2, b2, c2)
		cur[i], cur[i+1], cur[i+2] = a0, a1, a2
		c0, c1, c2 = b0, b1, b2
	}
}

func reversePaeth4(cur, prev []byte, bpp int) {
	if len(cur) < 4 {
		reversePaeth(cur, prev, 4)
		return
	}
	a0 := cur[0] + prev[0]
	a1 := cur[1] + prev[1]
	a2 := cur[2] + prev[2]
	a3 := cur[3] + prev[3]
	cur[0], cur[1], cur[2], cur[3] = a0, a1, a2, a3
	c0, c1, c2, c3 := prev[0], prev[1], prev[2], prev[3]
	for i := 4; i+4 <= len(cur); i += 4 {
		b0, b1, b2, b3 := prev[i], prev[i+1], prev[i+2], prev[i+3]
		a0 = cur[i] + paeth(a0, b0, c0)
		a1 = cur[i+1] + paeth(a1, b1, c1)
		a2 = cur[i+2] + paeth(a2, b2, c2)
		a3 = cur[i+3] + paeth(a3, b3, c3)
		cur[i], cur[i+1], cur[i+2], cur[i+3] = a0, a1, a2, a3
		c0, c1, c2, c3 = b0, b1, b2, b3
	}
}

package video

import "image"

// crossfade writes the transition sample at alpha into dst. The next plate
// is multiplied over white at alpha, then the current plate is multiplied
// over that at 1-alpha, which reproduces cur at 0 and next at 1.
func crossfade(dst, cur, next *image.RGBA, alpha float64) {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	a := alpha
	b := 1 - alpha
	for i := 0; i+3 < len(dst.Pix) && i+3 < len(cur.Pix) && i+3 < len(next.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			n := float64(next.Pix[i+c]) / 255
			k := float64(cur.Pix[i+c]) / 255
			v := (b + a*n) * (a + b*k)
			dst.Pix[i+c] = uint8(v*255 + 0.5)
		}
		dst.Pix[i+3] = 0xff
	}
}

package onset

import "math"

// fftRadix2 is an in-place iterative Cooley-Tukey transform. len(re) must be
// a power of two and equal to len(im); Config.Validate guarantees this for
// every frame the detector hands it.
func fftRadix2(re, im []float64) {
	n := len(re)

	// bit reversal permutation
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		ang := -2 * math.Pi / float64(size)
		wStepRe, wStepIm := math.Cos(ang), math.Sin(ang)
		for start := 0; start < n; start += size {
			wRe, wIm := 1.0, 0.0
			for k := 0; k < half; k++ {
				a, b := start+k, start+k+half
				vRe := re[b]*wRe - im[b]*wIm
				vIm := re[b]*wIm + im[b]*wRe
				re[b] = re[a] - vRe
				im[b] = im[a] - vIm
				re[a] += vRe
				im[a] += vIm
				wRe, wIm = wRe*wStepRe-wIm*wStepIm, wRe*wStepIm+wIm*wStepRe
			}
		}
	}
}

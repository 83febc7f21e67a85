package onset

import (
	"math"
	"sort"

	"github.com/jsphweid/melodex/util"
	"github.com/mjibson/go-dsp/window"
)

const (
	silenceDb = -120.0
	tiny      = 1e-18
	logEps    = 1e-12
)

// AudioFrame is a view of FFTSize samples starting at Offset.
type AudioFrame struct {
	Offset  int
	Samples []float32
}

type FrameFeatures struct {
	RmsDb          float64
	Flatness       float64
	Crest          float64
	TopEnergyRatio float64
	AutocorrPeak   float64
	Flux           float64
}

// forEachFrame walks x in hops while a full frame fits. fn returning false
// stops the walk.
func forEachFrame(x []float32, size, hop int, fn func(AudioFrame) bool) {
	for off := 0; off+size <= len(x); off += hop {
		if !fn(AudioFrame{Offset: off, Samples: x[off : off+size]}) {
			return
		}
	}
}

// extractor owns the scratch buffers for one detection and the normalized
// spectrum of the previous frame, which flux is measured against. Never share
// one between goroutines.
type extractor struct {
	cfg    Config
	window []float64

	re, im  []float64
	pow     []float64
	norm    []float64
	prev    []float64
	hasPrev bool
	sorted  []float64
}

func newExtractor(cfg Config, win []float64) *extractor {
	n := cfg.FFTSize
	bins := n / 2
	return &extractor{
		cfg:    cfg,
		window: win,
		re:     make([]float64, n),
		im:     make([]float64, n),
		pow:    make([]float64, bins),
		norm:   make([]float64, bins),
		prev:   make([]float64, bins),
		sorted: make([]float64, bins),
	}
}

func hannWindow(n int) []float64 {
	return window.Hann(n)
}

// powerSpectrum windows the frame and fills e.pow with |X(k)|^2 for the
// first N/2 bins.
func (e *extractor) powerSpectrum(frame []float32) []float64 {
	for i, s := range frame {
		e.re[i] = float64(s) * e.window[i]
		e.im[i] = 0
	}
	fftRadix2(e.re, e.im)
	for k := range e.pow {
		e.pow[k] = e.re[k]*e.re[k] + e.im[k]*e.im[k]
	}
	return e.pow
}

// flatness is used by the noise pass and leaves the flux state alone.
func (e *extractor) flatness(frame []float32) float64 {
	return spectralFlatness(e.powerSpectrum(frame))
}

// features computes everything the classifier looks at and advances the
// flux reference to this frame.
func (e *extractor) features(frame []float32) FrameFeatures {
	pow := e.powerSpectrum(frame)
	f := FrameFeatures{
		RmsDb:          rmsDb(frame),
		Flatness:       spectralFlatness(pow),
		Crest:          spectralCrest(pow),
		TopEnergyRatio: topEnergyRatio(pow, e.cfg.TopBins, e.sorted),
		AutocorrPeak:   autocorrPeak(frame, e.cfg.AutocorrMinLag, e.cfg.AutocorrMaxLag),
	}

	cur := normalizePower(pow, e.norm)
	if e.hasPrev {
		f.Flux = spectralFlux(e.prev, cur)
	}
	copy(e.prev, cur)
	e.hasPrev = true
	return f
}

func rmsDb(frame []float32) float64 {
	if len(frame) == 0 {
		return silenceDb
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	return 20 * math.Log10(math.Max(rms, logEps))
}

// spectralFlatness is the geometric over the arithmetic mean, in [0,1].
func spectralFlatness(pow []float64) float64 {
	if len(pow) == 0 {
		return 0
	}
	var logSum, sum float64
	for _, p := range pow {
		v := p + logEps
		logSum += math.Log(v)
		sum += v
	}
	n := float64(len(pow))
	mean := sum / n
	if mean <= 0 {
		return 0
	}
	return util.Clamp(math.Exp(logSum/n)/mean, 0, 1)
}

// spectralCrest is max over mean, at least 1.
func spectralCrest(pow []float64) float64 {
	if len(pow) == 0 {
		return 1
	}
	var sum, max float64
	for _, p := range pow {
		sum += p
		if p > max {
			max = p
		}
	}
	mean := sum / float64(len(pow))
	if mean <= tiny {
		return 1
	}
	return math.Max(1, max/mean)
}

// topEnergyRatio is the share of total power held by the k strongest bins.
// scratch must be at least len(pow) long.
func topEnergyRatio(pow []float64, k int, scratch []float64) float64 {
	var total float64
	for _, p := range pow {
		total += p
	}
	if total <= tiny {
		return 0
	}
	s := scratch[:len(pow)]
	copy(s, pow)
	sort.Sort(sort.Reverse(sort.Float64Slice(s)))
	if k > len(s) {
		k = len(s)
	}
	var top float64
	for _, p := range s[:k] {
		top += p
	}
	return util.Clamp(top/total, 0, 1)
}

// autocorrPeak is the largest normalized autocorrelation over
// [minLag, min(maxLag, n/2)], in [0,1].
func autocorrPeak(frame []float32, minLag, maxLag int) float64 {
	n := len(frame)
	var energy float64
	for _, s := range frame {
		energy += float64(s) * float64(s)
	}
	if energy < 1e-9 {
		return 0
	}
	if maxLag > n/2 {
		maxLag = n / 2
	}
	var best float64
	for lag := minLag; lag <= maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < n; i++ {
			acc += float64(frame[i]) * float64(frame[i+lag])
		}
		if r := acc / energy; r > best {
			best = r
		}
	}
	return util.Clamp(best, 0, 1)
}

// normalizePower scales pow to unit sum into out. A silent spectrum is
// returned as is.
func normalizePower(pow, out []float64) []float64 {
	var sum float64
	for _, p := range pow {
		sum += p
	}
	if sum <= tiny {
		return pow
	}
	for i, p := range pow {
		out[i] = p / sum
	}
	return out[:len(pow)]
}

// spectralFlux sums the positive bin increases between two normalized spectra.
func spectralFlux(prev, cur []float64) float64 {
	var flux float64
	for i, c := range cur {
		if d := c - prev[i]; d > 0 {
			flux += d
		}
	}
	return flux
}

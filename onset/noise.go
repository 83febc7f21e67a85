package onset

import (
	"math"
	"sort"
)

type NoiseEstimate struct {
	FloorDb    float64
	RequiredDb float64
	// frames inspected and how many of them were flat enough to count
	Frames     int
	Candidates int
}

// percentile picks the nearest-rank value at round(p/100*(n-1)). values is
// sorted in place.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return silenceDb
	}
	sort.Float64s(values)
	idx := int(math.Round(p / 100 * float64(len(values)-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > len(values)-1 {
		idx = len(values) - 1
	}
	return values[idx]
}

// estimateNoise looks at the frames that fit entirely inside the first
// PreNoiseEstimateSec seconds. The floor is the median level of the flat
// ones, falling back to the 30th percentile of all of them, and to silence
// when not even one frame fits.
func estimateNoise(x []float32, sampleRate int, cfg Config, e *extractor) NoiseEstimate {
	limit := int(cfg.PreNoiseEstimateSec * float64(sampleRate))
	if limit > len(x) {
		limit = len(x)
	}

	var all, flat []float64
	forEachFrame(x[:limit], cfg.FFTSize, cfg.HopSize, func(f AudioFrame) bool {
		db := rmsDb(f.Samples)
		all = append(all, db)
		if e.flatness(f.Samples) >= cfg.NoiseCandidateFlatness {
			flat = append(flat, db)
		}
		return true
	})

	est := NoiseEstimate{Frames: len(all), Candidates: len(flat)}
	switch {
	case len(flat) > 0:
		est.FloorDb = percentile(flat, 50)
	case len(all) > 0:
		est.FloorDb = percentile(all, 30)
	default:
		est.FloorDb = silenceDb
	}
	est.RequiredDb = requiredDb(cfg, est.FloorDb)
	return est
}

func requiredDb(cfg Config, floorDb float64) float64 {
	return math.Max(cfg.AbsoluteDbThreshold, floorDb+cfg.RelativeDbMargin)
}

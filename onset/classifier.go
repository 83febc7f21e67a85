package onset

import "math"

type State int

const (
	Scanning State = iota
	OnsetFound
	Exhausted
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case OnsetFound:
		return "onset_found"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

type Verdict struct {
	EnergyOk  bool
	TonalOk   bool
	ChangeOk  bool
	NoiseLike bool
	Hit       bool
}

// windowSize returns how many frames the hit window spans and how many of
// them have to hit.
func windowSize(cfg Config, sampleRate int) (frames, need int) {
	hopMs := 1000 * float64(cfg.HopSize) / float64(sampleRate)
	frames = int(math.Round(cfg.MinHitDurationMs / hopMs))
	if frames < 1 {
		frames = 1
	}
	need = int(math.Ceil(float64(frames) * cfg.HitRatio))
	if need < 1 {
		need = 1
	}
	return frames, need
}

// classifier keeps the last windowFrames hit flags in a ring and a running
// count of the set ones.
type classifier struct {
	cfg        Config
	requiredDb float64

	ring     []bool
	idx      int
	hitCount int
	need     int

	prevDb  float64
	prevHit bool
	state   State
}

func newClassifier(cfg Config, requiredDb float64, windowFrames, need int) *classifier {
	return &classifier{
		cfg:        cfg,
		requiredDb: requiredDb,
		ring:       make([]bool, windowFrames),
		need:       need,
		prevDb:     -200,
	}
}

func (c *classifier) judge(f FrameFeatures) Verdict {
	cfg := c.cfg
	v := Verdict{
		EnergyOk: f.RmsDb >= c.requiredDb,
		TonalOk: f.Flatness <= cfg.MaxFlatness &&
			f.AutocorrPeak >= cfg.MinAutocorrPeak &&
			f.Crest >= cfg.MinCrest &&
			f.TopEnergyRatio >= cfg.MinTopEnergyRatio,
		ChangeOk: f.Flux >= cfg.MinFlux || f.RmsDb-c.prevDb >= cfg.DbJumpThreshold,
		NoiseLike: f.Flatness >= cfg.NoiseFlatnessGate &&
			f.Crest <= cfg.NoiseMaxCrest &&
			f.TopEnergyRatio <= cfg.NoiseMaxTopEnergyRatio &&
			f.AutocorrPeak <= cfg.NoiseMaxAutocorrPeak,
	}
	changed := v.ChangeOk || (cfg.SustainHits && c.prevHit)
	v.Hit = v.EnergyOk && v.TonalOk && changed && !v.NoiseLike

	c.prevDb = f.RmsDb
	c.prevHit = v.Hit
	return v
}

// push records the verdict of the current frame and reports whether the
// window now holds enough hits.
func (c *classifier) push(hit bool) bool {
	if c.ring[c.idx] {
		c.hitCount--
	}
	c.ring[c.idx] = hit
	if hit {
		c.hitCount++
	}
	c.idx = (c.idx + 1) % len(c.ring)

	if c.hitCount >= c.need {
		c.state = OnsetFound
		return true
	}
	return false
}

// firstHitAge is how many frames before the current one the oldest hit in
// the window was recorded, or -1 when the window holds none.
func (c *classifier) firstHitAge() int {
	n := len(c.ring)
	for k := 0; k < n; k++ {
		if c.ring[(c.idx+k)%n] {
			return n - 1 - k
		}
	}
	return -1
}

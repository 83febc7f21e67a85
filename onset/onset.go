// Package onset finds where the first sustained tonal sound starts in a mono
// PCM buffer, ignoring silence and background noise.
package onset

import (
	"math"
	"strconv"
	"strings"

	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/util"
	"github.com/sirupsen/logrus"
)

// Detector is immutable after NewDetector and safe for concurrent use; every
// Detect call allocates its own scratch state.
type Detector struct {
	cfg    Config
	window []float64
	log    logrus.FieldLogger
	debug  bool
}

func NewDetector(cfg Config, log logrus.FieldLogger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Detector{
		cfg:    cfg,
		window: hannWindow(cfg.FFTSize),
		log:    log,
		debug:  debugEnabled(log),
	}, nil
}

func debugEnabled(log logrus.FieldLogger) bool {
	switch l := log.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return false
}

func (d *Detector) Config() Config {
	return d.cfg
}

// Detect never fails: bad input turns into a negative result with a reason.
func Detect(samples []float32, sampleRate int, cfg Config) (model.OnsetResult, error) {
	d, err := NewDetector(cfg, nil)
	if err != nil {
		return model.OnsetResult{}, err
	}
	return d.Detect(samples, sampleRate), nil
}

// DecodeFailed is what callers report when the audio could not be turned
// into PCM at all.
func DecodeFailed(cfg Config) model.OnsetResult {
	return negative(cfg, model.ReasonDecodeFailed)
}

func negative(cfg Config, reason string) model.OnsetResult {
	return model.OnsetResult{
		NoiseFloorDb: silenceDb,
		RequiredDb:   cfg.AbsoluteDbThreshold,
		Reason:       reason,
	}
}

// NoOnsetReason renders the analysis window the way it has always been
// reported, with at least one decimal: 4 -> "no_tonal_onset_within_4.0s".
func NoOnsetReason(analysisSec float64) string {
	s := strconv.FormatFloat(analysisSec, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return model.ReasonNoOnsetPrefix + s + "s"
}

func (d *Detector) Detect(samples []float32, sampleRate int) model.OnsetResult {
	cfg := d.cfg
	switch {
	case sampleRate <= 0:
		d.log.WithField("sample_rate", sampleRate).Warn("invalid sample rate")
		return negative(cfg, model.ReasonInvalidSampleRate)
	case len(samples) == 0:
		d.log.Warn("empty pcm")
		return negative(cfg, model.ReasonEmptyPCM)
	}

	horizon := util.Min(len(samples), int(cfg.AnalysisWindowSec*float64(sampleRate)))
	x := samples[:horizon]

	e := newExtractor(cfg, d.window)
	noise := estimateNoise(x, sampleRate, cfg, e)
	windowFrames, need := windowSize(cfg, sampleRate)
	c := newClassifier(cfg, noise.RequiredDb, windowFrames, need)

	if d.debug {
		d.log.WithFields(logrus.Fields{
			"noise_floor_db": noise.FloorDb,
			"required_db":    noise.RequiredDb,
			"noise_frames":   noise.Frames,
			"flat_frames":    noise.Candidates,
			"sample_rate":    sampleRate,
			"window_frames":  windowFrames,
			"need_hits":      need,
		}).Debug("noise floor estimated")
	}

	res := model.OnsetResult{
		NoiseFloorDb: noise.FloorDb,
		RequiredDb:   noise.RequiredDb,
		WindowFrames: windowFrames,
	}

	frameIdx := 0
	forEachFrame(x, cfg.FFTSize, cfg.HopSize, func(f AudioFrame) bool {
		feat := e.features(f.Samples)
		v := c.judge(feat)
		found := c.push(v.Hit)
		res.FramesScanned++

		if d.debug && (v.Hit || f.Offset < sampleRate*3/10) {
			d.log.WithFields(logrus.Fields{
				"t":          float64(f.Offset) / float64(sampleRate),
				"db":         feat.RmsDb,
				"flat":       feat.Flatness,
				"crest":      feat.Crest,
				"top":        feat.TopEnergyRatio,
				"ac":         feat.AutocorrPeak,
				"flux":       feat.Flux,
				"energy_ok":  v.EnergyOk,
				"tonal_ok":   v.TonalOk,
				"change_ok":  v.ChangeOk,
				"noise_like": v.NoiseLike,
			}).Debug("frame")
		}

		if found {
			d.fillOnset(&res, x, c, f.Offset, frameIdx, sampleRate)
			return false
		}
		frameIdx++
		return true
	})

	if c.state != OnsetFound {
		c.state = Exhausted
		res.Reason = NoOnsetReason(cfg.AnalysisWindowSec)
		res.HitCount = c.hitCount
		d.log.WithFields(logrus.Fields{
			"frames":      res.FramesScanned,
			"required_db": res.RequiredDb,
		}).Info("no onset within analysis window")
	}
	return res
}

func (d *Detector) fillOnset(res *model.OnsetResult, x []float32, c *classifier, offset, frameIdx, sampleRate int) {
	cfg := d.cfg
	rate := float64(sampleRate)

	windowStart := util.Max(0, offset-(len(c.ring)-1)*cfg.HopSize)
	firstHit := offset - c.firstHitAge()*cfg.HopSize
	onset := refineOnset(x, firstHit, cfg.FFTSize, cfg.RefineBlockSize, c.requiredDb)

	onsetSec := float64(onset) / rate
	windowSec := float64(windowStart) / rate

	res.HasOnset = true
	res.OnsetTimeSec = &onsetSec
	res.WindowStartSec = &windowSec
	res.HitCount = c.hitCount
	res.Reason = model.ReasonWindowHitRatio

	d.log.WithFields(logrus.Fields{
		"onset_sec":  onsetSec,
		"window_sec": windowSec,
		"frame":      frameIdx,
		"hits":       c.hitCount,
		"window":     len(c.ring),
	}).Info("onset detected")
}

// refineOnset places the onset inside the frame starting at frameStart: the
// first block of blockSize samples loud enough to pass requiredDb, or the
// frame start when no block is (or refinement is off).
func refineOnset(x []float32, frameStart, frameSize, blockSize int, requiredDb float64) int {
	if blockSize <= 0 {
		return frameStart
	}
	end := util.Min(len(x), frameStart+frameSize)
	for off := frameStart; off < end; off += blockSize {
		block := x[off:util.Min(end, off+blockSize)]
		if rmsDb(block) >= requiredDb {
			return off
		}
	}
	return frameStart
}

// Seconds converts a result's onset to a plain value, NaN when absent.
func Seconds(r model.OnsetResult) float64 {
	if r.OnsetTimeSec == nil {
		return math.NaN()
	}
	return *r.OnsetTimeSec
}

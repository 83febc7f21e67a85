package onset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

var ErrInvalidConfig = errors.New("invalid onset config")

// Config holds every tunable of the detector. It is passed by value and never
// modified by the detector, so one Config can serve any number of concurrent
// detections.
type Config struct {
	// only the first AnalysisWindowSec seconds of audio are looked at
	AnalysisWindowSec float64 `json:"analysis_window_sec"`
	// must be a power of two
	FFTSize int `json:"fft_size"`
	HopSize int `json:"hop_size"`

	// the hit window spans MinHitDurationMs and needs HitRatio of its frames to hit
	MinHitDurationMs float64 `json:"min_hit_duration_ms"`
	HitRatio         float64 `json:"hit_ratio"`

	PreNoiseEstimateSec float64 `json:"pre_noise_estimate_sec"`
	// frames at least this flat count towards the noise floor
	NoiseCandidateFlatness float64 `json:"noise_candidate_flatness"`

	// dBFS
	AbsoluteDbThreshold float64 `json:"absolute_db_threshold"`
	RelativeDbMargin    float64 `json:"relative_db_margin"`

	MinFlux         float64 `json:"min_flux"`
	DbJumpThreshold float64 `json:"db_jump_threshold"`

	MaxFlatness       float64 `json:"max_flatness"`
	MinAutocorrPeak   float64 `json:"min_autocorr_peak"`
	MinCrest          float64 `json:"min_crest"`
	MinTopEnergyRatio float64 `json:"min_top_energy_ratio"`

	NoiseFlatnessGate      float64 `json:"noise_flatness_gate"`
	NoiseMaxCrest          float64 `json:"noise_max_crest"`
	NoiseMaxTopEnergyRatio float64 `json:"noise_max_top_energy_ratio"`
	NoiseMaxAutocorrPeak   float64 `json:"noise_max_autocorr_peak"`

	TopBins        int `json:"top_bins"`
	AutocorrMinLag int `json:"autocorr_min_lag"`
	AutocorrMaxLag int `json:"autocorr_max_lag"`

	// a loud tonal frame right after a hit also hits, even without change
	SustainHits bool `json:"sustain_hits"`
	// block size in samples used to place the onset inside its first hit
	// frame, 0 reports the frame start
	RefineBlockSize int `json:"refine_block_size"`
}

// Fingerprint is a short digest of every setting. Cached results are keyed by
// it so a changed config never serves stale onsets.
func (c Config) Fingerprint() string {
	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

func DefaultConfig() Config {
	return Config{
		AnalysisWindowSec: 4.0,
		FFTSize:           2048,
		HopSize:           512,

		MinHitDurationMs: 120,
		HitRatio:         0.70,

		PreNoiseEstimateSec:    0.6,
		NoiseCandidateFlatness: 0.75,

		AbsoluteDbThreshold: -42.0,
		RelativeDbMargin:    18.0,

		MinFlux:         0.10,
		DbJumpThreshold: 6.0,

		MaxFlatness:       0.70,
		MinAutocorrPeak:   0.25,
		MinCrest:          3.5,
		MinTopEnergyRatio: 0.24,

		NoiseFlatnessGate:      0.88,
		NoiseMaxCrest:          4.0,
		NoiseMaxTopEnergyRatio: 0.25,
		NoiseMaxAutocorrPeak:   0.20,

		TopBins:        8,
		AutocorrMinLag: 20,
		AutocorrMaxLag: 400,

		SustainHits:     true,
		RefineBlockSize: 64,
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (c Config) Validate() error {
	switch {
	case !isPowerOfTwo(c.FFTSize) || c.FFTSize < 4:
		return errors.Wrapf(ErrInvalidConfig, "fft size %d is not a power of two >= 4", c.FFTSize)
	case c.HopSize <= 0:
		return errors.Wrapf(ErrInvalidConfig, "hop size %d", c.HopSize)
	case c.AnalysisWindowSec <= 0:
		return errors.Wrapf(ErrInvalidConfig, "analysis window %vs", c.AnalysisWindowSec)
	case c.MinHitDurationMs <= 0:
		return errors.Wrapf(ErrInvalidConfig, "min hit duration %vms", c.MinHitDurationMs)
	case c.HitRatio <= 0 || c.HitRatio > 1:
		return errors.Wrapf(ErrInvalidConfig, "hit ratio %v outside (0,1]", c.HitRatio)
	case c.PreNoiseEstimateSec < 0:
		return errors.Wrapf(ErrInvalidConfig, "noise estimate window %vs", c.PreNoiseEstimateSec)
	case c.TopBins < 1:
		return errors.Wrapf(ErrInvalidConfig, "top bins %d", c.TopBins)
	case c.AutocorrMinLag < 1 || c.AutocorrMaxLag < c.AutocorrMinLag:
		return errors.Wrapf(ErrInvalidConfig, "autocorrelation lags [%d,%d]", c.AutocorrMinLag, c.AutocorrMaxLag)
	case c.RefineBlockSize < 0:
		return errors.Wrapf(ErrInvalidConfig, "refine block size %d", c.RefineBlockSize)
	}
	return nil
}

// LoadConfig reads a JSON file over the defaults; keys missing from the file
// keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read onset config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not decode onset config %s", path)
	}
	return cfg, cfg.Validate()
}

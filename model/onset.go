package model

// Reason tags carried by OnsetResult.
const (
	ReasonWindowHitRatio    = "window_hit_ratio"
	ReasonDecodeFailed      = "decode_failed"
	ReasonEmptyPCM          = "empty_pcm"
	ReasonInvalidSampleRate = "invalid_sample_rate"
	// ReasonNoOnsetPrefix is followed by the analysis window, e.g.
	// "no_tonal_onset_within_4.0s".
	ReasonNoOnsetPrefix = "no_tonal_onset_within_"
)

type OnsetResult struct {
	HasOnset bool `json:"has_onset"`
	// nil unless HasOnset
	OnsetTimeSec *float64 `json:"onset_time_sec"`
	NoiseFloorDb float64  `json:"noise_floor_db"`
	RequiredDb   float64  `json:"required_db"`
	Reason       string   `json:"reason"`

	// NOTE: diagnostics, zero when no frame was scanned
	WindowStartSec *float64 `json:"window_start_sec,omitempty"`
	HitCount       int      `json:"hit_count"`
	WindowFrames   int      `json:"window_frames"`
	FramesScanned  int      `json:"frames_scanned"`
}

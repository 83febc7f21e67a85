package model

// MusicalNote is a completed note. Only notes that had both a note-on and a
// matching note-off are ever produced, so DurationMs is always at least 1.
type MusicalNote struct {
	Pitch       uint8 `json:"pitch"`
	StartTimeMs int64 `json:"start_time_ms"`
	DurationMs  int64 `json:"duration_ms"`

	Velocity uint8 `json:"velocity"`
	Channel  uint8 `json:"channel"`
	Track    int   `json:"track"`
}

func (n MusicalNote) EndTimeMs() int64 {
	return n.StartTimeMs + n.DurationMs
}

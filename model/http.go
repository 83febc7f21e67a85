package model

type NotesResponse struct {
	Count int           `json:"count"`
	Notes []MusicalNote `json:"notes"`
	// true when the result came from the analysis cache
	Cached bool `json:"cached"`
}

type OnsetResponse struct {
	OnsetResult
	Samples    int  `json:"samples"`
	SampleRate int  `json:"sample_rate"`
	Cached     bool `json:"cached"`
}

type CatalogListItem struct {
	FileNum   FileNum   `json:"file_num"`
	Path      string    `json:"path"`
	Kind      EntryKind `json:"kind"`
	NoteCount int       `json:"note_count"`
	HasOnset  bool      `json:"has_onset"`
	Error     string    `json:"error,omitempty"`
}

type CatalogResponse struct {
	Start int               `json:"start"`
	Total int               `json:"total"`
	Items []CatalogListItem `json:"items"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}

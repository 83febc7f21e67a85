package model

type FileNum = uint32
type FileNumToMediaPath = map[FileNum]string

type EntryKind string

const (
	KindMidi  EntryKind = "midi"
	KindAudio EntryKind = "audio"
)

// CatalogEntry is what indexing one media file produces. Midi files fill in
// the note fields, audio files Onset.
type CatalogEntry struct {
	FileNum FileNum   `json:"file_num"`
	Path    string    `json:"path"`
	Kind    EntryKind `json:"kind"`
	Hash    string    `json:"hash"`

	Notes        []MusicalNote `json:"notes,omitempty"`
	NoteCount    int           `json:"note_count"`
	DurationMs   int64         `json:"duration_ms"`
	LowestPitch  uint8         `json:"lowest_pitch"`
	HighestPitch uint8         `json:"highest_pitch"`

	Onset *OnsetResult `json:"onset,omitempty"`

	// NOTE: set instead of the fields above when analysis failed
	Error string `json:"error,omitempty"`
}

// Pair is a byte range inside a chunk's data section.
type Pair struct {
	Start uint32
	End   uint32
}

type ChunkOverview struct {
	// first and last file number stored in the chunk
	Start    FileNum
	End      FileNum
	Filename string
}

type ChunkIndex = map[FileNum]Pair

type Catalog struct {
	Chunks    []ChunkOverview
	Files     FileNumToMediaPath
	CreatedAt int64
}

// Analysis is the cached result for one piece of content, keyed by its hash.
type Analysis struct {
	Key       string        `dynamodbav:"PK" json:"key"`
	Kind      EntryKind     `dynamodbav:"Kind" json:"kind"`
	Notes     []MusicalNote `dynamodbav:"Notes,omitempty" json:"notes,omitempty"`
	Onset     *OnsetResult  `dynamodbav:"Onset,omitempty" json:"onset,omitempty"`
	CreatedAt int64         `dynamodbav:"CreatedAt" json:"created_at"`
}

package midi

import (
	"fmt"
	"os"

	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// drop channel 10 (index 9), which is percussion in General MIDI
	FilterPercussion bool
	// keep only the track with the most notes
	MelodyOnly bool
	Logger     logrus.FieldLogger
}

func DefaultOptions() Options {
	return Options{FilterPercussion: true}
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

type Header struct {
	Format     uint16
	TrackCount uint16
	Division   uint16
	TimeBase   TimeBase
	// declared MThd length, normally 6
	Length uint32
}

type TrackReport struct {
	Index     int
	Err       error
	Events    int
	NoteOns   int
	Anomalies int
	Orphans   int
	Unclosed  int
	Notes     int
	EndTick   uint64
}

type Song struct {
	Header Header
	Tempo  *TempoMap
	Tracks []TrackReport
	Notes  []model.MusicalNote
}

func readHeader(r *Reader) (Header, error) {
	var h Header
	if err := r.ExpectTag("MThd"); err != nil {
		return h, err
	}
	length, err := r.ReadUint32()
	if err != nil {
		return h, err
	}
	if length < 6 {
		return h, errors.Errorf("header length %d is shorter than 6", length)
	}
	h.Length = length
	start := r.Pos()

	if h.Format, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.TrackCount, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.Division, err = r.ReadUint16(); err != nil {
		return h, err
	}
	if h.TimeBase, err = ParseDivision(h.Division); err != nil {
		return h, err
	}

	// skip whatever extra the header declares
	if err := r.Seek(start + int(length)); err != nil {
		return h, errors.Wrap(err, "header")
	}
	return h, nil
}

// Decode parses a whole standard MIDI file. Only a bad header is an error; a
// track that fails to decode is recorded in Song.Tracks and left out.
func Decode(data []byte, opts Options) (song *Song, err error) {
	log := opts.logger()

	// tracks recover on their own; this covers assembly and the tempo map
	defer func() {
		if p := recover(); p != nil {
			song = nil
			err = fmt.Errorf("midi decode panicked: %v", p)
		}
	}()

	r := NewReader(data)
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	song = &Song{Header: header}
	var decoded []*Track
	for i := 0; i < int(header.TrackCount); i++ {
		if r.Remaining() == 0 {
			log.WithFields(logrus.Fields{"declared": header.TrackCount, "found": i}).Warn("file ends before all tracks")
			break
		}
		t, err := safeDecodeTrack(r, i, log)
		if err != nil {
			log.WithError(err).WithField("track", i).Warn("abandoning track")
			song.Tracks = append(song.Tracks, TrackReport{Index: i, Err: err})
			continue
		}
		decoded = append(decoded, t)
		song.Tracks = append(song.Tracks, TrackReport{
			Index:     i,
			Events:    len(t.Events),
			NoteOns:   t.NoteOns,
			Anomalies: t.Anomalies,
			EndTick:   t.EndTick,
		})
	}

	var tempos []TempoChange
	for _, t := range decoded {
		tempos = append(tempos, t.Tempos()...)
	}
	song.Tempo = NewTempoMap(header.TimeBase, tempos)

	perTrack := make(map[int]int)
	notes := make([]model.MusicalNote, 0)
	for _, t := range decoded {
		spans, orphans, unclosed := AssembleTrack(t)
		converted := ToMusicalNotes(spans, song.Tempo, opts.FilterPercussion)
		report := song.trackReport(t.Index)
		report.Orphans = orphans
		report.Unclosed = unclosed
		report.Notes = len(converted)
		perTrack[t.Index] = len(converted)
		notes = append(notes, converted...)
	}

	if opts.MelodyOnly {
		notes = keepTrack(notes, busiestTrack(perTrack))
	}
	SortNotes(notes)
	song.Notes = notes
	return song, nil
}

// swapped out by tests
var decodeTrack = DecodeTrack

// safeDecodeTrack turns a panic inside one track into that track's error so
// the tracks before and after it survive.
func safeDecodeTrack(r *Reader, index int, log logrus.FieldLogger) (t *Track, err error) {
	start := r.Pos()
	defer func() {
		if p := recover(); p != nil {
			t = nil
			err = fmt.Errorf("track %d decode panicked: %v", index, p)
			skipChunk(r, start)
		}
	}()
	return decodeTrack(r, index, log)
}

// skipChunk moves r past the chunk starting at start, or to the end of the
// data when its length can't be read.
func skipChunk(r *Reader, start int) {
	if err := r.Seek(start + 4); err == nil {
		if length, err := r.ReadUint32(); err == nil && r.Skip(int(length)) == nil {
			return
		}
	}
	_ = r.Seek(r.Pos() + r.Remaining())
}

func (s *Song) trackReport(index int) *TrackReport {
	for i := range s.Tracks {
		if s.Tracks[i].Index == index {
			return &s.Tracks[i]
		}
	}
	panic(fmt.Sprintf("no report for track %d", index))
}

func busiestTrack(perTrack map[int]int) int {
	best, bestCount := -1, -1
	for idx, count := range perTrack {
		if count > bestCount || (count == bestCount && idx < best) {
			best, bestCount = idx, count
		}
	}
	return best
}

func keepTrack(notes []model.MusicalNote, track int) []model.MusicalNote {
	res := make([]model.MusicalNote, 0, len(notes))
	for _, n := range notes {
		if n.Track == track {
			res = append(res, n)
		}
	}
	return res
}

// Parse never fails: anything that isn't a readable MIDI file gives an empty
// list.
func Parse(data []byte, opts Options) []model.MusicalNote {
	song, err := Decode(data, opts)
	if err != nil {
		opts.logger().WithError(err).Warn("could not parse midi data")
		return []model.MusicalNote{}
	}
	return song.Notes
}

func ReadMidiFile(path string, opts Options) ([]model.MusicalNote, error) {
	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading midi file")
	}
	return Parse(dat, opts), nil
}

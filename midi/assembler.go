package midi

import (
	"sort"

	"github.com/jsphweid/melodex/model"
)

// NoteOnRecord is an open note waiting for its note-off.
type NoteOnRecord struct {
	StartTick uint64
	Velocity  uint8
	Channel   uint8
}

// TickNote is a paired note still measured in ticks.
type TickNote struct {
	Track     int
	Channel   uint8
	Pitch     uint8
	Velocity  uint8
	StartTick uint64
	EndTick   uint64
}

// noteStacks keeps one LIFO of open notes per (channel, pitch). A pitch can be
// struck again before it is released, and the most recent strike is the one a
// note-off closes.
type noteStacks [16 * 128][]NoteOnRecord

func stackKey(channel, pitch uint8) int {
	return int(channel&0x0F)<<7 | int(pitch&0x7F)
}

func (s *noteStacks) push(channel, pitch uint8, rec NoteOnRecord) {
	k := stackKey(channel, pitch)
	s[k] = append(s[k], rec)
}

func (s *noteStacks) pop(channel, pitch uint8) (NoteOnRecord, bool) {
	k := stackKey(channel, pitch)
	stack := s[k]
	if len(stack) == 0 {
		return NoteOnRecord{}, false
	}
	rec := stack[len(stack)-1]
	s[k] = stack[:len(stack)-1]
	return rec, true
}

func (s *noteStacks) open() int {
	var n int
	for _, stack := range s {
		n += len(stack)
	}
	return n
}

// AssembleTrack pairs the note edges of one track. Note-offs with nothing
// open are dropped, as are notes still open when the track ends.
func AssembleTrack(t *Track) (notes []TickNote, orphans int, unclosed int) {
	var stacks noteStacks
	for _, evt := range t.Events {
		edge, ok := evt.(NoteEdge)
		if !ok {
			continue
		}
		if edge.On {
			stacks.push(edge.Channel, edge.Pitch, NoteOnRecord{
				StartTick: edge.Tick,
				Velocity:  edge.Velocity,
				Channel:   edge.Channel,
			})
			continue
		}
		rec, ok := stacks.pop(edge.Channel, edge.Pitch)
		if !ok {
			orphans++
			continue
		}
		notes = append(notes, TickNote{
			Track:     t.Index,
			Channel:   rec.Channel,
			Pitch:     edge.Pitch,
			Velocity:  rec.Velocity,
			StartTick: rec.StartTick,
			EndTick:   edge.Tick,
		})
	}
	return notes, orphans, stacks.open()
}

// ToMusicalNotes converts tick spans to milliseconds. Zero length spans are
// dropped and anything shorter than a millisecond is rounded up to one.
func ToMusicalNotes(spans []TickNote, m *TempoMap, filterPercussion bool) []model.MusicalNote {
	res := make([]model.MusicalNote, 0, len(spans))
	for _, s := range spans {
		if filterPercussion && s.Channel == PercussionChannel {
			continue
		}
		if s.EndTick <= s.StartTick {
			continue
		}
		start := m.TickToMicroseconds(s.StartTick)
		end := m.TickToMicroseconds(s.EndTick)
		dur := int64((end - start) / 1000)
		if dur < 1 {
			dur = 1
		}
		res = append(res, model.MusicalNote{
			Pitch:       s.Pitch,
			StartTimeMs: int64(start / 1000),
			DurationMs:  dur,
			Velocity:    s.Velocity,
			Channel:     s.Channel,
			Track:       s.Track,
		})
	}
	return res
}

// SortNotes orders by start time, then pitch. The remaining keys only exist
// so the order never depends on the input order.
func SortNotes(notes []model.MusicalNote) {
	sort.SliceStable(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if a.StartTimeMs != b.StartTimeMs {
			return a.StartTimeMs < b.StartTimeMs
		}
		if a.Pitch != b.Pitch {
			return a.Pitch < b.Pitch
		}
		if a.DurationMs != b.DurationMs {
			return a.DurationMs < b.DurationMs
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.Track < b.Track
	})
}

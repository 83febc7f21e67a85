// Package sample renders a stretch of decoded notes back into a standard MIDI
// file, e.g. to audition what the decoder extracted.
package sample

import (
	"io"
	"sort"

	"github.com/jsphweid/melodex/model"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	ticksPerQuarter = 960
	bpm             = 120
	// at 120 bpm a quarter lasts 500ms
	msPerQuarter = 500
)

type edge struct {
	tick     uint32
	on       bool
	channel  uint8
	pitch    uint8
	velocity uint8
}

func msToTicks(ms int64) uint32 {
	return uint32(ms * ticksPerQuarter / msPerQuarter)
}

// Create keeps the notes starting at or after fromMs, at most maxNotes of them
// (0 keeps all), shifted so the first kept note starts at zero. Each source
// track gets its own track in the result.
func Create(notes []model.MusicalNote, fromMs int64, maxNotes int) (*smf.SMF, error) {
	kept := make([]model.MusicalNote, 0, len(notes))
	for _, n := range notes {
		if n.StartTimeMs >= fromMs {
			kept = append(kept, n)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].StartTimeMs < kept[j].StartTimeMs })
	if maxNotes > 0 && len(kept) > maxNotes {
		kept = kept[:maxNotes]
	}

	var origin int64
	if len(kept) > 0 {
		origin = kept[0].StartTimeMs
	}

	byTrack := make(map[int][]edge)
	for _, n := range kept {
		start := msToTicks(n.StartTimeMs - origin)
		end := msToTicks(n.EndTimeMs() - origin)
		if end <= start {
			end = start + 1
		}
		byTrack[n.Track] = append(byTrack[n.Track],
			edge{tick: start, on: true, channel: n.Channel, pitch: n.Pitch, velocity: audibleVelocity(n.Velocity)},
			edge{tick: end, channel: n.Channel, pitch: n.Pitch},
		)
	}

	res := smf.New()
	res.TimeFormat = smf.MetricTicks(ticksPerQuarter)

	var conductor smf.Track
	conductor.Add(0, smf.MetaTempo(bpm))
	conductor.Close(0)
	if err := res.Add(conductor); err != nil {
		return nil, errors.Wrap(err, "could not add conductor track")
	}

	tracks := make([]int, 0, len(byTrack))
	for t := range byTrack {
		tracks = append(tracks, t)
	}
	sort.Ints(tracks)

	for _, t := range tracks {
		edges := byTrack[t]
		// offs go first so a repeated pitch is released before it restarts
		sort.SliceStable(edges, func(i, j int) bool {
			if edges[i].tick != edges[j].tick {
				return edges[i].tick < edges[j].tick
			}
			return !edges[i].on && edges[j].on
		})

		var track smf.Track
		var last uint32
		for _, e := range edges {
			delta := e.tick - last
			last = e.tick
			if e.on {
				track.Add(delta, midi.NoteOn(e.channel, e.pitch, e.velocity))
			} else {
				track.Add(delta, midi.NoteOff(e.channel, e.pitch))
			}
		}
		track.Close(0)
		if err := res.Add(track); err != nil {
			return nil, errors.Wrapf(err, "could not add track %d", t)
		}
	}
	return res, nil
}

// a note-on with velocity 0 would read back as a note-off
func audibleVelocity(v uint8) uint8 {
	if v == 0 {
		return 1
	}
	return v
}

func Write(w io.Writer, s *smf.SMF) error {
	_, err := s.WriteTo(w)
	return errors.Wrap(err, "could not write midi file")
}

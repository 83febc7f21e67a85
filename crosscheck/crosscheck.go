// Package crosscheck extracts notes with gomidi's SMF reader so the results of
// our own decoder can be compared against an independent one on real files.
package crosscheck

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/jsphweid/melodex/model"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const percussionChannel = 9

type open struct {
	tick     int64
	velocity uint8
}

// Notes pairs note starts and ends the same way the midi package does (last
// opened closes first) but relies on gomidi for everything else, including
// tick to time conversion.
func Notes(data []byte, filterPercussion bool) (res []model.MusicalNote, e error) {
	// gomidi can panic on malformed input
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			res = nil
			e = fmt.Errorf("gomidi panicked: %v", r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing midi file... %w", err)
	}

	for trackIdx, events := range s.Tracks {
		stacks := make(map[uint16][]open)
		var absTicks int64
		for _, event := range events {
			absTicks += int64(event.Delta)
			msg := midi.Message(event.Message)

			var channel, key, velocity uint8
			switch {
			case msg.GetNoteStart(&channel, &key, &velocity):
				k := uint16(channel)<<8 | uint16(key)
				stacks[k] = append(stacks[k], open{tick: absTicks, velocity: velocity})
			case msg.GetNoteEnd(&channel, &key):
				k := uint16(channel)<<8 | uint16(key)
				stack := stacks[k]
				if len(stack) == 0 {
					continue
				}
				on := stack[len(stack)-1]
				stacks[k] = stack[:len(stack)-1]

				if filterPercussion && channel == percussionChannel {
					continue
				}
				if absTicks <= on.tick {
					continue
				}
				start := s.TimeAt(on.tick)
				dur := (s.TimeAt(absTicks) - start) / 1000
				if dur < 1 {
					dur = 1
				}
				res = append(res, model.MusicalNote{
					Pitch:       key,
					StartTimeMs: start / 1000,
					DurationMs:  dur,
					Velocity:    on.velocity,
					Channel:     channel,
					Track:       trackIdx,
				})
			}
		}
	}

	sort.SliceStable(res, func(i, j int) bool {
		if res[i].StartTimeMs != res[j].StartTimeMs {
			return res[i].StartTimeMs < res[j].StartTimeMs
		}
		return res[i].Pitch < res[j].Pitch
	})
	return res, nil
}

type Mismatch struct {
	Note   model.MusicalNote
	Source string
}

type Report struct {
	Ours       int
	Theirs     int
	Matched    int
	Mismatches []Mismatch
}

func (r Report) OK() bool {
	return len(r.Mismatches) == 0
}

// Compare matches notes by pitch, channel and track, allowing start and
// duration to differ by up to tolMs. Rounding differs between the two
// decoders so an exact comparison is too strict.
func Compare(ours, theirs []model.MusicalNote, tolMs int64) Report {
	rep := Report{Ours: len(ours), Theirs: len(theirs)}

	type key struct {
		pitch, channel uint8
		track          int
	}
	pool := make(map[key][]int)
	for i, n := range theirs {
		k := key{n.Pitch, n.Channel, n.Track}
		pool[k] = append(pool[k], i)
	}
	used := make([]bool, len(theirs))

	for _, n := range ours {
		k := key{n.Pitch, n.Channel, n.Track}
		found := false
		for _, idx := range pool[k] {
			if used[idx] {
				continue
			}
			t := theirs[idx]
			if abs(t.StartTimeMs-n.StartTimeMs) <= tolMs && abs(t.DurationMs-n.DurationMs) <= tolMs {
				used[idx] = true
				found = true
				break
			}
		}
		if found {
			rep.Matched++
		} else {
			rep.Mismatches = append(rep.Mismatches, Mismatch{Note: n, Source: "ours"})
		}
	}

	for i, u := range used {
		if !u {
			rep.Mismatches = append(rep.Mismatches, Mismatch{Note: theirs[i], Source: "gomidi"})
		}
	}
	return rep
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

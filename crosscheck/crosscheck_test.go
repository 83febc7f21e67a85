package crosscheck

import (
	"bytes"
	"testing"

	"github.com/jsphweid/melodex/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func tempo(mpq uint32) smf.Message {
	return smf.Message([]byte{0xFF, 0x51, 0x03, byte(mpq >> 16), byte(mpq >> 8), byte(mpq)})
}

func writeSMF(t *testing.T, tracks ...smf.Track) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)
	for _, tr := range tracks {
		tr.Close(0)
		require.NoError(t, s.Add(tr))
	}
	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestNotesFromGomidi(t *testing.T) {
	var conductor smf.Track
	conductor.Add(480, tempo(1000000))

	var melody smf.Track
	melody.Add(0, midi.NoteOn(0, 60, 100))
	melody.Add(960, midi.NoteOff(0, 60))
	melody.Add(0, midi.NoteOn(9, 36, 100))
	melody.Add(10, midi.NoteOff(9, 36))

	notes, err := Notes(writeSMF(t, conductor, melody), true)
	require.NoError(t, err)
	assert.Equal(t, []model.MusicalNote{{Pitch: 60, StartTimeMs: 0, DurationMs: 1500, Velocity: 100, Track: 1}}, notes)

	notes, err = Notes(writeSMF(t, conductor, melody), false)
	require.NoError(t, err)
	assert.Len(t, notes, 2)
}

func TestNotesRejectsGarbage(t *testing.T) {
	_, err := Notes([]byte("definitely not a midi file"), true)
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	ours := []model.MusicalNote{
		{Pitch: 60, StartTimeMs: 0, DurationMs: 500},
		{Pitch: 62, StartTimeMs: 500, DurationMs: 500},
		{Pitch: 64, StartTimeMs: 1000, DurationMs: 500},
	}
	theirs := []model.MusicalNote{
		{Pitch: 60, StartTimeMs: 1, DurationMs: 499},
		{Pitch: 62, StartTimeMs: 500, DurationMs: 520},
		{Pitch: 65, StartTimeMs: 1000, DurationMs: 500},
	}

	rep := Compare(ours, theirs, 1)
	assert := assert.New(t)
	assert.False(rep.OK())
	assert.Equal(1, rep.Matched)
	assert.Len(rep.Mismatches, 4)
	assert.Equal("ours", rep.Mismatches[0].Source)
	assert.Equal(uint8(62), rep.Mismatches[0].Note.Pitch)
	assert.Equal("gomidi", rep.Mismatches[3].Source)

	assert.True(Compare(ours, ours, 0).OK())
}

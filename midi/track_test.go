package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, chunkBytes []byte) *Track {
	t.Helper()
	track, err := DecodeTrack(NewReader(chunkBytes), 0, quietLogger())
	require.NoError(t, err)
	return track
}

func TestDecodeNoteEdges(t *testing.T) {
	tb := newTrack().
		noteOn(0, 0, 60, 100).
		noteOff(480, 0, 60).
		noteOn(0, 3, 62, 90).
		noteOn(240, 3, 62, 0).
		end()

	track := decodeOne(t, tb.chunk())
	assert := assert.New(t)
	assert.Equal([]Event{
		NoteEdge{Tick: 0, Channel: 0, Pitch: 60, Velocity: 100, On: true},
		NoteEdge{Tick: 480, Channel: 0, Pitch: 60, Velocity: 0x40, On: false},
		NoteEdge{Tick: 480, Channel: 3, Pitch: 62, Velocity: 90, On: true},
		NoteEdge{Tick: 720, Channel: 3, Pitch: 62, Velocity: 0, On: false},
	}, track.Events)
	assert.Equal(2, track.NoteOns)
	assert.Equal(uint64(720), track.EndTick)
}

func TestDecodeRunningStatus(t *testing.T) {
	tb := newTrack().
		event(0, 0x91, 60, 100).
		event(10, 64, 100).
		event(10, 60, 0).
		event(10, 64, 0).
		end()

	track := decodeOne(t, tb.chunk())
	assert.Equal(t, []Event{
		NoteEdge{Tick: 0, Channel: 1, Pitch: 60, Velocity: 100, On: true},
		NoteEdge{Tick: 10, Channel: 1, Pitch: 64, Velocity: 100, On: true},
		NoteEdge{Tick: 20, Channel: 1, Pitch: 60, Velocity: 0, On: false},
		NoteEdge{Tick: 30, Channel: 1, Pitch: 64, Velocity: 0, On: false},
	}, track.Events)
	assert.Equal(t, 0, track.Anomalies)
}

func TestRunningStatusSurvivesMetaEvents(t *testing.T) {
	tb := newTrack().
		event(0, 0x90, 60, 100).
		event(0, 0xFF, 0x01, 0x03, 'a', 'b', 'c').
		event(100, 60, 0).
		end()

	track := decodeOne(t, tb.chunk())
	require.Len(t, track.Events, 2)
	assert.Equal(t, NoteEdge{Tick: 100, Channel: 0, Pitch: 60, Velocity: 0, On: false}, track.Events[1])
}

func TestDecodeSkipsOtherMessages(t *testing.T) {
	tb := newTrack().
		event(0, 0xB0, 7, 100).       // control change
		event(0, 0xC0, 5).            // program change
		event(0, 0xD0, 30).           // channel pressure
		event(0, 0xE0, 0x00, 0x40).   // pitch bend
		event(0, 0xA0, 60, 20).       // poly pressure
		event(0, 0xF0, 0x03, 1, 2, 3). // sysex
		event(0, 0xF7, 0x01, 0xF7).   // sysex escape
		event(0, 0xFF, 0x58, 0x04, 4, 2, 24, 8).
		event(0, 0xFF, 0x51, 0x02, 1, 2). // malformed tempo, skipped
		tempo(0, 600000).
		noteOn(5, 0, 70, 80).
		end()

	track := decodeOne(t, tb.chunk())
	assert.Equal(t, []Event{
		TempoChange{Tick: 0, MicrosecondsPerQuarter: 600000},
		NoteEdge{Tick: 5, Channel: 0, Pitch: 70, Velocity: 80, On: true},
	}, track.Events)
	assert.Equal(t, 0, track.Anomalies)
}

func TestDecodeSkipsStrayBytes(t *testing.T) {
	tb := newTrack().
		event(0, 0x42).       // data byte with no status yet
		event(0, 0xF4).       // undefined system common
		noteOn(0, 0, 60, 100).
		end()

	track := decodeOne(t, tb.chunk())
	assert.Equal(t, 2, track.Anomalies)
	assert.Equal(t, []Event{NoteEdge{Tick: 0, Channel: 0, Pitch: 60, Velocity: 100, On: true}}, track.Events)
}

func TestBytesAfterEndOfTrackAbandonTrack(t *testing.T) {
	tb := newTrack().noteOn(0, 0, 60, 100).end()
	tb.body = append(tb.body, 0x00, 0x00, 0x00)
	r := NewReader(append(tb.chunk(), 0xAA))

	_, err := DecodeTrack(r, 0, quietLogger())
	assert.True(t, errors.Is(err, ErrTrackLength))
	// cursor is at the declared end of the chunk, not where decoding stopped
	assert.Equal(t, 1, r.Remaining())
}

func TestDecodeTrackWithoutEndOfTrack(t *testing.T) {
	tb := newTrack().noteOn(0, 0, 60, 100).noteOff(10, 0, 60)
	track := decodeOne(t, tb.chunk())
	assert.Len(t, track.Events, 2)
}

func TestDecodeTrackErrors(t *testing.T) {
	t.Run("wrong tag", func(t *testing.T) {
		body := newTrack().end().body
		r := NewReader(append(chunk("XFIH", body), newTrack().end().chunk()...))
		_, err := DecodeTrack(r, 0, quietLogger())
		assert.True(t, errors.Is(err, ErrBadChunkTag))

		// the alien chunk was skipped so the next one decodes
		_, err = DecodeTrack(r, 1, quietLogger())
		assert.NoError(t, err)
	})

	t.Run("declared length past end of file", func(t *testing.T) {
		c := newTrack().noteOn(0, 0, 60, 100).end().chunk()
		c[7] += 10
		_, err := DecodeTrack(NewReader(c), 0, quietLogger())
		assert.True(t, errors.Is(err, ErrTrackLength))
	})

	t.Run("event runs past end of chunk", func(t *testing.T) {
		tb := newTrack().noteOn(0, 0, 60, 100)
		tb.body = append(tb.body, 0x00, 0x90, 0x3C)
		_, err := DecodeTrack(NewReader(tb.chunk()), 0, quietLogger())
		assert.True(t, errors.Is(err, ErrUnexpectedEndOfStream))
	})

	t.Run("sysex longer than chunk", func(t *testing.T) {
		tb := newTrack().event(0, 0xF0, 0x7F, 1, 2)
		_, err := DecodeTrack(NewReader(tb.chunk()), 0, quietLogger())
		assert.True(t, errors.Is(err, ErrUnexpectedEndOfStream))
	})
}

func TestZeroTempoIsIgnored(t *testing.T) {
	track := decodeOne(t, newTrack().tempo(0, 0).end().chunk())
	assert.Empty(t, track.Tempos())
}

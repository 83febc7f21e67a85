package midi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDivision(t *testing.T) {
	assert := assert.New(t)

	tb, err := ParseDivision(480)
	assert.NoError(err)
	assert.Equal(TimeBase{TicksPerQuarter: 480}, tb)

	// -25 fps, 40 ticks per frame
	tb, err = ParseDivision(0xE728)
	assert.NoError(err)
	assert.True(tb.SMPTE)
	assert.Equal(25.0, tb.FramesPerSecond)
	assert.Equal(uint8(40), tb.TicksPerFrame)

	tb, err = ParseDivision(0xE350)
	assert.NoError(err)
	assert.Equal(29.97, tb.FramesPerSecond)

	_, err = ParseDivision(0)
	assert.True(errors.Is(err, ErrInvalidDivision))
	_, err = ParseDivision(0xE700)
	assert.True(errors.Is(err, ErrInvalidDivision))
}

func TestDefaultTempo(t *testing.T) {
	m := NewTempoMap(TimeBase{TicksPerQuarter: 480}, nil)
	assert := assert.New(t)
	assert.Equal([]TempoPoint{{Tick: 0, MicrosecondsPerQuarter: DefaultMicrosecondsPerQuarter}}, m.Points())
	assert.Equal(500000.0, m.TickToMicroseconds(480))
	assert.Equal(int64(250), m.TickToMilliseconds(240))
}

func TestTempoChangeMidStream(t *testing.T) {
	m := NewTempoMap(TimeBase{TicksPerQuarter: 480}, []TempoChange{{Tick: 480, MicrosecondsPerQuarter: 1000000}})
	assert := assert.New(t)
	assert.Equal(500000.0, m.TickToMicroseconds(480))
	assert.Equal(1500000.0, m.TickToMicroseconds(960))
	assert.Equal(1000000.0, m.TickToMicroseconds(720))
	assert.Equal(250000.0, m.TickToMicroseconds(240))
}

func TestTempoMapMergesUnsortedChanges(t *testing.T) {
	m := NewTempoMap(TimeBase{TicksPerQuarter: 100}, []TempoChange{
		{Tick: 300, MicrosecondsPerQuarter: 250000},
		{Tick: 0, MicrosecondsPerQuarter: 1000000},
		{Tick: 100, MicrosecondsPerQuarter: 400000},
		{Tick: 100, MicrosecondsPerQuarter: 200000},
	})

	require.Equal(t, []TempoPoint{
		{Tick: 0, MicrosecondsPerQuarter: 1000000, CumulativeMicros: 0},
		{Tick: 100, MicrosecondsPerQuarter: 200000, CumulativeMicros: 1000000},
		{Tick: 300, MicrosecondsPerQuarter: 250000, CumulativeMicros: 1400000},
	}, m.Points())

	assert := assert.New(t)
	assert.Equal(0.0, m.TickToMicroseconds(0))
	assert.Equal(500000.0, m.TickToMicroseconds(50))
	assert.Equal(1000000.0, m.TickToMicroseconds(100))
	assert.Equal(1200000.0, m.TickToMicroseconds(200))
	assert.Equal(1400000.0, m.TickToMicroseconds(300))
	assert.Equal(1650000.0, m.TickToMicroseconds(400))
}

func TestTempoMapDoesNotMutateInput(t *testing.T) {
	changes := []TempoChange{{Tick: 10, MicrosecondsPerQuarter: 1}, {Tick: 5, MicrosecondsPerQuarter: 2}}
	NewTempoMap(TimeBase{TicksPerQuarter: 96}, changes)
	assert.Equal(t, uint64(10), changes[0].Tick)
}

func TestSMPTEIgnoresTempo(t *testing.T) {
	tb, err := ParseDivision(0xE728)
	require.NoError(t, err)
	m := NewTempoMap(tb, []TempoChange{{Tick: 0, MicrosecondsPerQuarter: 1000000}})

	// 25 fps * 40 ticks = 1000 ticks per second
	assert.InDelta(t, 1000000.0, m.TickToMicroseconds(1000), 1e-6)
	assert.Equal(t, int64(500), m.TickToMilliseconds(500))
	assert.Empty(t, m.Points())
}

func TestTempoLookupManyPoints(t *testing.T) {
	var changes []TempoChange
	for i := 1; i <= 1000; i++ {
		changes = append(changes, TempoChange{Tick: uint64(i * 10), MicrosecondsPerQuarter: 480000})
	}
	m := NewTempoMap(TimeBase{TicksPerQuarter: 480}, changes)

	// first 10 ticks at 500000, the rest at 480000
	want := 10*500000.0/480 + 9990*480000.0/480
	assert.InDelta(t, want, m.TickToMicroseconds(10000), 1e-3)
}

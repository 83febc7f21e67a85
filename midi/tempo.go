package midi

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// DefaultMicrosecondsPerQuarter is 120 BPM, the tempo in effect until the
// first Set Tempo event.
const DefaultMicrosecondsPerQuarter = 500000

var ErrInvalidDivision = errors.New("invalid time division")

// TimeBase is the header's division field decoded. Exactly one of the two
// modes is meaningful, selected by SMPTE.
type TimeBase struct {
	SMPTE bool

	TicksPerQuarter uint16

	FramesPerSecond float64
	TicksPerFrame   uint8
}

func ParseDivision(div uint16) (TimeBase, error) {
	if div&0x8000 == 0 {
		if div == 0 {
			return TimeBase{}, errors.Wrap(ErrInvalidDivision, "zero ticks per quarter note")
		}
		return TimeBase{TicksPerQuarter: div}, nil
	}

	// top byte is the negated frame rate in two's complement
	fps := -int(int8(div >> 8))
	tpf := uint8(div & 0xFF)
	if fps <= 0 || tpf == 0 {
		return TimeBase{}, errors.Wrapf(ErrInvalidDivision, "smpte division 0x%04X", div)
	}
	rate := float64(fps)
	if fps == 29 {
		// 30 drop-frame
		rate = 29.97
	}
	return TimeBase{SMPTE: true, FramesPerSecond: rate, TicksPerFrame: tpf}, nil
}

func (b TimeBase) String() string {
	if b.SMPTE {
		return fmt.Sprintf("smpte %.2ffps x %d ticks", b.FramesPerSecond, b.TicksPerFrame)
	}
	return fmt.Sprintf("%d ppq", b.TicksPerQuarter)
}

type TempoPoint struct {
	Tick                   uint64
	MicrosecondsPerQuarter uint32
	CumulativeMicros       float64
}

// TempoMap converts tick positions to elapsed microseconds. Points are sorted
// by tick and the first point is always at tick 0.
type TempoMap struct {
	base          TimeBase
	points        []TempoPoint
	microsPerTick float64
}

// NewTempoMap builds the piecewise linear tick -> time function. changes may
// come from any number of tracks in any order; when several share a tick the
// last one in the slice wins. In SMPTE mode the changes are ignored.
func NewTempoMap(base TimeBase, changes []TempoChange) *TempoMap {
	m := &TempoMap{base: base}
	if base.SMPTE {
		m.microsPerTick = 1e6 / (base.FramesPerSecond * float64(base.TicksPerFrame))
		return m
	}

	sorted := make([]TempoChange, len(changes))
	copy(sorted, changes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Tick < sorted[j].Tick
	})

	points := []TempoPoint{{Tick: 0, MicrosecondsPerQuarter: DefaultMicrosecondsPerQuarter}}
	for _, tc := range sorted {
		last := &points[len(points)-1]
		if tc.Tick == last.Tick {
			last.MicrosecondsPerQuarter = tc.MicrosecondsPerQuarter
			continue
		}
		points = append(points, TempoPoint{Tick: tc.Tick, MicrosecondsPerQuarter: tc.MicrosecondsPerQuarter})
	}

	tpq := float64(base.TicksPerQuarter)
	for i := 1; i < len(points); i++ {
		prev := points[i-1]
		delta := float64(points[i].Tick-prev.Tick) * float64(prev.MicrosecondsPerQuarter) / tpq
		points[i].CumulativeMicros = prev.CumulativeMicros + delta
	}
	m.points = points
	return m
}

func (m *TempoMap) TimeBase() TimeBase {
	return m.base
}

// Points is empty in SMPTE mode.
func (m *TempoMap) Points() []TempoPoint {
	return m.points
}

func (m *TempoMap) TickToMicroseconds(tick uint64) float64 {
	if m.base.SMPTE {
		return float64(tick) * m.microsPerTick
	}
	// last point with point.Tick <= tick; points[0].Tick is 0 so i >= 0
	i := sort.Search(len(m.points), func(i int) bool {
		return m.points[i].Tick > tick
	}) - 1
	p := m.points[i]
	return p.CumulativeMicros + float64(tick-p.Tick)*float64(p.MicrosecondsPerQuarter)/float64(m.base.TicksPerQuarter)
}

func (m *TempoMap) TickToMilliseconds(tick uint64) int64 {
	return int64(m.TickToMicroseconds(tick) / 1000)
}

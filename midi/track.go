package midi

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	statusNoteOff         = 0x80
	statusNoteOn          = 0x90
	statusPolyPressure    = 0xA0
	statusControlChange   = 0xB0
	statusProgramChange   = 0xC0
	statusChannelPressure = 0xD0
	statusPitchBend       = 0xE0
	statusSysEx           = 0xF0
	statusSysExEscape     = 0xF7
	statusMeta            = 0xFF

	metaEndOfTrack = 0x2F
	metaSetTempo   = 0x51

	PercussionChannel = 9
)

// Event is either a TempoChange or a NoteEdge.
type Event interface {
	EventTick() uint64
}

type TempoChange struct {
	Tick                   uint64
	MicrosecondsPerQuarter uint32
}

func (t TempoChange) EventTick() uint64 { return t.Tick }

// NoteEdge is a note-on or note-off. A note-on with velocity 0 is decoded as
// a note-off.
type NoteEdge struct {
	Tick     uint64
	Channel  uint8
	Pitch    uint8
	Velocity uint8
	On       bool
}

func (e NoteEdge) EventTick() uint64 { return e.Tick }

// Track holds the decoded events of one MTrk chunk in file order.
type Track struct {
	Index  int
	Events []Event
	// bytes skipped to resynchronize after something that isn't an event
	Anomalies int
	NoteOns   int
	EndTick   uint64
}

func (t *Track) Tempos() []TempoChange {
	var res []TempoChange
	for _, evt := range t.Events {
		if tc, ok := evt.(TempoChange); ok {
			res = append(res, tc)
		}
	}
	return res
}

type trackDecoder struct {
	r      *Reader
	track  *Track
	log    logrus.FieldLogger
	tick   uint64
	status uint8
}

// DecodeTrack reads one MTrk chunk starting at the reader's cursor. The
// cursor always ends up at the declared end of the chunk (or the end of the
// buffer if the chunk is truncated), so the next track can be read even when
// this one fails.
func DecodeTrack(r *Reader, index int, log logrus.FieldLogger) (*Track, error) {
	at := r.Pos()
	tag, err := r.ReadTag()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	body, err := r.Sub(int(length))
	if tag != "MTrk" {
		// the chunk is skipped either way so the next one lines up
		return nil, errors.Wrapf(ErrBadChunkTag, "got %q at offset %d, want \"MTrk\"", tag, at)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrTrackLength, "track %d declares %d bytes: %v", index, length, err)
	}

	d := &trackDecoder{
		r:     body,
		track: &Track{Index: index},
		log:   log.WithField("track", index),
	}
	if err := d.run(); err != nil {
		return nil, errors.Wrapf(err, "track %d", index)
	}
	d.track.EndTick = d.tick
	return d.track, nil
}

func (d *trackDecoder) run() error {
	for d.r.Remaining() > 0 {
		delta, err := d.r.ReadVLQ()
		if err != nil {
			return err
		}
		d.tick += uint64(delta)

		offset := d.r.Pos()
		b, err := d.r.ReadUint8()
		if err != nil {
			return err
		}

		if b < 0x80 {
			if d.status == 0 {
				d.anomaly(offset, b, "data byte without running status")
				continue
			}
			// running status: b is the first data byte of this event
			if err := d.r.Unread(); err != nil {
				return err
			}
			b = d.status
		}

		switch {
		case b == statusMeta:
			done, err := d.meta()
			if err != nil {
				return err
			}
			if done {
				// end of track must land exactly on the declared length
				if rest := d.r.Remaining(); rest > 0 {
					return errors.Wrapf(ErrTrackLength, "%d bytes after end of track at offset %d", rest, d.r.Pos())
				}
				return nil
			}
		case b == statusSysEx || b == statusSysExEscape:
			n, err := d.r.ReadVLQ()
			if err != nil {
				return err
			}
			if err := d.r.Skip(int(n)); err != nil {
				return err
			}
		case b >= 0xF0:
			d.anomaly(offset, b, "system message in track data")
		default:
			d.status = b
			if err := d.channel(b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *trackDecoder) anomaly(offset int, b uint8, what string) {
	d.track.Anomalies++
	d.log.WithFields(logrus.Fields{"offset": offset, "status": b}).Warn(what + ", skipping byte")
}

func (d *trackDecoder) data() (uint8, error) {
	b, err := d.r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if b&0x80 != 0 {
		d.track.Anomalies++
		d.log.WithFields(logrus.Fields{"offset": d.r.Pos() - 1, "status": b}).Warn("data byte with high bit set")
	}
	return b & 0x7F, nil
}

func (d *trackDecoder) channel(status uint8) error {
	ch := status & 0x0F
	switch status & 0xF0 {
	case statusNoteOff, statusNoteOn:
		pitch, err := d.data()
		if err != nil {
			return err
		}
		vel, err := d.data()
		if err != nil {
			return err
		}
		on := status&0xF0 == statusNoteOn && vel > 0
		if on {
			d.track.NoteOns++
		}
		d.track.Events = append(d.track.Events, NoteEdge{
			Tick:     d.tick,
			Channel:  ch,
			Pitch:    pitch,
			Velocity: vel,
			On:       on,
		})
		return nil
	case statusPolyPressure, statusControlChange, statusPitchBend:
		return d.r.Skip(2)
	case statusProgramChange, statusChannelPressure:
		return d.r.Skip(1)
	}
	return nil
}

// meta reports true once the end of track event is read.
func (d *trackDecoder) meta() (bool, error) {
	typ, err := d.r.ReadUint8()
	if err != nil {
		return false, err
	}
	n, err := d.r.ReadVLQ()
	if err != nil {
		return false, err
	}

	switch {
	case typ == metaSetTempo && n == 3:
		mpq, err := d.r.ReadUint24()
		if err != nil {
			return false, err
		}
		if mpq == 0 {
			d.log.WithField("tick", d.tick).Warn("ignoring zero tempo")
			return false, nil
		}
		d.track.Events = append(d.track.Events, TempoChange{Tick: d.tick, MicrosecondsPerQuarter: mpq})
		return false, nil
	case typ == metaEndOfTrack:
		return true, d.r.Skip(int(n))
	}
	return false, d.r.Skip(int(n))
}

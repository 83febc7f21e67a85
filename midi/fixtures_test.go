package midi

import (
	"encoding/binary"
	"io"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.Logger = quietLogger()
	return opts
}

type trackBuilder struct {
	body []byte
}

func newTrack() *trackBuilder {
	return &trackBuilder{}
}

func (tb *trackBuilder) event(delta uint32, data ...byte) *trackBuilder {
	tb.body = AppendVLQ(tb.body, delta)
	tb.body = append(tb.body, data...)
	return tb
}

func (tb *trackBuilder) noteOn(delta uint32, ch, pitch, vel byte) *trackBuilder {
	return tb.event(delta, 0x90|ch, pitch, vel)
}

func (tb *trackBuilder) noteOff(delta uint32, ch, pitch byte) *trackBuilder {
	return tb.event(delta, 0x80|ch, pitch, 0x40)
}

func (tb *trackBuilder) tempo(delta uint32, mpq uint32) *trackBuilder {
	return tb.event(delta, 0xFF, 0x51, 0x03, byte(mpq>>16), byte(mpq>>8), byte(mpq))
}

func (tb *trackBuilder) end() *trackBuilder {
	return tb.event(0, 0xFF, 0x2F, 0x00)
}

func (tb *trackBuilder) chunk() []byte {
	return chunk("MTrk", tb.body)
}

func chunk(tag string, body []byte) []byte {
	res := []byte(tag)
	res = binary.BigEndian.AppendUint32(res, uint32(len(body)))
	return append(res, body...)
}

func headerBody(format, ntracks, division uint16) []byte {
	var b []byte
	b = binary.BigEndian.AppendUint16(b, format)
	b = binary.BigEndian.AppendUint16(b, ntracks)
	b = binary.BigEndian.AppendUint16(b, division)
	return b
}

func smfBytes(division uint16, tracks ...[]byte) []byte {
	format := uint16(1)
	if len(tracks) == 1 {
		format = 0
	}
	res := chunk("MThd", headerBody(format, uint16(len(tracks)), division))
	for _, t := range tracks {
		res = append(res, t...)
	}
	return res
}

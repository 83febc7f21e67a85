package midi

import (
	"github.com/pkg/errors"
)

var (
	ErrUnexpectedEndOfStream = errors.New("unexpected end of stream")
	ErrInvalidVLQ            = errors.New("variable length quantity longer than 4 bytes")
	ErrBadChunkTag           = errors.New("unexpected chunk tag")
	ErrTrackLength           = errors.New("track length mismatch")
)

// MaxVLQ is the largest value a 4 byte variable length quantity can hold.
const MaxVLQ = 0x0FFFFFFF

// Reader is a cursor over an immutable byte buffer. Reads are big-endian and
// never go past the reader's end, which for a track reader is the end of the
// track chunk rather than the end of the file.
type Reader struct {
	buf   []byte
	start int
	pos   int
	end   int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, end: len(buf)}
}

// Pos is the absolute offset into the underlying buffer.
func (r *Reader) Pos() int {
	return r.pos
}

func (r *Reader) Remaining() int {
	return r.end - r.pos
}

// Seek moves the cursor to an absolute offset within the reader's bounds.
func (r *Reader) Seek(pos int) error {
	if pos < r.start || pos > r.end {
		return errors.Wrapf(ErrUnexpectedEndOfStream, "seek to %d outside [%d,%d]", pos, r.start, r.end)
	}
	r.pos = pos
	return nil
}

// Unread rewinds the cursor by one byte. Running status relies on this to
// hand a data byte back to the next read.
func (r *Reader) Unread() error {
	return r.Seek(r.pos - 1)
}

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > r.end {
		return errors.Wrapf(ErrUnexpectedEndOfStream, "need %d bytes at offset %d, have %d", n, r.pos, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint24() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += 3
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 |
		uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

// ReadTag reads a 4 byte ASCII chunk id.
func (r *Reader) ReadTag() (string, error) {
	if err := r.need(4); err != nil {
		return "", err
	}
	tag := string(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return tag, nil
}

// ExpectTag reads a chunk id and fails with ErrBadChunkTag if it isn't want.
func (r *Reader) ExpectTag(want string) error {
	at := r.pos
	tag, err := r.ReadTag()
	if err != nil {
		return err
	}
	if tag != want {
		return errors.Wrapf(ErrBadChunkTag, "got %q at offset %d, want %q", tag, at, want)
	}
	return nil
}

// ReadVLQ reads a MIDI variable length quantity: 7 bits per byte, most
// significant group first, high bit set on every byte but the last.
func (r *Reader) ReadVLQ() (uint32, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		b, err := r.ReadUint8()
		if err != nil {
			return 0, err
		}
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidVLQ, "at offset %d", r.pos-4)
}

func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Sub returns a reader over the next n bytes and advances past them. If fewer
// than n bytes remain the sub reader is clipped to what is there and
// ErrUnexpectedEndOfStream is returned alongside it.
func (r *Reader) Sub(n int) (*Reader, error) {
	var err error
	if r.pos+n > r.end {
		err = errors.Wrapf(ErrUnexpectedEndOfStream, "chunk of %d bytes at offset %d, have %d", n, r.pos, r.Remaining())
		n = r.Remaining()
	}
	sub := &Reader{buf: r.buf, start: r.pos, pos: r.pos, end: r.pos + n}
	r.pos += n
	return sub, err
}

// AppendVLQ appends v encoded as a variable length quantity. Values above
// MaxVLQ are truncated to their low 28 bits.
func AppendVLQ(dst []byte, v uint32) []byte {
	v &= MaxVLQ
	var tmp [4]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7F)
	for v >>= 7; v > 0; v >>= 7 {
		i--
		tmp[i] = byte(v&0x7F) | 0x80
	}
	return append(dst, tmp[i:]...)
}

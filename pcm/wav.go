package pcm

import (
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ReadWAV decodes integer PCM or 32 bit float and averages the channels down
// to mono, scaled to [-1, 1).
func ReadWAV(r io.ReadSeeker, maxSeconds float64) (*Audio, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.Wrap(ErrDecode, "invalid wav file")
	}
	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	case wavFormatFloat:
		if dec.BitDepth != 32 {
			return nil, errors.Wrapf(ErrDecode, "unsupported float bit depth %d", dec.BitDepth)
		}
	default:
		return nil, errors.Wrapf(ErrDecode, "unsupported wav format tag %#x", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "reading wav samples: %v", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, errors.Wrap(ErrDecode, "invalid wav buffer")
	}

	sample, err := sampleConverter(dec.WavAudioFormat, int(dec.BitDepth), buf.SourceBitDepth)
	if err != nil {
		return nil, err
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += sample(buf.Data[i*ch+c])
		}
		out[i] = float32(sum / float64(ch))
	}

	rate := buf.Format.SampleRate
	return &Audio{Samples: truncate(out, rate, maxSeconds), SampleRate: rate}, nil
}

// sampleConverter maps one decoded value to [-1, 1). The decoder hands float
// samples over as the raw bits of a little endian int32.
func sampleConverter(format uint16, depth, sourceDepth int) (func(int) float64, error) {
	if format == wavFormatFloat {
		return func(v int) float64 {
			return float64(math.Float32frombits(uint32(int32(v))))
		}, nil
	}

	if depth == 0 {
		depth = sourceDepth
	}
	if depth < 8 || depth > 32 {
		return nil, errors.Wrapf(ErrDecode, "unsupported bit depth %d", depth)
	}
	scale := float64(int64(1) << (depth - 1))
	// 8 bit wav is unsigned
	var bias float64
	if depth == 8 {
		bias = 128
	}
	return func(v int) float64 {
		return (float64(v) - bias) / scale
	}, nil
}

// WriteWAV stores mono samples as 16 bit PCM.
func WriteWAV(w io.WriteSeeker, a *Audio) error {
	enc := wav.NewEncoder(w, a.SampleRate, 16, 1, 1)

	data := make([]int, len(a.Samples))
	for i, s := range a.Samples {
		v := float64(s) * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		data[i] = int(v)
	}
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: a.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return errors.Wrap(err, "writing wav samples")
	}
	return errors.Wrap(enc.Close(), "closing wav")
}

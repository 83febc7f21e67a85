// Package pcm turns audio files into mono float32 samples for the onset
// detector. WAV is read natively, everything else goes through ffmpeg.
package pcm

import (
	"context"
	"os"
	"time"

	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/util"
	"github.com/pkg/errors"
)

var ErrDecode = errors.New("could not decode audio")

type Audio struct {
	Samples    []float32
	SampleRate int
}

func (a *Audio) Duration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(a.Samples)) / float64(a.SampleRate) * float64(time.Second))
}

// Decode reads at most maxSeconds of audio from path (0 reads everything).
// Every failure wraps ErrDecode.
func Decode(ctx context.Context, path string, maxSeconds float64) (*Audio, error) {
	if util.HasExtension(path, []string{".wav", ".wave"}) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(ErrDecode, "%s: %v", path, err)
		}
		defer f.Close()
		return ReadWAV(f, maxSeconds)
	}

	ff := FFmpeg{Bin: constants.GetFFmpegBin(), SampleRate: constants.DecodeSampleRate}
	return ff.Decode(ctx, path, maxSeconds)
}

func truncate(samples []float32, rate int, maxSeconds float64) []float32 {
	if maxSeconds <= 0 {
		return samples
	}
	return samples[:util.Min(len(samples), int(maxSeconds*float64(rate)))]
}

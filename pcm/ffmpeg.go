package pcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// FFmpeg decodes anything ffmpeg understands by asking it for raw mono
// little-endian float32 on stdout.
type FFmpeg struct {
	Bin        string
	SampleRate int
}

func (f FFmpeg) Available() bool {
	_, err := exec.LookPath(f.Bin)
	return err == nil
}

func (f FFmpeg) args(path string, maxSeconds float64) []string {
	args := []string{"-v", "error", "-nostdin", "-i", path, "-ac", "1", "-ar", strconv.Itoa(f.SampleRate)}
	if maxSeconds > 0 {
		args = append(args, "-t", strconv.FormatFloat(maxSeconds, 'f', -1, 64))
	}
	return append(args, "-f", "f32le", "-acodec", "pcm_f32le", "pipe:1")
}

func (f FFmpeg) Decode(ctx context.Context, path string, maxSeconds float64) (*Audio, error) {
	cmd := exec.CommandContext(ctx, f.Bin, f.args(path, maxSeconds)...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.WithFields(log.Fields{"bin": f.Bin, "path": path}).Debug("running ffmpeg")
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ffmpeg %s: %v: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	samples, err := ParseF32LE(out)
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "ffmpeg %s: %v", path, err)
	}
	return &Audio{Samples: truncate(samples, f.SampleRate, maxSeconds), SampleRate: f.SampleRate}, nil
}

// ParseF32LE reads packed little-endian float32 samples.
func ParseF32LE(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.Errorf("%d bytes is not a whole number of float32 samples", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

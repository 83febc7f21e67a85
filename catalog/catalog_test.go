package catalog

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsphweid/melodex/file"
	"github.com/jsphweid/melodex/midi"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/onset"
	"github.com/jsphweid/melodex/pcm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// one track, 480 ppq, default tempo: C4 for a beat then E4 for a beat
var twoNotes = []byte{
	'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0x01, 0xE0,
	'M', 'T', 'r', 'k', 0, 0, 0, 22,
	0x00, 0x90, 60, 100,
	0x83, 0x60, 0x80, 60, 0,
	0x00, 0x90, 64, 90,
	0x83, 0x60, 0x80, 64, 0,
	0x00, 0xFF, 0x2F, 0x00,
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeTone(t *testing.T, path string) {
	t.Helper()
	const rate = 22050
	a := &pcm.Audio{SampleRate: rate, Samples: make([]float32, 2*rate)}
	for i := rate / 2; i < len(a.Samples); i++ {
		a.Samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, pcm.WriteWAV(f, a))
}

func mediaDir(t *testing.T) (string, model.FileNumToMediaPath) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "songs"), 0755))
	paths := []string{
		filepath.Join(dir, "songs", "a.mid"),
		filepath.Join(dir, "songs", "broken.mid"),
		filepath.Join(dir, "tone.wav"),
		filepath.Join(dir, "notes.txt"),
	}
	require.NoError(t, os.WriteFile(paths[0], twoNotes, 0644))
	require.NoError(t, os.WriteFile(paths[1], []byte("not midi"), 0644))
	writeTone(t, paths[2])
	require.NoError(t, os.WriteFile(paths[3], []byte("hello"), 0644))

	files, err := file.CreateFileNumMap(dir, paths)
	require.NoError(t, err)
	return dir, files
}

func analyzer(t *testing.T, media string) *Analyzer {
	t.Helper()
	d, err := onset.NewDetector(onset.DefaultConfig(), quiet())
	require.NoError(t, err)
	opts := midi.DefaultOptions()
	opts.Logger = quiet()
	return &Analyzer{MediaDir: media, Midi: opts, Detector: d, Log: quiet()}
}

func TestAnalyze(t *testing.T) {
	media, files := mediaDir(t)
	a := analyzer(t, media)
	ctx := context.Background()

	e := a.Analyze(ctx, 0, files[0])
	assert := assert.New(t)
	assert.Equal(model.KindMidi, e.Kind)
	assert.Empty(e.Error)
	assert.Equal(2, e.NoteCount)
	assert.Equal(int64(1000), e.DurationMs)
	assert.Equal(uint8(60), e.LowestPitch)
	assert.Equal(uint8(64), e.HighestPitch)
	assert.Len(e.Notes, 2)
	assert.Contains(e.Hash, "midi#")

	e = a.Analyze(ctx, 1, files[1])
	assert.Empty(e.Error, "unparseable midi is an empty result, not an error")
	assert.Equal(0, e.NoteCount)

	e = a.Analyze(ctx, 2, files[2])
	assert.Equal(model.KindAudio, e.Kind)
	require.NotNil(t, e.Onset)
	assert.True(e.Onset.HasOnset)
	assert.InDelta(0.5, *e.Onset.OnsetTimeSec, 512.0/22050)

	e = a.Analyze(ctx, 3, files[3])
	assert.Equal("unsupported file type", e.Error)

	a.SummaryOnly = true
	e = a.Analyze(ctx, 0, files[0])
	assert.Nil(e.Notes)
	assert.Equal(2, e.NoteCount)
}

func TestCacheKeyTracksSettings(t *testing.T) {
	a := analyzer(t, t.TempDir())
	midiKey := a.cacheKey(model.KindMidi, "midi#abc")
	audioKey := a.cacheKey(model.KindAudio, "audio#abc")

	a.Midi.MelodyOnly = !a.Midi.MelodyOnly
	assert.NotEqual(t, midiKey, a.cacheKey(model.KindMidi, "midi#abc"))

	cfg := onset.DefaultConfig()
	cfg.RelativeDbMargin += 6
	d, err := onset.NewDetector(cfg, quiet())
	require.NoError(t, err)
	a.Detector = d
	assert.NotEqual(t, audioKey, a.cacheKey(model.KindAudio, "audio#abc"))
	assert.Contains(t, a.cacheKey(model.KindAudio, "audio#abc"), "audio#abc@")
}

func TestBuildAndRead(t *testing.T) {
	media, files := mediaDir(t)
	out := t.TempDir()

	var seen []int
	c, err := Build(context.Background(), analyzer(t, media), files, out, 1, func(done, total int, e model.CatalogEntry) {
		assert.Equal(t, 4, total)
		seen = append(seen, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	// a tiny preferred size cuts a chunk per entry
	assert.Len(t, c.Chunks, 4)

	r, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, files, r.Catalog.Files)

	e, err := r.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, "songs/a.mid", e.Path)
	assert.Equal(t, 2, e.NoteCount)

	_, err = r.Entry(99)
	assert.True(t, errors.Is(err, ErrNotFound))

	all, err := r.Entries()
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, e := range all {
		assert.Equal(t, model.FileNum(i), e.FileNum)
	}

	s, err := Report(out)
	require.NoError(t, err)
	assert.Equal(t, Stats{
		Files: 4, Midi: 2, Audio: 1, Failed: 1, WithOnset: 1, Notes: 2, Chunks: 4,
		TotalBytes: s.TotalBytes, IndexBytes: s.IndexBytes,
	}, s)
	assert.Greater(t, s.IndexPercent(), float32(0))
	assert.Less(t, s.IndexPercent(), float32(1))
}

func TestBuildSingleChunk(t *testing.T) {
	media, files := mediaDir(t)
	out := t.TempDir()

	c, err := Build(context.Background(), analyzer(t, media), files, out, 64*1024*1024, nil)
	require.NoError(t, err)
	require.Len(t, c.Chunks, 1)
	assert.Equal(t, model.FileNum(0), c.Chunks[0].Start)
	assert.Equal(t, model.FileNum(3), c.Chunks[0].End)

	r, err := Open(out)
	require.NoError(t, err)
	e, err := r.Entry(2)
	require.NoError(t, err)
	assert.Equal(t, "tone.wav", e.Path)
}

func TestBuildReplacesOldCatalog(t *testing.T) {
	media, files := mediaDir(t)
	out := t.TempDir()
	keep := filepath.Join(out, "keep.txt")
	require.NoError(t, os.WriteFile(keep, []byte("x"), 0644))

	_, err := Build(context.Background(), analyzer(t, media), files, out, 1, nil)
	require.NoError(t, err)
	_, err = Build(context.Background(), analyzer(t, media), files, out, 1<<20, nil)
	require.NoError(t, err)

	s, err := Report(out)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Chunks)
	assert.FileExists(t, keep)

	require.NoError(t, DeleteAll(out))
	s, err = Report(out)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Chunks)
	_, err = Open(out)
	assert.Error(t, err)
}

func TestBuildStopsWhenCancelled(t *testing.T) {
	media, files := mediaDir(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, analyzer(t, media), files, t.TempDir(), 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKindOf(t *testing.T) {
	k, ok := KindOf("x/Song.MID")
	assert.True(t, ok)
	assert.Equal(t, model.KindMidi, k)

	k, ok = KindOf("a.mp3")
	assert.True(t, ok)
	assert.Equal(t, model.KindAudio, k)

	_, ok = KindOf("readme.md")
	assert.False(t, ok)
}

func TestIsChunkFile(t *testing.T) {
	assert.True(t, IsChunkFile("123e4567-e89b-12d3-a456-426614174000.dat"))
	assert.False(t, IsChunkFile("catalog.dat"))
	assert.False(t, IsChunkFile("001.dat"))
}

func TestBuildOrderDoesNotDependOnWorkers(t *testing.T) {
	media, files := mediaDir(t)
	for _, workers := range []int{1, 3, 16} {
		a := analyzer(t, media)
		a.Workers = workers
		out := t.TempDir()

		var order []model.FileNum
		_, err := Build(context.Background(), a, files, out, 1, func(done, total int, e model.CatalogEntry) {
			order = append(order, e.FileNum)
		})
		require.NoError(t, err)
		assert.Equal(t, []model.FileNum{0, 1, 2, 3}, order, "workers=%d", workers)

		r, err := Open(out)
		require.NoError(t, err)
		for i, c := range r.Catalog.Chunks {
			assert.Equal(t, model.FileNum(i), c.Start)
		}
	}
}

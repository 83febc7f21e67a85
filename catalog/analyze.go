package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/db"
	"github.com/jsphweid/melodex/midi"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/onset"
	"github.com/jsphweid/melodex/pcm"
	"github.com/jsphweid/melodex/util"
	"github.com/sirupsen/logrus"
)

// Analyzer turns one media file into a catalog entry. A nil Cache disables
// caching.
type Analyzer struct {
	MediaDir string
	Midi     midi.Options
	Detector *onset.Detector
	Cache    *db.Cache
	Log      logrus.FieldLogger
	// drop note lists from entries, keeping only their summary
	SummaryOnly bool
	// files Build analyzes at once, 0 for one per cpu
	Workers int
}

func KindOf(path string) (model.EntryKind, bool) {
	switch {
	case util.HasExtension(path, constants.MidiExtensions):
		return model.KindMidi, true
	case util.HasExtension(path, constants.AudioExtensions):
		return model.KindAudio, true
	}
	return "", false
}

func (a *Analyzer) log() logrus.FieldLogger {
	if a.Log == nil {
		return logrus.StandardLogger()
	}
	return a.Log
}

func (a *Analyzer) Analyze(ctx context.Context, num model.FileNum, rel string) model.CatalogEntry {
	entry := model.CatalogEntry{FileNum: num, Path: rel}
	log := a.log().WithField("file", rel)

	kind, ok := KindOf(rel)
	if !ok {
		entry.Error = "unsupported file type"
		return entry
	}
	entry.Kind = kind

	path := filepath.Join(a.MediaDir, filepath.FromSlash(rel))
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Warn("skipping unreadable file")
		entry.Error = err.Error()
		return entry
	}
	entry.Hash = db.ContentKey(kind, data)

	key := a.cacheKey(kind, entry.Hash)
	cached, hit, err := a.Cache.GetAnalysis(key)
	if err != nil {
		log.WithError(err).Warn("analysis cache lookup failed")
	}
	if hit {
		log.Debug("analysis cache hit")
		a.fill(&entry, cached)
		return entry
	}

	analysis := model.Analysis{Key: key, Kind: kind}
	switch kind {
	case model.KindMidi:
		analysis.Notes = midi.Parse(data, a.Midi)
	case model.KindAudio:
		if a.Detector == nil {
			entry.Error = "no onset detector configured"
			return entry
		}
		res := a.detectFile(ctx, path, log)
		analysis.Onset = &res
	}

	if err := a.Cache.PutAnalysis(analysis); err != nil {
		log.WithError(err).Warn("could not cache analysis")
	}
	a.fill(&entry, analysis)
	return entry
}

// cacheKey adds the settings that shape an analysis to its content key.
func (a *Analyzer) cacheKey(kind model.EntryKind, contentKey string) string {
	switch kind {
	case model.KindMidi:
		return contentKey + "#" + strconv.FormatBool(a.Midi.MelodyOnly) + strconv.FormatBool(a.Midi.FilterPercussion)
	case model.KindAudio:
		if a.Detector != nil {
			return contentKey + "@" + a.Detector.Config().Fingerprint()
		}
	}
	return contentKey
}

func (a *Analyzer) detectFile(ctx context.Context, path string, log logrus.FieldLogger) model.OnsetResult {
	cfg := a.Detector.Config()
	audio, err := pcm.Decode(ctx, path, cfg.AnalysisWindowSec)
	if err != nil {
		log.WithError(err).Warn("decode failed")
		return onset.DecodeFailed(cfg)
	}
	return a.Detector.Detect(audio.Samples, audio.SampleRate)
}

func (a *Analyzer) fill(entry *model.CatalogEntry, analysis model.Analysis) {
	Summarize(entry, analysis.Notes)
	if !a.SummaryOnly {
		entry.Notes = analysis.Notes
	}
	entry.Onset = analysis.Onset
}

// Summarize fills the note summary fields of entry.
func Summarize(entry *model.CatalogEntry, notes []model.MusicalNote) {
	entry.NoteCount = len(notes)
	if len(notes) == 0 {
		return
	}
	entry.LowestPitch, entry.HighestPitch = 127, 0
	for _, n := range notes {
		entry.LowestPitch = util.Min(entry.LowestPitch, n.Pitch)
		entry.HighestPitch = util.Max(entry.HighestPitch, n.Pitch)
		entry.DurationMs = util.Max(entry.DurationMs, n.EndTimeMs())
	}
}

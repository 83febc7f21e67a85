package cmd

import (
	"context"
	"strconv"
	"time"

	"github.com/hako/durafmt"
	"github.com/jsphweid/melodex/catalog"
	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/db"
	"github.com/jsphweid/melodex/file"
	"github.com/jsphweid/melodex/midi"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/onset"
	"github.com/jsphweid/melodex/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// chunks are cut once their pending entries pass this size
const preferredChunkSize = 64 * 1024 * 1024

var indexFlags struct {
	config      string
	summaryOnly bool
	workers     int
}

func init() {
	f := indexCmd.Flags()
	addConfigFlag(f, &indexFlags.config)
	f.BoolVar(&indexFlags.summaryOnly, "summary-only", false, "store note counts and ranges but not the notes")
	f.IntVar(&indexFlags.workers, "workers", 0, "files analyzed at once, 0 for one per cpu")
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [maxNum]",
	Short: "Creates index",
	Long:  `Analyzes every midi and audio file under MEDIA_PATH into the catalog at INDEX_PATH.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var maxNum int
		if len(args) == 1 {
			arg1, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "maxNum must be a number")
			}
			maxNum = arg1
		}

		_, err := Index(cmd.Context(), maxNum)
		return err
	},
}

func newAnalyzer(mediaDir string) (*catalog.Analyzer, error) {
	cfg, err := detectorConfig(indexFlags.config, 0)
	if err != nil {
		return nil, err
	}
	d, err := onset.NewDetector(cfg, log.StandardLogger())
	if err != nil {
		return nil, err
	}
	return &catalog.Analyzer{
		MediaDir:    mediaDir,
		Midi:        midi.DefaultOptions(),
		Detector:    d,
		Cache:       db.FromEnv(),
		Log:         log.StandardLogger(),
		SummaryOnly: indexFlags.summaryOnly,
		Workers:     indexFlags.workers,
	}, nil
}

// Index rebuilds the catalog from MEDIA_PATH. maxNum limits how many files
// are picked up, 0 for all of them.
func Index(ctx context.Context, maxNum int) (*model.Catalog, error) {
	mediaDir := constants.GetMediaDir()
	exts := append(append([]string{}, constants.MidiExtensions...), constants.AudioExtensions...)
	paths, err := util.GatherAllPaths(mediaDir, exts, maxNum)
	if err != nil {
		return nil, err
	}
	files, err := file.CreateFileNumMap(mediaDir, paths)
	if err != nil {
		return nil, err
	}
	a, err := newAnalyzer(mediaDir)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"media": mediaDir, "files": len(files)}).Info("indexing")
	start := time.Now()
	c, err := catalog.Build(ctx, a, files, constants.GetIndexDir(), preferredChunkSize, func(done, total int, e model.CatalogEntry) {
		fields := log.Fields{"file": e.Path, "done": done, "total": total}
		if e.Error != "" {
			log.WithFields(fields).WithField("error", e.Error).Warn("analysis failed")
			return
		}
		log.WithFields(fields).Debug("analyzed")
	})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"files":  len(c.Files),
		"chunks": len(c.Chunks),
		"took":   durafmt.Parse(time.Since(start)).LimitFirstN(2).String(),
	}).Info("index written")
	return c, nil
}

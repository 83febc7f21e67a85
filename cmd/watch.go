package cmd

import (
	"context"
	"fmt"
	"hash/fnv"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/jsphweid/melodex/constants"
	"github.com/jsphweid/melodex/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	interval time.Duration
	quiet    time.Duration
}

func init() {
	f := watchCmd.Flags()
	f.DurationVar(&watchFlags.interval, "interval", 5*time.Second, "how often to look for changes")
	f.DurationVar(&watchFlags.quiet, "debounce", 10*time.Second, "re-index once changes stop for this long")
	addConfigFlag(f, &indexFlags.config)
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-indexes whenever MEDIA_PATH changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd.Context(), constants.GetMediaDir(), watchFlags.interval, watchFlags.quiet, func(ctx context.Context) error {
			_, err := Index(ctx, 0)
			return err
		})
	},
}

// fingerprint changes whenever a media file is added, removed, resized or
// touched.
func fingerprint(dir string) (uint64, error) {
	h := fnv.New64a()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !util.HasExtension(path, constants.MidiExtensions) && !util.HasExtension(path, constants.AudioExtensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(h, "%s|%d|%d\n", path, info.ModTime().UnixNano(), info.Size())
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not scan media dir")
	}
	return h.Sum64(), nil
}

// watch polls dir and calls reindex once a burst of changes has settled.
// The first poll always triggers a build. Builds never overlap.
func watch(ctx context.Context, dir string, interval, quiet time.Duration, reindex func(context.Context) error) error {
	debounced := debounce.New(quiet)
	var mu sync.Mutex
	run := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := reindex(ctx); err != nil {
			log.WithError(err).Error("re-index failed")
		}
	}

	var last uint64
	first := true
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sum, err := fingerprint(dir)
		if err != nil {
			log.WithError(err).Warn("poll failed")
		} else if first || sum != last {
			log.WithField("dir", dir).Info("media changed")
			first, last = false, sum
			debounced(run)
		}

		select {
		case <-ctx.Done():
			// wait for a build that already started
			mu.Lock()
			defer mu.Unlock()
			return nil
		case <-ticker.C:
		}
	}
}

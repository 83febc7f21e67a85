package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/onset"
	"github.com/jsphweid/melodex/pcm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var onsetFlags struct {
	config      string
	analysisSec float64
	json        bool
}

func init() {
	f := onsetCmd.Flags()
	addConfigFlag(f, &onsetFlags.config)
	f.Float64Var(&onsetFlags.analysisSec, "analysis-sec", 0, "seconds of audio to scan, overrides the config")
	f.BoolVar(&onsetFlags.json, "json", false, "print the result as json")
	rootCmd.AddCommand(onsetCmd)
}

func addConfigFlag(f *pflag.FlagSet, p *string) {
	f.StringVar(p, "config", "", "json file overriding onset detector defaults")
}

// detectorConfig applies the config file and then the flags to the defaults.
func detectorConfig(path string, analysisSec float64) (onset.Config, error) {
	cfg := onset.DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = onset.LoadConfig(path); err != nil {
			return cfg, err
		}
	}
	if analysisSec > 0 {
		cfg.AnalysisWindowSec = analysisSec
	}
	return cfg, cfg.Validate()
}

var onsetCmd = &cobra.Command{
	Use:   "onset <audio file>",
	Short: "Finds where a clear tonal sound starts in an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := detectorConfig(onsetFlags.config, onsetFlags.analysisSec)
		if err != nil {
			return err
		}
		d, err := onset.NewDetector(cfg, log.StandardLogger())
		if err != nil {
			return err
		}

		var res model.OnsetResult
		a, err := pcm.Decode(cmd.Context(), args[0], cfg.AnalysisWindowSec)
		if err != nil {
			log.WithError(err).WithField("file", args[0]).Warn("could not decode audio")
			res = onset.DecodeFailed(cfg)
		} else {
			log.WithFields(log.Fields{"file": args[0], "duration": a.Duration(), "sample_rate": a.SampleRate}).Debug("decoded audio")
			res = d.Detect(a.Samples, a.SampleRate)
		}
		return printOnset(cmd.OutOrStdout(), res, onsetFlags.json)
	},
}

func printOnset(w io.Writer, res model.OnsetResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.HasOnset {
		fmt.Fprintf(w, "onset at %.3fs\n", *res.OnsetTimeSec)
	} else {
		fmt.Fprintln(w, "no onset")
	}
	fmt.Fprintf(w, "reason: %s\n", res.Reason)
	fmt.Fprintf(w, "noise floor: %.1f dB, required: %.1f dB\n", res.NoiseFloorDb, res.RequiredDb)
	fmt.Fprintf(w, "hits: %d of %d frames, %d frames scanned\n", res.HitCount, res.WindowFrames, res.FramesScanned)
	return nil
}

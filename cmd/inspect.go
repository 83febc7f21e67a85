package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/jsphweid/melodex/crosscheck"
	"github.com/jsphweid/melodex/midi"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var inspectFlags struct {
	crosscheck bool
	keepDrums  bool
	tolMs      int64
}

func init() {
	f := inspectCmd.Flags()
	f.BoolVar(&inspectFlags.crosscheck, "crosscheck", false, "compare the notes against gomidi's reader")
	f.BoolVar(&inspectFlags.keepDrums, "keep-drums", false, "keep channel 10 percussion")
	f.Int64Var(&inspectFlags.tolMs, "tolerance-ms", 1, "crosscheck timing tolerance")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.mid>",
	Short: "Inspects a midi file",
	Long:  `Prints the header, per track diagnostics and tempo map of a midi file.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "error reading midi file")
		}
		opts := midi.DefaultOptions()
		opts.FilterPercussion = !inspectFlags.keepDrums
		song, err := midi.Decode(data, opts)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		inspect(w, song)

		if !inspectFlags.crosscheck {
			return nil
		}
		theirs, err := crosscheck.Notes(data, opts.FilterPercussion)
		if err != nil {
			return err
		}
		rep := crosscheck.Compare(song.Notes, theirs, inspectFlags.tolMs)
		printCrosscheck(w, rep)
		if !rep.OK() {
			return errors.Errorf("%d notes differ from gomidi", len(rep.Mismatches))
		}
		return nil
	},
}

func inspect(w io.Writer, song *midi.Song) {
	h := song.Header
	fmt.Fprintf(w, "format: %d\n", h.Format)
	fmt.Fprintf(w, "tracks: %d\n", h.TrackCount)
	fmt.Fprintf(w, "division: 0x%04X (%s)\n", h.Division, h.TimeBase)

	for _, t := range song.Tracks {
		if t.Err != nil {
			fmt.Fprintf(w, "track %d: abandoned: %v\n", t.Index, t.Err)
			continue
		}
		fmt.Fprintf(w, "track %d: %d events, %d note-ons, %d notes, end tick %d\n",
			t.Index, t.Events, t.NoteOns, t.Notes, t.EndTick)
		if t.Anomalies+t.Orphans+t.Unclosed > 0 {
			fmt.Fprintf(w, "  anomalies %d, orphan note-offs %d, unclosed notes %d\n",
				t.Anomalies, t.Orphans, t.Unclosed)
		}
	}

	for _, p := range song.Tempo.Points() {
		var bpm float64
		if p.MicrosecondsPerQuarter > 0 {
			bpm = 60_000_000 / float64(p.MicrosecondsPerQuarter)
		}
		fmt.Fprintf(w, "tempo @ tick %d: %d us/quarter (%.2f bpm), %.0f ms in\n",
			p.Tick, p.MicrosecondsPerQuarter, bpm, p.CumulativeMicros/1000)
	}
	fmt.Fprintf(w, "notes: %d\n", len(song.Notes))
	log.WithField("notes", len(song.Notes)).Debug("inspected midi file")
}

func printCrosscheck(w io.Writer, rep crosscheck.Report) {
	fmt.Fprintf(w, "crosscheck: ours %d, gomidi %d, matched %d\n", rep.Ours, rep.Theirs, rep.Matched)
	for _, m := range rep.Mismatches {
		n := m.Note
		fmt.Fprintf(w, "  only in %s: pitch %d ch %d track %d at %d ms for %d ms\n",
			m.Source, n.Pitch, n.Channel, n.Track, n.StartTimeMs, n.DurationMs)
	}
}

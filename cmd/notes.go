package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jsphweid/melodex/midi"
	"github.com/jsphweid/melodex/model"
	"github.com/jsphweid/melodex/sample"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var notesFlags struct {
	json      bool
	melody    bool
	keepDrums bool
	excerpt   string
	fromMs    int64
	maxNotes  int
}

func init() {
	f := notesCmd.Flags()
	f.BoolVar(&notesFlags.json, "json", false, "print notes as json")
	f.BoolVar(&notesFlags.melody, "melody", false, "keep only the busiest track")
	f.BoolVar(&notesFlags.keepDrums, "keep-drums", false, "keep channel 10 percussion")
	f.StringVar(&notesFlags.excerpt, "excerpt", "", "also write the notes to this midi file")
	f.Int64Var(&notesFlags.fromMs, "from-ms", 0, "excerpt starts at the first note at or after this time")
	f.IntVar(&notesFlags.maxNotes, "max-notes", 0, "excerpt note limit, 0 for all")
	rootCmd.AddCommand(notesCmd)
}

var notesCmd = &cobra.Command{
	Use:   "notes <file.mid>",
	Short: "Prints the notes of a midi file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := midi.DefaultOptions()
		opts.FilterPercussion = !notesFlags.keepDrums
		opts.MelodyOnly = notesFlags.melody

		notes, err := midi.ReadMidiFile(args[0], opts)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{"file": args[0], "notes": len(notes)}).Info("parsed midi file")

		if notesFlags.excerpt != "" {
			if err := writeExcerpt(notes); err != nil {
				return err
			}
		}
		return printNotes(cmd.OutOrStdout(), notes, notesFlags.json)
	},
}

func writeExcerpt(notes []model.MusicalNote) error {
	s, err := sample.Create(notes, notesFlags.fromMs, notesFlags.maxNotes)
	if err != nil {
		return err
	}
	f, err := os.Create(notesFlags.excerpt)
	if err != nil {
		return errors.Wrap(err, "could not create excerpt file")
	}
	defer f.Close()
	if err := sample.Write(f, s); err != nil {
		return err
	}
	log.WithField("file", notesFlags.excerpt).Info("wrote excerpt")
	return nil
}

func printNotes(w io.Writer, notes []model.MusicalNote, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(model.NotesResponse{Count: len(notes), Notes: notes})
	}
	for _, n := range notes {
		fmt.Fprintf(w, "%8d ms  %6d ms  pitch %3d  vel %3d  ch %2d  track %d\n",
			n.StartTimeMs, n.DurationMs, n.Pitch, n.Velocity, n.Channel+1, n.Track)
	}
	fmt.Fprintf(w, "%d notes\n", len(notes))
	return nil
}

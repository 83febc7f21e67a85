package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jsphweid/melodex/catalog"
	"github.com/jsphweid/melodex/constants"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Creates a report",
	Long:  `Summarizes the catalog chunks in INDEX_PATH.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := catalog.Report(constants.GetIndexDir())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "chunks: %v\n", s.Chunks)
		fmt.Fprintf(w, "files: %v (midi %v, audio %v, failed %v)\n", s.Files, s.Midi, s.Audio, s.Failed)
		fmt.Fprintf(w, "notes: %v\n", humanize.Comma(int64(s.Notes)))
		fmt.Fprintf(w, "audio with an onset: %v\n", s.WithOnset)
		fmt.Fprintf(w, "total size: %v\n", humanize.Bytes(uint64(s.TotalBytes)))
		fmt.Fprintf(w, "index percent: %.2f%%\n", s.IndexPercent()*100)
		return nil
	},
}

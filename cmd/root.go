package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/jsphweid/melodex/constants"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "melodex",
	Short: "Extracts notes from midi files and tonal onsets from audio",
	Long: `melodex decodes standard midi files into timed notes and finds where a
clear musical sound starts in a recording. It can also index a media
directory and serve both analyses over http.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", constants.GetLogLevel(), "panic, fatal, error, warn, info, debug or trace")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as json")
}

func setupLogging() error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrap(err, "bad --log-level")
	}
	log.SetLevel(level)
	if logJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

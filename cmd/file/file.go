package file

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/fretlab/internal/analysis"
	"github.com/tphakala/fretlab/internal/conf"
	"github.com/tphakala/fretlab/internal/pitch"
)

// Command creates a new file command for analyzing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		format  string
		hop     int
		workers int
		frames  bool
	)

	cmd := &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Analyze an audio file",
		Long:  "Estimate the pitch of every frame of a WAV or FLAC file and print the notes played.",
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			estimator, err := pitch.NewEstimator(settings.Tuner.Estimator, pitch.Options{
				MinLag:        settings.Tuner.MinLag,
				PeakThreshold: settings.Tuner.PeakThreshold,
			})
			if err != nil {
				return err
			}

			report, err := analysis.FileAnalysis(cmd.Context(), args[0], estimator, analysis.Config{
				FrameSize: settings.Tuner.FrameSize,
				Hop:       hop,
				Workers:   workers,
			})
			if err != nil {
				return err
			}

			segments := report.Segments()
			if frames {
				segments = report.Frames()
			}
			return analysis.WriteResults(cmd.OutOrStdout(), segments, format)
		},
	}

	// Set up flags specific to the 'file' command
	cmd.Flags().StringVarP(&format, "format", "f", analysis.FormatTable, "Output format: table, csv or json")
	cmd.Flags().IntVar(&hop, "hop", 0, "Samples between frame starts, 0 for back-to-back frames")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent estimators, 0 for one per CPU")
	cmd.Flags().BoolVar(&frames, "frames", false, "Report every frame instead of merged notes")

	return cmd
}

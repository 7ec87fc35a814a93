package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/store"
)

// newStreamCmd segments the input and writes each utterance to a WAV file.
func newStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Segment the configured source into numbered WAV files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fileStore, err := store.NewFileStore(cfg.OutputDir)
			if err != nil {
				return err
			}

			sink := func(seg *audio.Segment) error {
				path, err := fileStore.SaveSegment(seg.Samples, cfg.SampleRate)
				if err != nil {
					return err
				}
				log.Info().Int64("start_timestamp", seg.Timestamp).Str("file", path).Msg("Segment written")
				return nil
			}

			return runSourcePipeline(ctx, cfg, sink)
		},
	}
}

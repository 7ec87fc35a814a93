package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
	"github.com/user/stream-transcriber/internal/store"
	"github.com/user/stream-transcriber/internal/stt"
)

// newTranscribeCmd segments the input and transcribes every utterance,
// printing fragments as JSON lines and optionally persisting them.
func newTranscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe",
		Short: "Segment the configured source and transcribe each utterance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownMetrics, err := observe.InitProvider(ctx, "stream-transcriber", version)
			if err != nil {
				return fmt.Errorf("failed to init metrics: %w", err)
			}
			defer shutdownMetrics(context.Background())

			transcriber, err := newTranscriber(cfg)
			if err != nil {
				return err
			}
			defer transcriber.Close()

			pg, err := newPostgres(ctx, cfg)
			if err != nil {
				return err
			}
			if pg != nil {
				defer pg.Close()
			}

			fileStore, err := store.NewFileStore(cfg.OutputDir)
			if err != nil {
				return err
			}
			sessionID := store.GenerateSessionID()

			pool := stt.NewPool(transcriber, cfg.STT.Workers)
			if err := pool.Start(ctx); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			// Result drain: stdout JSONL, transcript file, optional db rows.
			g.Go(func() error {
				encoder := json.NewEncoder(os.Stdout)
				for transcripts := range pool.Transcripts() {
					for _, transcript := range transcripts {
						if err := encoder.Encode(transcript); err != nil {
							return err
						}
					}
					if err := fileStore.AppendTranscripts(sessionID, transcripts); err != nil {
						log.Error().Err(err).Msg("Failed to append transcripts to file")
					}
					if pg != nil {
						for _, transcript := range transcripts {
							if err := pg.InsertTranscript(ctx, transcript.Start, transcript.Text); err != nil {
								log.Error().Err(err).Msg("Failed to insert transcript row")
							}
						}
					}
				}
				return nil
			})

			// Segmentation pipeline feeding the pool.
			g.Go(func() error {
				defer pool.Stop()
				sink := func(seg *audio.Segment) error {
					if err := pool.ProcessSegment(seg); err != nil {
						log.Warn().Err(err).Msg("Transcription pool rejected segment")
					}
					return nil
				}
				return runSourcePipeline(ctx, cfg, sink)
			})

			return g.Wait()
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
	"github.com/user/stream-transcriber/internal/store"
	"github.com/user/stream-transcriber/internal/stt"
	"github.com/user/stream-transcriber/internal/web"
)

// newServeCmd runs the HTTP ingestion server: pushed PCM flows through the
// same transport, segmentation engine and transcription pool as decoder
// input.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Accept pushed PCM over HTTP, segment and transcribe it",
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

			transport := newTransport(cfg)
			if reg, err := observe.Default().ObserveQueueDepth(transport.Len); err == nil {
				defer reg.Unregister()
			}

			pool := stt.NewPool(transcriber, cfg.STT.Workers)
			if err := pool.Start(ctx); err != nil {
				return err
			}

			sink := func(seg *audio.Segment) error {
				if err := pool.ProcessSegment(seg); err != nil {
					log.Warn().Err(err).Msg("Transcription pool rejected segment")
				}
				return nil
			}
			engine, err := newEngine(cfg, sink)
			if err != nil {
				return err
			}

			runID := store.GenerateSessionID()
			server := web.NewServer(transport, cfg.SampleRate, cfg.ChunkSamples, cfg.Web.StaticDir)
			server.SetActiveSession(runID)
			log.Info().Str("session_id", runID).Msg("Initial session")

			httpServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
				Handler: server.Handler(),
			}

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				encoder := json.NewEncoder(os.Stdout)
				for transcripts := range pool.Transcripts() {
					for _, transcript := range transcripts {
						if err := encoder.Encode(transcript); err != nil {
							return err
						}
					}
					// Attribute the batch to the session its audio was pushed
					// under, not whichever session is active at drain time.
					sessionID := transcripts[0].Session
					if sessionID == "" {
						sessionID = runID
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
			g.Go(func() error {
				defer pool.Stop()
				return engine.Run(ctx, transport)
			})
			g.Go(func() error {
				log.Info().Int("port", cfg.Web.Port).Msg("HTTP ingestion server listening")
				if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
				transport.Close()
				return nil
			})

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

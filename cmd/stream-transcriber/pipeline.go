package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/config"
	"github.com/user/stream-transcriber/internal/observe"
	"github.com/user/stream-transcriber/internal/secrets"
	"github.com/user/stream-transcriber/internal/segmenter"
	"github.com/user/stream-transcriber/internal/store"
	"github.com/user/stream-transcriber/internal/stream"
	"github.com/user/stream-transcriber/internal/stt"
	"github.com/user/stream-transcriber/internal/stt/deepgram"
	"github.com/user/stream-transcriber/internal/stt/vosk"
	"github.com/user/stream-transcriber/internal/stt/whisperserver"
)

// newTransport builds the session transport with the one-minute capacity
// bound.
func newTransport(cfg *config.Config) *stream.Transport {
	return stream.NewTransport(stream.TransportCapacity(cfg.SampleRate, cfg.ChunkSamples))
}

// newEngine builds a segmentation engine for one session.
func newEngine(cfg *config.Config, sink audio.SegmentSink) (*segmenter.Engine, error) {
	classifier, err := cfg.Classifier()
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}
	return segmenter.New(segmenter.Config{
		SampleRate:       cfg.SampleRate,
		Threshold:        cfg.VAD.Threshold,
		MinSpeechSeconds: cfg.VAD.MinSpeechSeconds,
		MaxSpeechSeconds: cfg.VAD.MaxSpeechSeconds,
	}, classifier, sink), nil
}

// runSourcePipeline wires supervisor → transport → engine for the configured
// input and blocks until both sides finish.
func runSourcePipeline(ctx context.Context, cfg *config.Config, sink audio.SegmentSink) error {
	if cfg.Input == "" {
		return fmt.Errorf("no input configured (set input in the config file or INPUT_URL)")
	}

	transport := newTransport(cfg)
	engine, err := newEngine(cfg, sink)
	if err != nil {
		return err
	}
	if reg, err := observe.Default().ObserveQueueDepth(transport.Len); err == nil {
		defer reg.Unregister()
	}

	supervisor := stream.NewSupervisor(cfg.Input, cfg.SampleRate, cfg.ChunkSamples)
	if cfg.Mirror {
		mirror, err := stream.NewPlaybackMirror(ctx, cfg.SampleRate)
		if err != nil {
			log.Warn().Err(err).Msg("Could not start playback mirror, continuing without it")
		} else {
			defer mirror.Close()
			supervisor.Mirror = mirror
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return supervisor.Run(ctx, transport)
	})
	g.Go(func() error {
		return engine.Run(ctx, transport)
	})
	return g.Wait()
}

// newTranscriber builds the configured STT backend.
func newTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STT.Backend {
	case "deepgram":
		return deepgram.New(cfg.STT.DeepgramAPIKey, cfg.STT.DeepgramModel, cfg.Language, true, cfg.SampleRate), nil
	case "vosk":
		return vosk.New(cfg.STT.VoskModelPath, cfg.SampleRate)
	default:
		return whisperserver.New(cfg.STT.WhisperServerURL,
			whisperserver.WithLanguage(cfg.Language),
			whisperserver.WithSampleRate(cfg.SampleRate),
		), nil
	}
}

// newPostgres connects the optional transcript database.
func newPostgres(ctx context.Context, cfg *config.Config) (*store.Postgres, error) {
	if cfg.DB == nil {
		return nil, nil
	}
	dsn, err := cfg.DB.DSN(secrets.Get)
	if err != nil {
		return nil, err
	}
	return store.NewPostgres(ctx, dsn, cfg.ShowName)
}

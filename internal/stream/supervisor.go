package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
)

// DefaultCooldown is how long the supervisor waits before restarting the
// decoder after a live stream drops.
const DefaultCooldown = 500 * time.Millisecond

// Supervisor drives the decoder for one input and feeds the transport. It
// decides up front whether the source is finite or live: finite sources get
// a single decoder pass followed by the end sentinel, live sources get an
// endless restart loop with a cooldown between passes.
type Supervisor struct {
	Input        string
	SampleRate   int
	ChunkSamples int
	Cooldown     time.Duration

	// Mirror, when non-nil, receives a copy of every live-source chunk as
	// raw PCM bytes for playback monitoring. Mirror write errors are logged
	// and disable the mirror; they never stop ingestion.
	Mirror io.Writer

	// openDecoder and probe are replaceable for tests.
	openDecoder func(ctx context.Context) (audio.ChunkReader, error)
	probe       func(ctx context.Context, input string) (float64, bool, error)
	now         func() time.Time
}

// NewSupervisor creates a supervisor for the given input locator.
func NewSupervisor(input string, sampleRate, chunkSamples int) *Supervisor {
	s := &Supervisor{
		Input:        input,
		SampleRate:   sampleRate,
		ChunkSamples: chunkSamples,
		Cooldown:     DefaultCooldown,
		probe:        audio.ProbeDuration,
		now:          time.Now,
	}
	s.openDecoder = func(ctx context.Context) (audio.ChunkReader, error) {
		return audio.NewFFmpegDecoder(ctx, s.Input, s.SampleRate, s.ChunkSamples)
	}
	return s
}

// Run probes the source and pumps it into the transport until the source is
// exhausted (finite), the context is cancelled, or a fatal condition occurs.
// For finite sources the end sentinel is sent and the transport closed on
// normal completion.
func (s *Supervisor) Run(ctx context.Context, t *Transport) error {
	duration, live, err := s.probe(ctx, s.Input)
	if err != nil {
		return fmt.Errorf("duration probe: %w", err)
	}

	if !live {
		log.Debug().Str("input", s.Input).Float64("duration_seconds", duration).Msg("Source is finite")
		if err := s.runOnce(ctx, t, false); err != nil {
			return err
		}
		if err := t.Send(ctx, nil); err != nil {
			return err
		}
		t.Close()
		return nil
	}

	log.Info().Str("input", s.Input).Msg("No duration found, assuming stream is infinite and will restart on stream stop")
	iteration := 0
	for {
		iteration++
		err := s.runOnce(ctx, t, true)
		switch {
		case err == nil:
			log.Warn().Int("iteration", iteration).Msg("Stream stopped, restarting")
		case errors.Is(err, context.Canceled) || errors.Is(err, ErrTransportFull) || errors.Is(err, ErrTransportClosed):
			return err
		default:
			// Transient for a live source: log and retry after the cooldown.
			log.Warn().Err(err).Int("iteration", iteration).Msg("Stream pass failed, restarting")
			observe.Default().DecoderRestarts.Add(ctx, 1)
		}

		select {
		case <-time.After(s.Cooldown):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runOnce performs one decoder pass. Timestamps are derived from the pass
// start time plus the sample count already emitted, so chunk timestamps stay
// monotonic even when the network delivers bursts.
func (s *Supervisor) runOnce(ctx context.Context, t *Transport, live bool) error {
	dec, err := s.openDecoder(ctx)
	if err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	defer dec.Close()

	startMillis := s.now().UnixMilli()
	samplesEmitted := 0

	for {
		samples, err := dec.ReadChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("read chunk: %w", err)
		}
		if len(samples) == 0 {
			continue
		}

		offset := int64(math.Round(float64(samplesEmitted) / float64(s.SampleRate) * 1000))
		seg := &audio.Segment{
			Samples:   samples,
			Timestamp: startMillis + offset,
		}
		samplesEmitted += len(samples)

		if live {
			if err := t.TrySend(seg); err != nil {
				if errors.Is(err, ErrTransportFull) {
					log.Error().Int("queued", t.Len()).Msg("Transport full on live stream, consumer cannot catch up, aborting")
				}
				return err
			}
		} else {
			if err := t.Send(ctx, seg); err != nil {
				return err
			}
		}
		observe.Default().ChunksIngested.Add(ctx, 1, observe.WithSource("decoder"))

		if live && s.Mirror != nil {
			if _, err := s.Mirror.Write(audio.Int16ToBytes(samples)); err != nil {
				log.Warn().Err(err).Msg("Playback mirror write failed, disabling mirror")
				s.Mirror = nil
			}
		}
	}

	// Distinguish clean EOF from a decoder crash.
	if err := dec.Close(); err != nil {
		return err
	}
	return nil
}

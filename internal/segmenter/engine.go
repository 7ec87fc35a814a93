// Package segmenter turns an ordered stream of timestamped sample chunks
// into complete speech segments using a voice-activity classifier.
package segmenter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
	"github.com/user/stream-transcriber/internal/stream"
)

// Defaults for the detection parameters. The threshold and durations match
// long-observed behavior; they are configurable but changing them changes
// how utterances are cut.
const (
	DefaultThreshold        = 0.5
	DefaultMinSpeechSeconds = 3.0
	DefaultMaxSpeechSeconds = 60.0
)

type speechState int

const (
	noSpeech speechState = iota
	hasSpeech
)

// Config carries the tunable parameters of an Engine.
type Config struct {
	SampleRate       int
	Threshold        float32
	MinSpeechSeconds float64
	MaxSpeechSeconds float64
}

// withDefaults fills zero values with the package defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.MinSpeechSeconds == 0 {
		c.MinSpeechSeconds = DefaultMinSpeechSeconds
	}
	if c.MaxSpeechSeconds == 0 {
		c.MaxSpeechSeconds = DefaultMaxSpeechSeconds
	}
	return c
}

// Engine is the consumer side of one segmentation session. It owns the
// classifier's recurrent state and both sample buffers exclusively; nothing
// on the producer side may touch them.
type Engine struct {
	cfg        Config
	classifier audio.Classifier
	sink       audio.SegmentSink

	state        speechState
	preroll      *sampleRing
	acc          []int16
	beginMillis  int64
	beginSession string
}

// New creates an Engine delivering completed segments to sink.
func New(cfg Config, classifier audio.Classifier, sink audio.SegmentSink) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		sink:       sink,
		state:      noSpeech,
		preroll:    newSampleRing(cfg.SampleRate),
	}
}

// Run consumes the transport until the end sentinel arrives, the producer
// closes the queue, or the context is cancelled. A classifier failure is
// fatal: its recurrent state cannot be trusted mid-session.
func (e *Engine) Run(ctx context.Context, t *stream.Transport) error {
	for {
		seg, ok, err := t.Receive(ctx)
		if err != nil {
			return err
		}
		if !ok || seg == nil {
			break
		}
		if err := e.process(seg); err != nil {
			return err
		}
	}

	// Flush whatever speech was still being assembled when the stream ended.
	if len(e.acc) > 0 {
		if err := e.flush(); err != nil {
			return err
		}
	}
	return nil
}

// process runs one chunk through the classifier and the state machine.
func (e *Engine) process(seg *audio.Segment) error {
	probability, err := e.classifier.Predict(seg.Samples)
	if err != nil {
		return fmt.Errorf("classifier failed: %w", err)
	}
	speech := probability > e.cfg.Threshold

	// The pre-roll ring must never exceed one second of samples. Anything
	// else is a logic bug, not bad input.
	if e.preroll.Len() > e.cfg.SampleRate {
		panic(fmt.Sprintf("pre-roll buffer holds %d samples, capacity is %d", e.preroll.Len(), e.cfg.SampleRate))
	}

	switch e.state {
	case noSpeech:
		if speech {
			log.Debug().Float32("probability", probability).Int64("timestamp", seg.Timestamp).Msg("Speech onset")
			e.beginMillis = seg.Timestamp
			e.beginSession = seg.Session
			if e.preroll.Len() > 0 {
				e.acc = append(e.acc, e.preroll.Drain()...)
			}
			e.acc = append(e.acc, seg.Samples...)
		} else {
			e.preroll.Write(seg.Samples)
		}

	case hasSpeech:
		seconds := float64(len(e.acc)) / float64(e.cfg.SampleRate)
		if seconds > e.cfg.MaxSpeechSeconds {
			// Cut the segment even if the classifier still hears speech, to
			// bound memory and latency.
			speech = false
		} else if seconds < e.cfg.MinSpeechSeconds {
			// Ride out brief dropouts so short pauses inside a sentence
			// don't fragment it.
			speech = true
		}

		// The chunk always joins the buffer: either the utterance continues,
		// or it becomes the trailing silence of the finished segment.
		e.acc = append(e.acc, seg.Samples...)
		if !speech {
			if err := e.flush(); err != nil {
				return err
			}
		}
	}

	if speech {
		e.state = hasSpeech
	} else {
		e.state = noSpeech
	}
	return nil
}

// flush hands the accumulated segment to the sink and resets all buffers.
func (e *Engine) flush() error {
	log.Debug().
		Int64("start_timestamp", e.beginMillis).
		Int("samples", len(e.acc)).
		Float64("seconds", float64(len(e.acc))/float64(e.cfg.SampleRate)).
		Msg("Flushing speech segment")

	completed := &audio.Segment{
		Samples:   e.acc,
		Timestamp: e.beginMillis,
		Session:   e.beginSession,
	}
	if err := e.sink(completed); err != nil {
		return fmt.Errorf("segment sink failed: %w", err)
	}
	observe.Default().SegmentsEmitted.Add(context.Background(), 1)

	e.acc = nil
	e.beginMillis = 0
	e.beginSession = ""
	e.preroll.Clear()
	return nil
}

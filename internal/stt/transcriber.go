package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
)

// Transcript is one text fragment produced from a speech segment. Session
// is copied from the segment by the worker pool; fragments from
// decoder-driven sources leave it empty.
type Transcript struct {
	ID         uuid.UUID `json:"id"`
	Start      time.Time `json:"start"`
	Text       string    `json:"text"`
	Source     string    `json:"source"`
	Session    string    `json:"session,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Transcriber interface for STT backends.
type Transcriber interface {
	Transcribe(ctx context.Context, seg *audio.Segment) ([]Transcript, error)
	Close() error
}

// Pool manages a pool of STT workers so transcription latency does not stall
// the segmentation engine. ProcessSegment is non-blocking; when every worker
// is busy and the queue is full the segment is rejected rather than queued
// indefinitely.
type Pool struct {
	transcriber    Transcriber
	workers        int
	segmentChan    chan *audio.Segment
	transcriptChan chan []Transcript
	stopChan       chan struct{}
	wg             sync.WaitGroup
	started        bool
	mutex          sync.Mutex
}

// NewPool creates a pool with the given worker count.
func NewPool(transcriber Transcriber, workers int) *Pool {
	return &Pool{
		transcriber:    transcriber,
		workers:        workers,
		segmentChan:    make(chan *audio.Segment, workers*2),
		transcriptChan: make(chan []Transcript, workers*2),
		stopChan:       make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.started {
		return fmt.Errorf("pool already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	log.Info().Int("workers", p.workers).Msg("Started STT worker pool")
	return nil
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	log.Debug().Int("worker_id", workerID).Msg("STT worker started")
	defer log.Debug().Int("worker_id", workerID).Msg("STT worker stopped")

	for {
		select {
		case seg, ok := <-p.segmentChan:
			if !ok {
				return
			}

			started := time.Now()
			transcripts, err := p.transcriber.Transcribe(ctx, seg)
			if err != nil {
				log.Error().
					Err(err).
					Int64("segment_timestamp", seg.Timestamp).
					Int("worker_id", workerID).
					Msg("Failed to transcribe segment")
				observe.Default().TranscribeErrors.Add(ctx, 1)
				continue
			}
			observe.Default().TranscribeDuration.Record(ctx, time.Since(started).Seconds())

			for i := range transcripts {
				transcripts[i].Session = seg.Session
			}

			if len(transcripts) > 0 {
				select {
				case p.transcriptChan <- transcripts:
					log.Debug().
						Int("transcripts", len(transcripts)).
						Int("worker_id", workerID).
						Msg("Transcribed segment")
				case <-ctx.Done():
					return
				case <-p.stopChan:
					return
				}
			}

		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		}
	}
}

// ProcessSegment hands a completed speech segment to the pool.
func (p *Pool) ProcessSegment(seg *audio.Segment) error {
	select {
	case p.segmentChan <- seg:
		return nil
	default:
		return fmt.Errorf("segment queue full, dropping segment")
	}
}

// Transcripts returns the channel of finished transcript batches.
func (p *Pool) Transcripts() <-chan []Transcript {
	return p.transcriptChan
}

// Stop drains the workers and closes the transcript channel.
func (p *Pool) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.started {
		return
	}

	close(p.stopChan)
	close(p.segmentChan)

	p.wg.Wait()
	close(p.transcriptChan)

	p.started = false
	log.Info().Msg("Stopped STT worker pool")
}

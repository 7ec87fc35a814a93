// Package vosk provides a Transcriber backed by a local Vosk model.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stt"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber runs speech recognition fully offline through the Vosk cgo
// bindings. The recognizer is reset per segment, so segments are independent.
type Transcriber struct {
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	sampleRate int
}

type voskResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// New loads the Vosk model at modelPath and creates a recognizer at the
// pipeline sample rate.
func New(modelPath string, sampleRate int) (*Transcriber, error) {
	log.Info().Str("model_path", modelPath).Msg("Loading Vosk model")

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Vosk model from %s: %w", modelPath, err)
	}

	recognizer, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("failed to create Vosk recognizer: %w", err)
	}

	log.Info().Msg("Vosk model loaded successfully")

	return &Transcriber{
		model:      model,
		recognizer: recognizer,
		sampleRate: sampleRate,
	}, nil
}

// Transcribe feeds the whole segment to the recognizer and takes the final
// result.
func (v *Transcriber) Transcribe(ctx context.Context, seg *audio.Segment) ([]stt.Transcript, error) {
	if len(seg.Samples) == 0 {
		return nil, nil
	}

	if v.recognizer.AcceptWaveform(audio.Int16ToBytes(seg.Samples)) == -1 {
		return nil, fmt.Errorf("failed to process audio segment")
	}

	jsonResult := v.recognizer.FinalResult()
	if jsonResult == "" {
		return nil, nil
	}

	var result voskResult
	if err := json.Unmarshal([]byte(jsonResult), &result); err != nil {
		log.Warn().
			Err(err).
			Str("json", jsonResult).
			Msg("Failed to parse Vosk result")
		return nil, nil
	}

	if result.Text == "" {
		return nil, nil
	}

	log.Debug().
		Int64("segment_timestamp", seg.Timestamp).
		Str("text", result.Text).
		Msg("Vosk transcription completed")

	return []stt.Transcript{{
		ID:         uuid.New(),
		Start:      time.UnixMilli(seg.Timestamp),
		Text:       result.Text,
		Source:     "vosk",
		Confidence: result.Confidence,
	}}, nil
}

// Close frees the recognizer and model.
func (v *Transcriber) Close() error {
	if v.recognizer != nil {
		v.recognizer.Free()
	}
	if v.model != nil {
		v.model.Free()
	}
	return nil
}

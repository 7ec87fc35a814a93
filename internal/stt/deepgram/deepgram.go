// Package deepgram provides a Transcriber backed by the Deepgram
// prerecorded transcription HTTP API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stt"
)

var _ stt.Transcriber = (*Transcriber)(nil)

const listenURL = "https://api.deepgram.com/v1/listen"

// Transcriber submits each speech segment as one prerecorded request.
type Transcriber struct {
	apiKey     string
	model      string
	language   string
	punctuate  bool
	sampleRate int
	client     *http.Client
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// New creates a Deepgram transcriber. model selects the Deepgram model tier
// (e.g. "nova-2").
func New(apiKey, model, language string, punctuate bool, sampleRate int) *Transcriber {
	return &Transcriber{
		apiKey:     apiKey,
		model:      model,
		language:   language,
		punctuate:  punctuate,
		sampleRate: sampleRate,
		client:     &http.Client{Timeout: 2 * time.Minute},
	}
}

// Transcribe converts the segment to WAV and posts it to the listen API.
func (d *Transcriber) Transcribe(ctx context.Context, seg *audio.Segment) ([]stt.Transcript, error) {
	if len(seg.Samples) == 0 {
		return nil, nil
	}

	wavData := audio.EncodeWAV(seg.Samples, d.sampleRate)

	params := url.Values{}
	if d.model != "" {
		params.Set("model", d.model)
	}
	params.Set("punctuate", strconv.FormatBool(d.punctuate))
	params.Set("smart_format", "true")
	params.Set("language", d.language)

	fullURL := listenURL + "?" + params.Encode()

	log.Debug().
		Str("model", d.model).
		Str("language", d.language).
		Int("audio_size_bytes", len(wavData)).
		Msg("Making Deepgram API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader(wavData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "audio/*")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Deepgram API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Warn().
			Int("status_code", resp.StatusCode).
			Str("response_body", string(body)).
			Msg("Deepgram API error response")
		return nil, fmt.Errorf("Deepgram API error %d: %s", resp.StatusCode, string(body))
	}

	var result deepgramResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse Deepgram response: %w", err)
	}

	var transcripts []stt.Transcript
	for _, channel := range result.Results.Channels {
		for _, alternative := range channel.Alternatives {
			if alternative.Transcript == "" {
				continue
			}
			transcripts = append(transcripts, stt.Transcript{
				ID:         uuid.New(),
				Start:      time.UnixMilli(seg.Timestamp),
				Text:       alternative.Transcript,
				Source:     "deepgram",
				Confidence: alternative.Confidence,
			})
		}
	}

	log.Debug().
		Int64("segment_timestamp", seg.Timestamp).
		Int("transcripts", len(transcripts)).
		Msg("Deepgram transcription completed")

	return transcripts, nil
}

// Close is a no-op; the HTTP client needs no cleanup.
func (d *Transcriber) Close() error {
	return nil
}

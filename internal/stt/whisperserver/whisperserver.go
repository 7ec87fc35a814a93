// Package whisperserver provides a Transcriber backed by a running
// whisper.cpp server binary, which exposes a REST API at POST /inference.
// Each completed speech segment is wrapped in a WAV container and submitted
// as one batch inference request.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stt"
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

const (
	defaultLanguage   = "en"
	defaultSampleRate = audio.DefaultSampleRate
	requestTimeout    = 5 * time.Minute
)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the language code sent to the server (e.g. "en", "yue").
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithSampleRate sets the sample rate of incoming segments. Defaults to
// 16000, which is also what whisper.cpp expects.
func WithSampleRate(rate int) Option {
	return func(t *Transcriber) {
		t.sampleRate = rate
	}
}

// Transcriber submits segments to a whisper.cpp server.
type Transcriber struct {
	serverURL  string
	language   string
	sampleRate int
	client     *http.Client
}

// New creates a Transcriber talking to the whisper.cpp server at serverURL.
func New(serverURL string, opts ...Option) *Transcriber {
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		client:     &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// inferenceResponse is the JSON body returned by POST /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Transcribe sends the segment as a WAV file to the server and returns the
// resulting text as a single transcript fragment.
func (t *Transcriber) Transcribe(ctx context.Context, seg *audio.Segment) ([]stt.Transcript, error) {
	if len(seg.Samples) == 0 {
		return nil, nil
	}

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(seg.Samples, t.sampleRate)); err != nil {
		return nil, fmt.Errorf("failed to write wav payload: %w", err)
	}
	if err := writer.WriteField("language", t.language); err != nil {
		return nil, fmt.Errorf("failed to write language field: %w", err)
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("failed to write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalise multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverURL+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper server request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper server error %d: %s", resp.StatusCode, string(respBody))
	}

	var result inferenceResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse whisper server response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("whisper server error: %s", result.Error)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, nil
	}

	log.Debug().
		Int64("segment_timestamp", seg.Timestamp).
		Int("text_len", len(text)).
		Msg("Whisper transcription completed")

	return []stt.Transcript{{
		ID:     uuid.New(),
		Start:  time.UnixMilli(seg.Timestamp),
		Text:   text,
		Source: "whisper",
	}}, nil
}

// Close is a no-op; the HTTP client needs no cleanup.
func (t *Transcriber) Close() error {
	return nil
}

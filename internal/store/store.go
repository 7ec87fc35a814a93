// Package store persists pipeline output: speech segments as WAV files,
// transcript fragments as JSON lines and optionally as Postgres rows.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stt"
)

// FileStore writes segments and transcripts beneath a base directory:
// segments/ holds sequentially numbered WAV files, transcripts/ holds one
// JSONL file per session.
type FileStore struct {
	baseDir string

	mu      sync.Mutex
	nextSeq int
}

// NewFileStore creates the directory layout under baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	for _, dir := range []string{
		filepath.Join(baseDir, "segments"),
		filepath.Join(baseDir, "transcripts"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return &FileStore{baseDir: baseDir, nextSeq: 1}, nil
}

// SaveSegment writes one speech segment as a WAV file and returns its path.
// Files are numbered in emission order.
func (s *FileStore) SaveSegment(samples []int16, sampleRate int) (string, error) {
	s.mu.Lock()
	seq := s.nextSeq
	s.nextSeq++
	s.mu.Unlock()

	path := filepath.Join(s.baseDir, "segments", fmt.Sprintf("speech_%03d.wav", seq))
	if err := audio.WriteWAV(path, samples, sampleRate); err != nil {
		return "", err
	}

	log.Info().
		Str("file", path).
		Int("samples", len(samples)).
		Msg("Saved speech segment")

	return path, nil
}

// AppendTranscripts appends fragments to the session's JSONL transcript file.
func (s *FileStore) AppendTranscripts(sessionID string, transcripts []stt.Transcript) error {
	path := filepath.Join(s.baseDir, "transcripts", sessionID+".jsonl")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, transcript := range transcripts {
		if err := encoder.Encode(transcript); err != nil {
			return fmt.Errorf("failed to encode transcript: %w", err)
		}
	}

	return nil
}

// LoadTranscripts reads a session's transcript file back.
func (s *FileStore) LoadTranscripts(sessionID string) ([]stt.Transcript, error) {
	path := filepath.Join(s.baseDir, "transcripts", sessionID+".jsonl")

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript file: %w", err)
	}
	defer file.Close()

	var transcripts []stt.Transcript
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var transcript stt.Transcript
		if err := decoder.Decode(&transcript); err != nil {
			return nil, fmt.Errorf("failed to decode transcript: %w", err)
		}
		transcripts = append(transcripts, transcript)
	}

	return transcripts, nil
}

// GenerateSessionID returns a timestamped session identifier.
func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", time.Now().Format("20060102_150405"))
}

// Package web exposes the HTTP surface: the PCM ingestion endpoint that
// feeds the segmentation transport, the session control endpoint, the
// Prometheus scrape endpoint, and static frontend files.
package web

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/observe"
	"github.com/user/stream-transcriber/internal/stream"
)

// Request headers carried by every ingestion POST.
const (
	headerTimestamp = "X-Recording-Timestamp"
	headerSessionID = "X-Session-Id"
)

// Server accepts pushed PCM over HTTP and re-chunks it into the same
// transport contract the stream supervisor uses, so the segmentation engine
// cannot tell the producers apart.
type Server struct {
	transport    *stream.Transport
	sampleRate   int
	chunkSamples int
	staticDir    string

	mu            sync.Mutex
	activeSession string

	// ingestBusy serializes ingestion bodies: one at a time, process-wide.
	// A second concurrent POST is rejected instead of interleaving samples.
	ingestBusy sync.Mutex
}

// NewServer creates a Server feeding the given transport.
func NewServer(transport *stream.Transport, sampleRate, chunkSamples int, staticDir string) *Server {
	return &Server{
		transport:    transport,
		sampleRate:   sampleRate,
		chunkSamples: chunkSamples,
		staticDir:    staticDir,
	}
}

// ActiveSession returns the currently authorized session id.
func (s *Server) ActiveSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSession
}

// SetActiveSession replaces the authorized session id.
func (s *Server) SetActiveSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSession = id
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/audio_input", s.handleAudioInput)
	mux.HandleFunc("POST /api/set_session_id", s.handleSetSessionID)
	mux.HandleFunc("GET /api/test", s.handleTest)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleAudioInput streams the request body into the transport as fixed-size
// sample chunks. The client supplies the capture timestamp of the first
// sample; subsequent chunk timestamps are derived from the sample count.
func (s *Server) handleAudioInput(w http.ResponseWriter, r *http.Request) {
	tsHeader := r.Header.Get(headerTimestamp)
	if tsHeader == "" {
		writeError(w, http.StatusBadRequest, "missing "+headerTimestamp+" header")
		return
	}
	startMillis, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unparsable "+headerTimestamp+" header")
		return
	}

	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing "+headerSessionID+" header")
		return
	}
	if active := s.ActiveSession(); sessionID != active {
		log.Warn().Str("session_id", sessionID).Str("active", active).Msg("Rejected audio for stale session")
		writeError(w, http.StatusBadRequest, "session id does not match the active session")
		return
	}

	if !s.ingestBusy.TryLock() {
		writeError(w, http.StatusConflict, "another ingestion request is in progress")
		return
	}
	defer s.ingestBusy.Unlock()

	chunks, err := s.pump(r, startMillis, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Audio ingestion failed")
		writeError(w, http.StatusInternalServerError, "failed to read audio stream")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "chunks": chunks})
}

// pump re-chunks the body into chunkSamples windows; the trailing partial
// window is emitted too rather than discarded. Timestamps are derived the
// same way the stream supervisor derives them, so the engine cannot tell
// the producers apart.
func (s *Server) pump(r *http.Request, startMillis int64, sessionID string) (int, error) {
	buf := make([]byte, s.chunkSamples*2)
	samplesEmitted := 0
	chunks := 0

	for {
		n, err := io.ReadFull(r.Body, buf)
		if n > 0 {
			samples := audio.BytesToInt16(buf[:n])
			offset := int64(math.Round(float64(samplesEmitted) / float64(s.sampleRate) * 1000))
			seg := &audio.Segment{
				Samples:   samples,
				Timestamp: startMillis + offset,
				Session:   sessionID,
			}
			samplesEmitted += len(samples)

			if sendErr := s.transport.Send(r.Context(), seg); sendErr != nil {
				return chunks, fmt.Errorf("transport send: %w", sendErr)
			}
			chunks++
			observe.Default().ChunksIngested.Add(r.Context(), 1, observe.WithSource("http"))
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
	}
}

type setSessionRequest struct {
	ID string `json:"id"`
}

// handleSetSessionID is the only writer of the active session id.
func (s *Server) handleSetSessionID(w http.ResponseWriter, r *http.Request) {
	var req setSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	s.SetActiveSession(req.ID)
	log.Info().Str("session_id", req.ID).Msg("Active session changed")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "id": req.ID})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello test"})
}

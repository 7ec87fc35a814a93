package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stream"
)

// One sample per millisecond keeps the derived timestamps readable.
const (
	testSampleRate   = 1000
	testChunkSamples = 4
)

func newTestServer() (*Server, *stream.Transport) {
	tr := stream.NewTransport(64)
	s := NewServer(tr, testSampleRate, testChunkSamples, "")
	s.SetActiveSession("session-1")
	return s, tr
}

func postAudio(t *testing.T, handler http.Handler, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/audio_input", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAudioInputHeaderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{
			name:    "missing timestamp",
			headers: map[string]string{headerSessionID: "session-1"},
		},
		{
			name: "unparsable timestamp",
			headers: map[string]string{
				headerTimestamp: "yesterday",
				headerSessionID: "session-1",
			},
		},
		{
			name:    "missing session id",
			headers: map[string]string{headerTimestamp: "1000"},
		},
		{
			name: "stale session id",
			headers: map[string]string{
				headerTimestamp: "1000",
				headerSessionID: "session-0",
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s, tr := newTestServer()
			rec := postAudio(t, s.Handler(), make([]byte, 8), tc.headers)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if tr.Len() != 0 {
				t.Fatalf("transport holds %d chunks, want 0 for a rejected request", tr.Len())
			}
		})
	}
}

func TestAudioInputRechunksBody(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer()

	// Ten samples against a four-sample chunk size: two full chunks plus a
	// partial trailing one.
	samples := []int16{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	rec := postAudio(t, s.Handler(), audio.Int16ToBytes(samples), map[string]string{
		headerTimestamp: "5000",
		headerSessionID: "session-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s, want 200", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status string `json:"status"`
		Chunks int    `json:"chunks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Chunks != 3 {
		t.Fatalf("chunks = %d, want 3", resp.Chunks)
	}

	ctx := context.Background()
	wantChunks := [][]int16{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10}}
	wantTimestamps := []int64{5000, 5004, 5008}
	for i := range wantChunks {
		seg, ok, err := tr.Receive(ctx)
		if err != nil || !ok || seg == nil {
			t.Fatalf("Receive() %d = (%v, %v, %v), want segment", i, seg, ok, err)
		}
		if len(seg.Samples) != len(wantChunks[i]) {
			t.Fatalf("chunk %d has %d samples, want %d", i, len(seg.Samples), len(wantChunks[i]))
		}
		for j, sample := range wantChunks[i] {
			if seg.Samples[j] != sample {
				t.Fatalf("chunk %d sample %d = %d, want %d", i, j, seg.Samples[j], sample)
			}
		}
		if seg.Timestamp != wantTimestamps[i] {
			t.Fatalf("chunk %d timestamp = %d, want %d", i, seg.Timestamp, wantTimestamps[i])
		}
		if seg.Session != "session-1" {
			t.Fatalf("chunk %d session = %q, want the ingesting session", i, seg.Session)
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("transport holds %d extra chunks", tr.Len())
	}
}

func TestAudioInputTimestampRounding(t *testing.T) {
	t.Parallel()

	// 500 samples at 300 Hz is 1666.67 ms; the derived timestamp must round
	// to 1667 the way the decoder path does, not truncate to 1666.
	tr := stream.NewTransport(8)
	s := NewServer(tr, 300, 500, "")
	s.SetActiveSession("session-1")

	body := audio.Int16ToBytes(make([]int16, 1000))
	rec := postAudio(t, s.Handler(), body, map[string]string{
		headerTimestamp: "0",
		headerSessionID: "session-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	ctx := context.Background()
	wantTimestamps := []int64{0, 1667}
	for i, want := range wantTimestamps {
		seg, ok, err := tr.Receive(ctx)
		if err != nil || !ok || seg == nil {
			t.Fatalf("Receive() %d = (%v, %v, %v), want segment", i, seg, ok, err)
		}
		if seg.Timestamp != want {
			t.Fatalf("chunk %d timestamp = %d, want %d", i, seg.Timestamp, want)
		}
	}
}

func TestAudioInputEmptyBody(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer()
	rec := postAudio(t, s.Handler(), nil, map[string]string{
		headerTimestamp: "5000",
		headerSessionID: "session-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if tr.Len() != 0 {
		t.Fatalf("transport holds %d chunks, want 0", tr.Len())
	}
}

func TestAudioInputConcurrentIngestionRejected(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer()
	s.ingestBusy.Lock()
	defer s.ingestBusy.Unlock()

	rec := postAudio(t, s.Handler(), make([]byte, 8), map[string]string{
		headerTimestamp: "5000",
		headerSessionID: "session-1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSetSessionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"id":"session-2"}`, http.StatusOK},
		{"empty id", `{"id":""}`, http.StatusBadRequest},
		{"malformed body", `{`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer()
			req := httptest.NewRequest(http.MethodPost, "/api/set_session_id", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusOK {
				if got := s.ActiveSession(); got != "session-2" {
					t.Fatalf("active session = %q, want %q", got, "session-2")
				}
			} else if got := s.ActiveSession(); got != "session-1" {
				t.Fatalf("active session changed to %q on a rejected request", got)
			}
		})
	}
}

func TestSessionChangeRejectsOldSession(t *testing.T) {
	t.Parallel()

	s, tr := newTestServer()
	s.SetActiveSession("session-2")

	rec := postAudio(t, s.Handler(), make([]byte, 8), map[string]string{
		headerTimestamp: "5000",
		headerSessionID: "session-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 after session change", rec.Code)
	}
	if tr.Len() != 0 {
		t.Fatalf("transport holds %d chunks from a stale session", tr.Len())
	}
}

func TestTestEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp["message"] != "hello test" {
		t.Fatalf("message = %q, want %q", resp["message"], "hello test")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

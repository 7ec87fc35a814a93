package segmenter

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/stream"
)

// scriptedClassifier returns one probability per call, in order. Calls past
// the end of the script report silence.
type scriptedClassifier struct {
	probs []float32
	calls int
	err   error
}

func (c *scriptedClassifier) Predict(samples []int16) (float32, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.calls >= len(c.probs) {
		return 0, nil
	}
	p := c.probs[c.calls]
	c.calls++
	return p, nil
}

func (c *scriptedClassifier) Reset() {}

type flushedSegment struct {
	start   int64
	session string
	samples []int16
}

// chunk builds a segment of n copies of val. Constant-valued chunks make the
// flushed sample sequence readable in assertions.
func chunk(val int16, n int, timestamp int64) *audio.Segment {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = val
	}
	return &audio.Segment{Samples: samples, Timestamp: timestamp}
}

// repeat builds the expected flushed samples from (val, count) pairs.
func repeat(pairs ...[2]int) []int16 {
	var out []int16
	for _, p := range pairs {
		for i := 0; i < p[1]; i++ {
			out = append(out, int16(p[0]))
		}
	}
	return out
}

// runEngine feeds the chunks plus the end sentinel through a transport and
// returns every segment the engine flushed.
func runEngine(t *testing.T, cfg Config, classifier audio.Classifier, chunks []*audio.Segment) ([]flushedSegment, error) {
	t.Helper()

	var flushed []flushedSegment
	sink := func(seg *audio.Segment) error {
		copied := make([]int16, len(seg.Samples))
		copy(copied, seg.Samples)
		flushed = append(flushed, flushedSegment{start: seg.Timestamp, session: seg.Session, samples: copied})
		return nil
	}

	tr := stream.NewTransport(len(chunks) + 1)
	ctx := context.Background()
	for _, c := range chunks {
		if err := tr.Send(ctx, c); err != nil {
			t.Fatalf("Send() failed: %v", err)
		}
	}
	if err := tr.Send(ctx, nil); err != nil {
		t.Fatalf("Send(sentinel) failed: %v", err)
	}
	tr.Close()

	engine := New(cfg, classifier, sink)
	err := engine.Run(ctx, tr)
	return flushed, err
}

// Ten samples per second and five-sample chunks keep the duration arithmetic
// legible: every chunk is half a second.
func testConfig() Config {
	return Config{
		SampleRate:       10,
		Threshold:        0.5,
		MinSpeechSeconds: 1.0,
		MaxSpeechSeconds: 3.0,
	}
}

func TestEngineOnsetPrependsPreroll(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{probs: []float32{0.1, 0.1, 0.1, 0.9, 0.9, 0.2}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
		chunk(3, 5, 1000),
		chunk(4, 5, 1500),
		chunk(5, 5, 2000),
		chunk(6, 5, 2500),
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("flushed %d segments, want 1", len(flushed))
	}

	// The ring holds one second (chunks 2 and 3); chunk 1 has been
	// overwritten. The trailing silent chunk 6 is part of the segment.
	want := repeat([2]int{2, 5}, [2]int{3, 5}, [2]int{4, 5}, [2]int{5, 5}, [2]int{6, 5})
	if !reflect.DeepEqual(flushed[0].samples, want) {
		t.Fatalf("flushed samples = %v, want %v", flushed[0].samples, want)
	}
	if flushed[0].start != 1500 {
		t.Fatalf("segment start = %d, want 1500 (the onset chunk, not the pre-roll)", flushed[0].start)
	}
}

func TestEngineShortDropoutDoesNotSplit(t *testing.T) {
	t.Parallel()

	// The silent chunk 2 arrives while the segment is still under the
	// minimum duration, so it must not end the utterance.
	classifier := &scriptedClassifier{probs: []float32{0.9, 0.1, 0.9, 0.1}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
		chunk(3, 5, 1000),
		chunk(4, 5, 1500),
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("flushed %d segments, want 1", len(flushed))
	}
	want := repeat([2]int{1, 5}, [2]int{2, 5}, [2]int{3, 5}, [2]int{4, 5})
	if !reflect.DeepEqual(flushed[0].samples, want) {
		t.Fatalf("flushed samples = %v, want %v", flushed[0].samples, want)
	}
	if flushed[0].start != 0 {
		t.Fatalf("segment start = %d, want 0", flushed[0].start)
	}
}

func TestEngineMaxDurationForcesCut(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MinSpeechSeconds = 0.5
	cfg.MaxSpeechSeconds = 1.0

	// Continuous speech: the engine must cut once the accumulated audio
	// exceeds the maximum, then treat the following chunk as a fresh onset.
	classifier := &scriptedClassifier{probs: []float32{0.9, 0.9, 0.9, 0.9, 0.9}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
		chunk(3, 5, 1000),
		chunk(4, 5, 1500),
		chunk(5, 5, 2000),
	}

	flushed, err := runEngine(t, cfg, classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 2 {
		t.Fatalf("flushed %d segments, want 2", len(flushed))
	}

	first := repeat([2]int{1, 5}, [2]int{2, 5}, [2]int{3, 5}, [2]int{4, 5})
	if !reflect.DeepEqual(flushed[0].samples, first) {
		t.Fatalf("first segment = %v, want %v", flushed[0].samples, first)
	}
	if flushed[0].start != 0 {
		t.Fatalf("first segment start = %d, want 0", flushed[0].start)
	}

	// The second segment must not contain pre-roll from before the cut.
	second := repeat([2]int{5, 5})
	if !reflect.DeepEqual(flushed[1].samples, second) {
		t.Fatalf("second segment = %v, want %v", flushed[1].samples, second)
	}
	if flushed[1].start != 2000 {
		t.Fatalf("second segment start = %d, want 2000", flushed[1].start)
	}
}

func TestEngineEndOfStreamFlushesPartial(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{probs: []float32{0.9, 0.9}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("flushed %d segments, want 1", len(flushed))
	}
	want := repeat([2]int{1, 5}, [2]int{2, 5})
	if !reflect.DeepEqual(flushed[0].samples, want) {
		t.Fatalf("flushed samples = %v, want %v", flushed[0].samples, want)
	}
}

func TestEngineSilenceOnlyEmitsNothing(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{probs: []float32{0.1, 0.2, 0.1, 0.3}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
		chunk(3, 5, 1000),
		chunk(4, 5, 1500),
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 0 {
		t.Fatalf("flushed %d segments, want 0", len(flushed))
	}
}

func TestEngineThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	// A probability exactly at the threshold is not speech.
	classifier := &scriptedClassifier{probs: []float32{0.5, 0.5}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 0 {
		t.Fatalf("flushed %d segments, want 0", len(flushed))
	}
}

func TestEngineSessionFollowsOnsetChunk(t *testing.T) {
	t.Parallel()

	classifier := &scriptedClassifier{probs: []float32{0.1, 0.9, 0.9, 0.1}}
	chunks := []*audio.Segment{
		chunk(1, 5, 0),
		chunk(2, 5, 500),
		chunk(3, 5, 1000),
		chunk(4, 5, 1500),
	}
	chunks[0].Session = "session-old"
	for _, c := range chunks[1:] {
		c.Session = "session-new"
	}

	flushed, err := runEngine(t, testConfig(), classifier, chunks)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(flushed) != 1 {
		t.Fatalf("flushed %d segments, want 1", len(flushed))
	}
	if flushed[0].session != "session-new" {
		t.Fatalf("segment session = %q, want the onset chunk's %q", flushed[0].session, "session-new")
	}
}

func TestEngineClassifierErrorIsFatal(t *testing.T) {
	t.Parallel()

	failure := errors.New("model exploded")
	classifier := &scriptedClassifier{err: failure}
	chunks := []*audio.Segment{chunk(1, 5, 0)}

	_, err := runEngine(t, testConfig(), classifier, chunks)
	if !errors.Is(err, failure) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, failure)
	}
}

func TestEngineSinkErrorIsFatal(t *testing.T) {
	t.Parallel()

	failure := errors.New("disk full")
	sink := func(seg *audio.Segment) error { return failure }

	tr := stream.NewTransport(4)
	ctx := context.Background()
	tr.Send(ctx, chunk(1, 5, 0))
	tr.Send(ctx, nil)
	tr.Close()

	engine := New(testConfig(), &scriptedClassifier{probs: []float32{0.9}}, sink)
	if err := engine.Run(ctx, tr); !errors.Is(err, failure) {
		t.Fatalf("Run() error = %v, want wrapped %v", err, failure)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	got := Config{}.withDefaults()
	if got.SampleRate != audio.DefaultSampleRate {
		t.Fatalf("SampleRate = %d, want %d", got.SampleRate, audio.DefaultSampleRate)
	}
	if got.Threshold != DefaultThreshold {
		t.Fatalf("Threshold = %v, want %v", got.Threshold, DefaultThreshold)
	}
	if got.MinSpeechSeconds != DefaultMinSpeechSeconds {
		t.Fatalf("MinSpeechSeconds = %v, want %v", got.MinSpeechSeconds, DefaultMinSpeechSeconds)
	}
	if got.MaxSpeechSeconds != DefaultMaxSpeechSeconds {
		t.Fatalf("MaxSpeechSeconds = %v, want %v", got.MaxSpeechSeconds, DefaultMaxSpeechSeconds)
	}
}

package audio

// Default capture parameters. The classifier models this pipeline targets are
// trained on 512/768/1024-sample windows at 16 kHz, so 1024 samples (64 ms)
// is the nominal chunk size everywhere.
const (
	DefaultSampleRate   = 16000
	DefaultChunkSamples = 1024
)

// Segment is one chunk of mono PCM in transit between a producer and the
// segmentation engine. Timestamp is the epoch-millisecond capture time of the
// first sample in Samples. Session identifies the ingestion session the
// samples were pushed under; decoder-driven producers leave it empty.
type Segment struct {
	Samples   []int16
	Timestamp int64
	Session   string
}

// Classifier scores a fixed-length sample window for voice activity.
// Implementations may carry recurrent state between calls; Reset re-zeros it.
// A Classifier instance belongs to exactly one segmentation session and must
// not be shared across goroutines.
type Classifier interface {
	// Predict returns the probability in [0,1] that the window contains speech.
	Predict(samples []int16) (float32, error)
	Reset()
}

// SegmentSink receives one completed speech buffer per detected utterance.
// The segment's Timestamp is the capture time of the chunk that triggered
// speech onset (any pre-roll samples prepended to the buffer precede it
// slightly) and its Session is taken from that same chunk. Invoked
// synchronously from the consumer goroutine.
type SegmentSink func(seg *Segment) error

package segmenter

// sampleRing is a fixed-capacity ring buffer of samples. While the engine is
// in the no-speech state it continuously overwrites itself with the most
// recent audio, so that speech onset can be prepended with up to capacity
// samples of lead-in.
type sampleRing struct {
	buf    []int16
	start  int
	length int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]int16, capacity)}
}

// Write appends samples, overwriting the oldest ones once full.
func (r *sampleRing) Write(samples []int16) {
	for _, sample := range samples {
		pos := (r.start + r.length) % len(r.buf)
		r.buf[pos] = sample
		if r.length < len(r.buf) {
			r.length++
		} else {
			r.start = (r.start + 1) % len(r.buf)
		}
	}
}

// Drain returns the buffered samples oldest-first and empties the ring.
func (r *sampleRing) Drain() []int16 {
	out := make([]int16, r.length)
	for i := 0; i < r.length; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	r.Clear()
	return out
}

func (r *sampleRing) Len() int { return r.length }

func (r *sampleRing) Clear() {
	r.start = 0
	r.length = 0
}

// Package vad provides voice-activity classifiers for the segmentation
// engine. Both implementations are stateless between chunks, so Reset is a
// no-op; classifiers with recurrent state (e.g. an ONNX silero session) plug
// in behind the same audio.Classifier interface.
package vad

import (
	"math"
)

// DefaultRMSThreshold is the RMS level (in 16-bit PCM units) at which a chunk
// is considered equally likely to be speech or silence.
const DefaultRMSThreshold = 500.0

// Energy is an RMS-energy classifier. It maps the chunk's root-mean-square
// level to a probability that crosses 0.5 exactly at the configured
// threshold. Crude but dependency-free; mainly useful as a fallback and in
// tests.
type Energy struct {
	threshold float64
}

// NewEnergy creates an Energy classifier with the default threshold.
func NewEnergy() *Energy {
	return &Energy{threshold: DefaultRMSThreshold}
}

// NewEnergyWithThreshold creates an Energy classifier with a custom RMS
// threshold.
func NewEnergyWithThreshold(threshold float64) *Energy {
	return &Energy{threshold: threshold}
}

// Predict maps RMS level to [0,1]: 0 at silence, 0.5 at the threshold,
// saturating at twice the threshold.
func (e *Energy) Predict(samples []int16) (float32, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var sum float64
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	p := rms / (2 * e.threshold)
	if p > 1 {
		p = 1
	}
	return float32(p), nil
}

// Reset is a no-op; the classifier carries no state.
func (e *Energy) Reset() {}

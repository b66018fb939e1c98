// Package voiceprint implements the voiceprint registry: enrollment,
// weighted-average and EMA updates, and the local mirror that accelerates
// listings without a vector-store round trip.
package voiceprint

import "time"

// EmbeddingDim is the fixed vector width every voiceprint is stored at.
const EmbeddingDim = 192

// EMAMinSamples is the sample count at which updates switch from weighted
// averaging to exponential moving average.
const EMAMinSamples = 4

// EMAAlpha is the EMA smoothing factor applied once a name has reached
// EMAMinSamples.
const EMAAlpha = float32(0.3)

// MinEnrollRawMs and MinEnrollSpeechMs gate enroll() before any embedding
// is extracted.
const (
	MinEnrollRawMs    = 5000
	MinEnrollSpeechMs = 3000
)

// WarnSpeechBelowMs is the VAD-measured speech threshold below which enroll
// still succeeds but returns a quality warning.
const WarnSpeechBelowMs = 5000

// Voiceprint is a named identity: the current best-estimate embedding plus
// bookkeeping.
type Voiceprint struct {
	Name        string
	Embedding   []float32
	SampleCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

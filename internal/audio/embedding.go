package audio

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"speakerid/internal/apperr"
)

// EmbeddingDim is the fixed dimensionality every voiceprint and diarized
// speaker embedding is stored and compared at.
const EmbeddingDim = 192

// MinEmbeddingSpeechMs is the shortest VAD-cleaned input the extractor will
// accept before declaring the audio insufficient.
const MinEmbeddingSpeechMs = 500

// EmbeddingConfig configures the sherpa-onnx speaker embedding extractor.
type EmbeddingConfig struct {
	ModelPath  string
	NumThreads int
	Provider   string
}

// DefaultEmbeddingConfig picks a CPU provider unless overridden; CoreML is
// only selected on darwin/arm64, mirroring the provider-detection done for
// the rest of the ONNX-backed components.
func DefaultEmbeddingConfig(modelPath string) EmbeddingConfig {
	return EmbeddingConfig{
		ModelPath:  modelPath,
		NumThreads: 4,
		Provider:   detectProvider(),
	}
}

func detectProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// Extractor wraps a sherpa-onnx SpeakerEmbeddingExtractor. It is a pure
// function of its input once constructed: Embed never mutates extractor
// state that would make two calls with the same waveform behave
// differently, and the underlying extractor is safe to call from multiple
// goroutines with independent streams.
type Extractor struct {
	extractor *sherpa.SpeakerEmbeddingExtractor
	vad       *VAD
	mu        sync.Mutex
}

// NewExtractor loads the embedding model and pairs it with a VAD gate used
// to strip silence before every Embed call, per the embedding contract.
func NewExtractor(config EmbeddingConfig, vad *VAD) (*Extractor, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.ModelPath)
	}

	sherpaConfig := &sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      config.ModelPath,
		NumThreads: config.NumThreads,
		Debug:      0,
		Provider:   config.Provider,
	}

	extractor := sherpa.NewSpeakerEmbeddingExtractor(sherpaConfig)
	if extractor == nil {
		return nil, fmt.Errorf("failed to create speaker embedding extractor")
	}

	return &Extractor{extractor: extractor, vad: vad}, nil
}

// Embed strips silence from wav16kMono, then returns its 192-dim unit-norm
// embedding. Fails with apperr.InsufficientSpeech if fewer than
// MinEmbeddingSpeechMs of speech remain.
func (e *Extractor) Embed(wav16kMono []float32) ([]float32, error) {
	if len(wav16kMono) == 0 {
		return nil, apperr.InvalidInput("audio is empty")
	}

	cleaned, err := e.vad.StripSilence(wav16kMono)
	if err != nil {
		return nil, apperr.Internal(err, "vad strip_silence failed")
	}

	speechMs, err := e.vad.SpeechDurationMs(wav16kMono)
	if err != nil {
		return nil, apperr.Internal(err, "vad speech_duration_ms failed")
	}
	if speechMs < MinEmbeddingSpeechMs {
		return nil, apperr.InsufficientSpeech("only %dms of speech detected, need at least %dms", speechMs, MinEmbeddingSpeechMs)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stream := sherpa.NewOnlineStream(e.extractor)
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(16000, cleaned)
	stream.InputFinished()

	if !e.extractor.IsReady(stream) {
		return nil, apperr.InsufficientSpeech("embedding extractor rejected input as too short")
	}

	vector := e.extractor.Compute(stream)
	if len(vector) == 0 {
		return nil, apperr.Internal(nil, "embedding extractor returned empty vector")
	}

	return normalize(vector), nil
}

// Dim reports the extractor's embedding dimensionality.
func (e *Extractor) Dim() int {
	return e.extractor.Dim()
}

// Close releases the underlying extractor.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
}

// normalize returns v scaled to unit L2-norm. A near-zero vector is
// returned unchanged to avoid dividing by zero.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 1e-10 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

// Package audio implements the VAD gate, the embedding extractor, and the
// audio toolkit (convert/extract/stitch) the identification pipeline runs
// on top of.
package audio

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// VADConfig tunes the Silero VAD gate.
type VADConfig struct {
	ModelPath            string
	SampleRate           int
	Threshold            float32
	MinSilenceDurationMs int
	SpeechPadMs          int
}

// DefaultVADConfig returns the canonical thresholds.
func DefaultVADConfig(modelPath string) VADConfig {
	return VADConfig{
		ModelPath:            modelPath,
		SampleRate:           16000,
		Threshold:            0.5,
		MinSilenceDurationMs: 100,
		SpeechPadMs:          30,
	}
}

// speechWindow marks one processed window's classification.
type speechWindow struct {
	isSpeech bool
	samples  []float32
}

// VAD wraps a Silero VAD ONNX graph. A single instance is safe for
// concurrent use; each call acquires the session mutex for the duration of
// its own LSTM-state streaming pass, so runChunk calls from different
// goroutines never interleave state.
type VAD struct {
	session *ort.DynamicAdvancedSession
	config  VADConfig
	mu      sync.Mutex
}

// NewVAD loads the Silero VAD model referenced by config.ModelPath.
func NewVAD(config VADConfig) (*VAD, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vad model not found: %s", config.ModelPath)
	}
	if config.SampleRate != 8000 && config.SampleRate != 16000 {
		return nil, fmt.Errorf("sample rate must be 8000 or 16000, got %d", config.SampleRate)
	}

	if err := ort.InitializeEnvironment(); err != nil && err != ort.ErrAlreadyInitialized {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("create vad session: %w", err)
	}

	return &VAD{session: session, config: config}, nil
}

func (v *VAD) windowSize() int {
	if v.config.SampleRate == 16000 {
		return 512
	}
	return 256
}

// classify runs the full waveform through the VAD model using a fresh LSTM
// state and context buffer, returning one speechWindow per fixed-size
// window (the tail window is zero-padded but its classification only
// counts the real samples it covers).
func (v *VAD) classify(samples []float32) ([]speechWindow, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	windowSize := v.windowSize()
	contextSize := 64
	if v.config.SampleRate == 8000 {
		contextSize = 32
	}

	state := make([]float32, 2*1*128)
	context := make([]float32, contextSize)

	var windows []speechWindow

	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		var chunk []float32
		if end <= len(samples) {
			chunk = samples[i:end]
		} else {
			chunk = make([]float32, windowSize)
			copy(chunk, samples[i:])
			end = len(samples)
		}

		prob, newState, err := v.runChunk(chunk, state, context)
		if err != nil {
			return nil, err
		}
		state = newState

		if len(chunk) >= contextSize {
			copy(context, chunk[len(chunk)-contextSize:])
		}

		windows = append(windows, speechWindow{
			isSpeech: prob >= v.config.Threshold,
			samples:  samples[i:end],
		})
	}

	return windows, nil
}

func (v *VAD) runChunk(chunk, state, context []float32) (float32, []float32, error) {
	inputData := make([]float32, len(context)+len(chunk))
	copy(inputData, context)
	copy(inputData[len(context):], chunk)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(inputData))), inputData)
	if err != nil {
		return 0, nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), state)
	if err != nil {
		return 0, nil, fmt.Errorf("create state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(v.config.SampleRate)})
	if err != nil {
		return 0, nil, fmt.Errorf("create sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := v.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, nil, fmt.Errorf("run vad inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	prob := outputs[0].(*ort.Tensor[float32]).GetData()
	stateN := outputs[1].(*ort.Tensor[float32]).GetData()

	newState := make([]float32, len(stateN))
	copy(newState, stateN)

	if len(prob) == 0 {
		return 0, newState, nil
	}
	return prob[0], newState, nil
}

// StripSilence removes non-speech windows, concatenating the remaining
// speech samples in order. Output length is always <= input length.
func (v *VAD) StripSilence(samples []float32) ([]float32, error) {
	windows, err := v.classify(samples)
	if err != nil {
		return nil, err
	}

	out := make([]float32, 0, len(samples))
	for _, w := range windows {
		if w.isSpeech {
			out = append(out, w.samples...)
		}
	}
	return out, nil
}

// SpeechDurationMs sums the duration of windows classified as speech. Each
// call starts from a fresh LSTM state and context buffer, but within a call
// every window sees the state and context left by the windows before it.
// Additivity under concatenation is therefore approximate, not exact: when
// two inputs are classified as one, the second input's windows see state
// carried over from the first, and its window boundaries shift unless the
// first input's length is a multiple of the window size.
func (v *VAD) SpeechDurationMs(samples []float32) (int, error) {
	windows, err := v.classify(samples)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, w := range windows {
		if w.isSpeech {
			total += len(w.samples) * 1000 / v.config.SampleRate
		}
	}
	return total, nil
}

// Close releases the underlying ONNX session.
func (v *VAD) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.session != nil {
		v.session.Destroy()
		v.session = nil
	}
}

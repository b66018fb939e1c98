package selection

import (
	"context"
	"path/filepath"
	"testing"

	"speakerid/internal/audio"
)

// fakeMeasurer reports every sample as speech, so its output tracks sample
// count directly instead of depending on a real Silero model.
type fakeMeasurer struct{}

func (fakeMeasurer) SpeechDurationMs(samples []float32) (int, error) {
	return len(samples) * 1000 / 16000, nil
}

func writeToneWav(t *testing.T, path string, durationMs int) {
	t.Helper()
	n := durationMs * 16000 / 1000
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	if err := audio.WriteWav(path, samples); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func TestSelectLongestUtteranceFastPath(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	writeToneWav(t, src, 30_000)

	utterances := []Utterance{
		{StartMs: 0, EndMs: 15_000},
		{StartMs: 26_000, EndMs: 27_000},
	}

	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, src, utterances, dir, "A")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected the single longest utterance chosen, got %d segments", len(result.Segments))
	}
	if result.Segments[0].StartMs != 0 || result.Segments[0].EndMs != 15_000 {
		t.Fatalf("expected unclipped longest utterance, got %+v", result.Segments[0])
	}
	if result.LowQuality {
		t.Fatalf("15s of speech should clear the identification floor")
	}
}

func TestSelectLongestUtteranceClippedToMaxSingle(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	writeToneWav(t, src, 40_000)

	utterances := []Utterance{{StartMs: 0, EndMs: 35_000}}

	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, src, utterances, dir, "A")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(result.Segments) != 1 {
		t.Fatalf("expected one segment, got %d", len(result.Segments))
	}
	if got := result.Segments[0].EndMs - result.Segments[0].StartMs; got != StitchingMaxSingleMs {
		t.Fatalf("expected clip to %dms, got %dms", StitchingMaxSingleMs, got)
	}
}

func TestSelectDescendingDurationAdmitsUntilTarget(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	writeToneWav(t, src, 60_000)

	utterances := []Utterance{
		{StartMs: 0, EndMs: 4_000},
		{StartMs: 5_000, EndMs: 9_000},
		{StartMs: 10_000, EndMs: 13_000},
		{StartMs: 14_000, EndMs: 14_500},
	}

	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, src, utterances, dir, "B")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	for _, seg := range result.Segments {
		if seg.EndMs-seg.StartMs < StitchingMinUtteranceMs {
			t.Fatalf("segment %+v is below the minimum admitted utterance duration", seg)
		}
	}
	if len(result.Segments) != 3 {
		t.Fatalf("expected the three >=2s utterances admitted before hitting target speech, got %d", len(result.Segments))
	}
	if result.SpeechMs < StitchingTargetSpeechMs {
		t.Fatalf("expected accumulated speech to reach the target, got %dms", result.SpeechMs)
	}
}

func TestSelectCapsAtMaxCount(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	writeToneWav(t, src, 60_000)

	var utterances []Utterance
	cursor := 0
	for i := 0; i < StitchingMaxCount+3; i++ {
		utterances = append(utterances, Utterance{StartMs: cursor, EndMs: cursor + 2_500})
		cursor += 3_000
	}

	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, src, utterances, dir, "C")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(result.Segments) > StitchingMaxCount {
		t.Fatalf("expected at most %d segments, got %d", StitchingMaxCount, len(result.Segments))
	}
}

func TestSelectEmptyUtterancesIsLowQualityWithNoStitchedFile(t *testing.T) {
	dir := t.TempDir()
	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, filepath.Join(dir, "unused.wav"), nil, dir, "D")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !result.LowQuality {
		t.Fatalf("expected LowQuality true for zero utterances")
	}
	if len(result.Segments) != 0 || result.StitchedWavPath != "" {
		t.Fatalf("expected no segments and no stitched path, got %+v", result)
	}
}

func TestSelectBelowIdentificationFloorIsLowQuality(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	writeToneWav(t, src, 10_000)

	utterances := []Utterance{{StartMs: 0, EndMs: 3_000}}

	result, err := Select(context.Background(), audio.NewToolkit(""), fakeMeasurer{}, src, utterances, dir, "E")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !result.LowQuality {
		t.Fatalf("expected 3s of speech to fall below the %dms identification floor", MinIdentificationSpeechMs)
	}
}

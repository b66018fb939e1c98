// Package selection implements the segment selector (C6): for one
// diarized speaker, pick and stitch the utterances that best support
// identification.
package selection

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"speakerid/internal/audio"
)

// speechMeasurer is the slice of the VAD gate's contract the selector
// depends on, kept as a small interface so tests can substitute a fake
// instead of loading a real ONNX model.
type speechMeasurer interface {
	SpeechDurationMs([]float32) (int, error)
}

// Canonical tuning constants from the selector's design.
const (
	StitchingTargetSpeechMs  = 10_000
	StitchingMaxSingleMs     = 20_000
	StitchingMinUtteranceMs  = 2_000
	StitchingMaxCount        = 5
	MinIdentificationSpeechMs = 8_000
)

// Utterance is the slice of an utterance this package needs: its time
// range within the speaker's source audio.
type Utterance struct {
	StartMs int
	EndMs   int
}

func (u Utterance) duration() int { return u.EndMs - u.StartMs }

// Segment is a chosen (start,end) range, ordered by StartMs in the result.
type Segment struct {
	StartMs int
	EndMs   int
}

// Result is the outcome of selecting and stitching one speaker's segments.
type Result struct {
	Segments        []Segment
	StitchedWavPath string
	SpeechMs        int
	LowQuality      bool
}

// Select runs the selection algorithm over utterances (already filtered to
// one diarized speaker), extracting and stitching from sourceWavPath into a
// file under workDir. An empty utterances slice returns an empty Result
// with LowQuality true and no stitched file.
func Select(ctx context.Context, toolkit *audio.Toolkit, vad speechMeasurer, sourceWavPath string, utterances []Utterance, workDir string, speakerLabel string) (Result, error) {
	if len(utterances) == 0 {
		return Result{LowQuality: true}, nil
	}

	longest := utterances[0]
	for _, u := range utterances[1:] {
		if u.duration() > longest.duration() {
			longest = u
		}
	}

	var chosen []Utterance
	if longest.duration() >= StitchingTargetSpeechMs {
		end := longest.EndMs
		if longest.duration() > StitchingMaxSingleMs {
			end = longest.StartMs + StitchingMaxSingleMs
		}
		chosen = []Utterance{{StartMs: longest.StartMs, EndMs: end}}
	} else {
		chosen = selectByDescendingDuration(ctx, toolkit, vad, sourceWavPath, utterances, workDir, speakerLabel)
	}

	sort.Slice(chosen, func(i, j int) bool { return chosen[i].StartMs < chosen[j].StartMs })

	ranges := make([][2]int, len(chosen))
	segments := make([]Segment, len(chosen))
	for i, u := range chosen {
		ranges[i] = [2]int{u.StartMs, u.EndMs}
		segments[i] = Segment{StartMs: u.StartMs, EndMs: u.EndMs}
	}

	stitchedPath := filepath.Join(workDir, fmt.Sprintf("speaker-%s.wav", speakerLabel))
	if err := toolkit.Stitch(sourceWavPath, ranges, stitchedPath); err != nil {
		return Result{}, fmt.Errorf("stitch speaker %s: %w", speakerLabel, err)
	}

	samples, _, err := audio.ReadWav(stitchedPath)
	if err != nil {
		return Result{}, fmt.Errorf("read stitched audio for speaker %s: %w", speakerLabel, err)
	}
	speechMs, err := vad.SpeechDurationMs(samples)
	if err != nil {
		return Result{}, fmt.Errorf("measure speech for speaker %s: %w", speakerLabel, err)
	}

	return Result{
		Segments:        segments,
		StitchedWavPath: stitchedPath,
		SpeechMs:        speechMs,
		LowQuality:      speechMs < MinIdentificationSpeechMs,
	}, nil
}

// selectByDescendingDuration admits utterances longest-first, extracting
// and VAD-measuring each candidate once to track the true post-VAD speech
// total rather than raw utterance duration.
func selectByDescendingDuration(ctx context.Context, toolkit *audio.Toolkit, vad speechMeasurer, sourceWavPath string, utterances []Utterance, workDir, speakerLabel string) []Utterance {
	sorted := make([]Utterance, len(utterances))
	copy(sorted, utterances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].duration() > sorted[j].duration() })

	var chosen []Utterance
	accumulatedSpeechMs := 0

	for i, u := range sorted {
		if u.duration() < StitchingMinUtteranceMs {
			break
		}
		if len(chosen) >= StitchingMaxCount {
			break
		}

		candidatePath := filepath.Join(workDir, fmt.Sprintf("candidate-%s-%d.wav", speakerLabel, i))
		if err := toolkit.Extract(sourceWavPath, u.StartMs, u.EndMs, candidatePath); err != nil {
			continue
		}
		samples, _, err := audio.ReadWav(candidatePath)
		if err != nil {
			continue
		}
		speechMs, err := vad.SpeechDurationMs(samples)
		if err != nil {
			continue
		}

		chosen = append(chosen, u)
		accumulatedSpeechMs += speechMs

		if accumulatedSpeechMs >= StitchingTargetSpeechMs {
			break
		}
	}

	return chosen
}

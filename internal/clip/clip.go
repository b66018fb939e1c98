// Package clip implements the clip service (C11): on-demand playback of one
// diarized speaker's stitched, VAD-stripped audio from a completed session.
package clip

import (
	"context"
	"fmt"
	"path/filepath"

	"speakerid/internal/apperr"
	"speakerid/internal/audio"
	"speakerid/internal/meeting"
)

// ClipMaxDurationMs is the default truncation length (~5 seconds), used
// unless the caller overrides Service.MaxDurationMs (e.g. from
// CLIP_MAX_DURATION_MS).
const ClipMaxDurationMs = 5000

// silenceStripper is the slice of the VAD gate's contract this package
// depends on, kept as an interface so tests can substitute a fake instead
// of loading a real ONNX model.
type silenceStripper interface {
	StripSilence([]float32) ([]float32, error)
}

// Service builds speaker clips from a session's retained audio and chosen
// segments.
type Service struct {
	Sessions *meeting.Store
	Toolkit  *audio.Toolkit
	VAD      silenceStripper
	WorkDir  string

	// MaxDurationMs truncates returned clips; zero falls back to
	// ClipMaxDurationMs.
	MaxDurationMs int
}

// New returns a clip Service using the default truncation length.
func New(sessions *meeting.Store, toolkit *audio.Toolkit, vad *audio.VAD, workDir string) *Service {
	return &Service{Sessions: sessions, Toolkit: toolkit, VAD: vad, WorkDir: workDir, MaxDurationMs: ClipMaxDurationMs}
}

func (s *Service) maxDurationMs() int {
	if s.MaxDurationMs > 0 {
		return s.MaxDurationMs
	}
	return ClipMaxDurationMs
}

// BuildClip stitches label's retained segments out of the session's audio,
// strips silence, truncates to MaxDurationMs (ClipMaxDurationMs when
// unset), and returns the path to a
// 16kHz mono WAV file the caller may stream and then remove.
func (s *Service) BuildClip(ctx context.Context, meetingID, label string) (string, error) {
	audioPath, segments, ok := s.Sessions.AudioPathAndSegments(meetingID, label)
	if !ok {
		return "", apperr.NotFound("no speaker %q in session %q", label, meetingID)
	}
	if audioPath == "" {
		return "", apperr.NotFound("session %q's audio is no longer available", meetingID)
	}
	if len(segments) == 0 {
		return "", apperr.NotFound("no retained segments for speaker %q", label)
	}

	ranges := make([][2]int, len(segments))
	for i, seg := range segments {
		ranges[i] = [2]int{seg.StartMs, seg.EndMs}
	}

	stitchedPath := filepath.Join(s.WorkDir, fmt.Sprintf("clip-%s-%s.wav", meetingID, label))
	if err := s.Toolkit.Stitch(audioPath, ranges, stitchedPath); err != nil {
		return "", fmt.Errorf("stitch clip for speaker %s: %w", label, err)
	}

	samples, sampleRate, err := audio.ReadWav(stitchedPath)
	if err != nil {
		return "", fmt.Errorf("read stitched clip: %w", err)
	}

	stripped, err := s.VAD.StripSilence(samples)
	if err != nil {
		return "", fmt.Errorf("strip silence from clip: %w", err)
	}

	maxSamples := s.maxDurationMs() * sampleRate / 1000
	if len(stripped) > maxSamples {
		stripped = stripped[:maxSamples]
	}

	if err := audio.WriteWav(stitchedPath, stripped); err != nil {
		return "", fmt.Errorf("write truncated clip: %w", err)
	}
	return stitchedPath, nil
}

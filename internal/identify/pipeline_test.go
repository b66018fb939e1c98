package identify

import (
	"context"
	"testing"
	"time"

	"speakerid/internal/apperr"
	"speakerid/internal/providers"
	"speakerid/internal/workerpool"
)

// blockingDiarizer blocks until unblock is closed, simulating a slow
// provider call so a second Run for the same device can be observed
// arriving while the first is still in flight.
type blockingDiarizer struct {
	unblock chan struct{}
}

func (d *blockingDiarizer) Diarize(ctx context.Context, audioPath string) (providers.DiarizationResult, error) {
	select {
	case <-d.unblock:
	case <-ctx.Done():
		return providers.DiarizationResult{}, ctx.Err()
	}
	return providers.DiarizationResult{}, nil
}

func TestRunRejectsSecondJobForSameDeviceWithBusy(t *testing.T) {
	unblock := make(chan struct{})
	pool := workerpool.New(2)
	defer pool.Close()

	pipeline := &Pipeline{
		Diarizer: &blockingDiarizer{unblock: unblock},
		Pool:     pool,
	}

	firstEvents := make(chan Event, 8)
	go pipeline.Run(context.Background(), "device-1", "/tmp/does-not-matter.wav", firstEvents)

	// Give the first job a moment to register itself as in-flight.
	time.Sleep(20 * time.Millisecond)

	secondEvents := make(chan Event, 8)
	pipeline.Run(context.Background(), "device-1", "/tmp/does-not-matter-2.wav", secondEvents)

	evt := <-secondEvents
	if evt.Type != EventError {
		t.Fatalf("expected second concurrent job to receive an error event, got %+v", evt)
	}
	appErr, ok := apperr.As(evt.Err)
	if !ok || appErr.Kind != apperr.KindBusy {
		t.Fatalf("expected a busy error, got %v", evt.Err)
	}

	// The first job is left blocked on its diarizer call (never unblocked)
	// so it never advances into stages this test's Pipeline has no
	// collaborators for; it leaks harmlessly until the test binary exits.
}

func TestGroupBySpeakerGroupsByLabel(t *testing.T) {
	utterances := []providers.DiarizedUtterance{
		{SpeakerLabel: "A", StartMs: 0, EndMs: 1000},
		{SpeakerLabel: "B", StartMs: 1000, EndMs: 2000},
		{SpeakerLabel: "A", StartMs: 2000, EndMs: 3000},
	}
	grouped := groupBySpeaker(utterances)
	if len(grouped["A"]) != 2 {
		t.Fatalf("expected 2 utterances for speaker A, got %d", len(grouped["A"]))
	}
	if len(grouped["B"]) != 1 {
		t.Fatalf("expected 1 utterance for speaker B, got %d", len(grouped["B"]))
	}
}

func TestToSelectionUtterancesPreservesTimeRanges(t *testing.T) {
	in := []providers.DiarizedUtterance{{StartMs: 10, EndMs: 20}, {StartMs: 30, EndMs: 40}}
	out := toSelectionUtterances(in)
	if len(out) != 2 || out[0].StartMs != 10 || out[1].EndMs != 40 {
		t.Fatalf("unexpected conversion: %+v", out)
	}
}

// Package identify implements the staged, cancellable, event-streamed
// identification job (C9): audio in, diarized+matched speakers out.
package identify

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"speakerid/internal/apperr"
	"speakerid/internal/audio"
	"speakerid/internal/matching"
	"speakerid/internal/meeting"
	"speakerid/internal/providers"
	"speakerid/internal/selection"
	"speakerid/internal/vectorstore"
	"speakerid/internal/workerpool"
)

// Stage names emitted on progress events, fixed by the pipeline's contract.
const (
	StageTranscribing = "transcribing"
	StageConverting   = "converting"
	StageAnalyzing    = "analyzing"
	StageMatching     = "matching"
)

const heartbeatInterval = 15 * time.Second

// EventType discriminates the four event shapes a job emits.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventHeartbeat EventType = "heartbeat"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one item in a job's output stream.
type Event struct {
	Type    EventType
	Stage   string
	Message string
	Done    *DoneEvent
	Err     error
}

// DoneEvent is the terminal success payload.
type DoneEvent struct {
	MeetingID       string
	Speakers        map[string]meeting.SpeakerEntry
	Utterances      []meeting.Utterance
	AudioDurationMs int
	Language        string
}

// Pipeline wires the providers and audio primitives C9 drives.
type Pipeline struct {
	Diarizer  providers.Diarizer
	Toolkit   *audio.Toolkit
	VAD       *audio.VAD
	Extractor *audio.Extractor
	Store     vectorstore.Store
	Sessions  *meeting.Store
	Pool      *workerpool.Pool
	WorkDir   string

	inflight sync.Map // deviceID -> struct{}
}

// Run executes one identification job for deviceID over the already-saved
// upload at uploadPath, writing events to events until a terminal event is
// sent, then closes events. Closing lets a caller whose reader has stopped
// (e.g. a disconnected SSE client) drain events to completion instead of
// blocking on it forever: Run is the only closer, and it closes only after
// both itself and the heartbeat goroutine have stopped sending. Run removes
// uploadPath itself on every path: on success the transcoded copy
// (uploadPath + ".16k.wav") becomes the session's audio_path and the
// upload is deleted; on failure the upload is deleted. Each speaker's
// stitched file is deleted as soon as its embedding has been computed.
func (p *Pipeline) Run(ctx context.Context, deviceID, uploadPath string, events chan<- Event) {
	defer close(events)

	if _, alreadyRunning := p.inflight.LoadOrStore(deviceID, struct{}{}); alreadyRunning {
		events <- Event{Type: EventError, Err: apperr.Busy("an identification job is already running for this device")}
		return
	}
	defer p.inflight.Delete(deviceID)

	heartbeatDone := make(chan struct{})
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go func() {
		defer heartbeatWG.Done()
		p.runHeartbeat(heartbeatDone, events)
	}()
	defer func() {
		close(heartbeatDone)
		heartbeatWG.Wait()
	}()

	meetingID, err := p.run(ctx, deviceID, uploadPath, events)
	if err != nil {
		os.Remove(uploadPath)
		log.Error().Err(err).Str("device_id", deviceID).Msg("identification job failed")
		events <- Event{Type: EventError, Err: err}
		return
	}
	log.Info().Str("meeting_id", meetingID).Str("device_id", deviceID).Msg("identification job completed")
}

// Busy reports whether a job is already running for deviceID, letting the
// HTTP handler reject a second request before committing to an SSE stream
// rather than only discovering it after headers are already sent.
func (p *Pipeline) Busy(deviceID string) bool {
	_, running := p.inflight.Load(deviceID)
	return running
}

func (p *Pipeline) runHeartbeat(done <-chan struct{}, events chan<- Event) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			events <- Event{Type: EventHeartbeat}
		case <-done:
			return
		}
	}
}

func (p *Pipeline) run(ctx context.Context, deviceID, uploadPath string, events chan<- Event) (string, error) {
	emit := func(stage, message string) {
		events <- Event{Type: EventProgress, Stage: stage, Message: message}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	emit(StageTranscribing, "requesting diarized transcript")
	var diarization providers.DiarizationResult
	err := workerpool.Submit(ctx, p.Pool, func() error {
		var diarizeErr error
		diarization, diarizeErr = p.Diarizer.Diarize(ctx, uploadPath)
		return diarizeErr
	})
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	emit(StageConverting, "converting to 16kHz mono")
	wavPath := uploadPath + ".16k.wav"
	err = workerpool.Submit(ctx, p.Pool, func() error {
		return p.Toolkit.ToWav16kMono(ctx, uploadPath, wavPath)
	})
	if err != nil {
		return "", fmt.Errorf("transcode upload: %w", err)
	}

	durationMs, err := p.Toolkit.ProbeDurationMs(ctx, wavPath)
	if err != nil {
		return "", fmt.Errorf("probe transcoded duration: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(wavPath)
		return "", err
	}

	speakerUtterances := groupBySpeaker(diarization.Utterances)
	labels := make([]string, 0, len(speakerUtterances))
	for label := range speakerUtterances {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	emit(StageAnalyzing, "selecting and embedding speaker audio")
	selections := make(map[string]selection.Result, len(labels))
	embeddings := make(map[string][]float32, len(labels))

	for _, label := range labels {
		label := label
		utterances := toSelectionUtterances(speakerUtterances[label])

		var selResult selection.Result
		err := workerpool.Submit(ctx, p.Pool, func() error {
			var selErr error
			selResult, selErr = selection.Select(ctx, p.Toolkit, p.VAD, wavPath, utterances, p.WorkDir, label)
			return selErr
		})
		if err != nil {
			os.Remove(wavPath)
			return "", fmt.Errorf("select segments for speaker %s: %w", label, err)
		}
		selections[label] = selResult

		if selResult.StitchedWavPath == "" {
			embeddings[label] = nil
			continue
		}

		var embedding []float32
		err = workerpool.Submit(ctx, p.Pool, func() error {
			samples, _, readErr := audio.ReadWav(selResult.StitchedWavPath)
			if readErr != nil {
				return readErr
			}
			var embedErr error
			embedding, embedErr = p.Extractor.Embed(samples)
			return embedErr
		})
		os.Remove(selResult.StitchedWavPath)
		if err != nil {
			if _, isApperr := apperr.As(err); !isApperr {
				os.Remove(wavPath)
				return "", fmt.Errorf("embed speaker %s: %w", label, err)
			}
			embedding = nil
		}
		embeddings[label] = embedding

		if err := ctx.Err(); err != nil {
			os.Remove(wavPath)
			return "", err
		}
	}

	emit(StageMatching, "matching against enrolled voiceprints")
	embeddingList := make([][]float32, len(labels))
	for i, label := range labels {
		embeddingList[i] = embeddings[label]
	}
	matchResults, err := matching.Match(ctx, p.Store, labels, embeddingList)
	if err != nil {
		os.Remove(wavPath)
		return "", fmt.Errorf("match speakers: %w", err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(wavPath)
		return "", err
	}

	meetingID, err := meeting.NewMeetingID()
	if err != nil {
		os.Remove(wavPath)
		return "", fmt.Errorf("generate meeting id: %w", err)
	}

	speakers := make(map[string]meeting.SpeakerEntry, len(labels))
	pending := make(map[string]struct{})
	speakerSegments := make(map[string][]meeting.Segment, len(labels))
	speakerEmbeddings := make(map[string][]float32, len(labels))
	for _, label := range labels {
		entry := meeting.SpeakerEntry{
			Result:     matchResults[label],
			LowQuality: selections[label].LowQuality,
		}
		speakers[label] = entry
		speakerEmbeddings[label] = embeddings[label]
		speakerSegments[label] = toMeetingSegments(selections[label].Segments)
		if entry.Confidence != matching.ConfidenceHigh {
			pending[label] = struct{}{}
		}
	}

	utterances := make([]meeting.Utterance, len(diarization.Utterances))
	for i, u := range diarization.Utterances {
		utterances[i] = meeting.Utterance{
			SpeakerLabel: u.SpeakerLabel,
			Text:         u.Text,
			StartMs:      u.StartMs,
			EndMs:        u.EndMs,
		}
	}

	session := &meeting.Session{
		MeetingID:         meetingID,
		DeviceID:          deviceID,
		AudioPath:         wavPath,
		CreatedAt:         time.Now(),
		Speakers:          speakers,
		SpeakerEmbeddings: speakerEmbeddings,
		SpeakerSegments:   speakerSegments,
		Utterances:        utterances,
		AudioDurationMs:   durationMs,
		PendingSpeakers:   pending,
		HandledSpeakers:   map[string]struct{}{},
	}
	p.Sessions.Create(session)
	os.Remove(uploadPath)

	events <- Event{
		Type: EventDone,
		Done: &DoneEvent{
			MeetingID:       meetingID,
			Speakers:        speakers,
			Utterances:      utterances,
			AudioDurationMs: durationMs,
			Language:        diarization.Language,
		},
	}
	return meetingID, nil
}

func groupBySpeaker(utterances []providers.DiarizedUtterance) map[string][]providers.DiarizedUtterance {
	grouped := make(map[string][]providers.DiarizedUtterance)
	for _, u := range utterances {
		grouped[u.SpeakerLabel] = append(grouped[u.SpeakerLabel], u)
	}
	return grouped
}

func toSelectionUtterances(utterances []providers.DiarizedUtterance) []selection.Utterance {
	out := make([]selection.Utterance, len(utterances))
	for i, u := range utterances {
		out[i] = selection.Utterance{StartMs: u.StartMs, EndMs: u.EndMs}
	}
	return out
}

func toMeetingSegments(segments []selection.Segment) []meeting.Segment {
	out := make([]meeting.Segment, len(segments))
	for i, s := range segments {
		out[i] = meeting.Segment{StartMs: s.StartMs, EndMs: s.EndMs}
	}
	return out
}

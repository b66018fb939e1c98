// Package summary implements meeting summarization: resolving a finished
// session's utterances to display names and handing the named transcript to
// the summary provider.
package summary

import (
	"context"

	"speakerid/internal/apperr"
	"speakerid/internal/meeting"
	"speakerid/internal/providers"
)

// Service wires the session store and summarization provider.
type Service struct {
	Sessions   *meeting.Store
	Summarizer providers.Summarizer
}

// New returns a Service.
func New(sessions *meeting.Store, summarizer providers.Summarizer) *Service {
	return &Service{Sessions: sessions, Summarizer: summarizer}
}

// Summarize builds a speaker-named transcript for meetingID and returns its
// summary, calling the provider once and caching the result on the session.
// A session that already has a summary returns it without a provider call,
// matching the idempotent semantics cleanup_if_complete relies on.
func (s *Service) Summarize(ctx context.Context, meetingID string) (*meeting.Summary, error) {
	snapshot, ok := s.Sessions.Snapshot(meetingID)
	if !ok {
		return nil, apperr.NotFound("no session %q", meetingID)
	}
	if snapshot.Summary != nil {
		return snapshot.Summary, nil
	}

	result, err := s.Summarizer.Summarize(ctx, namedTranscript(snapshot))
	if err != nil {
		return nil, err
	}

	out := &meeting.Summary{
		Text:        result.Text,
		KeyPoints:   result.KeyPoints,
		ActionItems: result.ActionItems,
	}
	if err := s.Sessions.SetSummary(meetingID, out); err != nil {
		return nil, err
	}
	s.Sessions.CleanupIfComplete(meetingID)
	return out, nil
}

// namedTranscript resolves each utterance's diarized label to its assigned
// name where one has already been confirmed, falling back to the raw label
// otherwise, the same way the teacher's batch dialogue builder resolves
// display names before handing a transcript to a summarizer.
func namedTranscript(snapshot meeting.SessionSnapshot) []providers.SpeakerSummaryInput {
	out := make([]providers.SpeakerSummaryInput, len(snapshot.Utterances))
	for i, u := range snapshot.Utterances {
		name := u.SpeakerLabel
		if entry, ok := snapshot.Speakers[u.SpeakerLabel]; ok && entry.AssignedName != "" {
			name = entry.AssignedName
		}
		out[i] = providers.SpeakerSummaryInput{
			SpeakerName: name,
			Text:        u.Text,
			StartMs:     u.StartMs,
			EndMs:       u.EndMs,
		}
	}
	return out
}

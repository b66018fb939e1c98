// Package confirm implements the confirmation and enroll-from-meeting
// operations (C10): turning a pending medium-confidence diarized speaker
// into a handled, high-confidence identity, optionally reinforcing the
// voiceprint registry from the meeting's own audio.
package confirm

import (
	"context"

	"speakerid/internal/apperr"
	"speakerid/internal/matching"
	"speakerid/internal/meeting"
	"speakerid/internal/voiceprint"
)

// Service wires the session store and voiceprint registry the two
// operations need.
type Service struct {
	Sessions     *meeting.Store
	Registry     *voiceprint.Registry
	EnrollWeight int
}

// New returns a Service with the spec's reinforcement weight of 1 per call.
func New(sessions *meeting.Store, registry *voiceprint.Registry) *Service {
	return &Service{Sessions: sessions, Registry: registry, EnrollWeight: 1}
}

// ConfirmSpeaker resolves a pending medium-confidence label to confirmedName.
// If enroll is true and the label's selection was not low_quality, the
// stored embedding reinforces the registry entry for confirmedName.
func (s *Service) ConfirmSpeaker(ctx context.Context, meetingID, label, confirmedName string, enroll bool) error {
	if !s.Sessions.IsPending(meetingID, label) {
		if _, ok := s.Sessions.Get(meetingID); !ok {
			return apperr.NotFound("no session %q", meetingID)
		}
		return apperr.InvalidInput("speaker %q is not pending confirmation", label)
	}
	entry, ok := s.Sessions.SpeakerEntry(meetingID, label)
	if !ok {
		return apperr.NotFound("no speaker %q in session %q", label, meetingID)
	}
	if entry.Confidence != matching.ConfidenceMedium {
		return apperr.InvalidInput("speaker %q has confidence %q, confirmation requires medium", label, entry.Confidence)
	}

	if enroll && !entry.LowQuality {
		embedding, _ := s.Sessions.Embedding(meetingID, label)
		if _, err := s.Registry.EnrollEmbedding(ctx, confirmedName, embedding, s.EnrollWeight); err != nil {
			return err
		}
	}

	entry.AssignedName = confirmedName
	entry.Confidence = matching.ConfidenceHigh
	if err := s.Sessions.UpdateSpeaker(meetingID, label, entry); err != nil {
		return err
	}
	if err := s.Sessions.MarkHandled(meetingID, label); err != nil {
		return err
	}

	s.Sessions.CleanupIfComplete(meetingID)
	return nil
}

// EnrollFromMeeting registers name directly from a meeting's stored
// embedding for label, requiring the selection not be low_quality.
func (s *Service) EnrollFromMeeting(ctx context.Context, meetingID, label, name string) error {
	entry, ok := s.Sessions.SpeakerEntry(meetingID, label)
	if !ok {
		return apperr.NotFound("no speaker %q in session %q", label, meetingID)
	}
	if entry.LowQuality {
		return apperr.InsufficientSpeech("speaker %q audio quality is too low to enroll", label)
	}

	embedding, _ := s.Sessions.Embedding(meetingID, label)
	if _, err := s.Registry.EnrollEmbedding(ctx, name, embedding, s.EnrollWeight); err != nil {
		return err
	}

	entry.AssignedName = name
	entry.Confidence = matching.ConfidenceHigh
	if err := s.Sessions.UpdateSpeaker(meetingID, label, entry); err != nil {
		return err
	}
	if err := s.Sessions.MarkHandled(meetingID, label); err != nil {
		return err
	}

	s.Sessions.CleanupIfComplete(meetingID)
	return nil
}

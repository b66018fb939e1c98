package meeting

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"
)

// Store is the single in-memory mapping meeting_id -> *Session. All
// operations are short and run under one mutex, per the concurrency model:
// the only I/O done while holding the lock is unlinking a removed
// session's audio file, and no operation does network I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewStore returns an empty store with the given session TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: map[string]*Session{}, ttl: ttl}
}

// NewMeetingID returns a 128-bit random identifier rendered as 32 hex
// characters.
func NewMeetingID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate meeting id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create stores a freshly-built session, first unconditionally cleaning up
// any prior session owned by the same non-empty device identifier.
// Sessions with an empty device identifier are never cleaned up this way.
func (s *Store) Create(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.sessions {
		if existing.DeviceID != "" && existing.DeviceID == session.DeviceID {
			s.deleteLocked(id)
		}
	}
	s.sessions[session.MeetingID] = session
}

// Get returns a session by id.
func (s *Store) Get(meetingID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[meetingID]
	return session, ok
}

// Delete removes a session and unlinks its audio artifact.
func (s *Store) Delete(meetingID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(meetingID)
}

func (s *Store) deleteLocked(meetingID string) {
	session, ok := s.sessions[meetingID]
	if !ok {
		return
	}
	if session.AudioPath != "" {
		os.Remove(session.AudioPath)
	}
	delete(s.sessions, meetingID)
}

// MarkHandled moves label from pending to handled.
func (s *Store) MarkHandled(meetingID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return fmt.Errorf("session %s not found", meetingID)
	}
	delete(session.PendingSpeakers, label)
	session.HandledSpeakers[label] = struct{}{}
	return nil
}

// SpeakerEntry returns one speaker's matching result for a session.
func (s *Store) SpeakerEntry(meetingID, label string) (SpeakerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return SpeakerEntry{}, false
	}
	entry, ok := session.Speakers[label]
	return entry, ok
}

// IsPending reports whether label is still in a session's pending set.
func (s *Store) IsPending(meetingID, label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return false
	}
	_, pending := session.PendingSpeakers[label]
	return pending
}

// Embedding returns the stored embedding for one diarized speaker.
func (s *Store) Embedding(meetingID, label string) ([]float32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return nil, false
	}
	embedding, ok := session.SpeakerEmbeddings[label]
	return embedding, ok
}

// AudioPathAndSegments returns a session's stitched-source audio path and
// one speaker's chosen segments, for the clip service.
func (s *Store) AudioPathAndSegments(meetingID, label string) (audioPath string, segments []Segment, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[meetingID]
	if !exists {
		return "", nil, false
	}
	segs, hasLabel := session.SpeakerSegments[label]
	if !hasLabel {
		return "", nil, false
	}
	return session.AudioPath, segs, true
}

// UpdateSpeaker replaces a session's entry for label under the store's lock,
// used by the confirmation/enrollment operations to avoid mutating a
// *Session returned by Get outside of store synchronization.
func (s *Store) UpdateSpeaker(meetingID, label string, entry SpeakerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return fmt.Errorf("session %s not found", meetingID)
	}
	session.Speakers[label] = entry
	return nil
}

// Snapshot returns a copied, race-free view of a session for read paths
// outside the store (the HTTP API, the summarizer), which must never read
// a *Session's fields without the store's lock held.
func (s *Store) Snapshot(meetingID string) (SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return SessionSnapshot{}, false
	}

	speakers := make(map[string]SpeakerEntry, len(session.Speakers))
	for label, entry := range session.Speakers {
		speakers[label] = entry
	}
	pending := make([]string, 0, len(session.PendingSpeakers))
	for label := range session.PendingSpeakers {
		pending = append(pending, label)
	}
	handled := make([]string, 0, len(session.HandledSpeakers))
	for label := range session.HandledSpeakers {
		handled = append(handled, label)
	}

	return SessionSnapshot{
		MeetingID:       session.MeetingID,
		DeviceID:        session.DeviceID,
		CreatedAt:       session.CreatedAt,
		Speakers:        speakers,
		Utterances:      append([]Utterance(nil), session.Utterances...),
		AudioDurationMs: session.AudioDurationMs,
		PendingSpeakers: pending,
		HandledSpeakers: handled,
		Summary:         session.Summary,
	}, true
}

// SetSummary attaches the completed summary to a session.
func (s *Store) SetSummary(meetingID string, summary *Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return fmt.Errorf("session %s not found", meetingID)
	}
	session.Summary = summary
	return nil
}

// CleanupIfComplete deletes the session and returns true iff its pending
// set is empty and its summary has arrived.
func (s *Store) CleanupIfComplete(meetingID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[meetingID]
	if !ok {
		return false
	}
	if len(session.PendingSpeakers) == 0 && session.Summary != nil {
		s.deleteLocked(meetingID)
		return true
	}
	return false
}

// SweepExpired deletes every session older than ttl as of now.
func (s *Store) SweepExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if now.Sub(session.CreatedAt) >= s.ttl {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed
}

// RunSweeper starts a background goroutine that calls SweepExpired on the
// given interval until stop is closed.
func (s *Store) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepExpired(time.Now())
			case <-stop:
				return
			}
		}
	}()
}

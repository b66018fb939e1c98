// Package meeting implements the in-memory session store (C8): meeting
// lifecycle, TTL expiry, and pending/handled speaker tracking.
package meeting

import (
	"time"

	"speakerid/internal/matching"
)

// Utterance is one provider-diarized turn.
type Utterance struct {
	SpeakerLabel string
	Text         string
	StartMs      int
	EndMs        int
}

// Segment is a (start,end) millisecond range chosen for a speaker during
// selection.
type Segment struct {
	StartMs int
	EndMs   int
}

// SpeakerEntry is a diarized speaker's matching outcome plus the quality
// flag the selector computed for it.
type SpeakerEntry struct {
	matching.Result
	LowQuality bool
}

// Session is one completed identification's server-side state.
type Session struct {
	MeetingID        string
	DeviceID         string
	AudioPath        string
	CreatedAt        time.Time
	Speakers         map[string]SpeakerEntry
	SpeakerEmbeddings map[string][]float32
	SpeakerSegments   map[string][]Segment
	Utterances        []Utterance
	AudioDurationMs   int
	PendingSpeakers   map[string]struct{}
	HandledSpeakers   map[string]struct{}
	Summary           *Summary
}

// Summary is the structured object returned by the summarization provider.
type Summary struct {
	Text       string
	KeyPoints  []string
	ActionItems []string
}

// SessionSnapshot is a point-in-time, race-free copy of a session's
// externally-visible state, returned by Store.Snapshot for read paths (the
// HTTP API, the summarizer) that must not read a *Session's fields outside
// the store's lock.
type SessionSnapshot struct {
	MeetingID       string
	DeviceID        string
	CreatedAt       time.Time
	Speakers        map[string]SpeakerEntry
	Utterances      []Utterance
	AudioDurationMs int
	PendingSpeakers []string
	HandledSpeakers []string
	Summary         *Summary
}

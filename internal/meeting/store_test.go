package meeting

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newSession(t *testing.T, id, deviceID string) *Session {
	t.Helper()
	return &Session{
		MeetingID:       id,
		DeviceID:        deviceID,
		CreatedAt:       time.Now(),
		PendingSpeakers: map[string]struct{}{"A": {}},
		HandledSpeakers: map[string]struct{}{},
	}
}

func TestPendingHandledDisjointOnCreate(t *testing.T) {
	s := NewStore(time.Hour)
	session := newSession(t, "m1", "dev1")
	session.PendingSpeakers = map[string]struct{}{"A": {}, "B": {}}
	s.Create(session)

	got, ok := s.Get("m1")
	if !ok {
		t.Fatalf("expected session to exist")
	}
	for label := range got.PendingSpeakers {
		if _, inHandled := got.HandledSpeakers[label]; inHandled {
			t.Fatalf("label %s present in both pending and handled", label)
		}
	}
}

func TestNewIdentificationForSameDeviceCleansUpPrior(t *testing.T) {
	s := NewStore(time.Hour)

	tmp := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(tmp, []byte("x"), 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}

	first := newSession(t, "m1", "dev1")
	first.AudioPath = tmp
	s.Create(first)

	second := newSession(t, "m2", "dev1")
	s.Create(second)

	if _, ok := s.Get("m1"); ok {
		t.Fatalf("expected prior session for same device to be cleaned up")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("expected prior session's audio file to be removed")
	}
	if _, ok := s.Get("m2"); !ok {
		t.Fatalf("expected new session to exist")
	}
}

func TestCleanupIfCompleteRequiresEmptyPendingAndSummary(t *testing.T) {
	s := NewStore(time.Hour)
	session := newSession(t, "m1", "dev1")
	s.Create(session)

	if s.CleanupIfComplete("m1") {
		t.Fatalf("expected no cleanup: pending not empty and no summary")
	}

	if err := s.MarkHandled("m1", "A"); err != nil {
		t.Fatalf("MarkHandled: %v", err)
	}
	if s.CleanupIfComplete("m1") {
		t.Fatalf("expected no cleanup: no summary yet")
	}

	if err := s.SetSummary("m1", &Summary{Text: "done"}); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if !s.CleanupIfComplete("m1") {
		t.Fatalf("expected cleanup once pending empty and summary set")
	}
	if _, ok := s.Get("m1"); ok {
		t.Fatalf("expected session removed after cleanup")
	}
}

func TestSweepExpiredRemovesOldSessions(t *testing.T) {
	s := NewStore(time.Hour)
	session := newSession(t, "m1", "dev1")
	session.CreatedAt = time.Now().Add(-2 * time.Hour)
	s.Create(session)

	removed := s.SweepExpired(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 session removed, got %d", removed)
	}
	if _, ok := s.Get("m1"); ok {
		t.Fatalf("expected expired session removed")
	}
}

func TestMeetingIDIs32HexChars(t *testing.T) {
	id, err := NewMeetingID()
	if err != nil {
		t.Fatalf("NewMeetingID: %v", err)
	}
	if len(id) != 32 {
		t.Fatalf("expected 32 hex chars, got %d: %q", len(id), id)
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("expected hex chars only, got %q", id)
		}
	}
}

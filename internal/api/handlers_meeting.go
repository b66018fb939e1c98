package api

import (
	"io"
	"net/http"
	"os"

	"speakerid/internal/apperr"
)

// handleMeetingSnapshot implements GET /api/meeting/{id}.
func (s *Server) handleMeetingSnapshot(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	snapshot, ok := s.Sessions.Snapshot(meetingID)
	if !ok {
		writeError(w, apperr.NotFound("no session %q", meetingID))
		return
	}
	writeJSON(w, http.StatusOK, toSessionSnapshotJSON(snapshot))
}

// handleMeetingCleanup implements POST /api/meeting/{id}/cleanup, an
// explicit early release of a session's resources ahead of its TTL sweep.
func (s *Server) handleMeetingCleanup(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	if _, ok := s.Sessions.Get(meetingID); !ok {
		writeError(w, apperr.NotFound("no session %q", meetingID))
		return
	}
	s.Sessions.Delete(meetingID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMeetingSummary implements POST /api/meeting/{id}/summary.
func (s *Server) handleMeetingSummary(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	result, err := s.Summary.Summarize(r.Context(), meetingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": toSummaryJSON(result)})
}

// handleSpeakerClip implements GET /api/meeting/{id}/speaker/{label}/clip.
func (s *Server) handleSpeakerClip(w http.ResponseWriter, r *http.Request) {
	meetingID := r.PathValue("id")
	label := r.PathValue("label")

	clipPath, err := s.Clip.BuildClip(r.Context(), meetingID, label)
	if err != nil {
		writeError(w, err)
		return
	}
	defer os.Remove(clipPath)

	file, err := os.Open(clipPath)
	if err != nil {
		writeError(w, apperr.Internal(err, "failed to open generated clip"))
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "audio/wav")
	if _, err := io.Copy(w, file); err != nil {
		return
	}
}

// handleConfirmSpeaker implements POST /api/confirm-speaker.
func (s *Server) handleConfirmSpeaker(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperr.InvalidInput("failed to parse form: %v", err))
		return
	}

	meetingID := r.FormValue("meeting_id")
	label := r.FormValue("speaker_id")
	confirmedName := r.FormValue("confirmed_name")
	enroll := r.FormValue("enroll") == "true" || r.FormValue("enroll") == "1"
	if meetingID == "" || label == "" || confirmedName == "" {
		writeError(w, apperr.InvalidInput("meeting_id, speaker_id, and confirmed_name are required"))
		return
	}

	if err := s.Confirm.ConfirmSpeaker(r.Context(), meetingID, label, confirmedName, enroll); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

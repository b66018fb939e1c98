package api

import (
	"net/http"
	"os"

	"speakerid/internal/apperr"
)

// handleEnroll implements POST /api/enroll: multipart name+audio directly
// into the voiceprint registry at the spec's direct-enrollment weight of 2.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	if name == "" {
		writeError(w, apperr.InvalidInput("missing required field \"name\""))
		return
	}

	audioPath, err := s.saveUpload(r, "audio")
	if err != nil {
		writeError(w, err)
		return
	}
	defer os.Remove(audioPath)

	sampleCount, warning, err := s.Registry.Enroll(r.Context(), name, audioPath, directEnrollWeight)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"speaker": name, "total_samples": sampleCount}
	if warning != "" {
		resp["warning"] = warning
	}
	writeJSON(w, http.StatusOK, resp)
}

// directEnrollWeight is the update weight applied to a fresh direct
// enrollment, twice a meeting-reinforcement weight of 1 because callers of
// /api/enroll already invested in recording a dedicated sample.
const directEnrollWeight = 2

// handleEnrollFromMeeting implements POST /api/enroll-from-meeting: form
// fields meeting_id, speaker_id, speaker_name, reusing a diarized speaker's
// already-computed embedding instead of re-recording.
func (s *Server) handleEnrollFromMeeting(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, apperr.InvalidInput("failed to parse form: %v", err))
		return
	}

	meetingID := r.FormValue("meeting_id")
	label := r.FormValue("speaker_id")
	name := r.FormValue("speaker_name")
	if meetingID == "" || label == "" || name == "" {
		writeError(w, apperr.InvalidInput("meeting_id, speaker_id, and speaker_name are required"))
		return
	}

	if err := s.Confirm.EnrollFromMeeting(r.Context(), meetingID, label, name); err != nil {
		writeError(w, err)
		return
	}

	voiceprint, err := s.Registry.Get(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"speaker": name, "total_samples": voiceprint.SampleCount})
}

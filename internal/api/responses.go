package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/rs/zerolog/log"

	"speakerid/internal/apperr"
	"speakerid/internal/matching"
	"speakerid/internal/meeting"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
	}
}

// writeError translates err to the wire error shape using apperr's kind ->
// status mapping, falling back to 500 for anything not carrying a *apperr.Error.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		log.Error().Err(err).Msg("unclassified error returned from handler")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if appErr.Kind == apperr.KindInternal {
		log.Error().Err(err).Msg("internal error")
	}
	writeJSON(w, apperr.HTTPStatus(appErr.Kind), map[string]string{"error": appErr.Message})
}

type speakerJSON struct {
	Label        string              `json:"label"`
	AssignedName string              `json:"assigned_name,omitempty"`
	Confidence   string              `json:"confidence"`
	TopScore     float32             `json:"top_score"`
	Margin       float32             `json:"margin"`
	LowQuality   bool                `json:"low_quality"`
	Candidates   []matching.Candidate `json:"candidates,omitempty"`
}

func toSpeakerList(speakers map[string]meeting.SpeakerEntry) []speakerJSON {
	labels := make([]string, 0, len(speakers))
	for label := range speakers {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make([]speakerJSON, len(labels))
	for i, label := range labels {
		entry := speakers[label]
		out[i] = speakerJSON{
			Label:        label,
			AssignedName: entry.AssignedName,
			Confidence:   entry.Confidence,
			TopScore:     entry.TopScore,
			Margin:       entry.Margin,
			LowQuality:   entry.LowQuality,
			Candidates:   entry.Candidates,
		}
	}
	return out
}

type utteranceJSON struct {
	SpeakerLabel string `json:"speaker_label"`
	Text         string `json:"text"`
	StartMs      int    `json:"start_ms"`
	EndMs        int    `json:"end_ms"`
}

func toUtteranceList(utterances []meeting.Utterance) []utteranceJSON {
	out := make([]utteranceJSON, len(utterances))
	for i, u := range utterances {
		out[i] = utteranceJSON{SpeakerLabel: u.SpeakerLabel, Text: u.Text, StartMs: u.StartMs, EndMs: u.EndMs}
	}
	return out
}

type summaryJSON struct {
	Text        string   `json:"text"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

func toSummaryJSON(s *meeting.Summary) *summaryJSON {
	if s == nil {
		return nil
	}
	return &summaryJSON{Text: s.Text, KeyPoints: s.KeyPoints, ActionItems: s.ActionItems}
}

type sessionSnapshotJSON struct {
	MeetingID       string          `json:"meeting_id"`
	DeviceID        string          `json:"device_id,omitempty"`
	Speakers        []speakerJSON   `json:"speakers"`
	Utterances      []utteranceJSON `json:"utterances"`
	AudioDurationMs int             `json:"audio_duration_ms"`
	PendingSpeakers []string        `json:"pending_speakers"`
	HandledSpeakers []string        `json:"handled_speakers"`
	Summary         *summaryJSON    `json:"summary,omitempty"`
}

func toSessionSnapshotJSON(s meeting.SessionSnapshot) sessionSnapshotJSON {
	pending := s.PendingSpeakers
	sort.Strings(pending)
	handled := s.HandledSpeakers
	sort.Strings(handled)

	return sessionSnapshotJSON{
		MeetingID:       s.MeetingID,
		DeviceID:        s.DeviceID,
		Speakers:        toSpeakerList(s.Speakers),
		Utterances:      toUtteranceList(s.Utterances),
		AudioDurationMs: s.AudioDurationMs,
		PendingSpeakers: pending,
		HandledSpeakers: handled,
		Summary:         toSummaryJSON(s.Summary),
	}
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"speakerid/internal/apperr"
	"speakerid/internal/identify"
)

// eventChanBuffer absorbs progress/heartbeat events between a handler's
// writes so the pipeline never blocks on a slow client for one frame.
const eventChanBuffer = 8

// handleIdentify implements POST /api/identify: a multipart audio upload
// streamed back as SSE frames per the job's event contract (§4.9).
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	device := deviceID(r)
	if s.Pipeline.Busy(device) {
		writeError(w, apperr.Busy("an identification job is already running for this device"))
		return
	}

	uploadPath, err := s.saveUpload(r, "audio")
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		os.Remove(uploadPath)
		writeError(w, apperr.Internal(nil, "streaming unsupported by response writer"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan identify.Event, eventChanBuffer)
	go s.Pipeline.Run(r.Context(), device, uploadPath, events)

	for {
		select {
		case ev := <-events:
			writeSSEEvent(w, ev)
			flusher.Flush()
			if ev.Type == identify.EventDone || ev.Type == identify.EventError {
				return
			}
		case <-r.Context().Done():
			// The pipeline may still be writing to events; keep draining in
			// the background until Run closes the channel, so its abort
			// path never blocks on a reader nobody is running anymore.
			go drainEvents(events)
			return
		}
	}
}

func drainEvents(events <-chan identify.Event) {
	for range events {
	}
}

func writeSSEEvent(w http.ResponseWriter, ev identify.Event) {
	switch ev.Type {
	case identify.EventHeartbeat:
		fmt.Fprint(w, ": heartbeat\n\n")
	case identify.EventProgress:
		data, _ := json.Marshal(map[string]string{"stage": ev.Stage, "message": ev.Message})
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	case identify.EventDone:
		data, _ := json.Marshal(map[string]any{
			"meeting_id":        ev.Done.MeetingID,
			"speakers":          toSpeakerList(ev.Done.Speakers),
			"utterances":        toUtteranceList(ev.Done.Utterances),
			"audio_duration_ms": ev.Done.AudioDurationMs,
			"language":          ev.Done.Language,
		})
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
	case identify.EventError:
		message := "identification failed"
		if ev.Err != nil {
			message = ev.Err.Error()
		}
		data, _ := json.Marshal(map[string]string{"message": message})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	}
}

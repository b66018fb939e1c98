package api

import (
	"net/http"
	"sort"
)

// speakerListEntry is one row of /api/speakers's {speakers:[...]} response.
type speakerListEntry struct {
	Name    string `json:"name"`
	Samples int    `json:"samples"`
}

// handleListSpeakers implements GET /api/speakers, read from the local
// mirror rather than the vector store for latency.
func (s *Server) handleListSpeakers(w http.ResponseWriter, r *http.Request) {
	counts := s.Registry.ListAll()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]speakerListEntry, len(names))
	for i, name := range names {
		entries[i] = speakerListEntry{Name: name, Samples: counts[name]}
	}
	writeJSON(w, http.StatusOK, map[string]any{"speakers": entries})
}

// handleDeleteSpeaker implements DELETE /api/speakers/{name}.
func (s *Server) handleDeleteSpeaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.Registry.Delete(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSyncSpeakers implements POST /api/speakers/sync: rebuild the local
// mirror from the vector store's own list_all.
func (s *Server) handleSyncSpeakers(w http.ResponseWriter, r *http.Request) {
	count, err := s.Registry.SyncFromStore(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// Package api implements the HTTP+SSE transport (§6): the endpoint table
// wired directly onto the identification pipeline, voiceprint registry,
// session store, confirmation, clip, and summarization services. Routing
// is plain net/http — no router framework — matching the teacher's own
// transport layer, which never reaches for one either.
package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"speakerid/internal/apperr"
	"speakerid/internal/clip"
	"speakerid/internal/confirm"
	"speakerid/internal/identify"
	"speakerid/internal/meeting"
	"speakerid/internal/summary"
	"speakerid/internal/voiceprint"
)

// maxUploadBytes bounds the multipart body the server will parse into
// memory/temp files for one request.
const maxUploadBytes = 200 << 20 // 200MB

// Server wires every domain service the endpoint table needs behind plain
// net/http handlers.
type Server struct {
	Pipeline *identify.Pipeline
	Registry *voiceprint.Registry
	Sessions *meeting.Store
	Confirm  *confirm.Service
	Clip     *clip.Service
	Summary  *summary.Service

	DataDir string

	mux *http.ServeMux
}

// NewServer builds a Server and registers its routes.
func NewServer(pipeline *identify.Pipeline, registry *voiceprint.Registry, sessions *meeting.Store, confirmSvc *confirm.Service, clipSvc *clip.Service, summarySvc *summary.Service, dataDir string) *Server {
	s := &Server{
		Pipeline: pipeline,
		Registry: registry,
		Sessions: sessions,
		Confirm:  confirmSvc,
		Clip:     clipSvc,
		Summary:  summarySvc,
		DataDir:  dataDir,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/enroll", s.handleEnroll)
	s.mux.HandleFunc("POST /api/enroll-from-meeting", s.handleEnrollFromMeeting)
	s.mux.HandleFunc("POST /api/identify", s.handleIdentify)
	s.mux.HandleFunc("GET /api/meeting/{id}", s.handleMeetingSnapshot)
	s.mux.HandleFunc("GET /api/meeting/{id}/speaker/{label}/clip", s.handleSpeakerClip)
	s.mux.HandleFunc("POST /api/meeting/{id}/cleanup", s.handleMeetingCleanup)
	s.mux.HandleFunc("POST /api/meeting/{id}/summary", s.handleMeetingSummary)
	s.mux.HandleFunc("POST /api/confirm-speaker", s.handleConfirmSpeaker)
	s.mux.HandleFunc("GET /api/speakers", s.handleListSpeakers)
	s.mux.HandleFunc("DELETE /api/speakers/{name}", s.handleDeleteSpeaker)
	s.mux.HandleFunc("POST /api/speakers/sync", s.handleSyncSpeakers)
}

// Handler returns the server's top-level http.Handler, with CORS applied
// to every route the same way regardless of outcome.
func (s *Server) Handler() http.Handler {
	return withCORS(s.mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deviceID(r *http.Request) string {
	return r.Header.Get("X-Device-ID")
}

// saveUpload copies the named multipart field to a fresh file under the
// server's data directory and returns its path. The caller owns removing
// it once done.
func (s *Server) saveUpload(r *http.Request, field string) (string, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return "", apperr.InvalidInput("failed to parse multipart body: %v", err)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", apperr.InvalidInput("missing multipart field %q", field)
	}
	defer file.Close()

	uploadDir := filepath.Join(s.DataDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", apperr.Internal(err, "failed to create upload directory")
	}

	dest := filepath.Join(uploadDir, uuid.NewString()+filepath.Ext(header.Filename))
	out, err := os.Create(dest)
	if err != nil {
		return "", apperr.Internal(err, "failed to create upload file")
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(dest)
		return "", apperr.Internal(err, "failed to store upload")
	}
	return dest, nil
}

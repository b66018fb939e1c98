package api

import (
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"speakerid/internal/clip"
	"speakerid/internal/confirm"
	"speakerid/internal/identify"
	"speakerid/internal/matching"
	"speakerid/internal/meeting"
	"speakerid/internal/providers"
	"speakerid/internal/summary"
	"speakerid/internal/vectorstore"
	"speakerid/internal/voiceprint"
	"speakerid/internal/workerpool"
)

type fakeStore struct {
	vectors map[string][]float32
	meta    map[string]vectorstore.Metadata
}

func newFakeStore() *fakeStore {
	return &fakeStore{vectors: map[string][]float32{}, meta: map[string]vectorstore.Metadata{}}
}

func (f *fakeStore) Upsert(_ context.Context, name string, vector []float32, metadata vectorstore.Metadata) error {
	f.vectors[name] = append([]float32(nil), vector...)
	f.meta[name] = metadata
	return nil
}

func (f *fakeStore) Get(_ context.Context, name string) ([]float32, vectorstore.Metadata, bool, error) {
	v, ok := f.vectors[name]
	if !ok {
		return nil, vectorstore.Metadata{}, false, nil
	}
	return v, f.meta[name], true, nil
}

func (f *fakeStore) Delete(_ context.Context, name string) error {
	if _, ok := f.vectors[name]; !ok {
		return nil
	}
	delete(f.vectors, name)
	delete(f.meta, name)
	return nil
}

func (f *fakeStore) Query(context.Context, []float32, int) ([]vectorstore.Match, error) { return nil, nil }

func (f *fakeStore) ListAll(context.Context) ([]vectorstore.Entry, error) {
	out := make([]vectorstore.Entry, 0, len(f.vectors))
	for name, meta := range f.meta {
		out = append(out, vectorstore.Entry{Name: name, Metadata: meta})
	}
	return out, nil
}

type fakeDiarizer struct {
	block chan struct{}
}

func (d *fakeDiarizer) Diarize(ctx context.Context, _ string) (providers.DiarizationResult, error) {
	if d.block == nil {
		return providers.DiarizationResult{}, nil
	}
	select {
	case <-d.block:
	case <-ctx.Done():
	}
	return providers.DiarizationResult{}, ctx.Err()
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(context.Context, []providers.SpeakerSummaryInput) (providers.Summary, error) {
	return providers.Summary{Text: "ok"}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	mirror, err := voiceprint.NewMirror(filepath.Join(t.TempDir(), "mirror.json"))
	if err != nil {
		t.Fatalf("NewMirror: %v", err)
	}
	store := newFakeStore()
	registry := voiceprint.New(store, mirror, nil, nil, nil)
	sessions := meeting.NewStore(time.Hour)
	confirmSvc := confirm.New(sessions, registry)
	clipSvc := &clip.Service{Sessions: sessions, WorkDir: t.TempDir()}
	summarySvc := summary.New(sessions, fakeSummarizer{})

	pipeline := &identify.Pipeline{
		Diarizer: &fakeDiarizer{},
		Store:    store,
		Sessions: sessions,
		Pool:     workerpool.New(2),
		WorkDir:  t.TempDir(),
	}

	return NewServer(pipeline, registry, sessions, confirmSvc, clipSvc, summarySvc, t.TempDir())
}

func TestHandleListSpeakersEmpty(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/speakers", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Speakers []speakerListEntry `json:"speakers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Speakers) != 0 {
		t.Fatalf("expected no speakers, got %+v", body.Speakers)
	}
}

func TestHandleDeleteSpeakerNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/api/speakers/ghost", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleMeetingSnapshotNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/meeting/doesnotexist", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleMeetingSnapshotHappyPath(t *testing.T) {
	s := newTestServer(t)
	s.Sessions.Create(&meeting.Session{
		MeetingID: "m1",
		Speakers: map[string]meeting.SpeakerEntry{
			"A": {Result: matching.Result{Confidence: matching.ConfidenceHigh, AssignedName: "alice"}},
		},
		PendingSpeakers: map[string]struct{}{},
		HandledSpeakers: map[string]struct{}{"A": {}},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/meeting/m1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var snap sessionSnapshotJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Speakers) != 1 || snap.Speakers[0].AssignedName != "alice" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestHandleConfirmSpeakerValidatesForm(t *testing.T) {
	s := newTestServer(t)
	form := url.Values{"meeting_id": {"m1"}}
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-speaker", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing speaker_id/confirmed_name, got %d", rec.Code)
	}
}

func TestHandleConfirmSpeakerHappyPath(t *testing.T) {
	s := newTestServer(t)
	s.Sessions.Create(&meeting.Session{
		MeetingID: "m1",
		Speakers: map[string]meeting.SpeakerEntry{
			"A": {Result: matching.Result{Confidence: matching.ConfidenceMedium}},
		},
		SpeakerEmbeddings: map[string][]float32{"A": make([]float32, voiceprint.EmbeddingDim)},
		PendingSpeakers:   map[string]struct{}{"A": {}},
		HandledSpeakers:   map[string]struct{}{},
	})

	form := url.Values{
		"meeting_id":     {"m1"},
		"speaker_id":     {"A"},
		"confirmed_name": {"alice"},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/confirm-speaker", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if s.Sessions.IsPending("m1", "A") {
		t.Fatalf("expected A no longer pending after confirmation")
	}
}

func TestHandleIdentifyRejectsBusyDeviceWithoutStartingSSE(t *testing.T) {
	s := newTestServer(t)
	s.Pipeline.Diarizer = &fakeDiarizer{block: make(chan struct{})}

	events := make(chan identify.Event, eventChanBuffer)
	go s.Pipeline.Run(context.Background(), "dev1", filepath.Join(t.TempDir(), "never-read.bin"), events)

	deadline := time.Now().Add(time.Second)
	for !s.Pipeline.Busy("dev1") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	body, contentType := multipartAudio(t, []byte("not real audio"))
	req := httptest.NewRequest(http.MethodPost, "/api/identify", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Device-ID", "dev1")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a busy device, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Header().Get("Content-Type"), "event-stream") {
		t.Fatalf("expected a plain JSON error, not an SSE stream, for the busy rejection")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/speakers", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for an OPTIONS preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header on preflight response")
	}
}

func multipartAudio(t *testing.T, data []byte) (*strings.Reader, string) {
	t.Helper()
	var buf strings.Builder
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "clip.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return strings.NewReader(buf.String()), writer.FormDataContentType()
}

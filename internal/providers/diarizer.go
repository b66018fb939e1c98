// Package providers adapts the two external services the identification
// pipeline depends on: the transcription/diarization provider and the
// meeting summarizer. Both are duck-typed interfaces so the pipeline can be
// exercised against fakes in tests.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"speakerid/internal/apperr"
)

// DiarizedUtterance is one provider-local speaker turn.
type DiarizedUtterance struct {
	SpeakerLabel string `json:"speaker_label"`
	Text         string `json:"text"`
	StartMs      int    `json:"start_ms"`
	EndMs        int    `json:"end_ms"`
}

// DiarizationResult is the diarizer's full response for one audio file.
type DiarizationResult struct {
	Utterances []DiarizedUtterance `json:"utterances"`
	Language   string              `json:"language"`
}

// Diarizer is the slice of the provider's contract the pipeline depends on.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath string) (DiarizationResult, error)
}

// HTTPDiarizer calls a diarization provider reachable over HTTP, posting the
// audio file as multipart form data and expecting a JSON DiarizationResult.
type HTTPDiarizer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPDiarizer returns an HTTPDiarizer pointed at baseURL, authenticating
// with apiKey as a bearer token.
func NewHTTPDiarizer(baseURL, apiKey string) *HTTPDiarizer {
	return &HTTPDiarizer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Diarize uploads audioPath and returns its diarized utterances.
func (d *HTTPDiarizer) Diarize(ctx context.Context, audioPath string) (DiarizationResult, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return DiarizationResult{}, fmt.Errorf("open audio for diarization: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return DiarizationResult{}, fmt.Errorf("build diarization request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return DiarizationResult{}, fmt.Errorf("stream audio to diarizer: %w", err)
	}
	if err := writer.Close(); err != nil {
		return DiarizationResult{}, fmt.Errorf("close diarization multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/diarize", &body)
	if err != nil {
		return DiarizationResult{}, fmt.Errorf("build diarization request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return DiarizationResult{}, apperr.ProviderTimeout("diarization provider timed out")
		}
		return DiarizationResult{}, apperr.ProviderError(err, "diarization provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DiarizationResult{}, apperr.ProviderError(nil, "diarization provider returned status %d", resp.StatusCode)
	}

	var result DiarizationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return DiarizationResult{}, apperr.ProviderError(err, "decode diarization response")
	}
	return result, nil
}

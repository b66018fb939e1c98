package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"speakerid/internal/apperr"
)

// SpeakerSummaryInput is one (speaker_display_name, utterance) pair handed to
// the summarizer, in meeting order.
type SpeakerSummaryInput struct {
	SpeakerName string `json:"speaker_name"`
	Text        string `json:"text"`
	StartMs     int    `json:"start_ms"`
	EndMs       int    `json:"end_ms"`
}

// Summary is the structured object the summarizer returns.
type Summary struct {
	Text        string   `json:"text"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

// Summarizer is the slice of the summarization provider's contract the
// pipeline depends on.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []SpeakerSummaryInput) (Summary, error)
}

// HTTPSummarizer calls a summarization provider reachable over HTTP.
type HTTPSummarizer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPSummarizer returns an HTTPSummarizer pointed at baseURL.
func NewHTTPSummarizer(baseURL, apiKey string) *HTTPSummarizer {
	return &HTTPSummarizer{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// Summarize posts the named transcript and returns the provider's summary.
func (s *HTTPSummarizer) Summarize(ctx context.Context, transcript []SpeakerSummaryInput) (Summary, error) {
	reqBody := struct {
		Transcript []SpeakerSummaryInput `json:"transcript"`
	}{Transcript: transcript}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Summary{}, fmt.Errorf("encode summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return Summary{}, fmt.Errorf("build summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Summary{}, apperr.ProviderTimeout("summary provider timed out")
		}
		return Summary{}, apperr.ProviderError(err, "summary provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Summary{}, apperr.ProviderError(nil, "summary provider returned status %d", resp.StatusCode)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return Summary{}, apperr.ProviderError(err, "decode summary response")
	}
	return summary, nil
}

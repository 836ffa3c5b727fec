// Package tts is the synthesizer's external text-to-speech collaborator,
// an OpenAI-compatible HTTP client trimmed to the one call the pipeline
// needs.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Request is one chunk's worth of text to synthesize.
type Request struct {
	Text    string
	VoiceID string
}

// Response carries the synthesized audio bytes and their encoding.
type Response struct {
	AudioData []byte
	Format    string
}

// Provider is the narrow contract the synthesizer depends on.
type Provider interface {
	Synthesize(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// OpenAIProvider implements Provider using an OpenAI-compatible
// /audio/speech endpoint.
type OpenAIProvider struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Options configures an OpenAIProvider.
type Options struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewOpenAIProvider builds a synthesis client for an OpenAI-compatible
// TTS endpoint.
func NewOpenAIProvider(opts Options) (*OpenAIProvider, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for the tts provider")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required for the tts provider")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	return &OpenAIProvider{
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type apiRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Voice string `json:"voice"`
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Synthesize calls the configured endpoint's /audio/speech route and
// returns the MP3-encoded audio it generates for req.Text in req.VoiceID.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req Request) (*Response, error) {
	apiReq := apiRequest{Model: p.model, Input: req.Text, Voice: req.VoiceID}

	jsonBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := p.endpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	endpoint += "audio/speech"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call tts endpoint: %w", err)
	}
	defer resp.Body.Close()
	log.Printf("tts: %d %s (took %v)", resp.StatusCode, resp.Status, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("tts api error (status %d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("tts api request failed with status %d", resp.StatusCode)
	}

	return &Response{AudioData: body, Format: "mp3"}, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (p *OpenAIProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

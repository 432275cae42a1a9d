package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("speech: elevenlabs api key not configured")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ElevenLabs API error: %d %s", e.StatusCode, strings.TrimSpace(e.Status))
}

// Settings are the stored voice parameters handed to a Synthesizer.
// ElevenLabs has no pitch control, so the REST adapter does not send Pitch.
type Settings struct {
	Stability float64
	Speed     float64
	Pitch     float64
}

// Synthesizer renders text with a provider voice and plays it.
type Synthesizer interface {
	Speak(ctx context.Context, text, voiceID string, s Settings) error
}

// Voice is one entry of the provider's voice catalogue.
type Voice struct {
	VoiceID    string            `json:"voice_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category,omitempty"`
	PreviewURL string            `json:"preview_url,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// ElevenLabs talks to the ElevenLabs REST API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	modelID string
	http    *http.Client
	player  Player
}

type Option func(*ElevenLabs)

func WithHTTPClient(c *http.Client) Option { return func(e *ElevenLabs) { e.http = c } }
func WithPlayer(p Player) Option           { return func(e *ElevenLabs) { e.player = p } }

func NewElevenLabs(apiKey, baseURL, modelID string, opts ...Option) *ElevenLabs {
	e := &ElevenLabs{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		modelID: modelID,
		http:    &http.Client{Timeout: 60 * time.Second},
		player:  DiscardPlayer{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Speak streams synthesized audio into the player. Cancelling ctx aborts both
// the request and playback.
func (e *ElevenLabs) Speak(ctx context.Context, text, voiceID string, s Settings) error {
	if e.apiKey == "" {
		return ErrNotConfigured
	}
	if strings.TrimSpace(voiceID) == "" {
		return errors.New("speech: voice id required")
	}

	body, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: voiceSettings{
			Stability:       s.Stability,
			SimilarityBoost: 0.75,
			Style:           0,
			UseSpeakerBoost: true,
			Speed:           s.Speed,
		},
	})
	if err != nil {
		return err
	}

	resp, err := e.do(ctx, http.MethodPost, "/v1/text-to-speech/"+url.PathEscape(voiceID)+"/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := e.player.Play(ctx, resp.Body, resp.Header.Get("Content-Type")); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("speech: play audio: %w", err)
	}
	return nil
}

// ListVoices returns the provider's voice catalogue.
func (e *ElevenLabs) ListVoices(ctx context.Context) ([]Voice, error) {
	if e.apiKey == "" {
		return nil, ErrNotConfigured
	}
	resp, err := e.do(ctx, http.MethodGet, "/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("speech: decode voices: %w", err)
	}
	if out.Voices == nil {
		return nil, errors.New("speech: invalid response format from ElevenLabs API")
	}
	return out.Voices, nil
}

func (e *ElevenLabs) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "audio/mpeg, application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode), Body: string(b)}
	}
	return resp, nil
}

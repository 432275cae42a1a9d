package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSpeakPostsSettingsAndPlaysAudio(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/text-to-speech/voice-abc/stream" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	}))
	defer srv.Close()

	player := &BufferPlayer{}
	el := NewElevenLabs("key", srv.URL, "eleven_monolingual_v1", WithPlayer(player), WithHTTPClient(srv.Client()))
	if err := el.Speak(context.Background(), "Hello", "voice-abc", Settings{Stability: 0.6, Speed: 1.2}); err != nil {
		t.Fatalf("speak: %v", err)
	}

	if got.Text != "Hello" || got.ModelID != "eleven_monolingual_v1" {
		t.Fatalf("unexpected body: %+v", got)
	}
	vs := got.VoiceSettings
	if vs.Stability != 0.6 || vs.Speed != 1.2 || vs.SimilarityBoost != 0.75 || !vs.UseSpeakerBoost {
		t.Fatalf("unexpected voice settings: %+v", vs)
	}
	if string(player.Bytes()) != "ID3audio" || player.ContentType() != "audio/mpeg" {
		t.Fatalf("audio not played: %q %q", player.Bytes(), player.ContentType())
	}
}

func TestSpeakReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	el := NewElevenLabs("key", srv.URL, "m")
	err := el.Speak(context.Background(), "Hello", "v", Settings{Stability: 0.5, Speed: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
}

func TestSpeakWithoutKey(t *testing.T) {
	el := NewElevenLabs("", "http://unused", "m")
	if err := el.Speak(context.Background(), "x", "v", Settings{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSpeakHonoursCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	el := NewElevenLabs("key", srv.URL, "m")
	if err := el.Speak(ctx, "x", "v", Settings{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"v1","name":"Rachel","category":"premade"}]}`))
	}))
	defer srv.Close()

	voices, err := NewElevenLabs("key", srv.URL, "m").ListVoices(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(voices) != 1 || voices[0].VoiceID != "v1" || voices[0].Name != "Rachel" {
		t.Fatalf("unexpected voices: %+v", voices)
	}
}

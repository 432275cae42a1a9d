package textgen

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	gotModel  string
	gotPrompt string
	gotConfig *genai.GenerateContentConfig
	reply     string
	err       error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotConfig = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGenerateUsesPersonaPrompt(t *testing.T) {
	fake := &fakeModels{reply: "Hello Jane, this is Ava."}
	g := &Gemini{models: fake, model: "gemini-2.0-flash", log: quietLogger()}

	got, err := g.Generate(context.Background(), GreetingPrompt, Persona{Name: "Ava", Personality: "Warm"}, "Jane")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "Hello Jane, this is Ava." {
		t.Fatalf("unexpected reply %q", got)
	}
	if fake.gotModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected model %q", fake.gotModel)
	}
	for _, want := range []string{"You are Ava.", "Personality: Warm", "speaking with Jane", "Please respond to: " + GreetingPrompt} {
		if !strings.Contains(fake.gotPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, fake.gotPrompt)
		}
	}
	if fake.gotConfig.MaxOutputTokens != 1024 || len(fake.gotConfig.SafetySettings) != 4 {
		t.Fatalf("unexpected generation config: %+v", fake.gotConfig)
	}
}

func TestGenerateFallsBackOnProviderError(t *testing.T) {
	g := &Gemini{models: &fakeModels{err: errors.New("503")}, log: quietLogger()}
	got, err := g.Generate(context.Background(), "hi", Persona{Name: "Ava"}, "")
	if err != nil {
		t.Fatalf("provider errors must not surface: %v", err)
	}
	if got != fallbackFailure {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestGenerateWithoutKeyReturnsConfigurationFallback(t *testing.T) {
	g, err := NewGemini(context.Background(), "", "gemini-2.0-flash", quietLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	got, _ := g.Generate(context.Background(), "hi", Persona{Name: "Ava"}, "")
	if got != fallbackNoKey {
		t.Fatalf("expected no-key fallback, got %q", got)
	}
}

func TestGenerateReturnsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &Gemini{models: &fakeModels{err: context.Canceled}, log: quietLogger()}
	if _, err := g.Generate(ctx, "hi", Persona{Name: "Ava"}, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	p := BuildPrompt("hi", Persona{Name: "Ava"}, "")
	if !strings.Contains(p, "Professional and helpful") || !strings.Contains(p, "You are an AI assistant helping users") {
		t.Fatalf("expected default personality and context:\n%s", p)
	}
	if strings.Contains(p, "speaking with") {
		t.Fatalf("no contact line expected without a name")
	}
}

package textgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// Persona is the voice agent identity the model speaks as.
type Persona struct {
	Name        string
	Personality string
	Context     string
}

// Generator produces the agent's next utterance.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Persona, contactName string) (string, error)
}

const (
	// GreetingPrompt opens every outbound call.
	GreetingPrompt = "Introduce yourself and ask how you can help"

	fallbackNoKey   = "I'm sorry, I'm not able to generate a response right now. Please check the Gemini API configuration."
	fallbackFailure = "I apologize, but I'm having trouble generating a response right now. Please try again in a moment."
)

// contentGenerator is the slice of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates replies with a Gemini model.
//
// Provider failures never surface as errors; the caller receives a fallback
// sentence instead so a call can still greet the contact. Only ctx
// cancellation is returned as an error.
type Gemini struct {
	models contentGenerator
	model  string
	log    *slog.Logger
}

// NewGemini returns a generator. An empty apiKey yields a generator that always
// answers with the configuration fallback.
func NewGemini(ctx context.Context, apiKey, model string, log *slog.Logger) (*Gemini, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Gemini{model: model, log: log}
	if strings.TrimSpace(apiKey) == "" {
		return g, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("textgen: create gemini client: %w", err)
	}
	g.models = client.Models
	return g, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string, p Persona, contactName string) (string, error) {
	if g.models == nil {
		return fallbackNoKey, nil
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(BuildPrompt(prompt, p, contactName)), generationConfig())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.log.Warn("gemini generate failed", "err", err, "model", g.model)
		return fallbackFailure, nil
	}
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Text())
	}
	if text == "" {
		g.log.Warn("gemini returned no text", "model", g.model)
		return fallbackFailure, nil
	}
	return text, nil
}

// BuildPrompt wraps prompt with the persona instructions.
func BuildPrompt(prompt string, p Persona, contactName string) string {
	personality := p.Personality
	if strings.TrimSpace(personality) == "" {
		personality = "Professional and helpful"
	}
	background := p.Context
	if strings.TrimSpace(background) == "" {
		background = "You are an AI assistant helping users"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", p.Name)
	fmt.Fprintf(&b, "Personality: %s\n", personality)
	fmt.Fprintf(&b, "Context: %s\n", background)
	if name := strings.TrimSpace(contactName); name != "" {
		fmt.Fprintf(&b, "You are speaking with %s. Always address them by name when appropriate.\n", name)
	}
	fmt.Fprintf(&b, "\nPlease respond to: %s", prompt)
	return b.String()
}

func generationConfig() *genai.GenerateContentConfig {
	block := func(c genai.HarmCategory) *genai.SafetySetting {
		return &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove}
	}
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopK:            genai.Ptr[float32](40),
		TopP:            genai.Ptr[float32](0.95),
		MaxOutputTokens: 1024,
		SafetySettings: []*genai.SafetySetting{
			block(genai.HarmCategoryHarassment),
			block(genai.HarmCategoryHateSpeech),
			block(genai.HarmCategorySexuallyExplicit),
			block(genai.HarmCategoryDangerousContent),
		},
	}
}

// Package llm adapts the model APIs: Gemini for every text task and an
// OpenAI-compatible Whisper endpoint for speech-to-text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/highlights"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

// Summary is the assistant's reading of one conversation.
type Summary struct {
	Answer     string        `json:"answer"`
	Excerpt    []models.Turn `json:"excerpt"`
	Suggestion string        `json:"suggestion"`
}

// Gemini runs the text tasks. Each task has its own model setting.
type Gemini struct {
	client *genai.Client
	cfg    config.LLMConfig
}

func NewGemini(ctx context.Context, cfg config.LLMConfig) (*Gemini, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

// Structure labels speakers, guesses the other person's name and pulls
// keywords and a headline out of the transcript.
func (g *Gemini) Structure(ctx context.Context, segments []models.Segment) (*models.Dialogue, error) {
	text, err := g.generate(ctx, "structure", g.cfg.StructureModel, structurePrompt(segments))
	if err != nil {
		return nil, err
	}
	return parseDialogue(text)
}

// Summarize answers question from the tail of one conversation.
func (g *Gemini) Summarize(ctx context.Context, question string, tail []models.Turn) (*Summary, error) {
	text, err := g.generate(ctx, "summarize", g.cfg.SummaryModel, summaryPrompt(question, tail))
	if err != nil {
		return nil, err
	}
	return parseSummary(text)
}

func (g *Gemini) ExtractHighlights(ctx context.Context, req highlights.ExtractRequest) ([]models.HighlightCandidate, error) {
	text, err := g.generate(ctx, "highlights", g.cfg.HighlightModel, highlightPrompt(req))
	if err != nil {
		return nil, err
	}
	return parseHighlights(text)
}

// EnrichProfile guesses a public profile for name. A nil profile means no
// confident match.
func (g *Gemini) EnrichProfile(ctx context.Context, name string, keywords []string, tail []models.Turn) (*models.Profile, error) {
	text, err := g.generate(ctx, "enrich", g.cfg.EnrichModel, enrichPrompt(name, keywords, tail))
	if err != nil {
		return nil, err
	}
	return parseProfile(text)
}

func (g *Gemini) generate(ctx context.Context, op, model, prompt string) (string, error) {
	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
	})
	observability.StageDuration.WithLabelValues("llm_" + op).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ExternalCalls.WithLabelValues(op, "error").Inc()
		return "", fmt.Errorf("gemini %s: %v: %w", op, err, models.ErrExternalService)
	}

	text := responseText(resp)
	if text == "" {
		observability.ExternalCalls.WithLabelValues(op, "empty").Inc()
		return "", fmt.Errorf("gemini %s: empty response: %w", op, models.ErrExternalService)
	}
	observability.ExternalCalls.WithLabelValues(op, "ok").Inc()
	slog.Debug("gemini response", "op", op, "model", model, "bytes", len(text))
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

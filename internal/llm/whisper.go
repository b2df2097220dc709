package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/your-org/recall/internal/config"
	"github.com/your-org/recall/internal/media"
	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

// WhisperTranscriber extracts the audio track with ffmpeg and sends it to an
// OpenAI-compatible transcription endpoint.
type WhisperTranscriber struct {
	client  openai.Client
	model   string
	tempDir string
}

func NewWhisperTranscriber(cfg config.LLMConfig, tempDir string) (*WhisperTranscriber, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, errors.New("openai api key is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return &WhisperTranscriber{
		client:  openai.NewClient(opts...),
		model:   cfg.TranscribeModel,
		tempDir: tempDir,
	}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, videoPath string) ([]models.Segment, error) {
	audioPath := filepath.Join(w.tempDir, "audio-"+uuid.NewString()+".wav")
	defer os.Remove(audioPath)

	start := time.Now()
	if err := media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, err
	}
	observability.StageDuration.WithLabelValues("extract_audio").Observe(time.Since(start).Seconds())

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	start = time.Now()
	res, err := w.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:           f,
		Model:          openai.AudioModel(w.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
		Language:       openai.String("en"),
	})
	observability.StageDuration.WithLabelValues("transcribe").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ExternalCalls.WithLabelValues("transcribe", "error").Inc()
		return nil, fmt.Errorf("transcribe: %v: %w", err, models.ErrExternalService)
	}
	observability.ExternalCalls.WithLabelValues("transcribe", "ok").Inc()

	return parseVerboseTranscript(res.RawJSON())
}

// parseVerboseTranscript reads the verbose_json response. Replies without
// segments become a single untimed segment.
func parseVerboseTranscript(raw string) ([]models.Segment, error) {
	var body struct {
		Text     string           `json:"text"`
		Duration float64          `json:"duration"`
		Segments []models.Segment `json:"segments"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil, fmt.Errorf("decode transcription: %v: %w", err, models.ErrExternalService)
	}

	out := make([]models.Segment, 0, len(body.Segments))
	for _, s := range body.Segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		if text := strings.TrimSpace(body.Text); text != "" {
			out = append(out, models.Segment{End: body.Duration, Text: text})
		}
	}
	return out, nil
}

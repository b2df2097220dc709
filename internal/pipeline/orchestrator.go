// Package pipeline runs identity resolution and dialogue extraction for one
// video side by side and merges their results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
	"github.com/your-org/recall/internal/registry"
)

type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) ([]models.Segment, error)
}

type Structurer interface {
	Structure(ctx context.Context, segments []models.Segment) (*models.Dialogue, error)
}

// FaceDetector finds the best face in a video and stores its crop.
type FaceDetector interface {
	DetectFace(ctx context.Context, videoPath string) (*models.FaceCapture, error)
}

type Matcher interface {
	Identify(ctx context.Context, query []float32, threshold float64) (*registry.Identification, error)
	Enroll(ctx context.Context, req registry.EnrollRequest) (*models.Person, error)
}

type Config struct {
	LiveMatchThreshold float64
	RendezvousTimeout  time.Duration
}

type Orchestrator struct {
	transcriber Transcriber
	structurer  Structurer
	detector    FaceDetector
	matcher     Matcher
	cfg         Config
}

// NewOrchestrator wires the collaborators. A nil detector or transcriber
// makes that side fail on every request while the other still runs.
func NewOrchestrator(t Transcriber, s Structurer, d FaceDetector, m Matcher, cfg Config) *Orchestrator {
	if cfg.RendezvousTimeout <= 0 {
		cfg.RendezvousTimeout = 180 * time.Second
	}
	return &Orchestrator{
		transcriber: t,
		structurer:  s,
		detector:    d,
		matcher:     m,
		cfg:         cfg,
	}
}

// Process runs both tasks on videoPath. It never fails as a whole: errors of
// either side are reported in the result.
func (o *Orchestrator) Process(ctx context.Context, videoPath string) *models.ProcessResult {
	rv := NewRendezvous[models.Dialogue]()

	var (
		wg       sync.WaitGroup
		dialogue *models.Dialogue
		face     *faceOutcome
		tErr     error
		fErr     error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		dialogue, tErr = o.transcriptTask(ctx, videoPath, rv)
	}()
	go func() {
		defer wg.Done()
		face, fErr = o.faceTask(ctx, videoPath, rv)
	}()
	wg.Wait()

	res := &models.ProcessResult{Timestamp: time.Now().Unix()}
	if tErr != nil {
		slog.Warn("transcript task failed", "video", videoPath, "error", tErr)
		res.TranscriptError = tErr.Error()
	}
	if dialogue != nil {
		res.GuessedName = dialogue.GuessedName
		res.Conversation = dialogue.Conversation
		res.Keywords = dialogue.Keywords
		res.Headline = dialogue.Headline
		res.HasLinkedInPotential = dialogue.HasLinkedInPotential
	}
	if fErr != nil {
		slog.Warn("face task failed", "video", videoPath, "error", fErr)
		res.FaceError = fErr.Error()
	}
	if face != nil {
		res.FaceName = face.name
		res.FaceStatus = face.status
		res.PersonID = face.personID
		res.Distance = face.distance
		res.CropKey = face.cropKey
		res.AutoEnrolled = face.autoEnrolled
		res.EnrollError = face.enrollError
	}

	res.Name = firstName(res.FaceName, res.GuessedName)
	return res
}

func firstName(names ...string) string {
	for _, n := range names {
		if !models.IsUnknownName(n) {
			return strings.TrimSpace(n)
		}
	}
	return "Unknown"
}

// transcriptTask always signals rv before returning, even on panic, so a
// waiting face task is never left for the full timeout.
func (o *Orchestrator) transcriptTask(ctx context.Context, videoPath string, rv *Rendezvous[models.Dialogue]) (dialogue *models.Dialogue, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			dialogue, err = nil, fmt.Errorf("transcript task panic: %v", p)
		}
		if dialogue != nil {
			rv.Signal(*dialogue)
		} else {
			rv.Signal(models.Dialogue{})
		}
		observability.StageDuration.WithLabelValues("transcript").Observe(time.Since(start).Seconds())
	}()

	if o.transcriber == nil || o.structurer == nil {
		return nil, errors.New("transcription is not configured")
	}

	segments, err := o.transcriber.Transcribe(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if !hasSpeech(segments) {
		return &models.Dialogue{}, nil
	}

	d, err := o.structurer.Structure(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("structure dialogue: %w", err)
	}
	if d == nil {
		return &models.Dialogue{}, nil
	}
	return sanitizeDialogue(d), nil
}

func hasSpeech(segments []models.Segment) bool {
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

func sanitizeDialogue(d *models.Dialogue) *models.Dialogue {
	out := *d
	out.GuessedName = strings.TrimSpace(d.GuessedName)
	out.Conversation = make([]models.Turn, 0, len(d.Conversation))
	for _, t := range d.Conversation {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "Unknown"
		}
		out.Conversation = append(out.Conversation, models.Turn{Speaker: speaker, Text: text})
	}
	return &out
}

type faceOutcome struct {
	name         string
	status       string
	personID     string
	distance     *float64
	cropKey      string
	autoEnrolled bool
	enrollError  string
}

func (o *Orchestrator) faceTask(ctx context.Context, videoPath string, rv *Rendezvous[models.Dialogue]) (out *faceOutcome, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("face task panic: %v", p)
		}
		observability.StageDuration.WithLabelValues("face").Observe(time.Since(start).Seconds())
	}()

	if o.detector == nil || o.matcher == nil {
		return nil, errors.New("face detection is not configured")
	}

	capture, err := o.detector.DetectFace(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("detect face: %w", err)
	}
	if capture == nil || len(capture.Embedding) == 0 {
		return nil, fmt.Errorf("detect face: no face found: %w", models.ErrEmptyInput)
	}

	out = &faceOutcome{cropKey: capture.CropKey}

	id, err := o.matcher.Identify(ctx, capture.Embedding, o.cfg.LiveMatchThreshold)
	switch {
	case errors.Is(err, models.ErrEmptyRegistry):
	case err != nil:
		return nil, fmt.Errorf("identify face: %w", err)
	default:
		d := id.Best.Distance
		out.distance = &d
		if id.Known {
			out.name = id.Best.DisplayName
			out.status = models.FaceStatusExisting
			out.personID = id.Best.PersonID
			return out, nil
		}
	}
	out.status = models.FaceStatusNew

	dialogue, ok := rv.Wait(ctx, o.cfg.RendezvousTimeout)
	name := "Unknown"
	switch {
	case ok:
		observability.RendezvousOutcomes.WithLabelValues("signaled").Inc()
		if dialogue.GuessedName != "" {
			name = dialogue.GuessedName
		}
	case ctx.Err() != nil:
		observability.RendezvousOutcomes.WithLabelValues("cancelled").Inc()
		return out, fmt.Errorf("wait for transcript: %w", ctx.Err())
	default:
		observability.RendezvousOutcomes.WithLabelValues("timeout").Inc()
		slog.Warn("transcript not ready, face left unnamed", "video", videoPath, "timeout", o.cfg.RendezvousTimeout)
	}

	if models.IsUnknownName(name) || capture.CropKey == "" {
		return out, nil
	}

	person, err := o.matcher.Enroll(ctx, registry.EnrollRequest{
		Embedding: capture.Embedding,
		Name:      name,
		CropKey:   capture.CropKey,
		Width:     capture.Width,
		Height:    capture.Height,
		Sharpness: capture.Sharpness,
		Source:    "auto",
	})
	if err != nil {
		slog.Warn("auto enrollment failed", "name", name, "error", err)
		out.enrollError = err.Error()
		return out, nil
	}
	out.autoEnrolled = true
	out.name = person.DisplayName
	out.personID = person.ID
	return out, nil
}

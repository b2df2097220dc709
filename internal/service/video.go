package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/recall/internal/models"
	"github.com/your-org/recall/internal/observability"
)

// ProcessVideo resolves who is in the video and what was said, appends the
// conversation to that person's log and looks for upcoming events in it.
// Partial results are stored; only a failure on both sides is an error.
func (s *Service) ProcessVideo(ctx context.Context, videoPath string) (*models.ProcessResult, error) {
	if s.Processor == nil {
		return nil, ErrUnavailable
	}
	start := time.Now()
	res := s.Processor.Process(ctx, videoPath)
	observability.StageDuration.WithLabelValues("process").Observe(time.Since(start).Seconds())

	if res.TranscriptError != "" && res.FaceError != "" {
		observability.VideosProcessed.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("process video: transcript: %s; face: %s", res.TranscriptError, res.FaceError)
	}

	entry := models.ConversationEntry{
		Timestamp:    res.Timestamp,
		Conversation: res.Conversation,
		Keywords:     res.Keywords,
		Headline:     res.Headline,
	}
	stored, err := s.Memory.Append(ctx, res.Name, entry)
	if err != nil {
		observability.VideosProcessed.WithLabelValues("failed").Inc()
		return res, fmt.Errorf("process video: %w", err)
	}

	if s.Highlights != nil && len(stored.Conversation) > 0 {
		hs, err := s.Highlights.DetectAndStore(ctx, res.Name, stored, time.Unix(stored.Timestamp, 0))
		if err != nil {
			slog.Warn("highlight detection failed", "person", res.Name, "error", err)
		}
		res.Highlights = hs
	}

	outcome := "ok"
	if res.TranscriptError != "" || res.FaceError != "" {
		outcome = "partial"
	}
	observability.VideosProcessed.WithLabelValues(outcome).Inc()
	slog.Info("video processed",
		"name", res.Name,
		"face_status", res.FaceStatus,
		"auto_enrolled", res.AutoEnrolled,
		"turns", len(res.Conversation),
		"highlights", len(res.Highlights),
		"outcome", outcome,
	)
	return res, nil
}

// SubmitVideo uploads a video and queues it for a worker.
func (s *Service) SubmitVideo(ctx context.Context, filename string, r io.Reader, size int64) (*models.VideoJob, error) {
	if s.Objects == nil || s.Jobs == nil {
		return nil, ErrUnavailable
	}
	job := models.VideoJob{
		JobID:       uuid.NewString(),
		Filename:    filepath.Base(filename),
		SubmittedAt: time.Now().UTC(),
	}
	job.ObjectKey = fmt.Sprintf("uploads/%s%s", job.JobID, filepath.Ext(job.Filename))

	if err := s.Objects.PutStream(ctx, job.ObjectKey, r, size, "video/mp4"); err != nil {
		return nil, fmt.Errorf("upload video: %w", err)
	}
	if err := s.Jobs.PublishJob(ctx, job); err != nil {
		_ = s.Objects.DeleteObject(ctx, job.ObjectKey)
		return nil, fmt.Errorf("queue video: %w", err)
	}
	slog.Info("video queued", "job_id", job.JobID, "filename", job.Filename)
	return &job, nil
}

// HandleJob is the worker side of SubmitVideo: fetch, process, publish the
// result and drop the upload. A failed job still publishes its result.
func (s *Service) HandleJob(ctx context.Context, job models.VideoJob) error {
	if s.Objects == nil || s.Jobs == nil {
		return ErrUnavailable
	}
	path := filepath.Join(s.opts.TempDir, "job-"+job.JobID+filepath.Ext(job.ObjectKey))
	defer os.Remove(path)

	out := models.JobResult{JobID: job.JobID, Status: models.JobStatusDone}
	if err := s.Objects.DownloadFile(ctx, job.ObjectKey, path); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		out.Status = models.JobStatusFailed
		out.Error = err.Error()
	} else {
		res, err := s.ProcessVideo(ctx, path)
		out.Result = res
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			out.Status = models.JobStatusFailed
			out.Error = err.Error()
		}
	}
	out.FinishedAt = time.Now().UTC()

	if err := s.Jobs.PublishResult(ctx, out); err != nil {
		return fmt.Errorf("publish result %s: %w", job.JobID, err)
	}
	if err := s.Objects.DeleteObject(ctx, job.ObjectKey); err != nil {
		slog.Warn("delete processed upload", "key", job.ObjectKey, "error", err)
	}
	return nil
}

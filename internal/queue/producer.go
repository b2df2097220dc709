// Package queue carries video jobs to workers and their results back to the
// API over NATS JetStream.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/recall/internal/models"
)

const (
	VideosStreamName   = "VIDEOS"
	VideosSubject      = "videos.jobs"
	ResultsStreamName  = "RESULTS"
	ResultsSubjectBase = "results"
)

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func resultSubject(jobID string) string {
	return ResultsSubjectBase + "." + jobID
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

// EnsureStreams creates the job and result streams, retrying while NATS
// starts up.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{
		{
			Name:        VideosStreamName,
			Subjects:    []string{VideosSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  10 * time.Minute,
			Description: "Uploaded videos waiting for processing",
		},
		{
			Name:        ResultsStreamName,
			Subjects:    []string{ResultsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Description: "Finished video jobs",
		},
	}

	const maxAttempts = 30
	for attempt := 1; ; attempt++ {
		var failed error
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				failed = fmt.Errorf("create stream %s: %w", cfg.Name, err)
				break
			}
		}
		if failed == nil {
			slog.Info("nats streams ready", "streams", []string{VideosStreamName, ResultsStreamName})
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("%w (after %d attempts)", failed, maxAttempts)
		}
		slog.Warn("ensure nats streams, retrying", "attempt", attempt, "error", failed)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// PublishJob enqueues a video. The job id doubles as the JetStream message
// id so a retried submit is stored once.
func (p *Producer) PublishJob(ctx context.Context, job models.VideoJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal video job: %w", err)
	}
	if _, err := p.js.Publish(ctx, VideosSubject, payload, jetstream.WithMsgID(job.JobID)); err != nil {
		return fmt.Errorf("publish video job: %w", err)
	}
	return nil
}

func (p *Producer) PublishResult(ctx context.Context, res models.JobResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	if _, err := p.js.Publish(ctx, resultSubject(res.JobID), payload); err != nil {
		return fmt.Errorf("publish job result: %w", err)
	}
	return nil
}

// QueueDepth returns the number of videos not yet taken by a worker.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, VideosStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

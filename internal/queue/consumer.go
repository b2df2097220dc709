package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/recall/internal/models"
)

type JobHandler func(ctx context.Context, job models.VideoJob) error

type ResultHandler func(ctx context.Context, res models.JobResult) error

var errBadPayload = errors.New("bad payload")

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeJobs runs workerCount handlers over the VIDEOS stream. A job is
// kept alive with progress acks while its handler runs; malformed payloads
// are terminated instead of redelivered.
func (c *Consumer) ConsumeJobs(ctx context.Context, consumerName string, handler JobHandler, workerCount int) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	stream, err := c.js.Stream(ctx, VideosStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", VideosStreamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       time.Minute,
		MaxDeliver:    3,
		FilterSubject: VideosSubject,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	msgCh := make(chan jetstream.Msg)
	go func() {
		defer close(msgCh)
		for ctx.Err() == nil {
			batch, err := cons.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch video jobs", "error", err)
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				select {
				case msgCh <- msg:
				case <-ctx.Done():
					_ = msg.Nak()
					return
				}
			}
		}
	}()

	for i := 0; i < workerCount; i++ {
		go func(worker int) {
			for msg := range msgCh {
				c.handleJob(ctx, worker, msg, handler)
			}
		}(i)
	}

	slog.Info("video job consumer started", "consumer", consumerName, "workers", workerCount)
	return nil
}

func (c *Consumer) handleJob(ctx context.Context, worker int, msg jetstream.Msg, handler JobHandler) {
	job, err := decodeJob(msg.Data())
	if err != nil {
		slog.Error("drop video job", "worker", worker, "error", err)
		_ = msg.Term()
		return
	}

	stop := keepAlive(ctx, msg, 20*time.Second)
	err = handler(ctx, job)
	stop()

	if err != nil {
		slog.Error("process video job", "worker", worker, "job_id", job.JobID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// keepAlive extends the ack deadline of msg every interval until stopped.
func keepAlive(ctx context.Context, msg jetstream.Msg, interval time.Duration) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				_ = msg.InProgress()
			}
		}
	}()
	return func() { close(done) }
}

// ConsumeResults delivers results published from now on. Used by the API
// to push them to WebSocket clients.
func (c *Consumer) ConsumeResults(ctx context.Context, consumerName string, handler ResultHandler) error {
	stream, err := c.js.Stream(ctx, ResultsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", ResultsStreamName, err)
	}
	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: ResultsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for ctx.Err() == nil {
			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
				continue
			}
			for msg := range batch.Messages() {
				var res models.JobResult
				if err := json.Unmarshal(msg.Data(), &res); err != nil {
					slog.Error("drop job result", "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, res); err != nil {
					slog.Error("handle job result", "job_id", res.JobID, "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}
	}()

	slog.Info("result consumer started", "consumer", consumerName)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}

func decodeJob(data []byte) (models.VideoJob, error) {
	var job models.VideoJob
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if job.JobID == "" || job.ObjectKey == "" {
		return job, fmt.Errorf("%w: job_id and object_key are required", errBadPayload)
	}
	return job, nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/datapub/internal/jobs"
	"git.home.luguber.info/inful/datapub/internal/logfields"
)

const jobStreamName = "DATAPUB_JOBS"

// SubscribeJobs consumes mutation job requests from the jobs subject and
// hands them to the enqueue function. Jobs are acknowledged once enqueued; a
// busy rejection is acknowledged too, since the caller is expected to
// resubmit.
func (c *NATSClient) SubscribeJobs(ctx context.Context, enqueue func(*jobs.MutationJob) error) (jetstream.ConsumeContext, error) {
	subject := c.subjectPrefix + ".jobs"

	stream, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     jobStreamName,
		Subjects: []string{subject},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:   "datapub-workers",
		AckPolicy: jetstream.AckExplicitPolicy,
		AckWait:   30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var job jobs.MutationJob
		if err := json.Unmarshal(msg.Data(), &job); err != nil {
			slog.Error("Discarding malformed job request", logfields.Error(err))
			_ = msg.Ack()
			return
		}

		if err := enqueue(&job); err != nil {
			if jobs.IsBusy(err) {
				slog.Warn("Job rejected, dataset busy",
					logfields.JobID(job.ID), logfields.DatasetID(job.DatasetID))
				_ = msg.Ack()
				return
			}
			// Queue full: leave unacknowledged for redelivery.
			slog.Warn("Job not admitted, will be redelivered",
				logfields.JobID(job.ID), logfields.Error(err))
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume job stream: %w", err)
	}

	slog.Info("Job subscriber started", "subject", subject)
	return cc, nil
}

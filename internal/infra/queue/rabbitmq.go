package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mediascribe/pipeline/internal/core/domain"
)

const jobsExchange = "pipeline.jobs"

// Config holds RabbitMQ connection configuration.
type Config struct {
	URL string `yaml:"url"`
}

// RabbitMQ publishes job messages to per-type queues bound to a
// direct exchange. The external scheduler consumes them.
type RabbitMQ struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitMQ connects and declares the topology. Idempotent.
func NewRabbitMQ(cfg Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q := &RabbitMQ{conn: conn, ch: ch}
	if err := q.setupTopology(); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}
	return q, nil
}

func (q *RabbitMQ) setupTopology() error {
	if err := q.ch.ExchangeDeclare(jobsExchange, "direct", true, false, false, false, nil); err != nil {
		return err
	}

	jobTypes := []domain.JobType{
		domain.JobTypeVideoProcessing,
		domain.JobTypeTranscription,
		domain.JobTypeEmbeddingGeneration,
	}
	for _, jt := range jobTypes {
		queueName := queueNameFor(jt)
		_, err := q.ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{
			"x-max-priority": int32(10),
		})
		if err != nil {
			return err
		}
		if err := q.ch.QueueBind(queueName, string(jt), jobsExchange, false, nil); err != nil {
			return err
		}
	}
	return nil
}

// Enqueue publishes the job as a JSON message routed by job type.
func (q *RabbitMQ) Enqueue(ctx context.Context, job *domain.Job) (string, error) {
	msg := Message{
		JobID:      job.ID,
		Type:       job.Type,
		VideoID:    job.VideoID,
		Priority:   job.Priority,
		EnqueuedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job message: %w", err)
	}

	err = q.ch.PublishWithContext(ctx,
		jobsExchange,
		string(job.Type), // routing key matches job type
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			MessageId:   job.ID,
			Priority:    mapPriority(job.Priority),
		})
	if err != nil {
		return "", fmt.Errorf("failed to publish job: %w", err)
	}
	return job.ID, nil
}

// Close shuts down the channel and connection.
func (q *RabbitMQ) Close() error {
	if err := q.ch.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}

func queueNameFor(t domain.JobType) string {
	return fmt.Sprintf("pipeline.jobs.%s", t)
}

// mapPriority converts semantic priority to RabbitMQ levels (0-10).
func mapPriority(p domain.Priority) uint8 {
	switch p {
	case domain.PriorityHigh:
		return 9
	case domain.PriorityLow:
		return 1
	default:
		return 5
	}
}

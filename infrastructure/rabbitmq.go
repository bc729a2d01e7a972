package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const analysisQueueName = "analysis_queue"

// AnalysisJob is the message dispatched when a client triggers a batch run.
// The worker consumes it and drives the scheduler for that session.
type AnalysisJob struct {
	SessionID string `json:"session_id"`
	ChunkSize int    `json:"chunk_size"`
}

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *zap.Logger
}

func NewRabbitMQ(url string, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		analysisQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	logger.Info("connected to RabbitMQ", zap.String("queue", q.Name))
	return &RabbitMQ{conn: conn, channel: ch, queue: q, logger: logger}, nil
}

func (r *RabbitMQ) PublishJob(job AnalysisJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// ConsumeJobs registers the worker handler. One consumer per process is
// enough; per-session exclusion is enforced by the scheduler itself.
func (r *RabbitMQ) ConsumeJobs(handler func(AnalysisJob)) error {
	msgs, err := r.channel.Consume(
		r.queue.Name,
		"",
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			var job AnalysisJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				r.logger.Warn("invalid analysis job message", zap.Error(err))
				continue
			}
			handler(job)
		}
	}()
	return nil
}

func (r *RabbitMQ) Close() {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}

package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/model"
)

// EmailOutreachTopic is the queue low-priority customers are handed to.
const EmailOutreachTopic = "email_outreach"

// EmailJob is the payload for a deferred email outreach.
type EmailJob struct {
	CustomerID     string         `json:"customer_id"`
	BatchID        string         `json:"batch_id"`
	CustomerName   string         `json:"customer_name"`
	DeclinedAmount float64        `json:"declined_amount"`
	TotalDue       float64        `json:"total_due"`
	Priority       model.Priority `json:"priority"`
}

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
}

// InMemoryQueue delivers messages to subscribers on goroutines with retry.
// It backs local development and tests when no broker is configured.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error

	// Backoff is the base retry delay. Tests shrink it.
	Backoff time.Duration

	// Sync delivers jobs on the publishing goroutine. One-shot binaries set
	// it so pending jobs cannot outlive the process.
	Sync bool

	log *zap.Logger
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload []byte) error),
		Backoff:  500 * time.Millisecond,
		log:      log,
	}
}

type jobEnvelope struct {
	payload    []byte
	retryCount int
	maxRetries int
}

// Publish sends a message to all subscribers of the topic.
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := jobEnvelope{payload: payload, maxRetries: 3}
	for _, handler := range handlers {
		if q.Sync {
			q.processJob(topic, handler, job)
			continue
		}
		go q.processJob(topic, handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(topic string, handler func(payload []byte) error, job jobEnvelope) {
	for job.retryCount <= job.maxRetries {
		err := handler(job.payload)
		if err == nil {
			return // ACK
		}

		job.retryCount++
		q.log.Warn("queue_job_failed",
			zap.String("topic", topic),
			zap.Int("attempt", job.retryCount),
			zap.Int("max_retries", job.maxRetries),
			zap.Error(err))

		if job.retryCount > job.maxRetries {
			q.log.Error("queue_job_permanently_failed",
				zap.String("topic", topic),
				zap.Int("attempts", job.maxRetries))
			return // No requeue
		}

		time.Sleep(time.Duration(job.retryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)

// AMQPQueue publishes to a durable RabbitMQ queue. Consumption happens in the
// worker binary, which owns ack/nack retry handling.
type AMQPQueue struct {
	ch  *amqp.Channel
	log *zap.Logger
}

func NewAMQPQueue(conn *amqp.Connection, log *zap.Logger) (*AMQPQueue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	return &AMQPQueue{ch: ch, log: log}, nil
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	_, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	err = q.ch.Publish(
		"",    // default exchange
		topic, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	q.log.Info("queue_published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Subscribe is not supported on the publish side; the worker binary consumes
// directly off the channel so it controls acking.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	return fmt.Errorf("amqp queue is publish-only; run the worker binary to consume %s", topic)
}

var _ Queue = (*AMQPQueue)(nil)

// PublishEmailJob marshals and publishes an email outreach job.
func PublishEmailJob(q Queue, job EmailJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.Publish(EmailOutreachTopic, raw)
}

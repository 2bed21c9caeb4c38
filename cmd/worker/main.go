package main

import (
	"context"
	"encoding/json"

	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/config"
	"github.com/ridgewater/outreach-service/internal/db"
	"github.com/ridgewater/outreach-service/internal/queue"
	"github.com/ridgewater/outreach-service/internal/repository"
	"github.com/ridgewater/outreach-service/internal/service"
)

const maxRetries = 3

// retryCount reads the x-retry-count header. AMQP tables deliver numerics as
// int32 or int64 depending on which client wrote them.
func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func republish(ch *amqp.Channel, queueName string, body []byte, attempt int) error {
	return ch.Publish(
		"",        // default exchange
		queueName, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retry-count": int32(attempt)},
			Body:         body,
		})
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	if cfg.Queue.AMQPURL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer database.Close()

	worker := &service.EmailWorker{
		Tracker: &repository.PostgresTracker{DB: database},
		Log:     log,
	}

	conn, err := amqp.Dial(cfg.Queue.AMQPURL)
	if err != nil {
		log.Fatal("amqp connect failed", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("amqp channel failed", zap.Error(err))
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		cfg.Queue.EmailQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		log.Fatal("queue declare failed", zap.Error(err))
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		log.Fatal("consumer register failed", zap.Error(err))
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			var job queue.EmailJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Error("invalid job payload", zap.Error(err))
				d.Ack(false)
				continue
			}

			if err := worker.HandleJob(context.Background(), job); err != nil {
				attempt := retryCount(d.Headers) + 1
				log.Error("job failed",
					zap.String("customer_id", job.CustomerID),
					zap.Int("attempt", attempt),
					zap.Error(err))

				// Republish with the incremented counter. A bare Nack would
				// redeliver the original headers and retry forever.
				if attempt <= maxRetries {
					if err := republish(ch, q.Name, d.Body, attempt); err != nil {
						log.Error("requeue failed", zap.Error(err))
						d.Nack(false, true)
						continue
					}
				} else {
					log.Error("job permanently failed",
						zap.String("customer_id", job.CustomerID),
						zap.Int("attempts", attempt))
				}
			}

			d.Ack(false)
		}
	}()

	log.Info("worker running, waiting for messages", zap.String("queue", q.Name))
	<-forever
}

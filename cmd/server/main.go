package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/config"
	"github.com/ridgewater/outreach-service/internal/db"
	"github.com/ridgewater/outreach-service/internal/dispatch"
	"github.com/ridgewater/outreach-service/internal/handler"
	"github.com/ridgewater/outreach-service/internal/priority"
	"github.com/ridgewater/outreach-service/internal/queue"
	"github.com/ridgewater/outreach-service/internal/repository"
	"github.com/ridgewater/outreach-service/internal/resolver"
	"github.com/ridgewater/outreach-service/internal/service"
)

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

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer database.Close()

	tracker := &repository.PostgresTracker{DB: database}

	directory := billing.NewClient(cfg.Billing, log)
	voice := dispatch.NewVoiceClient(cfg.Voice, log)
	sms := dispatch.NewSMSClient(cfg.SMS, log)
	msgs := dispatch.NewCatalog(cfg.Message)
	dispatcher := dispatch.NewDispatcher(voice, sms, msgs, log)

	matcher := resolver.New(directory, cfg.Batch.BalanceTolerance, log)
	classifier := priority.NewClassifier(directory, cfg.Batch.DeliveryLookaheadDays, log)

	q := buildQueue(cfg, tracker, log)

	batchService := &service.BatchService{
		Tracker:     tracker,
		Matcher:     matcher,
		Classifier:  classifier,
		Dispatch:    dispatcher,
		Msgs:        msgs,
		Directory:   directory,
		Queue:       q,
		Concurrency: cfg.Batch.MatchConcurrency,
		DropDir:     cfg.Batch.CSVDropDir,
		Log:         log,
	}

	batchHandler := handler.NewBatchHandler(batchService, cfg.AdminAPIKey, log)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/admin", batchHandler.Routes())

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}

// buildQueue returns the AMQP-backed queue when a broker is configured.
// Without one, email jobs run in-process off the in-memory queue so local
// development does not need RabbitMQ.
func buildQueue(cfg *config.Config, tracker repository.BatchTracker, log *zap.Logger) queue.Queue {
	if cfg.Queue.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.Queue.AMQPURL)
		if err != nil {
			log.Fatal("amqp connect failed", zap.Error(err))
		}
		q, err := queue.NewAMQPQueue(conn, log)
		if err != nil {
			log.Fatal("amqp channel failed", zap.Error(err))
		}
		return q
	}

	log.Info("no AMQP_URL set, using in-memory queue")
	q := queue.NewInMemoryQueue(log)
	worker := &service.EmailWorker{Tracker: tracker, Log: log}
	_ = q.Subscribe(queue.EmailOutreachTopic, func(payload []byte) error {
		var job queue.EmailJob
		if err := json.Unmarshal(payload, &job); err != nil {
			log.Error("invalid email job payload", zap.Error(err))
			return nil // no retry
		}
		return worker.HandleJob(context.Background(), job)
	})
	return q
}

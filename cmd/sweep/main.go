// cmd/sweep runs one daily outreach sweep from cron and prints the summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/config"
	"github.com/ridgewater/outreach-service/internal/db"
	"github.com/ridgewater/outreach-service/internal/dispatch"
	"github.com/ridgewater/outreach-service/internal/priority"
	"github.com/ridgewater/outreach-service/internal/queue"
	"github.com/ridgewater/outreach-service/internal/repository"
	"github.com/ridgewater/outreach-service/internal/resolver"
	"github.com/ridgewater/outreach-service/internal/service"
)

func main() {
	batchID := flag.String("batch", "", "restrict the sweep to one batch id")
	initSchema := flag.Bool("init-schema", false, "create the tracking tables and exit")
	flag.Parse()

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
	ctx := context.Background()

	if *initSchema {
		if err := tracker.InitSchema(ctx); err != nil {
			log.Fatal("schema init failed", zap.Error(err))
		}
		log.Info("schema initialized")
		return
	}

	directory := billing.NewClient(cfg.Billing, log)
	voice := dispatch.NewVoiceClient(cfg.Voice, log)
	sms := dispatch.NewSMSClient(cfg.SMS, log)
	msgs := dispatch.NewCatalog(cfg.Message)

	// Email jobs run inline on the publishing goroutine; a one-shot cron
	// process cannot leave work behind on an in-memory queue.
	q := queue.NewInMemoryQueue(log)
	q.Sync = true
	worker := &service.EmailWorker{Tracker: tracker, Log: log}
	_ = q.Subscribe(queue.EmailOutreachTopic, func(payload []byte) error {
		var job queue.EmailJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil
		}
		return worker.HandleJob(ctx, job)
	})

	batchService := &service.BatchService{
		Tracker:     tracker,
		Matcher:     resolver.New(directory, cfg.Batch.BalanceTolerance, log),
		Classifier:  priority.NewClassifier(directory, cfg.Batch.DeliveryLookaheadDays, log),
		Dispatch:    dispatch.NewDispatcher(voice, sms, msgs, log),
		Msgs:        msgs,
		Directory:   directory,
		Queue:       q,
		Concurrency: cfg.Batch.MatchConcurrency,
		DropDir:     cfg.Batch.CSVDropDir,
		Log:         log,
	}

	result, err := batchService.DailySweep(ctx, *batchID)
	if err != nil {
		log.Fatal("sweep failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatal("encode summary failed", zap.Error(err))
	}
}

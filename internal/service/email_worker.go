package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/model"
	"github.com/ridgewater/outreach-service/internal/queue"
	"github.com/ridgewater/outreach-service/internal/repository"
)

// EmailWorker consumes deferred email outreach jobs. It records the outreach
// attempt so the audit trail covers all three channels.
type EmailWorker struct {
	Tracker repository.BatchTracker
	Log     *zap.Logger
}

// HandleJob processes one email outreach job. Returning an error requeues the
// job, so only tracker failures are surfaced; everything else is final.
func (w *EmailWorker) HandleJob(ctx context.Context, job queue.EmailJob) error {
	// TODO: hand the message off to the transactional email provider once the
	// account team picks one; until then the queued job is recorded only.
	w.Log.Info("email_outreach_processed",
		zap.String("customer_id", job.CustomerID),
		zap.String("batch_id", job.BatchID),
		zap.Float64("total_due", job.TotalDue))

	event := model.OutreachHistoryEvent{
		CustomerID: job.CustomerID,
		BatchID:    job.BatchID,
		Channel:    model.ChannelEmail,
		Priority:   job.Priority,
		RefID:      uuid.NewString(),
		Success:    true,
	}
	if err := w.Tracker.RecordOutreach(ctx, event); err != nil {
		w.Log.Error("email_outreach_record_failed",
			zap.String("customer_id", job.CustomerID), zap.Error(err))
		return err
	}
	return nil
}

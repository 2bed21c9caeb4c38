package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/dispatch"
	appErrors "github.com/ridgewater/outreach-service/internal/errors"
	"github.com/ridgewater/outreach-service/internal/ingest"
	"github.com/ridgewater/outreach-service/internal/model"
	"github.com/ridgewater/outreach-service/internal/priority"
	"github.com/ridgewater/outreach-service/internal/queue"
	"github.com/ridgewater/outreach-service/internal/repository"
)

// Matcher resolves one decline record to a billing customer.
type Matcher interface {
	Match(ctx context.Context, rec model.DeclineRecord) model.CustomerMatch
}

// Classifier computes the outreach urgency tier for one customer.
type Classifier interface {
	Classify(ctx context.Context, customerID, deliveryID string, isRepeatDecline bool) (priority.Result, error)
}

// Outreach is the channel surface the orchestrator drives.
type Outreach interface {
	Call(ctx context.Context, customerPhone string, callType dispatch.CallType, callCtx dispatch.CallContext) (*dispatch.CallHandle, error)
	SMS(ctx context.Context, customerPhone, body string) (*dispatch.MessageHandle, error)
	Status(ctx context.Context, callID string) (*dispatch.CallStatus, error)
}

// BatchService orchestrates the full decline pipeline: CSV ingest with Day-0
// notification, and the recurring daily sweep over unresolved customers.
type BatchService struct {
	Tracker    repository.BatchTracker
	Matcher    Matcher
	Classifier Classifier
	Dispatch   Outreach
	Msgs       *dispatch.Catalog
	Directory  billing.Directory
	Queue      queue.Queue

	Concurrency int
	DropDir     string
	Log         *zap.Logger

	mu         sync.Mutex
	batchLocks map[string]*sync.Mutex
}

// IngestResult summarizes one batch ingestion.
type IngestResult struct {
	BatchID          string `json:"batch_id"`
	CSVFilename      string `json:"csv_filename"`
	TotalRecords     int    `json:"total_records"`
	DeclinedCount    int    `json:"declined_count"`
	MatchedCount     int    `json:"matched_count"`
	SMSSent          int    `json:"sms_sent"`
	AlreadyProcessed bool   `json:"already_processed"`
}

// SweepResult summarizes one daily sweep run.
type SweepResult struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	TotalProcessed  int       `json:"total_processed"`
	CallsInitiated  int       `json:"calls_initiated"`
	CallsFailed     int       `json:"calls_failed"`
	SMSSent         int       `json:"sms_sent"`
	SMSFailed       int       `json:"sms_failed"`
	EmailQueued     int       `json:"email_queued"`
	SkippedPaid     int       `json:"skipped_paid"`
	SkippedInactive int       `json:"skipped_inactive"`
	SkippedNoPhone  int       `json:"skipped_no_phone"`
	Errors          int       `json:"errors"`
}

// lockBatch serializes work on one batch id within this process. Cross-process
// safety comes from the processed_batches primary key.
func (s *BatchService) lockBatch(batchID string) func() {
	s.mu.Lock()
	if s.batchLocks == nil {
		s.batchLocks = make(map[string]*sync.Mutex)
	}
	lock, ok := s.batchLocks[batchID]
	if !ok {
		lock = &sync.Mutex{}
		s.batchLocks[batchID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Ingest processes one payment-processor result CSV: parse, filter declines,
// resolve customers, record state, and send the Day-0 SMS to every match.
// Re-ingesting a processed batch id returns the stored summary untouched.
func (s *BatchService) Ingest(ctx context.Context, csvPath, batchID string) (*IngestResult, error) {
	unlock := s.lockBatch(batchID)
	defer unlock()

	done, err := s.Tracker.IsBatchProcessed(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch idempotency check: %w", err)
	}
	if done {
		stored, err := s.Tracker.GetBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}
		s.Log.Info("batch_already_processed", zap.String("batch_id", batchID))
		return &IngestResult{
			BatchID:          stored.BatchID,
			CSVFilename:      stored.CSVFilename,
			TotalRecords:     stored.TotalRecords,
			DeclinedCount:    stored.DeclinedCount,
			MatchedCount:     stored.MatchedCount,
			SMSSent:          stored.SMSSent,
			AlreadyProcessed: true,
		}, nil
	}

	records, err := ingest.ParseFile(csvPath, batchID)
	if err != nil {
		return nil, err
	}

	declined := []model.DeclineRecord{}
	for _, rec := range records {
		if rec.IsDeclined() {
			declined = append(declined, rec)
		}
	}

	s.Log.Info("batch_ingest_started",
		zap.String("batch_id", batchID),
		zap.Int("total_records", len(records)),
		zap.Int("declined", len(declined)))

	// Resolution fans out over the billing API; everything after runs
	// sequentially because it writes state and sends messages.
	matches := make([]model.CustomerMatch, len(declined))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)
	for i, rec := range declined {
		i, rec := i, rec
		g.Go(func() error {
			matches[i] = s.Matcher.Match(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &IngestResult{
		BatchID:       batchID,
		CSVFilename:   filepath.Base(csvPath),
		TotalRecords:  len(records),
		DeclinedCount: len(declined),
	}

	for i, rec := range declined {
		match := matches[i]
		if !match.Matched {
			continue
		}
		result.MatchedCount++

		repeat, err := s.Tracker.IsRepeatDecline(ctx, match.CustomerID, batchID)
		if err != nil {
			s.Log.Error("repeat_decline_lookup_failed",
				zap.String("customer_id", match.CustomerID), zap.Error(err))
			repeat = false
		}
		tier := model.PriorityMedium
		if repeat {
			tier = model.PriorityHigh
		}

		if err := s.Tracker.RecordCustomerDecline(ctx, match.CustomerID, batchID, rec.Amount, tier); err != nil {
			s.Log.Error("record_decline_failed",
				zap.String("customer_id", match.CustomerID), zap.Error(err))
			continue
		}

		body := s.Msgs.DayZeroSMS(match.CustomerName, rec.Amount, match.TotalDue)
		handle, err := s.Dispatch.SMS(ctx, match.CustomerPhone, body)
		event := model.OutreachHistoryEvent{
			CustomerID: match.CustomerID,
			BatchID:    batchID,
			Channel:    model.ChannelSMS,
			Priority:   tier,
			Success:    err == nil,
		}
		if err != nil {
			event.Error = err.Error()
		} else {
			event.RefID = handle.ID
			result.SMSSent++
		}
		s.recordAttempt(ctx, event)
	}

	if err := s.Tracker.RecordBatchProcessed(ctx, model.ProcessedBatch{
		BatchID:       batchID,
		ProcessedAt:   time.Now().UTC(),
		TotalRecords:  result.TotalRecords,
		DeclinedCount: result.DeclinedCount,
		MatchedCount:  result.MatchedCount,
		SMSSent:       result.SMSSent,
		CSVFilename:   result.CSVFilename,
	}); err != nil {
		return nil, fmt.Errorf("record batch: %w", err)
	}

	s.Log.Info("batch_ingest_finished",
		zap.String("batch_id", batchID),
		zap.Int("matched", result.MatchedCount),
		zap.Int("sms_sent", result.SMSSent))
	return result, nil
}

// CheckDropDir ingests every unprocessed result CSV in the drop directory,
// oldest first.
func (s *BatchService) CheckDropDir(ctx context.Context) ([]IngestResult, error) {
	files, err := ingest.ScanDir(s.DropDir)
	if err != nil {
		return nil, err
	}

	results := []IngestResult{}
	for _, f := range files {
		res, err := s.Ingest(ctx, f.Path, f.BatchID)
		if err != nil {
			s.Log.Error("drop_dir_ingest_failed",
				zap.String("file", f.Path), zap.Error(err))
			continue
		}
		results = append(results, *res)
	}
	return results, nil
}

// DailySweep reclassifies every unresolved customer and takes at most one
// action per customer: resolve, call, SMS, or queue for email. A failure on
// one customer never stops the sweep.
func (s *BatchService) DailySweep(ctx context.Context, batchID string) (*SweepResult, error) {
	result := &SweepResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	customers, err := s.Tracker.GetActiveDeclinedCustomers(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load active customers: %w", err)
	}

	s.Log.Info("daily_sweep_started",
		zap.String("run_id", result.RunID),
		zap.Int("active_customers", len(customers)))

	for _, cust := range customers {
		result.TotalProcessed++
		s.sweepCustomer(ctx, cust, result)
	}

	s.Log.Info("daily_sweep_finished",
		zap.String("run_id", result.RunID),
		zap.Int("calls", result.CallsInitiated),
		zap.Int("sms", result.SMSSent),
		zap.Int("emails_queued", result.EmailQueued),
		zap.Int("resolved", result.SkippedPaid),
		zap.Int("errors", result.Errors))
	return result, nil
}

func (s *BatchService) sweepCustomer(ctx context.Context, cust model.CustomerOutreachRecord, result *SweepResult) {
	details, err := s.Directory.GetCustomerDetails(ctx, cust.CustomerID)
	if err != nil {
		s.Log.Error("sweep_customer_details_failed",
			zap.String("customer_id", cust.CustomerID), zap.Error(err))
		result.Errors++
		return
	}

	isRepeat := cust.RepeatDeclineCount > 0
	res, err := s.Classifier.Classify(ctx, cust.CustomerID, "", isRepeat)
	if err != nil {
		s.Log.Error("sweep_classify_failed",
			zap.String("customer_id", cust.CustomerID), zap.Error(err))
		result.Errors++
		return
	}

	// Resolution check runs first so a paid-up customer is cleared even when
	// the phone number has since left the file. Inactive accounts never get
	// here as paid; the classifier pins their balance as still due.
	if !res.PaymentStillDue {
		if err := s.Tracker.MarkResolved(ctx, cust.CustomerID, cust.BatchID); err != nil {
			s.Log.Error("mark_resolved_failed",
				zap.String("customer_id", cust.CustomerID), zap.Error(err))
			result.Errors++
			return
		}
		s.Log.Info("customer_resolved",
			zap.String("customer_id", cust.CustomerID),
			zap.String("batch_id", cust.BatchID))
		result.SkippedPaid++
		return
	}

	if !res.AccountActive {
		result.SkippedInactive++
		return
	}

	phone := details.Contact.PhoneNumber
	if phone == "" {
		result.SkippedNoPhone++
		return
	}

	switch {
	case res.ShouldCall():
		s.sweepCall(ctx, cust, details, res, phone, result)
	case res.ShouldSMS():
		s.sweepSMS(ctx, cust, details, res, phone, result)
	default:
		s.sweepEmail(ctx, cust, details, res, result)
	}
}

func (s *BatchService) sweepCall(ctx context.Context, cust model.CustomerOutreachRecord, details *billing.CustomerDetails, res priority.Result, phone string, result *SweepResult) {
	callCtx := dispatch.CallContext{
		CustomerID:     cust.CustomerID,
		CustomerName:   details.Name,
		DeclinedAmount: cust.DeclinedAmount,
		AccountBalance: res.TotalDue,
		CallReason:     s.Msgs.DeclinedPaymentReason(cust.DeclinedAmount, res.TotalDue),
	}
	if res.HasDelivery {
		days := res.DaysUntilDelivery
		callCtx.DaysUntilDelivery = &days
		if res.NextDeliveryDate != nil {
			callCtx.DeliveryDate = res.NextDeliveryDate.Format("2006-01-02")
		}
	}

	handle, err := s.Dispatch.Call(ctx, phone, dispatch.CallDeclinedPayment, callCtx)
	event := model.OutreachHistoryEvent{
		CustomerID: cust.CustomerID,
		BatchID:    cust.BatchID,
		Channel:    model.ChannelCall,
		Priority:   res.Tier,
		Success:    err == nil,
	}
	if err != nil {
		event.Error = err.Error()
		result.CallsFailed++
	} else {
		event.RefID = handle.ID
		result.CallsInitiated++
	}
	s.recordAttempt(ctx, event)
}

func (s *BatchService) sweepSMS(ctx context.Context, cust model.CustomerOutreachRecord, details *billing.CustomerDetails, res priority.Result, phone string, result *SweepResult) {
	body := s.Msgs.FollowUpSMS(details.Name, cust.DeclinedAmount, res.TotalDue, res.DaysUntilDelivery, res.HasDelivery)

	handle, err := s.Dispatch.SMS(ctx, phone, body)
	event := model.OutreachHistoryEvent{
		CustomerID: cust.CustomerID,
		BatchID:    cust.BatchID,
		Channel:    model.ChannelSMS,
		Priority:   res.Tier,
		Success:    err == nil,
	}
	if err != nil {
		event.Error = err.Error()
		result.SMSFailed++
	} else {
		event.RefID = handle.ID
		result.SMSSent++
	}
	s.recordAttempt(ctx, event)
}

// sweepEmail defers the customer to the email queue; the worker records the
// outreach once the job actually runs.
func (s *BatchService) sweepEmail(ctx context.Context, cust model.CustomerOutreachRecord, details *billing.CustomerDetails, res priority.Result, result *SweepResult) {
	err := queue.PublishEmailJob(s.Queue, queue.EmailJob{
		CustomerID:     cust.CustomerID,
		BatchID:        cust.BatchID,
		CustomerName:   details.Name,
		DeclinedAmount: cust.DeclinedAmount,
		TotalDue:       res.TotalDue,
		Priority:       res.Tier,
	})
	if err != nil {
		s.Log.Error("email_job_publish_failed",
			zap.String("customer_id", cust.CustomerID), zap.Error(err))
		result.Errors++
		return
	}
	result.EmailQueued++
}

// recordAttempt persists one outreach event. Recording failures are logged
// and swallowed so a tracker hiccup never aborts a sweep mid-run.
func (s *BatchService) recordAttempt(ctx context.Context, event model.OutreachHistoryEvent) {
	if err := s.Tracker.RecordOutreach(ctx, event); err != nil {
		s.Log.Error("record_outreach_failed",
			zap.String("customer_id", event.CustomerID),
			zap.String("channel", string(event.Channel)),
			zap.Error(err))
	}
}

// BatchSummary is the batch row plus its still-unresolved customers.
type BatchSummary struct {
	Batch           model.ProcessedBatch           `json:"batch"`
	ActiveCustomers []model.CustomerOutreachRecord `json:"active_customers"`
}

func (s *BatchService) GetBatchSummary(ctx context.Context, batchID string) (*BatchSummary, error) {
	batch, err := s.Tracker.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, appErrors.NewBatchNotFound(batchID)
	}
	active, err := s.Tracker.GetActiveDeclinedCustomers(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return &BatchSummary{Batch: *batch, ActiveCustomers: active}, nil
}

// GetCustomerHistory lists the audit trail for one customer. An empty batchID
// returns events across all batches.
func (s *BatchService) GetCustomerHistory(ctx context.Context, customerID, batchID string) ([]model.OutreachHistoryEvent, error) {
	return s.Tracker.GetOutreachHistory(ctx, customerID, batchID)
}

// TriggerDeclinedPaymentCall places an immediate declined-payment call for one
// customer, outside any batch or sweep.
func (s *BatchService) TriggerDeclinedPaymentCall(ctx context.Context, customerID string, declinedAmount float64) (*dispatch.CallHandle, error) {
	details, phone, err := s.customerPhone(ctx, customerID)
	if err != nil {
		return nil, err
	}
	totalDue, err := s.Directory.GetAccountBalance(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("account balance: %w", err)
	}

	return s.Dispatch.Call(ctx, phone, dispatch.CallDeclinedPayment, dispatch.CallContext{
		CustomerID:     customerID,
		CustomerName:   details.Name,
		DeclinedAmount: declinedAmount,
		AccountBalance: totalDue,
		CallReason:     s.Msgs.DeclinedPaymentReason(declinedAmount, totalDue),
	})
}

// TriggerCollectionsCall places a collections call for a past-due account.
func (s *BatchService) TriggerCollectionsCall(ctx context.Context, customerID string, pastDueAmount float64, daysPastDue int) (*dispatch.CallHandle, error) {
	details, phone, err := s.customerPhone(ctx, customerID)
	if err != nil {
		return nil, err
	}

	return s.Dispatch.Call(ctx, phone, dispatch.CallCollections, dispatch.CallContext{
		CustomerID:     customerID,
		CustomerName:   details.Name,
		AccountBalance: pastDueAmount,
		CallReason:     s.Msgs.CollectionsReason(pastDueAmount, daysPastDue),
	})
}

// TriggerDeliveryReminder reminds a customer of an upcoming delivery, by call
// or by SMS.
func (s *BatchService) TriggerDeliveryReminder(ctx context.Context, customerID, deliveryDate string, accountOnHold bool, channel model.Channel) (refID string, err error) {
	details, phone, err := s.customerPhone(ctx, customerID)
	if err != nil {
		return "", err
	}

	if channel == model.ChannelSMS {
		body := s.Msgs.DeliveryReminderSMS(details.Name, deliveryDate, accountOnHold)
		handle, err := s.Dispatch.SMS(ctx, phone, body)
		if err != nil {
			return "", err
		}
		return handle.ID, nil
	}

	handle, err := s.Dispatch.Call(ctx, phone, dispatch.CallDeliveryReminder, dispatch.CallContext{
		CustomerID:   customerID,
		CustomerName: details.Name,
		DeliveryDate: deliveryDate,
		CallReason:   s.Msgs.DeliveryReminderReason(deliveryDate, accountOnHold),
	})
	if err != nil {
		return "", err
	}
	return handle.ID, nil
}

// GetCallStatus looks up a call on the voice platform.
func (s *BatchService) GetCallStatus(ctx context.Context, callID string) (*dispatch.CallStatus, error) {
	return s.Dispatch.Status(ctx, callID)
}

func (s *BatchService) customerPhone(ctx context.Context, customerID string) (*billing.CustomerDetails, string, error) {
	details, err := s.Directory.GetCustomerDetails(ctx, customerID)
	if err != nil {
		return nil, "", fmt.Errorf("customer details: %w", err)
	}
	if details.Contact.PhoneNumber == "" {
		return nil, "", fmt.Errorf("customer %s has no phone number on file", customerID)
	}
	return details, details.Contact.PhoneNumber, nil
}

package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/config"
	"github.com/ridgewater/outreach-service/internal/dispatch"
	"github.com/ridgewater/outreach-service/internal/model"
	"github.com/ridgewater/outreach-service/internal/priority"
)

// ====================== fakes ======================

type fakeTracker struct {
	mu      sync.Mutex
	batches map[string]model.ProcessedBatch
	records map[string]*model.CustomerOutreachRecord
	history []model.OutreachHistoryEvent
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		batches: map[string]model.ProcessedBatch{},
		records: map[string]*model.CustomerOutreachRecord{},
	}
}

func recordKey(customerID, batchID string) string { return customerID + "|" + batchID }

func (f *fakeTracker) RecordBatchProcessed(_ context.Context, batch model.ProcessedBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches[batch.BatchID] = batch
	return nil
}

func (f *fakeTracker) IsBatchProcessed(_ context.Context, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.batches[batchID]
	return ok, nil
}

func (f *fakeTracker) GetBatch(_ context.Context, batchID string) (*model.ProcessedBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeTracker) RecordCustomerDecline(_ context.Context, customerID, batchID string, amount float64, priority model.Priority) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	repeat := 0
	for _, r := range f.records {
		if r.CustomerID == customerID && r.BatchID != batchID && !r.IsResolved {
			repeat++
		}
	}
	f.records[recordKey(customerID, batchID)] = &model.CustomerOutreachRecord{
		CustomerID:         customerID,
		BatchID:            batchID,
		DeclinedAmount:     amount,
		FirstDeclinedAt:    time.Now().UTC(),
		CurrentPriority:    priority,
		RepeatDeclineCount: repeat,
	}
	return nil
}

func (f *fakeTracker) RecordOutreach(_ context.Context, event model.OutreachHistoryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	event.ID = int64(len(f.history) + 1)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	f.history = append(f.history, event)
	if r, ok := f.records[recordKey(event.CustomerID, event.BatchID)]; ok {
		at := event.OccurredAt
		ch := event.Channel
		r.LastOutreachAt = &at
		r.LastOutreachType = &ch
		r.CurrentPriority = event.Priority
	}
	return nil
}

func (f *fakeTracker) MarkResolved(_ context.Context, customerID, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[recordKey(customerID, batchID)]; ok {
		r.IsResolved = true
	}
	return nil
}

func (f *fakeTracker) GetActiveDeclinedCustomers(_ context.Context, batchID string) ([]model.CustomerOutreachRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []model.CustomerOutreachRecord{}
	for _, r := range f.records {
		if r.IsResolved {
			continue
		}
		if batchID != "" && r.BatchID != batchID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentPriority.Rank() != out[j].CurrentPriority.Rank() {
			return out[i].CurrentPriority.Rank() > out[j].CurrentPriority.Rank()
		}
		return out[i].FirstDeclinedAt.Before(out[j].FirstDeclinedAt)
	})
	return out, nil
}

func (f *fakeTracker) IsRepeatDecline(_ context.Context, customerID, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.CustomerID == customerID && r.BatchID != batchID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTracker) GetOutreachHistory(_ context.Context, customerID, batchID string) ([]model.OutreachHistoryEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.OutreachHistoryEvent{}
	for _, e := range f.history {
		if e.CustomerID != customerID {
			continue
		}
		if batchID != "" && e.BatchID != batchID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeTracker) eventsFor(customerID string) []model.OutreachHistoryEvent {
	events, _ := f.GetOutreachHistory(context.Background(), customerID, "")
	return events
}

// fakeMatcher resolves by transaction id.
type fakeMatcher struct {
	matches map[string]model.CustomerMatch
}

func (f *fakeMatcher) Match(_ context.Context, rec model.DeclineRecord) model.CustomerMatch {
	if m, ok := f.matches[rec.TransactionID]; ok {
		return m
	}
	return model.NoMatch()
}

// fakeClassifier returns canned results by customer id.
type fakeClassifier struct {
	results map[string]priority.Result
	errs    map[string]error
}

func (f *fakeClassifier) Classify(_ context.Context, customerID, _ string, _ bool) (priority.Result, error) {
	if err, ok := f.errs[customerID]; ok {
		return priority.Result{}, err
	}
	return f.results[customerID], nil
}

// fakeOutreach records dispatched calls and texts.
type fakeOutreach struct {
	mu       sync.Mutex
	calls    []dispatch.CallContext
	sms      []string // bodies
	smsTo    []string
	failCall map[string]bool // keyed by customer id
	failSMS  map[string]bool // keyed by phone
}

func (f *fakeOutreach) Call(_ context.Context, _ string, _ dispatch.CallType, callCtx dispatch.CallContext) (*dispatch.CallHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCall[callCtx.CustomerID] {
		return nil, fmt.Errorf("voice platform unavailable")
	}
	f.calls = append(f.calls, callCtx)
	return &dispatch.CallHandle{ID: fmt.Sprintf("call-%d", len(f.calls)), Status: "queued"}, nil
}

func (f *fakeOutreach) SMS(_ context.Context, customerPhone, body string) (*dispatch.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSMS[customerPhone] {
		return nil, fmt.Errorf("sms provider unavailable")
	}
	f.sms = append(f.sms, body)
	f.smsTo = append(f.smsTo, customerPhone)
	return &dispatch.MessageHandle{ID: fmt.Sprintf("msg-%d", len(f.sms)), Status: "sent"}, nil
}

func (f *fakeOutreach) Status(_ context.Context, callID string) (*dispatch.CallStatus, error) {
	return &dispatch.CallStatus{ID: callID, Status: "ended"}, nil
}

// fakeDirectory serves customer details only; everything else the sweep needs
// comes from the fake classifier.
type fakeDirectory struct {
	details  map[string]*billing.CustomerDetails
	balances map[string]float64
}

func (f *fakeDirectory) SearchCustomers(_ context.Context, _ string) ([]billing.Customer, error) {
	return nil, nil
}

func (f *fakeDirectory) GetCustomerDetails(_ context.Context, customerID string) (*billing.CustomerDetails, error) {
	if d, ok := f.details[customerID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("customer %s not found", customerID)
}

func (f *fakeDirectory) GetAccountBalance(_ context.Context, customerID string) (float64, error) {
	return f.balances[customerID], nil
}

func (f *fakeDirectory) GetDeliveryStops(_ context.Context, _ string, _ int) ([]billing.DeliveryStop, error) {
	return nil, nil
}

func (f *fakeDirectory) GetNextScheduledDelivery(_ context.Context, _, _ string, _ int) (*billing.NextDelivery, error) {
	return nil, nil
}

// fakeQueue collects published payloads synchronously.
type fakeQueue struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakeQueue) Publish(_ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeQueue) Subscribe(_ string, _ func(payload []byte) error) error { return nil }

// ====================== helpers ======================

func testCatalog() *dispatch.Catalog {
	return dispatch.NewCatalog(config.MessageConfig{
		CompanyName:  "Ridgewater Water",
		CompanyPhone: "(800) 555-0137",
		PaymentURL:   "pay.ridgewater.com",
	})
}

func writeBatchCSV(t *testing.T) string {
	t.Helper()
	rows := []string{
		"id,amount,status,response_code,billing_first_name,billing_last_name,billing_phone,billing_email,billing_address_line_1,billing_city,billing_state,billing_postal_code,created_at",
		"TXN-1001,44.78,Declined,200,Sandy,McCoy,4704459854,sandy.mccoy@example.com,12 Lakeview Dr,Marietta,GA,30060,2026-03-02 08:15:00",
		"TXN-1002,25.00,Approved,100,Robert,Ellis,4045550001,robert@example.com,4 Pine St,Atlanta,GA,30301,2026-03-02 08:16:00",
		"TXN-1003,61.20,Declined,223,Dana,Wu,6785550002,dana.wu@example.com,9 Oak Ave,Smyrna,GA,30080,2026-03-02 08:17:00",
	}
	path := filepath.Join(t.TempDir(), "Batch_88101_20260302081500_result.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")), 0o644))
	return path
}

func newTestService(tracker *fakeTracker, matcher *fakeMatcher, classifier *fakeClassifier, out *fakeOutreach, dir *fakeDirectory, q *fakeQueue) *BatchService {
	return &BatchService{
		Tracker:     tracker,
		Matcher:     matcher,
		Classifier:  classifier,
		Dispatch:    out,
		Msgs:        testCatalog(),
		Directory:   dir,
		Queue:       q,
		Concurrency: 2,
		Log:         zap.NewNop(),
	}
}

func sandyMatch() model.CustomerMatch {
	return model.CustomerMatch{
		Matched:       true,
		CustomerID:    "CUST-1",
		DeliveryID:    "DEL-9",
		Method:        model.MatchByPhone,
		Confidence:    model.ConfidenceHigh,
		TotalDue:      98.50,
		CustomerName:  "Sandy McCoy",
		CustomerPhone: "+14704459854",
	}
}

// ====================== ingest ======================

func TestIngest(t *testing.T) {
	tracker := newFakeTracker()
	out := &fakeOutreach{}
	svc := newTestService(tracker,
		&fakeMatcher{matches: map[string]model.CustomerMatch{"TXN-1001": sandyMatch()}},
		&fakeClassifier{}, out, &fakeDirectory{}, &fakeQueue{})

	result, err := svc.Ingest(context.Background(), writeBatchCSV(t), "88101")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 2, result.DeclinedCount) // the approved row is ignored
	assert.Equal(t, 1, result.MatchedCount)  // TXN-1003 has no directory match
	assert.Equal(t, 1, result.SMSSent)
	assert.False(t, result.AlreadyProcessed)

	// Day-0 SMS carries the declined amount and current balance.
	require.Len(t, out.sms, 1)
	assert.Contains(t, out.sms[0], "$44.78")
	assert.Contains(t, out.sms[0], "$98.50")
	assert.Equal(t, "+14704459854", out.smsTo[0])

	// First decline in this batch lands at medium.
	rec := tracker.records[recordKey("CUST-1", "88101")]
	require.NotNil(t, rec)
	assert.Equal(t, model.PriorityMedium, rec.CurrentPriority)
	assert.Equal(t, 0, rec.RepeatDeclineCount)

	events := tracker.eventsFor("CUST-1")
	require.Len(t, events, 1)
	assert.Equal(t, model.ChannelSMS, events[0].Channel)
	assert.True(t, events[0].Success)
}

func TestIngestIdempotent(t *testing.T) {
	tracker := newFakeTracker()
	out := &fakeOutreach{}
	svc := newTestService(tracker,
		&fakeMatcher{matches: map[string]model.CustomerMatch{"TXN-1001": sandyMatch()}},
		&fakeClassifier{}, out, &fakeDirectory{}, &fakeQueue{})

	path := writeBatchCSV(t)
	first, err := svc.Ingest(context.Background(), path, "88101")
	require.NoError(t, err)

	second, err := svc.Ingest(context.Background(), path, "88101")
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.MatchedCount, second.MatchedCount)
	// No second round of texts went out.
	assert.Len(t, out.sms, 1)
}

func TestIngestRepeatDeclineStartsHigh(t *testing.T) {
	tracker := newFakeTracker()
	require.NoError(t, tracker.RecordCustomerDecline(context.Background(), "CUST-1", "77000", 30.00, model.PriorityMedium))

	svc := newTestService(tracker,
		&fakeMatcher{matches: map[string]model.CustomerMatch{"TXN-1001": sandyMatch()}},
		&fakeClassifier{}, &fakeOutreach{}, &fakeDirectory{}, &fakeQueue{})

	_, err := svc.Ingest(context.Background(), writeBatchCSV(t), "88101")
	require.NoError(t, err)

	rec := tracker.records[recordKey("CUST-1", "88101")]
	require.NotNil(t, rec)
	assert.Equal(t, model.PriorityHigh, rec.CurrentPriority)
	assert.Equal(t, 1, rec.RepeatDeclineCount)
}

func TestIngestRecordsFailedSMS(t *testing.T) {
	tracker := newFakeTracker()
	out := &fakeOutreach{failSMS: map[string]bool{"+14704459854": true}}
	svc := newTestService(tracker,
		&fakeMatcher{matches: map[string]model.CustomerMatch{"TXN-1001": sandyMatch()}},
		&fakeClassifier{}, out, &fakeDirectory{}, &fakeQueue{})

	result, err := svc.Ingest(context.Background(), writeBatchCSV(t), "88101")
	require.NoError(t, err)

	assert.Equal(t, 1, result.MatchedCount)
	assert.Equal(t, 0, result.SMSSent)

	events := tracker.eventsFor("CUST-1")
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
	assert.NotEmpty(t, events[0].Error)
}

// ====================== daily sweep ======================

func activeCustomer(tracker *fakeTracker, customerID, batchID string, tier model.Priority) {
	_ = tracker.RecordCustomerDecline(context.Background(), customerID, batchID, 44.78, tier)
}

func activeDetails(ids ...string) *fakeDirectory {
	dir := &fakeDirectory{details: map[string]*billing.CustomerDetails{}}
	for _, id := range ids {
		dir.details[id] = &billing.CustomerDetails{
			CustomerID: id,
			Name:       "Customer " + id,
			Contact:    billing.Contact{PhoneNumber: "+1404555" + id[len(id)-4:]},
		}
	}
	return dir
}

func TestSweepCallsHighPriority(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0001", "88101", model.PriorityHigh)

	out := &fakeOutreach{}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0001": {
			Tier: model.PriorityHigh, AccountActive: true, PaymentStillDue: true,
			TotalDue: 98.50, HasDelivery: true, DaysUntilDelivery: 2,
		},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, out, activeDetails("CUST-0001"), &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.CallsInitiated)
	assert.Equal(t, 0, result.CallsFailed)
	require.Len(t, out.calls, 1)
	assert.Equal(t, "CUST-0001", out.calls[0].CustomerID)
	assert.Contains(t, out.calls[0].CallReason, "$44.78")
	require.NotNil(t, out.calls[0].DaysUntilDelivery)
	assert.Equal(t, 2, *out.calls[0].DaysUntilDelivery)

	events := tracker.eventsFor("CUST-0001")
	require.Len(t, events, 1)
	assert.Equal(t, model.ChannelCall, events[0].Channel)
}

func TestSweepSendsSMSMediumPriority(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0002", "88101", model.PriorityMedium)

	out := &fakeOutreach{}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0002": {
			Tier: model.PriorityMedium, AccountActive: true, PaymentStillDue: true,
			TotalDue: 98.50, HasDelivery: true, DaysUntilDelivery: 5,
		},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, out, activeDetails("CUST-0002"), &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SMSSent)
	require.Len(t, out.sms, 1)
	assert.Contains(t, out.sms[0], "Your next delivery is in 5 days")
}

func TestSweepQueuesEmailLowPriority(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0003", "88101", model.PriorityLow)

	q := &fakeQueue{}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0003": {
			Tier: model.PriorityLow, AccountActive: true, PaymentStillDue: true, TotalDue: 44.78,
		},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, &fakeOutreach{}, activeDetails("CUST-0003"), q)

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.EmailQueued)
	require.Len(t, q.payloads, 1)
	assert.Contains(t, string(q.payloads[0]), "CUST-0003")
}

func TestSweepResolvesPaidCustomer(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0004", "88101", model.PriorityHigh)

	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0004": {Tier: model.PriorityLow, AccountActive: true, PaymentStillDue: false},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, &fakeOutreach{}, activeDetails("CUST-0004"), &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedPaid)
	assert.True(t, tracker.records[recordKey("CUST-0004", "88101")].IsResolved)

	// A resolved customer drops out of the next sweep entirely.
	result, err = svc.DailySweep(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalProcessed)
}

func TestSweepSkipsInactiveAccount(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0005", "88101", model.PriorityHigh)

	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0005": {Tier: model.PriorityLow, AccountActive: false, PaymentStillDue: true},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, &fakeOutreach{}, activeDetails("CUST-0005"), &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.SkippedInactive)
	// Suppressed, not resolved.
	assert.False(t, tracker.records[recordKey("CUST-0005", "88101")].IsResolved)
}

func TestSweepSkipsMissingPhone(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0006", "88101", model.PriorityHigh)

	dir := &fakeDirectory{details: map[string]*billing.CustomerDetails{
		"CUST-0006": {CustomerID: "CUST-0006", Name: "No Phone"},
	}}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0006": {Tier: model.PriorityHigh, AccountActive: true, PaymentStillDue: true},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, &fakeOutreach{}, dir, &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedNoPhone)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0007", "88101", model.PriorityHigh)
	activeCustomer(tracker, "CUST-0008", "88101", model.PriorityMedium)

	out := &fakeOutreach{failCall: map[string]bool{"CUST-0007": true}}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0007": {Tier: model.PriorityHigh, AccountActive: true, PaymentStillDue: true, TotalDue: 98.50},
		"CUST-0008": {Tier: model.PriorityMedium, AccountActive: true, PaymentStillDue: true, TotalDue: 60.00},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, out, activeDetails("CUST-0007", "CUST-0008"), &fakeQueue{})

	result, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalProcessed)
	assert.Equal(t, 1, result.CallsFailed)
	assert.Equal(t, 1, result.SMSSent)

	// The failed call is still on the audit trail.
	events := tracker.eventsFor("CUST-0007")
	require.Len(t, events, 1)
	assert.False(t, events[0].Success)
}

func TestSweepProcessesHighPriorityFirst(t *testing.T) {
	tracker := newFakeTracker()
	activeCustomer(tracker, "CUST-0009", "88101", model.PriorityLow)
	activeCustomer(tracker, "CUST-0010", "88101", model.PriorityHigh)

	out := &fakeOutreach{}
	classifier := &fakeClassifier{results: map[string]priority.Result{
		"CUST-0009": {Tier: model.PriorityLow, AccountActive: true, PaymentStillDue: true},
		"CUST-0010": {Tier: model.PriorityHigh, AccountActive: true, PaymentStillDue: true, TotalDue: 98.50},
	}}
	svc := newTestService(tracker, &fakeMatcher{}, classifier, out, activeDetails("CUST-0009", "CUST-0010"), &fakeQueue{})

	_, err := svc.DailySweep(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, out.calls, 1)
	assert.Equal(t, "CUST-0010", out.calls[0].CustomerID)
}

// ====================== drop dir ======================

func TestCheckDropDir(t *testing.T) {
	dir := t.TempDir()
	rows := "id,amount,status,response_code,billing_first_name,billing_last_name,billing_phone,billing_email,billing_address_line_1,billing_city,billing_state,billing_postal_code,created_at\n" +
		"TXN-1001,44.78,Declined,200,Sandy,McCoy,4704459854,sandy.mccoy@example.com,12 Lakeview Dr,Marietta,GA,30060,2026-03-02 08:15:00\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Batch_88101_20260302081500_result.csv"), []byte(rows), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))

	tracker := newFakeTracker()
	svc := newTestService(tracker,
		&fakeMatcher{matches: map[string]model.CustomerMatch{"TXN-1001": sandyMatch()}},
		&fakeClassifier{}, &fakeOutreach{}, &fakeDirectory{}, &fakeQueue{})
	svc.DropDir = dir

	results, err := svc.CheckDropDir(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "88101", results[0].BatchID)
	assert.Equal(t, 1, results[0].MatchedCount)

	// A second scan re-reports the stored summary without reprocessing.
	results, err = svc.CheckDropDir(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].AlreadyProcessed)
}

// ====================== single-customer triggers ======================

func TestTriggerDeclinedPaymentCall(t *testing.T) {
	out := &fakeOutreach{}
	dir := activeDetails("CUST-0011")
	dir.balances = map[string]float64{"CUST-0011": 98.50}
	svc := newTestService(newFakeTracker(), &fakeMatcher{}, &fakeClassifier{}, out, dir, &fakeQueue{})

	handle, err := svc.TriggerDeclinedPaymentCall(context.Background(), "CUST-0011", 44.78)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ID)

	require.Len(t, out.calls, 1)
	assert.Contains(t, out.calls[0].CallReason, "$44.78 was declined")
	assert.Equal(t, 98.50, out.calls[0].AccountBalance)
}

func TestTriggerDeliveryReminderSMS(t *testing.T) {
	out := &fakeOutreach{}
	svc := newTestService(newFakeTracker(), &fakeMatcher{}, &fakeClassifier{}, out, activeDetails("CUST-0012"), &fakeQueue{})

	refID, err := svc.TriggerDeliveryReminder(context.Background(), "CUST-0012", "2026-03-04", true, model.ChannelSMS)
	require.NoError(t, err)
	assert.NotEmpty(t, refID)

	require.Len(t, out.sms, 1)
	assert.Contains(t, out.sms[0], "cannot be completed")
}

func TestTriggerFailsWithoutPhone(t *testing.T) {
	dir := &fakeDirectory{details: map[string]*billing.CustomerDetails{
		"CUST-0013": {CustomerID: "CUST-0013", Name: "No Phone"},
	}}
	svc := newTestService(newFakeTracker(), &fakeMatcher{}, &fakeClassifier{}, &fakeOutreach{}, dir, &fakeQueue{})

	_, err := svc.TriggerDeclinedPaymentCall(context.Background(), "CUST-0013", 44.78)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no phone number")
}

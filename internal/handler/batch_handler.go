package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/dispatch"
	appErrors "github.com/ridgewater/outreach-service/internal/errors"
	"github.com/ridgewater/outreach-service/internal/model"
	"github.com/ridgewater/outreach-service/internal/service"
)

// BatchOrchestrator is the service surface the HTTP layer exposes.
type BatchOrchestrator interface {
	Ingest(ctx context.Context, csvPath, batchID string) (*service.IngestResult, error)
	CheckDropDir(ctx context.Context) ([]service.IngestResult, error)
	DailySweep(ctx context.Context, batchID string) (*service.SweepResult, error)
	GetBatchSummary(ctx context.Context, batchID string) (*service.BatchSummary, error)
	GetCustomerHistory(ctx context.Context, customerID, batchID string) ([]model.OutreachHistoryEvent, error)
	TriggerDeclinedPaymentCall(ctx context.Context, customerID string, declinedAmount float64) (*dispatch.CallHandle, error)
	TriggerCollectionsCall(ctx context.Context, customerID string, pastDueAmount float64, daysPastDue int) (*dispatch.CallHandle, error)
	TriggerDeliveryReminder(ctx context.Context, customerID, deliveryDate string, accountOnHold bool, channel model.Channel) (string, error)
	GetCallStatus(ctx context.Context, callID string) (*dispatch.CallStatus, error)
}

// BatchHandler holds the dependencies for the admin HTTP handlers.
type BatchHandler struct {
	Service  BatchOrchestrator
	APIKey   string
	Validate *validator.Validate
	Log      *zap.Logger
}

func NewBatchHandler(svc BatchOrchestrator, apiKey string, log *zap.Logger) *BatchHandler {
	return &BatchHandler{
		Service:  svc,
		APIKey:   apiKey,
		Validate: validator.New(),
		Log:      log,
	}
}

// Routes mounts every admin endpoint behind the API-key middleware.
func (h *BatchHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireAPIKey)

	r.Post("/batch/ingest", h.IngestBatch)
	r.Post("/batch/check-files", h.CheckFiles)
	r.Post("/batch/daily-outreach", h.DailyOutreach)
	r.Get("/batch/{batchID}", h.GetBatch)
	r.Get("/batch/customers/{customerID}/history", h.CustomerHistory)

	r.Post("/outbound/declined-payment", h.DeclinedPaymentCall)
	r.Post("/outbound/collections", h.CollectionsCall)
	r.Post("/outbound/delivery-reminder", h.DeliveryReminder)
	r.Get("/outbound/call-status/{callID}", h.CallStatus)

	return r
}

// requireAPIKey rejects requests without the admin key. An empty configured
// key disables the check for local development.
func (h *BatchHandler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.APIKey != "" && r.Header.Get("X-API-Key") != h.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IngestBatch processes one result CSV by path.
func (h *BatchHandler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CSVPath string `json:"csv_path" validate:"required"`
		BatchID string `json:"batch_id" validate:"required"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	result, err := h.Service.Ingest(r.Context(), payload.CSVPath, payload.BatchID)
	if err != nil {
		http.Error(w, "failed to ingest batch: "+err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.AlreadyProcessed {
		status = http.StatusOK
	}
	h.respond(w, status, result)
}

// CheckFiles scans the drop directory and ingests any unprocessed batch files.
func (h *BatchHandler) CheckFiles(w http.ResponseWriter, r *http.Request) {
	results, err := h.Service.CheckDropDir(r.Context())
	if err != nil {
		http.Error(w, "failed to scan drop dir: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"ingested": results})
}

// DailyOutreach runs one sweep, optionally scoped to a batch.
func (h *BatchHandler) DailyOutreach(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BatchID string `json:"batch_id"`
	}
	// Body is optional; an empty body sweeps all batches.
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}

	result, err := h.Service.DailySweep(r.Context(), payload.BatchID)
	if err != nil {
		http.Error(w, "sweep failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// GetBatch returns the batch summary and its unresolved customers.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	summary, err := h.Service.GetBatchSummary(r.Context(), batchID)
	if err != nil {
		var notFound *appErrors.ErrBatchNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch batch: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, summary)
}

// CustomerHistory returns the outreach audit trail for one customer,
// optionally scoped with ?batch_id=.
func (h *BatchHandler) CustomerHistory(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	batchID := r.URL.Query().Get("batch_id")

	events, err := h.Service.GetCustomerHistory(r.Context(), customerID, batchID)
	if err != nil {
		http.Error(w, "failed to fetch history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"customer_id": customerID,
		"events":      events,
	})
}

// DeclinedPaymentCall places an immediate declined-payment call.
func (h *BatchHandler) DeclinedPaymentCall(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CustomerID     string  `json:"customer_id" validate:"required"`
		DeclinedAmount float64 `json:"declined_amount" validate:"gte=0"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	handle, err := h.Service.TriggerDeclinedPaymentCall(r.Context(), payload.CustomerID, payload.DeclinedAmount)
	if err != nil {
		http.Error(w, "failed to initiate call: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusCreated, handle)
}

// CollectionsCall places a collections call.
func (h *BatchHandler) CollectionsCall(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CustomerID    string  `json:"customer_id" validate:"required"`
		PastDueAmount float64 `json:"past_due_amount" validate:"gt=0"`
		DaysPastDue   int     `json:"days_past_due" validate:"gte=0"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	handle, err := h.Service.TriggerCollectionsCall(r.Context(), payload.CustomerID, payload.PastDueAmount, payload.DaysPastDue)
	if err != nil {
		http.Error(w, "failed to initiate call: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusCreated, handle)
}

// DeliveryReminder sends a delivery reminder by call or SMS.
func (h *BatchHandler) DeliveryReminder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CustomerID    string `json:"customer_id" validate:"required"`
		DeliveryDate  string `json:"delivery_date" validate:"required"`
		AccountOnHold bool   `json:"account_on_hold"`
		Channel       string `json:"channel" validate:"omitempty,oneof=call sms"`
	}
	if !h.decode(w, r, &payload) {
		return
	}

	channel := model.ChannelCall
	if payload.Channel == "sms" {
		channel = model.ChannelSMS
	}

	refID, err := h.Service.TriggerDeliveryReminder(r.Context(), payload.CustomerID, payload.DeliveryDate, payload.AccountOnHold, channel)
	if err != nil {
		http.Error(w, "failed to send reminder: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusCreated, map[string]string{
		"ref_id":  refID,
		"channel": string(channel),
	})
}

// CallStatus looks up a call on the voice platform.
func (h *BatchHandler) CallStatus(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")

	status, err := h.Service.GetCallStatus(r.Context(), callID)
	if err != nil {
		http.Error(w, "failed to fetch call status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, http.StatusOK, status)
}

// decode parses and validates a JSON body, writing the error response itself.
func (h *BatchHandler) decode(w http.ResponseWriter, r *http.Request, payload any) bool {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := h.Validate.Struct(payload); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *BatchHandler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Log.Error("response_encode_failed", zap.Error(err))
	}
}

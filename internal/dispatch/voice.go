// internal/dispatch/voice.go
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/config"
)

// CallHandle is the voice platform's reference for an initiated call.
type CallHandle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CallStatus is the live state of a previously initiated call.
type CallStatus struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Duration  float64 `json:"duration"`
	StartedAt string  `json:"startedAt"`
	EndedAt   string  `json:"endedAt"`
}

// CallContext is the metadata handed to the voice assistant so it knows who
// it is calling and why.
type CallContext struct {
	CustomerID        string   `json:"customer_id"`
	CustomerName      string   `json:"customer_name"`
	DeclinedAmount    float64  `json:"declined_amount,omitempty"`
	AccountBalance    float64  `json:"account_balance,omitempty"`
	DaysUntilDelivery *int     `json:"days_until_delivery,omitempty"`
	DeliveryDate      string   `json:"delivery_date,omitempty"`
	CallReason        string   `json:"call_reason_summary"`
	CallType          CallType `json:"call_type"`
	IdempotencyKey    string   `json:"idempotency_key"`
}

// VoiceClient talks to the outbound AI call platform. The platform-side
// phone-number id is fetched once and cached for the client's lifetime.
type VoiceClient struct {
	baseURL     string
	apiKey      string
	assistantID string
	httpc       *http.Client
	log         *zap.Logger

	mu            sync.Mutex
	phoneNumberID string
}

func NewVoiceClient(cfg config.VoiceConfig, log *zap.Logger) *VoiceClient {
	return &VoiceClient{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		httpc:       &http.Client{Timeout: cfg.Timeout},
		log:         log,
	}
}

func (c *VoiceClient) getPhoneNumberID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phoneNumberID != "" {
		return c.phoneNumberID, nil
	}

	body, err := c.do(ctx, http.MethodGet, "/phone-number", nil)
	if err != nil {
		return "", err
	}
	var phones []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &phones); err != nil {
		return "", fmt.Errorf("decode phone numbers: %w", err)
	}
	if len(phones) == 0 {
		return "", fmt.Errorf("no phone number provisioned on voice platform")
	}
	c.phoneNumberID = phones[0].ID
	c.log.Info("voice_phone_number_cached", zap.String("phone_id", c.phoneNumberID))
	return c.phoneNumberID, nil
}

// InitiateCall starts an outbound AI call. Calls are billed external actions;
// the caller must not retry blindly on failure.
func (c *VoiceClient) InitiateCall(ctx context.Context, customerPhone string, callType CallType, callCtx CallContext) (*CallHandle, error) {
	phoneID, err := c.getPhoneNumberID(ctx)
	if err != nil {
		return nil, err
	}

	callCtx.CallType = callType
	payload := map[string]any{
		"assistantId":   c.assistantID,
		"phoneNumberId": phoneID,
		"customer": map[string]string{
			"number": customerPhone,
			"name":   callCtx.CustomerName,
		},
		"metadata": callCtx,
	}

	c.log.Info("initiating_outbound_call",
		zap.String("call_type", string(callType)),
		zap.String("customer_id", callCtx.CustomerID))

	body, err := c.do(ctx, http.MethodPost, "/call/phone", payload)
	if err != nil {
		return nil, err
	}
	var handle CallHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return nil, fmt.Errorf("decode call response: %w", err)
	}
	c.log.Info("outbound_call_initiated",
		zap.String("call_id", handle.ID),
		zap.String("status", handle.Status))
	return &handle, nil
}

// GetCallStatus fetches the live state of a call.
func (c *VoiceClient) GetCallStatus(ctx context.Context, callID string) (*CallStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/call/"+callID, nil)
	if err != nil {
		return nil, err
	}
	var status CallStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode call status: %w", err)
	}
	return &status, nil
}

func (c *VoiceClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voice platform request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read voice platform response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.log.Error("voice_platform_error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(started)))
		return nil, fmt.Errorf("voice platform %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

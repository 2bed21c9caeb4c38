// internal/dispatch/sms.go
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/config"
)

// MessageHandle is the SMS provider's reference for a sent message.
type MessageHandle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SMSClient talks to the SMS provider's REST API.
type SMSClient struct {
	baseURL    string
	apiKey     string
	fromNumber string
	httpc      *http.Client
	log        *zap.Logger
}

func NewSMSClient(cfg config.SMSConfig, log *zap.Logger) *SMSClient {
	return &SMSClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		httpc:      &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

// SendSMS sends one text message. Texts are billed external actions; the
// caller must not retry blindly on failure.
func (c *SMSClient) SendSMS(ctx context.Context, toNumber, body string) (*MessageHandle, error) {
	if toNumber == "" {
		return nil, fmt.Errorf("missing destination phone number")
	}

	payload := map[string]string{
		"from": c.fromNumber,
		"to":   toNumber,
		"body": body,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Info("sending_sms", zap.String("to", toNumber), zap.Int("length", len(body)))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms provider request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sms provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.log.Error("sms_send_failed",
			zap.String("to", toNumber),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("sms provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var handle MessageHandle
	if err := json.Unmarshal(respBody, &handle); err != nil {
		return nil, fmt.Errorf("decode sms response: %w", err)
	}
	c.log.Info("sms_sent", zap.String("message_id", handle.ID), zap.String("to", toNumber))
	return &handle, nil
}

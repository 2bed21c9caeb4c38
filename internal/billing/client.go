// internal/billing/client.go
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/config"
)

// Directory is the slice of the billing/CRM API the outreach pipeline consumes.
type Directory interface {
	SearchCustomers(ctx context.Context, query string) ([]Customer, error)
	GetCustomerDetails(ctx context.Context, customerID string) (*CustomerDetails, error)
	GetAccountBalance(ctx context.Context, customerID string) (float64, error)
	GetDeliveryStops(ctx context.Context, customerID string, take int) ([]DeliveryStop, error)
	GetNextScheduledDelivery(ctx context.Context, customerID, deliveryID string, daysAhead int) (*NextDelivery, error)
}

// Client talks JSON-over-HTTPS to the billing directory with a static API key.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *zap.Logger
}

// NewClient builds a billing client from config. The http.Client timeout is
// the per-call deadline; callers add context deadlines on top where needed.
func NewClient(cfg config.BillingConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpc:   &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

func (c *Client) SearchCustomers(ctx context.Context, query string) ([]Customer, error) {
	params := url.Values{"q": {query}}
	raw, err := c.get(ctx, "/customers/search", params)
	if err != nil {
		return nil, err
	}
	var customers customerList
	if err := json.Unmarshal(raw, &customers); err != nil {
		return nil, fmt.Errorf("decode customer search: %w", err)
	}
	return customers, nil
}

func (c *Client) GetCustomerDetails(ctx context.Context, customerID string) (*CustomerDetails, error) {
	raw, err := c.get(ctx, "/customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		return nil, err
	}
	var details CustomerDetails
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("decode customer details: %w", err)
	}
	return &details, nil
}

func (c *Client) GetAccountBalance(ctx context.Context, customerID string) (float64, error) {
	raw, err := c.get(ctx, "/customers/"+url.PathEscape(customerID)+"/balances", nil)
	if err != nil {
		return 0, err
	}
	var payload balancePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return payload.TotalDueBalance, nil
}

func (c *Client) GetDeliveryStops(ctx context.Context, customerID string, take int) ([]DeliveryStop, error) {
	params := url.Values{}
	if take > 0 {
		params.Set("take", strconv.Itoa(take))
	}
	raw, err := c.get(ctx, "/customers/"+url.PathEscape(customerID)+"/delivery-stops", params)
	if err != nil {
		return nil, err
	}
	var payload deliveryStopsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode delivery stops: %w", err)
	}
	return payload.DeliveryStops, nil
}

func (c *Client) GetNextScheduledDelivery(ctx context.Context, customerID, deliveryID string, daysAhead int) (*NextDelivery, error) {
	params := url.Values{
		"deliveryId": {deliveryID},
		"daysAhead":  {strconv.Itoa(daysAhead)},
	}
	raw, err := c.get(ctx, "/customers/"+url.PathEscape(customerID)+"/next-delivery", params)
	if err != nil {
		return nil, err
	}
	var payload NextDelivery
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode next delivery: %w", err)
	}
	return &payload, nil
}

// get performs an authenticated GET and unwraps the response envelope.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("billing API request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read billing API response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warn("billing_api_error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("billing API %s returned %d", path, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode billing API envelope: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("billing API %s unsuccessful: %s", path, env.Message)
	}
	return env.Data, nil
}

var _ Directory = (*Client)(nil)

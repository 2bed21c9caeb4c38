// internal/billing/types.go
package billing

import "encoding/json"

// Customer is one directory search result.
type Customer struct {
	CustomerID string  `json:"customerId"`
	Name       string  `json:"name"`
	Contact    Contact `json:"contact"`
	Address    string  `json:"address"`
}

// Contact holds the customer's phone and email on file.
type Contact struct {
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

// CustomerDetails is the full customer record, including account status.
type CustomerDetails struct {
	CustomerID string  `json:"customerId"`
	Name       string  `json:"name"`
	Contact    Contact `json:"contact"`
	Status     string  `json:"status"`
}

// Active reports whether the account can still receive deliveries. The API
// omits status for active accounts, so only an explicit flag deactivates.
func (d CustomerDetails) Active() bool {
	switch d.Status {
	case "inactive", "closed", "cancelled":
		return false
	}
	return true
}

// DeliveryStop is one stop on the customer's delivery route.
type DeliveryStop struct {
	DeliveryID string `json:"deliveryId"`
}

// NextDelivery is the next scheduled delivery for a stop. DeliveryDate is
// either an ISO timestamp or a plain YYYY-MM-DD string.
type NextDelivery struct {
	DeliveryDate string `json:"deliveryDate"`
}

// envelope is the {"success": ..., "data": ...} wrapper every billing API
// response carries.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type balancePayload struct {
	TotalDueBalance float64 `json:"totalDueBalance"`
}

type deliveryStopsPayload struct {
	DeliveryStops []DeliveryStop `json:"deliveryStops"`
}

// customerList tolerates both wire shapes the directory search returns:
// a bare array, or an object with a nested "data" array.
type customerList []Customer

func (c *customerList) UnmarshalJSON(raw []byte) error {
	var direct []Customer
	if err := json.Unmarshal(raw, &direct); err == nil {
		*c = direct
		return nil
	}
	var nested struct {
		Data []Customer `json:"data"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return err
	}
	*c = nested.Data
	return nil
}

// internal/model/decline.go
package model

import "strings"

// Response codes the payment processor uses for card declines. Rows carrying
// any other code are not treated as declines even when flagged "declined".
var declineResponseCodes = map[string]bool{
	"200": true,
	"201": true,
	"202": true,
	"222": true,
	"223": true,
}

// DeclineRecord is one parsed row of a declined-payment CSV. It only lives
// for the duration of a batch run; the durable state is CustomerOutreachRecord.
type DeclineRecord struct {
	TransactionID    string
	Amount           float64
	Status           string
	ResponseCode     string
	BillingFirstName string
	BillingLastName  string
	BillingPhone     string
	BillingEmail     string
	BillingAddress   string
	BillingCity      string
	BillingState     string
	BillingPostal    string
	CreatedAt        string
	BatchID          string
}

// FullName joins the billing first and last name.
func (r DeclineRecord) FullName() string {
	return strings.TrimSpace(r.BillingFirstName + " " + r.BillingLastName)
}

// FullAddress joins the non-empty address parts for directory search.
func (r DeclineRecord) FullAddress() string {
	parts := []string{}
	for _, p := range []string{r.BillingAddress, r.BillingCity, r.BillingState, r.BillingPostal} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// IsDeclined reports whether the row is a recognized card decline.
func (r DeclineRecord) IsDeclined() bool {
	return strings.EqualFold(r.Status, "declined") && declineResponseCodes[r.ResponseCode]
}

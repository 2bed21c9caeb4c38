// internal/model/match.go
package model

// MatchMethod identifies which resolution strategy confirmed a match.
type MatchMethod string

const (
	MatchByPhone       MatchMethod = "phone"
	MatchByEmail       MatchMethod = "email"
	MatchByNameAddress MatchMethod = "name_address"
)

// Confidence labels how strong a confirmed match is. Phone and email hits are
// high, name+address is medium because the token filter is a looser heuristic.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CustomerMatch is the resolution result for one DeclineRecord. It is consumed
// immediately by the orchestrator and never persisted as its own row.
type CustomerMatch struct {
	Matched       bool        `json:"matched"`
	CustomerID    string      `json:"customer_id,omitempty"`
	DeliveryID    string      `json:"delivery_id,omitempty"`
	Method        MatchMethod `json:"match_method,omitempty"`
	Confidence    Confidence  `json:"confidence,omitempty"`
	TotalDue      float64     `json:"total_due,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
}

// NoMatch is the expected, non-error outcome when no strategy confirms a customer.
func NoMatch() CustomerMatch {
	return CustomerMatch{Matched: false, Confidence: ConfidenceLow}
}

// internal/model/outreach.go
package model

import "time"

// Channel is the medium used for one outreach attempt.
type Channel string

const (
	ChannelCall  Channel = "call"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ProcessedBatch is written once per ingested CSV and doubles as the
// idempotency guard: re-ingesting a known batch id is a no-op.
type ProcessedBatch struct {
	BatchID       string    `db:"batch_id" json:"batch_id"`
	ProcessedAt   time.Time `db:"processed_at" json:"processed_at"`
	TotalRecords  int       `db:"total_records" json:"total_records"`
	DeclinedCount int       `db:"declined_count" json:"declined_count"`
	MatchedCount  int       `db:"matched_count" json:"matched_count"`
	SMSSent       int       `db:"sms_sent" json:"sms_sent"`
	CSVFilename   string    `db:"csv_filename" json:"csv_filename"`
}

// CustomerOutreachRecord is the durable unit of state, keyed by
// (customer id, batch id). The resolved flag is a soft delete: resolved rows
// are excluded from sweeps but kept for audit and repeat-decline lookups.
type CustomerOutreachRecord struct {
	CustomerID         string     `db:"customer_id" json:"customer_id"`
	BatchID            string     `db:"batch_id" json:"batch_id"`
	DeclinedAmount     float64    `db:"declined_amount" json:"declined_amount"`
	FirstDeclinedAt    time.Time  `db:"first_declined_at" json:"first_declined_at"`
	LastOutreachAt     *time.Time `db:"last_outreach_at" json:"last_outreach_at,omitempty"`
	LastOutreachType   *Channel   `db:"last_outreach_type" json:"last_outreach_type,omitempty"`
	CurrentPriority    Priority   `db:"current_priority" json:"current_priority"`
	IsResolved         bool       `db:"is_resolved" json:"is_resolved"`
	RepeatDeclineCount int        `db:"repeat_decline_count" json:"repeat_decline_count"`
}

// OutreachHistoryEvent is one append-only audit row per outreach attempt.
type OutreachHistoryEvent struct {
	ID         int64     `db:"id" json:"id"`
	CustomerID string    `db:"customer_id" json:"customer_id"`
	BatchID    string    `db:"batch_id" json:"batch_id"`
	Channel    Channel   `db:"channel" json:"channel"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
	Priority   Priority  `db:"priority" json:"priority"`
	RefID      string    `db:"ref_id" json:"ref_id,omitempty"`
	Success    bool      `db:"success" json:"success"`
	Error      string    `db:"error_message" json:"error_message,omitempty"`
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ridgewater/outreach-service/internal/model"
)

// BatchTracker is the only component allowed to mutate durable outreach state.
type BatchTracker interface {
	// Batches
	RecordBatchProcessed(ctx context.Context, batch model.ProcessedBatch) error
	IsBatchProcessed(ctx context.Context, batchID string) (bool, error)
	GetBatch(ctx context.Context, batchID string) (*model.ProcessedBatch, error)

	// Customer outreach records
	RecordCustomerDecline(ctx context.Context, customerID, batchID string, amount float64, priority model.Priority) error
	RecordOutreach(ctx context.Context, event model.OutreachHistoryEvent) error
	MarkResolved(ctx context.Context, customerID, batchID string) error
	GetActiveDeclinedCustomers(ctx context.Context, batchID string) ([]model.CustomerOutreachRecord, error)
	IsRepeatDecline(ctx context.Context, customerID, batchID string) (bool, error)
	GetOutreachHistory(ctx context.Context, customerID, batchID string) ([]model.OutreachHistoryEvent, error)
}

type PostgresTracker struct {
	DB *sql.DB
}

// ====================== Batches ======================

// RecordBatchProcessed upserts the batch row; re-recording the same batch id
// overwrites the counts rather than erroring, keeping ingestion idempotent.
func (t *PostgresTracker) RecordBatchProcessed(ctx context.Context, batch model.ProcessedBatch) error {
	query := `
        INSERT INTO processed_batches
        (batch_id, processed_at, total_records, declined_count, matched_count, sms_sent, csv_filename)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (batch_id) DO UPDATE SET
            processed_at = EXCLUDED.processed_at,
            total_records = EXCLUDED.total_records,
            declined_count = EXCLUDED.declined_count,
            matched_count = EXCLUDED.matched_count,
            sms_sent = EXCLUDED.sms_sent,
            csv_filename = EXCLUDED.csv_filename
    `
	_, err := t.DB.ExecContext(ctx, query,
		batch.BatchID, batch.ProcessedAt, batch.TotalRecords,
		batch.DeclinedCount, batch.MatchedCount, batch.SMSSent, batch.CSVFilename)
	return err
}

func (t *PostgresTracker) IsBatchProcessed(ctx context.Context, batchID string) (bool, error) {
	var one int
	err := t.DB.QueryRowContext(ctx,
		`SELECT 1 FROM processed_batches WHERE batch_id = $1`, batchID).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (t *PostgresTracker) GetBatch(ctx context.Context, batchID string) (*model.ProcessedBatch, error) {
	query := `
        SELECT batch_id, processed_at, total_records, declined_count, matched_count, sms_sent, csv_filename
        FROM processed_batches WHERE batch_id = $1
    `
	var b model.ProcessedBatch
	err := t.DB.QueryRowContext(ctx, query, batchID).Scan(
		&b.BatchID, &b.ProcessedAt, &b.TotalRecords,
		&b.DeclinedCount, &b.MatchedCount, &b.SMSSent, &b.CSVFilename)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// ====================== Customer outreach ======================

// RecordCustomerDecline upserts the (customer, batch) record. The repeat
// counter is the number of unresolved rows the customer already has under
// other batch ids at the time of recording.
func (t *PostgresTracker) RecordCustomerDecline(ctx context.Context, customerID, batchID string, amount float64, priority model.Priority) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var repeatCount int
	err = tx.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM customer_outreach
        WHERE customer_id = $1 AND batch_id <> $2 AND is_resolved = FALSE
    `, customerID, batchID).Scan(&repeatCount)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        INSERT INTO customer_outreach
        (customer_id, batch_id, declined_amount, first_declined_at, current_priority, is_resolved, repeat_decline_count)
        VALUES ($1, $2, $3, $4, $5, FALSE, $6)
        ON CONFLICT (customer_id, batch_id) DO UPDATE SET
            declined_amount = EXCLUDED.declined_amount,
            current_priority = EXCLUDED.current_priority
    `, customerID, batchID, amount, time.Now().UTC(), priority, repeatCount)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RecordOutreach appends the history event and refreshes the record's
// last-outreach summary in one transaction, so the audit trail and the
// summary can never disagree.
func (t *PostgresTracker) RecordOutreach(ctx context.Context, event model.OutreachHistoryEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO outreach_history
        (customer_id, batch_id, channel, occurred_at, priority, ref_id, success, error_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, event.CustomerID, event.BatchID, event.Channel, event.OccurredAt,
		event.Priority, event.RefID, event.Success, event.Error)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE customer_outreach
        SET last_outreach_at = $1, last_outreach_type = $2, current_priority = $3
        WHERE customer_id = $4 AND batch_id = $5
    `, event.OccurredAt, event.Channel, event.Priority, event.CustomerID, event.BatchID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// MarkResolved soft-deletes the record: it drops out of sweep queries but
// stays on disk for audit and repeat-decline lookups.
func (t *PostgresTracker) MarkResolved(ctx context.Context, customerID, batchID string) error {
	_, err := t.DB.ExecContext(ctx, `
        UPDATE customer_outreach SET is_resolved = TRUE
        WHERE customer_id = $1 AND batch_id = $2
    `, customerID, batchID)
	return err
}

// GetActiveDeclinedCustomers returns unresolved records, highest priority
// first, oldest decline first within a tier. batchID == "" means all batches.
func (t *PostgresTracker) GetActiveDeclinedCustomers(ctx context.Context, batchID string) ([]model.CustomerOutreachRecord, error) {
	query := `
        SELECT customer_id, batch_id, declined_amount, first_declined_at,
               last_outreach_at, last_outreach_type, current_priority, is_resolved, repeat_decline_count
        FROM customer_outreach
        WHERE is_resolved = FALSE
    `
	args := []interface{}{}
	if batchID != "" {
		query += ` AND batch_id = $1`
		args = append(args, batchID)
	}
	query += `
        ORDER BY CASE current_priority
            WHEN 'high' THEN 3
            WHEN 'medium' THEN 2
            ELSE 1
        END DESC, first_declined_at ASC
    `

	rows, err := t.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.CustomerOutreachRecord{}
	for rows.Next() {
		var r model.CustomerOutreachRecord
		var lastAt sql.NullTime
		var lastType sql.NullString
		if err := rows.Scan(&r.CustomerID, &r.BatchID, &r.DeclinedAmount, &r.FirstDeclinedAt,
			&lastAt, &lastType, &r.CurrentPriority, &r.IsResolved, &r.RepeatDeclineCount); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			r.LastOutreachAt = &lastAt.Time
		}
		if lastType.Valid {
			ch := model.Channel(lastType.String)
			r.LastOutreachType = &ch
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// IsRepeatDecline reports whether the customer has any row under a different
// batch id, resolved or not.
func (t *PostgresTracker) IsRepeatDecline(ctx context.Context, customerID, batchID string) (bool, error) {
	var count int
	err := t.DB.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM customer_outreach
        WHERE customer_id = $1 AND batch_id <> $2
    `, customerID, batchID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetOutreachHistory lists the append-only audit trail for a customer,
// newest first. batchID == "" returns events across all batches.
func (t *PostgresTracker) GetOutreachHistory(ctx context.Context, customerID, batchID string) ([]model.OutreachHistoryEvent, error) {
	query := `
        SELECT id, customer_id, batch_id, channel, occurred_at, priority, ref_id, success, error_message
        FROM outreach_history
        WHERE customer_id = $1
    `
	args := []interface{}{customerID}
	if batchID != "" {
		query += ` AND batch_id = $2`
		args = append(args, batchID)
	}
	query += ` ORDER BY occurred_at DESC`

	rows, err := t.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.OutreachHistoryEvent{}
	for rows.Next() {
		var e model.OutreachHistoryEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.BatchID, &e.Channel, &e.OccurredAt,
			&e.Priority, &e.RefID, &e.Success, &e.Error); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

var _ BatchTracker = (*PostgresTracker)(nil)

// InitSchema creates the three tracking tables and their indexes.
func (t *PostgresTracker) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS processed_batches (
            batch_id TEXT PRIMARY KEY,
            processed_at TIMESTAMPTZ NOT NULL,
            total_records INTEGER NOT NULL,
            declined_count INTEGER NOT NULL,
            matched_count INTEGER NOT NULL,
            sms_sent INTEGER NOT NULL,
            csv_filename TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS customer_outreach (
            customer_id TEXT NOT NULL,
            batch_id TEXT NOT NULL,
            declined_amount DOUBLE PRECISION NOT NULL,
            first_declined_at TIMESTAMPTZ NOT NULL,
            last_outreach_at TIMESTAMPTZ,
            last_outreach_type TEXT,
            current_priority TEXT NOT NULL,
            is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
            repeat_decline_count INTEGER NOT NULL DEFAULT 0,
            PRIMARY KEY (customer_id, batch_id)
        )`,
		`CREATE TABLE IF NOT EXISTS outreach_history (
            id BIGSERIAL PRIMARY KEY,
            customer_id TEXT NOT NULL,
            batch_id TEXT NOT NULL,
            channel TEXT NOT NULL,
            occurred_at TIMESTAMPTZ NOT NULL,
            priority TEXT NOT NULL,
            ref_id TEXT NOT NULL DEFAULT '',
            success BOOLEAN NOT NULL DEFAULT TRUE,
            error_message TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE INDEX IF NOT EXISTS idx_customer_outreach_customer_id ON customer_outreach(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_customer_outreach_resolved ON customer_outreach(is_resolved)`,
		`CREATE INDEX IF NOT EXISTS idx_outreach_history_customer_id ON outreach_history(customer_id)`,
	}

	for _, stmt := range statements {
		if _, err := t.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

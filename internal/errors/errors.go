// internal/errors/errors.go
package appErrors

import "fmt"

// ErrBatchNotFound is returned when a batch id has no processed_batches row.
type ErrBatchNotFound struct {
	BatchID string
}

func (e *ErrBatchNotFound) Error() string {
	return fmt.Sprintf("batch %s not found", e.BatchID)
}

// Helper constructor
func NewBatchNotFound(batchID string) error {
	return &ErrBatchNotFound{BatchID: batchID}
}

// ErrCustomerRecordNotFound is returned when no outreach record exists for a
// (customer, batch) pair.
type ErrCustomerRecordNotFound struct {
	CustomerID string
	BatchID    string
}

func (e *ErrCustomerRecordNotFound) Error() string {
	return fmt.Sprintf("no outreach record for customer %s in batch %s", e.CustomerID, e.BatchID)
}

func NewCustomerRecordNotFound(customerID, batchID string) error {
	return &ErrCustomerRecordNotFound{CustomerID: customerID, BatchID: batchID}
}

// ErrDispatchFailed is the structured failure a channel surfaces to the
// orchestrator. The sweep records it and moves on; it never aborts the batch.
type ErrDispatchFailed struct {
	Channel string
	Reason  string
}

func (e *ErrDispatchFailed) Error() string {
	return fmt.Sprintf("%s dispatch failed: %s", e.Channel, e.Reason)
}

func NewDispatchFailed(channel, reason string) error {
	return &ErrDispatchFailed{Channel: channel, Reason: reason}
}

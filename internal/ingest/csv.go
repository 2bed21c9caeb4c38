package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ridgewater/outreach-service/internal/model"
)

// ParseFile reads a payment-processor result CSV into decline records.
// Columns are located by header name so column order does not matter.
// Rows with an unparseable amount are skipped, not fatal.
func ParseFile(path, batchID string) ([]model.DeclineRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	return Parse(f, batchID)
}

// Parse reads decline records from an open CSV stream.
func Parse(r io.Reader, batchID string) ([]model.DeclineRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	records := []model.DeclineRecord{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		amount, err := strconv.ParseFloat(field(row, "amount"), 64)
		if err != nil {
			continue
		}

		rec := model.DeclineRecord{
			TransactionID:    field(row, "id"),
			Amount:           amount,
			Status:           field(row, "status"),
			ResponseCode:     field(row, "response_code"),
			BillingFirstName: field(row, "billing_first_name"),
			BillingLastName:  field(row, "billing_last_name"),
			BillingPhone:     field(row, "billing_phone"),
			BillingEmail:     field(row, "billing_email"),
			BillingAddress:   field(row, "billing_address_line_1"),
			BillingCity:      field(row, "billing_city"),
			BillingState:     field(row, "billing_state"),
			BillingPostal:    field(row, "billing_postal_code"),
			CreatedAt:        field(row, "created_at"),
			BatchID:          batchID,
		}
		records = append(records, rec)
	}
	return records, nil
}

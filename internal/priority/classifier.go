// internal/priority/classifier.go
package priority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/model"
)

// Thresholds for the delivery-proximity rule, in business days.
const (
	highThreshold   = 3
	mediumThreshold = 7
)

// Result is the outcome of one priority classification.
type Result struct {
	Tier              model.Priority `json:"tier"`
	NextDeliveryDate  *time.Time     `json:"next_delivery_date,omitempty"`
	DaysUntilDelivery int            `json:"days_until_delivery"`
	HasDelivery       bool           `json:"has_delivery"`
	IsRepeatDecline   bool           `json:"is_repeat_decline"`
	AccountActive     bool           `json:"account_active"`
	PaymentStillDue   bool           `json:"payment_still_due"`
	TotalDue          float64        `json:"total_due"`
}

// ShouldCall gates the voice channel: HIGH tier only, account active, balance due.
func (r Result) ShouldCall() bool {
	return r.Tier == model.PriorityHigh && r.AccountActive && r.PaymentStillDue
}

// ShouldSMS gates the SMS channel: HIGH or MEDIUM tier.
func (r Result) ShouldSMS() bool {
	return (r.Tier == model.PriorityHigh || r.Tier == model.PriorityMedium) &&
		r.AccountActive && r.PaymentStillDue
}

// ShouldEmail is the fallback channel for anyone still owing, LOW included.
func (r Result) ShouldEmail() bool {
	return r.AccountActive && r.PaymentStillDue
}

// Classifier computes the outreach urgency tier for one customer. It holds no
// state of its own; every classification reads live billing data.
type Classifier struct {
	dir           billing.Directory
	lookaheadDays int
	log           *zap.Logger
	now           func() time.Time
}

func NewClassifier(dir billing.Directory, lookaheadDays int, log *zap.Logger) *Classifier {
	return &Classifier{
		dir:           dir,
		lookaheadDays: lookaheadDays,
		log:           log,
		now:           time.Now,
	}
}

// Classify computes the tier for a customer. deliveryID may be empty, in
// which case the primary delivery stop is resolved here. Billing API failures
// surface as errors so the sweep skips the customer instead of misreading an
// outage as "account inactive" or "payment made".
func (c *Classifier) Classify(ctx context.Context, customerID, deliveryID string, isRepeatDecline bool) (Result, error) {
	details, err := c.dir.GetCustomerDetails(ctx, customerID)
	if err != nil {
		return Result{}, fmt.Errorf("customer details: %w", err)
	}
	if !details.Active() {
		// Inactive accounts are suppressed but not resolved; the balance is
		// left as "still due" so the sweep never mistakes this for payment.
		return Result{
			Tier:            model.PriorityLow,
			IsRepeatDecline: isRepeatDecline,
			AccountActive:   false,
			PaymentStillDue: true,
		}, nil
	}

	totalDue, err := c.dir.GetAccountBalance(ctx, customerID)
	if err != nil {
		return Result{}, fmt.Errorf("account balance: %w", err)
	}
	if totalDue <= 0.01 {
		// Payment was evidently made. This is the resolution-detection signal.
		return Result{
			Tier:            model.PriorityLow,
			IsRepeatDecline: isRepeatDecline,
			AccountActive:   true,
			PaymentStillDue: false,
			TotalDue:        totalDue,
		}, nil
	}

	base := Result{
		Tier:            model.PriorityLow,
		IsRepeatDecline: isRepeatDecline,
		AccountActive:   true,
		PaymentStillDue: true,
		TotalDue:        totalDue,
	}

	if deliveryID == "" {
		stops, err := c.dir.GetDeliveryStops(ctx, customerID, 1)
		if err != nil {
			return Result{}, fmt.Errorf("delivery stops: %w", err)
		}
		if len(stops) == 0 {
			return base, nil
		}
		deliveryID = stops[0].DeliveryID
	}

	next, err := c.dir.GetNextScheduledDelivery(ctx, customerID, deliveryID, c.lookaheadDays)
	if err != nil {
		return Result{}, fmt.Errorf("next delivery: %w", err)
	}
	if next == nil || next.DeliveryDate == "" {
		return base, nil
	}

	deliveryDate, err := parseDeliveryDate(next.DeliveryDate)
	if err != nil {
		c.log.Error("delivery_date_parse_error",
			zap.String("customer_id", customerID),
			zap.String("date", next.DeliveryDate),
			zap.Error(err))
		return base, nil
	}

	daysUntil := BusinessDaysUntil(c.now(), deliveryDate)

	result := base
	result.NextDeliveryDate = &deliveryDate
	result.DaysUntilDelivery = daysUntil
	result.HasDelivery = true
	result.Tier = tierFor(isRepeatDecline, daysUntil)
	return result, nil
}

// tierFor applies the escalation rule. Repeat decliners are always HIGH,
// regardless of delivery timing.
func tierFor(isRepeatDecline bool, daysUntil int) model.Priority {
	switch {
	case isRepeatDecline:
		return model.PriorityHigh
	case daysUntil <= highThreshold:
		return model.PriorityHigh
	case daysUntil <= mediumThreshold:
		return model.PriorityMedium
	}
	return model.PriorityLow
}

// BusinessDaysUntil counts weekdays (Mon-Fri) from today up to, but not
// including, the target date. Same-day or past targets yield 0.
func BusinessDaysUntil(from, target time.Time) int {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	current := day(from)
	end := day(target)

	days := 0
	for current.Before(end) {
		wd := current.Weekday()
		if wd != time.Saturday && wd != time.Sunday {
			days++
		}
		current = current.AddDate(0, 0, 1)
	}
	return days
}

// parseDeliveryDate accepts ISO timestamps and bare YYYY-MM-DD strings.
func parseDeliveryDate(raw string) (time.Time, error) {
	if strings.Contains(raw, "T") {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t, nil
		}
		return time.Parse("2006-01-02T15:04:05", raw)
	}
	return time.Parse("2006-01-02", raw)
}

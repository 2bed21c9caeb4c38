// internal/dispatch/messages.go
package dispatch

import (
	"fmt"

	"github.com/ridgewater/outreach-service/internal/config"
)

// CallType routes the voice assistant to the right conversation script.
type CallType string

const (
	CallDeclinedPayment  CallType = "declined_payment"
	CallCollections      CallType = "collections"
	CallDeliveryReminder CallType = "delivery_reminder"
)

// Catalog builds every outreach message. All builders are deterministic:
// the same inputs always produce the same text.
type Catalog struct {
	company string
	phone   string
	payURL  string
}

func NewCatalog(cfg config.MessageConfig) *Catalog {
	return &Catalog{
		company: cfg.CompanyName,
		phone:   cfg.CompanyPhone,
		payURL:  cfg.PaymentURL,
	}
}

func (c *Catalog) greeting(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s, this is %s.", name, c.company)
}

// DayZeroSMS is the immediate notification sent at ingest time to every
// matched customer, before any priority tiering happens.
func (c *Catalog) DayZeroSMS(name string, declinedAmount, totalDue float64) string {
	return fmt.Sprintf(
		"%s We had an issue processing a payment of $%.2f. "+
			"Your current balance is $%.2f. Please update your payment method at %s "+
			"or call us at %s to avoid service interruption.",
		c.greeting(name), declinedAmount, totalDue, c.payURL, c.phone)
}

// FollowUpSMS is the tiered daily-sweep SMS. The urgency line changes with
// delivery proximity but the payment ask is identical to Day 0.
func (c *Catalog) FollowUpSMS(name string, declinedAmount, totalDue float64, daysUntilDelivery int, hasDelivery bool) string {
	urgency := "Your account has an outstanding balance"
	if hasDelivery && daysUntilDelivery <= 7 {
		urgency = fmt.Sprintf("Your next delivery is in %d days", daysUntilDelivery)
	}
	return fmt.Sprintf(
		"%s %s. We had an issue processing a payment of $%.2f. "+
			"Your current balance is $%.2f. Please update your payment method at %s "+
			"or call us at %s to avoid service interruption.",
		c.greeting(name), urgency, declinedAmount, totalDue, c.payURL, c.phone)
}

// DeliveryReminderSMS states the delivery date. When the account is on hold
// it explains that the delivery will not occur until the balance is settled.
func (c *Catalog) DeliveryReminderSMS(name, deliveryDate string, accountOnHold bool) string {
	if accountOnHold {
		return fmt.Sprintf(
			"%s Your scheduled delivery for %s cannot be completed due to an "+
				"outstanding balance on your account. Please call us at %s or update "+
				"your payment at %s to resume service.",
			c.greeting(name), deliveryDate, c.phone, c.payURL)
	}
	return fmt.Sprintf(
		"%s This is a reminder of your delivery scheduled for %s. "+
			"Please have your empty bottles ready for exchange. Questions? Call %s.",
		c.greeting(name), deliveryDate, c.phone)
}

// DeclinedPaymentReason is the agent-facing summary for a declined-payment call.
func (c *Catalog) DeclinedPaymentReason(declinedAmount, totalDue float64) string {
	return fmt.Sprintf("Payment of $%.2f was declined; current account balance is $%.2f",
		declinedAmount, totalDue)
}

// CollectionsReason is the agent-facing summary for a collections call.
func (c *Catalog) CollectionsReason(pastDueAmount float64, daysPastDue int) string {
	reason := fmt.Sprintf("Account has past due balance of $%.2f", pastDueAmount)
	if daysPastDue > 0 {
		reason += fmt.Sprintf(" (%d days past due)", daysPastDue)
	}
	return reason
}

// DeliveryReminderReason is the agent-facing summary for a reminder call.
func (c *Catalog) DeliveryReminderReason(deliveryDate string, accountOnHold bool) string {
	if accountOnHold {
		return fmt.Sprintf("Delivery scheduled for %s cannot be completed due to outstanding balance", deliveryDate)
	}
	return fmt.Sprintf("Delivery reminder for scheduled delivery on %s", deliveryDate)
}

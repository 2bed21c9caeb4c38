// internal/resolver/resolver.go
package resolver

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ridgewater/outreach-service/internal/billing"
	"github.com/ridgewater/outreach-service/internal/model"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone converts a raw billing phone to E.164. Ten-digit US numbers
// get a +1 prefix, eleven digits starting with 1 get a +, anything else is
// passed through untouched.
func NormalizePhone(raw string) string {
	if raw == "" {
		return ""
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	}
	return raw
}

// Strategy is one ordered attempt at resolving a decline record to a customer.
// A nil result with a nil error means "no match", which is expected and lets
// the resolver fall through to the next strategy.
type Strategy interface {
	Name() model.MatchMethod
	Attempt(ctx context.Context, rec model.DeclineRecord) (*model.CustomerMatch, error)
}

// Resolver matches decline records against the billing directory. Strategies
// run in strict priority order; the first confirmed match wins and is never
// overridden by a lower-priority strategy.
type Resolver struct {
	strategies []Strategy
	log        *zap.Logger
}

// New wires the phone, email and name+address strategies in priority order.
func New(dir billing.Directory, tolerance float64, log *zap.Logger) *Resolver {
	v := &validator{dir: dir, tolerance: tolerance}
	return &Resolver{
		strategies: []Strategy{
			&phoneStrategy{v: v},
			&emailStrategy{v: v},
			&nameAddressStrategy{v: v},
		},
		log: log,
	}
}

// Match resolves one decline record. A failed resolution is an expected
// outcome, not an error: strategy-level API failures are logged and treated
// as "no match from this strategy".
func (r *Resolver) Match(ctx context.Context, rec model.DeclineRecord) model.CustomerMatch {
	for _, s := range r.strategies {
		match, err := s.Attempt(ctx, rec)
		if err != nil {
			r.log.Error("match_strategy_error",
				zap.String("strategy", string(s.Name())),
				zap.String("transaction_id", rec.TransactionID),
				zap.Error(err))
			continue
		}
		if match != nil {
			return *match
		}
	}

	r.log.Warn("customer_match_failed",
		zap.String("name", rec.FullName()),
		zap.String("phone", rec.BillingPhone),
		zap.String("email", rec.BillingEmail))
	return model.NoMatch()
}

// validator confirms directory candidates against the balance API. A search
// hit without balance confirmation is not a match.
type validator struct {
	dir       billing.Directory
	tolerance float64
}

// confirm checks candidates in order and returns the first whose current
// balance still covers the declined amount, minus the accrual tolerance.
func (v *validator) confirm(
	ctx context.Context,
	candidates []billing.Customer,
	rec model.DeclineRecord,
	method model.MatchMethod,
	confidence model.Confidence,
	fallbackPhone string,
) (*model.CustomerMatch, error) {
	for _, cand := range candidates {
		if cand.CustomerID == "" {
			continue
		}

		totalDue, err := v.dir.GetAccountBalance(ctx, cand.CustomerID)
		if err != nil {
			return nil, err
		}
		if totalDue < rec.Amount-v.tolerance {
			continue
		}

		phone := cand.Contact.PhoneNumber
		if fallbackPhone != "" {
			phone = fallbackPhone
		}

		match := &model.CustomerMatch{
			Matched:       true,
			CustomerID:    cand.CustomerID,
			Method:        method,
			Confidence:    confidence,
			TotalDue:      totalDue,
			CustomerName:  cand.Name,
			CustomerPhone: phone,
		}
		match.DeliveryID = v.primaryDeliveryID(ctx, cand.CustomerID)
		return match, nil
	}
	return nil, nil
}

// primaryDeliveryID resolves the first delivery stop. Missing stops are fine;
// the classifier treats an empty delivery id as "no delivery scheduled".
func (v *validator) primaryDeliveryID(ctx context.Context, customerID string) string {
	stops, err := v.dir.GetDeliveryStops(ctx, customerID, 1)
	if err != nil || len(stops) == 0 {
		return ""
	}
	return stops[0].DeliveryID
}

type phoneStrategy struct {
	v *validator
}

func (s *phoneStrategy) Name() model.MatchMethod { return model.MatchByPhone }

func (s *phoneStrategy) Attempt(ctx context.Context, rec model.DeclineRecord) (*model.CustomerMatch, error) {
	phone := NormalizePhone(rec.BillingPhone)
	if phone == "" {
		return nil, nil
	}
	candidates, err := s.v.dir.SearchCustomers(ctx, phone)
	if err != nil {
		return nil, err
	}
	return s.v.confirm(ctx, candidates, rec, model.MatchByPhone, model.ConfidenceHigh, phone)
}

type emailStrategy struct {
	v *validator
}

func (s *emailStrategy) Name() model.MatchMethod { return model.MatchByEmail }

func (s *emailStrategy) Attempt(ctx context.Context, rec model.DeclineRecord) (*model.CustomerMatch, error) {
	email := strings.ToLower(strings.TrimSpace(rec.BillingEmail))
	if email == "" {
		return nil, nil
	}
	candidates, err := s.v.dir.SearchCustomers(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.v.confirm(ctx, candidates, rec, model.MatchByEmail, model.ConfidenceHigh, "")
}

type nameAddressStrategy struct {
	v *validator
}

func (s *nameAddressStrategy) Name() model.MatchMethod { return model.MatchByNameAddress }

func (s *nameAddressStrategy) Attempt(ctx context.Context, rec model.DeclineRecord) (*model.CustomerMatch, error) {
	name := rec.FullName()
	address := rec.FullAddress()
	if name == "" || address == "" {
		return nil, nil
	}

	candidates, err := s.v.dir.SearchCustomers(ctx, address)
	if err != nil {
		return nil, err
	}

	// Keep only candidates whose name contains every meaningful token of the
	// billing name. Short tokens (initials, "jr") are too noisy to require.
	filtered := candidates[:0:0]
	for _, cand := range candidates {
		if nameTokensMatch(name, cand.Name) {
			filtered = append(filtered, cand)
		}
	}
	return s.v.confirm(ctx, filtered, rec, model.MatchByNameAddress, model.ConfidenceMedium, "")
}

func nameTokensMatch(billingName, candidateName string) bool {
	candidate := strings.ToLower(candidateName)
	for _, token := range strings.Fields(strings.ToLower(billingName)) {
		if len(token) <= 2 {
			continue
		}
		if !strings.Contains(candidate, token) {
			return false
		}
	}
	return true
}

package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// PaymentEvidence is the proof of a completed mobile-money charge, coming
// either from the gateway webhook or from the auto-renewal job.
type PaymentEvidence struct {
	TransactionID string
	Method        string
	Amount        int64
	Currency      string
	ReceiptURL    string
}

// PaymentResult reports what the reconciler did with a piece of evidence.
type PaymentResult struct {
	SubscriptionID string    `json:"subscription_id"`
	TransactionID  string    `json:"transaction_id"`
	AlreadyApplied bool      `json:"already_applied"`
	NewEndDate     time.Time `json:"new_end_date"`
	Status         string    `json:"status"`
}

// PaymentReconciler applies payment outcomes to the subscription aggregate.
// RecordPayment is idempotent on the transaction ID; delivering the same
// webhook twice extends the subscription exactly once.
type PaymentReconciler struct {
	subs             domain.SubscriptionRepository
	shops            domain.ShopRepository
	failureThreshold int
	now              func() time.Time
}

// NewPaymentReconciler creates a reconciler. failureThreshold is the number
// of consecutive failed payments that demotes an active subscription to
// past_due.
func NewPaymentReconciler(subs domain.SubscriptionRepository, shops domain.ShopRepository, failureThreshold int) *PaymentReconciler {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &PaymentReconciler{
		subs:             subs,
		shops:            shops,
		failureThreshold: failureThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func (r *PaymentReconciler) WithClock(now func() time.Time) *PaymentReconciler {
	r.now = now
	return r
}

// RecordPayment applies a successful charge. The new period stacks on top of
// any remaining time: extension starts from the current end date when it is
// still in the future, otherwise from now. A payment also clears the failure
// counter and recovers a past_due subscription back to active.
func (r *PaymentReconciler) RecordPayment(ctx context.Context, subID string, ev PaymentEvidence) (*PaymentResult, error) {
	if ev.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}
	if ev.Amount <= 0 {
		return nil, fmt.Errorf("%w: payment amount must be positive", domain.ErrValidation)
	}

	sub, err := r.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot record a payment on a %s subscription", domain.ErrInvalidTransition, sub.Status)
	}

	if sub.HasTransaction(ev.TransactionID) {
		log.Printf("[Reconciler] Transaction %s already applied to subscription %s, skipping", ev.TransactionID, sub.ID)
		return &PaymentResult{
			SubscriptionID: sub.ID,
			TransactionID:  ev.TransactionID,
			AlreadyApplied: true,
			NewEndDate:     sub.Dates.EndDate,
			Status:         string(sub.Status),
		}, nil
	}

	now := r.now()
	if due := sub.EffectivePrice(now); ev.Amount < due {
		return nil, fmt.Errorf("%w: payment of %d %s does not cover the %d due", domain.ErrValidation, ev.Amount, ev.Currency, due)
	}

	newEnd := domain.CalculateNewEndDate(sub.Dates.EndDate, sub.Pricing.BillingCycle, now)
	next := newEnd

	sub.Status = domain.StatusActive
	sub.Dates.EndDate = newEnd
	sub.Payment.Verified = true
	sub.Payment.LastPaymentDate = &now
	sub.Payment.NextPaymentDate = &next
	sub.Payment.FailedPayments = 0
	if ev.Method != "" {
		sub.Payment.Method = ev.Method
	}
	sub.RenewalSettings.ReminderSent = false
	sub.RenewalSettings.RenewalAttempts = 0
	details := map[string]string{
		"transaction_id": ev.TransactionID,
		"amount":         fmt.Sprintf("%d", ev.Amount),
		"currency":       ev.Currency,
	}
	if ev.ReceiptURL != "" {
		details["receipt_url"] = ev.ReceiptURL
	}
	sub.AppendHistory(domain.ActionPaymentSucceeded, "system", details, now)
	sub.UpdatedAt = now

	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := r.subs.Save(ctx, sub, sub.Version); err != nil {
		return nil, err
	}

	if err := r.shops.SetStatus(ctx, sub.ShopID, domain.ShopStatusActive); err != nil {
		log.Printf("[Reconciler] Failed to reactivate shop %s: %v", sub.ShopID, err)
	}

	return &PaymentResult{
		SubscriptionID: sub.ID,
		TransactionID:  ev.TransactionID,
		NewEndDate:     newEnd,
		Status:         string(sub.Status),
	}, nil
}

// RecordFailure counts a failed charge attempt. Once the failure count
// reaches the configured threshold the subscription is demoted to past_due.
func (r *PaymentReconciler) RecordFailure(ctx context.Context, subID, reason string) (*domain.Subscription, error) {
	sub, err := r.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case domain.StatusActive, domain.StatusPastDue:
	case domain.StatusTrial, domain.StatusCanceled, domain.StatusExpired:
		return nil, fmt.Errorf("%w: cannot record a payment failure on a %s subscription", domain.ErrInvalidTransition, sub.Status)
	default:
		return nil, domain.ErrInvalidTransition
	}

	now := r.now()
	sub.Payment.FailedPayments++
	sub.RenewalSettings.RenewalAttempts++
	if sub.Status == domain.StatusActive && sub.Payment.FailedPayments >= r.failureThreshold {
		sub.Status = domain.StatusPastDue
	}
	sub.AppendHistory(domain.ActionPaymentFailed, "system", map[string]string{
		"reason":   reason,
		"failures": fmt.Sprintf("%d", sub.Payment.FailedPayments),
	}, now)
	sub.UpdatedAt = now

	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := r.subs.Save(ctx, sub, sub.Version); err != nil {
		return nil, err
	}
	return sub, nil
}

package domain

import (
	"context"
	"fmt"
	"time"
)

// SubscriptionStatus is the authoritative lifecycle state of a subscription.
// Transitions happen only through the lifecycle service.
type SubscriptionStatus string

const (
	StatusTrial    SubscriptionStatus = "trial"
	StatusActive   SubscriptionStatus = "active"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusExpired  SubscriptionStatus = "expired"
)

// Valid reports whether s is a member of the status enum.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusCanceled, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether the status is final. Terminal subscriptions are
// retained for audit, never deleted.
func (s SubscriptionStatus) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// PlanType identifies the billing shape of a plan.
type PlanType string

const (
	PlanTrial   PlanType = "trial"
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// Paid reports whether the plan type is purchasable.
func (p PlanType) Paid() bool {
	return p == PlanMonthly || p == PlanYearly
}

// DiscountType distinguishes flat and percentage discounts.
type DiscountType string

const (
	DiscountFixed      DiscountType = "fixed"
	DiscountPercentage DiscountType = "percentage"
)

// Discount is an optional price reduction attached to the pricing block.
type Discount struct {
	Active    bool         `bson:"active" json:"active"`
	Type      DiscountType `bson:"type" json:"type"`
	Value     float64      `bson:"value" json:"value"`
	ExpiresAt *time.Time   `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
}

// PlanInfo is the plan snapshot embedded in the aggregate.
type PlanInfo struct {
	Name string   `bson:"name" json:"name"`
	Type PlanType `bson:"type" json:"type"`
}

// Pricing holds the money side of the subscription.
// BasePrice is in the smallest currency unit.
type Pricing struct {
	BasePrice    int64     `bson:"base_price" json:"base_price"`
	Currency     string    `bson:"currency" json:"currency"`
	BillingCycle PlanType  `bson:"billing_cycle" json:"billing_cycle"`
	Discount     *Discount `bson:"discount,omitempty" json:"discount,omitempty"`
}

// PaymentInfo tracks the payment state of the subscription.
type PaymentInfo struct {
	Method          string     `bson:"method,omitempty" json:"method,omitempty"`
	Verified        bool       `bson:"verified" json:"verified"`
	LastPaymentDate *time.Time `bson:"last_payment_date,omitempty" json:"last_payment_date,omitempty"`
	NextPaymentDate *time.Time `bson:"next_payment_date,omitempty" json:"next_payment_date,omitempty"`
	FailedPayments  int        `bson:"failed_payments" json:"failed_payments"`
}

// SubscriptionDates groups the lifecycle timestamps.
type SubscriptionDates struct {
	StartDate   time.Time  `bson:"start_date" json:"start_date"`
	EndDate     time.Time  `bson:"end_date" json:"end_date"`
	TrialEndsAt *time.Time `bson:"trial_ends_at,omitempty" json:"trial_ends_at,omitempty"`
	CanceledAt  *time.Time `bson:"canceled_at,omitempty" json:"canceled_at,omitempty"`
}

// RenewalSettings controls the scheduler's behavior for this subscription.
// ReminderSent is flipped in the same save as the notification attempt it
// guards, so repeated reminder runs stay idempotent.
type RenewalSettings struct {
	AutoRenew       bool `bson:"auto_renew" json:"auto_renew"`
	ReminderSent    bool `bson:"reminder_sent" json:"reminder_sent"`
	RenewalAttempts int  `bson:"renewal_attempts" json:"renewal_attempts"`
}

// Cancellation records why and by whom a subscription was canceled.
type Cancellation struct {
	Reason   string `bson:"reason,omitempty" json:"reason,omitempty"`
	Feedback string `bson:"feedback,omitempty" json:"feedback,omitempty"`
	ByUserID string `bson:"by_user_id,omitempty" json:"by_user_id,omitempty"`
}

// History actions
const (
	ActionCreated          = "created"
	ActionTrialConverted   = "trial_converted"
	ActionPlanChanged      = "plan_changed"
	ActionUpdated          = "updated"
	ActionCanceled         = "canceled"
	ActionExpired          = "expired"
	ActionPaymentSucceeded = "payment_succeeded"
	ActionPaymentFailed    = "payment_failed"
	ActionReminderSent     = "reminder_sent"
)

// HistoryEntry is one line of the append-only audit trail. Entries are never
// edited or reordered after being appended.
type HistoryEntry struct {
	Action      string            `bson:"action" json:"action"`
	Date        time.Time         `bson:"date" json:"date"`
	PerformedBy string            `bson:"performed_by" json:"performed_by"`
	Details     map[string]string `bson:"details,omitempty" json:"details,omitempty"`
}

// SubscriptionMetadata holds free-form operator data.
type SubscriptionMetadata struct {
	Notes         string   `bson:"notes,omitempty" json:"notes,omitempty"`
	Tags          []string `bson:"tags,omitempty" json:"tags,omitempty"`
	PreviousPlans []string `bson:"previous_plans,omitempty" json:"previous_plans,omitempty"`
}

// Subscription is the aggregate root for one shop's billing lifecycle.
// It is stored as a single document with the history embedded; Version is
// bumped on every save and checked with a compare-and-swap so concurrent
// writers cannot silently overwrite each other.
type Subscription struct {
	ID              string               `bson:"_id,omitempty" json:"id"`
	ShopID          string               `bson:"shop_id" json:"shop_id"`
	Plan            PlanInfo             `bson:"plan" json:"plan"`
	Pricing         Pricing              `bson:"pricing" json:"pricing"`
	Status          SubscriptionStatus   `bson:"status" json:"status"`
	Payment         PaymentInfo          `bson:"payment" json:"payment"`
	Dates           SubscriptionDates    `bson:"dates" json:"dates"`
	RenewalSettings RenewalSettings      `bson:"renewal_settings" json:"renewal_settings"`
	Cancellation    Cancellation         `bson:"cancellation" json:"cancellation"`
	History         []HistoryEntry       `bson:"history" json:"history"`
	Metadata        SubscriptionMetadata `bson:"metadata" json:"metadata"`
	Deleted         bool                 `bson:"deleted" json:"-"`
	Version         int64                `bson:"version" json:"version"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updated_at"`
}

// NewTrialSubscription builds a complete trial aggregate for a freshly
// onboarded shop. All derived fields are computed here, before persistence.
func NewTrialSubscription(shopID, planName string, now time.Time) *Subscription {
	now = now.UTC()
	end := ComputeEndDate(now, PlanTrial)
	sub := &Subscription{
		ShopID: shopID,
		Plan:   PlanInfo{Name: planName, Type: PlanTrial},
		Pricing: Pricing{
			BasePrice:    0,
			Currency:     DefaultCurrency,
			BillingCycle: PlanTrial,
		},
		Status: StatusTrial,
		Dates: SubscriptionDates{
			StartDate:   now,
			EndDate:     end,
			TrialEndsAt: &end,
		},
		RenewalSettings: RenewalSettings{AutoRenew: false},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sub.AppendHistory(ActionCreated, "system", map[string]string{"plan": planName, "type": string(PlanTrial)}, now)
	return sub
}

// NewPaidSubscription builds a complete paid aggregate from a catalog plan.
func NewPaidSubscription(shopID string, plan *Plan, paymentMethod string, now time.Time) *Subscription {
	now = now.UTC()
	end := ComputeEndDate(now, plan.Type)
	sub := &Subscription{
		ShopID: shopID,
		Plan:   PlanInfo{Name: plan.Name, Type: plan.Type},
		Pricing: Pricing{
			BasePrice:    plan.Price,
			Currency:     plan.Currency,
			BillingCycle: plan.Type,
		},
		Status: StatusActive,
		Payment: PaymentInfo{
			Method: paymentMethod,
		},
		Dates: SubscriptionDates{
			StartDate: now,
			EndDate:   end,
		},
		RenewalSettings: RenewalSettings{AutoRenew: true},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	sub.AppendHistory(ActionCreated, "system", map[string]string{"plan": plan.Name, "type": string(plan.Type)}, now)
	return sub
}

// AppendHistory adds one audit entry. The existing slice is never modified.
func (s *Subscription) AppendHistory(action, performedBy string, details map[string]string, at time.Time) {
	s.History = append(s.History, HistoryEntry{
		Action:      action,
		Date:        at.UTC(),
		PerformedBy: performedBy,
		Details:     details,
	})
}

// EffectivePrice returns the base price with any active discount applied,
// clamped to [0, basePrice].
func (s *Subscription) EffectivePrice(now time.Time) int64 {
	return ApplyDiscount(s.Pricing.BasePrice, s.Pricing.Discount, now)
}

// HasTransaction reports whether a payment with the given transaction ID has
// already been applied to this aggregate. Used for idempotent reconciliation.
func (s *Subscription) HasTransaction(transactionID string) bool {
	if transactionID == "" {
		return false
	}
	for _, h := range s.History {
		if h.Action == ActionPaymentSucceeded && h.Details["transaction_id"] == transactionID {
			return true
		}
	}
	return false
}

// DaysRemaining returns whole days until the end date, never negative.
func (s *Subscription) DaysRemaining(now time.Time) int {
	remaining := s.Dates.EndDate.Sub(now.UTC())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Hours() / 24)
}

// Validate checks the aggregate invariants that must hold after every
// mutation. The lifecycle service calls this before saving.
func (s *Subscription) Validate() error {
	if s.ShopID == "" {
		return fmt.Errorf("%w: shop id is required", ErrValidation)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, s.Status)
	}
	if !s.Dates.EndDate.After(s.Dates.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrValidation)
	}
	if s.Pricing.BasePrice < 0 {
		return fmt.Errorf("%w: base price must not be negative", ErrValidation)
	}
	return nil
}

// SubscriptionRepository defines the persistence contract for the
// subscription aggregate. Save performs a compare-and-swap on the version
// field and returns ErrConflict when the expected version no longer matches.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id string) (*Subscription, error)
	FindByShop(ctx context.Context, shopID string) ([]*Subscription, error)
	FindCurrentByShop(ctx context.Context, shopID string) (*Subscription, error)

	// Scheduler scans. Cutoffs are inclusive; all scans exclude soft-deleted
	// documents.
	FindTrialsEndingBy(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
	FindExpiringBy(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
	FindRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*Subscription, error)
	FindExpiredActive(ctx context.Context, now time.Time) ([]*Subscription, error)

	Save(ctx context.Context, sub *Subscription, expectedVersion int64) error
}

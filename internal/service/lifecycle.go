package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// LifecycleService is the only component allowed to move a subscription
// between lifecycle states. Every operation loads the aggregate, mutates it,
// validates the invariants and saves with a version compare-and-swap, so a
// concurrent writer loses with domain.ErrConflict instead of overwriting.
type LifecycleService struct {
	subs  domain.SubscriptionRepository
	shops domain.ShopRepository
	plans domain.PlanRepository
	now   func() time.Time
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(subs domain.SubscriptionRepository, shops domain.ShopRepository, plans domain.PlanRepository) *LifecycleService {
	return &LifecycleService{
		subs:  subs,
		shops: shops,
		plans: plans,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	return s
}

// StartTrial creates the trial subscription for a freshly onboarded shop.
func (s *LifecycleService) StartTrial(ctx context.Context, shopID, planName string) (*domain.Subscription, error) {
	if shopID == "" {
		return nil, fmt.Errorf("%w: shop id is required", domain.ErrValidation)
	}
	sub := domain.NewTrialSubscription(shopID, planName, s.now())
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create trial subscription: %w", err)
	}
	return sub, nil
}

// ConvertInput carries the user's choice when converting a trial.
type ConvertInput struct {
	PlanID        string
	PaymentMethod string
	PerformedBy   string
}

// ConvertTrialToPaid moves trial -> active before the trial window closes.
// Fails with ErrNotInTrial when the subscription is not a live trial.
func (s *LifecycleService) ConvertTrialToPaid(ctx context.Context, subID string, in ConvertInput) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch sub.Status {
	case domain.StatusTrial:
		// guarded below on the trial window
	case domain.StatusActive, domain.StatusPastDue, domain.StatusCanceled, domain.StatusExpired:
		return nil, domain.ErrNotInTrial
	default:
		return nil, domain.ErrInvalidTransition
	}
	if sub.Dates.TrialEndsAt == nil || now.After(*sub.Dates.TrialEndsAt) {
		return nil, domain.ErrNotInTrial
	}

	plan, err := s.paidPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}

	end := domain.ComputeEndDate(now, plan.Type)
	previousPlan := sub.Plan.Name

	sub.Plan = domain.PlanInfo{Name: plan.Name, Type: plan.Type}
	sub.Pricing = domain.Pricing{
		BasePrice:    plan.Price,
		Currency:     plan.Currency,
		BillingCycle: plan.Type,
	}
	sub.Status = domain.StatusActive
	sub.Payment.Method = in.PaymentMethod
	sub.Payment.NextPaymentDate = &end
	sub.Dates.StartDate = now
	sub.Dates.EndDate = end
	sub.RenewalSettings.AutoRenew = true
	sub.RenewalSettings.ReminderSent = false
	sub.Metadata.PreviousPlans = append(sub.Metadata.PreviousPlans, previousPlan)
	sub.AppendHistory(domain.ActionTrialConverted, in.PerformedBy, map[string]string{
		"from_plan": previousPlan,
		"to_plan":   plan.Name,
		"plan_type": string(plan.Type),
	}, now)
	sub.UpdatedAt = now

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	s.syncShopStatus(ctx, sub.ShopID, domain.ShopStatusActive)
	return sub, nil
}

// ChangePlanInput carries a plan switch request for an active subscription.
type ChangePlanInput struct {
	PlanID      string
	Prorated    bool
	PerformedBy string
}

// ChangePlan switches an active subscription to another paid plan. With
// proration the unused value of the current period is converted into days of
// the new plan; otherwise the new plan starts with its flat duration.
func (s *LifecycleService) ChangePlan(ctx context.Context, subID string, in ChangePlanInput) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case domain.StatusActive:
	case domain.StatusTrial, domain.StatusPastDue, domain.StatusCanceled, domain.StatusExpired:
		return nil, fmt.Errorf("%w: change plan requires an active subscription, got %s", domain.ErrInvalidTransition, sub.Status)
	default:
		return nil, domain.ErrInvalidTransition
	}

	plan, err := s.paidPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	oldType := sub.Plan.Type
	previousPlan := sub.Plan.Name

	var end time.Time
	daysAdded := 0
	if in.Prorated {
		rates := domain.DailyRates{
			oldType:   domain.NormalizedDailyRate(sub.Pricing.BasePrice),
			plan.Type: domain.NormalizedDailyRate(plan.Price),
		}
		daysAdded = domain.ProratedExtensionDays(oldType, plan.Type, sub.DaysRemaining(now), rates)
		end = now.AddDate(0, 0, daysAdded)
	} else {
		daysAdded = domain.PlanDurationDays(plan.Type)
		end = domain.ComputeEndDate(now, plan.Type)
	}

	sub.Plan = domain.PlanInfo{Name: plan.Name, Type: plan.Type}
	sub.Pricing.BasePrice = plan.Price
	sub.Pricing.Currency = plan.Currency
	sub.Pricing.BillingCycle = plan.Type
	sub.Dates.EndDate = end
	sub.Payment.NextPaymentDate = &end
	sub.RenewalSettings.ReminderSent = false
	sub.Metadata.PreviousPlans = append(sub.Metadata.PreviousPlans, previousPlan)
	sub.AppendHistory(domain.ActionPlanChanged, in.PerformedBy, map[string]string{
		"from_plan":  previousPlan,
		"to_plan":    plan.Name,
		"prorated":   fmt.Sprintf("%t", in.Prorated),
		"days_added": fmt.Sprintf("%d", daysAdded),
	}, now)
	sub.UpdatedAt = now

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Extend pushes the end date out by a positive number of days. Allowed in
// any non-terminal state.
func (s *LifecycleService) Extend(ctx context.Context, subID string, days int, performedBy string) (*domain.Subscription, error) {
	if days <= 0 {
		return nil, domain.ErrNonPositiveExtension
	}

	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot extend a %s subscription", domain.ErrInvalidTransition, sub.Status)
	}

	now := s.now()
	sub.Dates.EndDate = sub.Dates.EndDate.AddDate(0, 0, days)
	if sub.Status == domain.StatusTrial && sub.Dates.TrialEndsAt != nil {
		newTrialEnd := sub.Dates.TrialEndsAt.AddDate(0, 0, days)
		sub.Dates.TrialEndsAt = &newTrialEnd
	}
	sub.AppendHistory(domain.ActionUpdated, performedBy, map[string]string{
		"extended_days": fmt.Sprintf("%d", days),
	}, now)
	sub.UpdatedAt = now

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelInput records why and how the subscription ends.
type CancelInput struct {
	Reason          string
	Feedback        string
	ByUserID        string
	ImmediateEffect bool
}

// Cancel ends the subscription. With ImmediateEffect the end date is pulled
// to now and the shop is suspended right away; otherwise access runs to the
// already-paid end date. Canceling twice fails with ErrAlreadyCanceled.
func (s *LifecycleService) Cancel(ctx context.Context, subID string, in CancelInput) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case domain.StatusCanceled:
		return nil, domain.ErrAlreadyCanceled
	case domain.StatusExpired:
		return nil, fmt.Errorf("%w: cannot cancel an expired subscription", domain.ErrInvalidTransition)
	case domain.StatusTrial, domain.StatusActive, domain.StatusPastDue:
	default:
		return nil, domain.ErrInvalidTransition
	}

	now := s.now()
	sub.Status = domain.StatusCanceled
	sub.Dates.CanceledAt = &now
	sub.RenewalSettings.AutoRenew = false
	sub.Cancellation = domain.Cancellation{
		Reason:   in.Reason,
		Feedback: in.Feedback,
		ByUserID: in.ByUserID,
	}
	if in.ImmediateEffect && now.After(sub.Dates.StartDate) {
		sub.Dates.EndDate = now
	}
	sub.AppendHistory(domain.ActionCanceled, in.ByUserID, map[string]string{
		"reason":    in.Reason,
		"immediate": fmt.Sprintf("%t", in.ImmediateEffect),
	}, now)
	sub.UpdatedAt = now

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	if in.ImmediateEffect {
		s.syncShopStatus(ctx, sub.ShopID, domain.ShopStatusSuspended)
	}
	return sub, nil
}

// MarkExpired moves a subscription whose period has run out into the
// terminal expired state and suspends the shop. A lapsed trial expires the
// same way a lapsed paid subscription does, it is never auto-canceled.
func (s *LifecycleService) MarkExpired(ctx context.Context, subID, performedBy string) (*domain.Subscription, error) {
	sub, err := s.subs.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}

	switch sub.Status {
	case domain.StatusTrial, domain.StatusActive, domain.StatusPastDue:
	case domain.StatusCanceled, domain.StatusExpired:
		return nil, fmt.Errorf("%w: cannot expire a %s subscription", domain.ErrInvalidTransition, sub.Status)
	default:
		return nil, domain.ErrInvalidTransition
	}

	now := s.now()
	if !now.After(sub.Dates.EndDate) {
		return nil, fmt.Errorf("%w: subscription has not reached its end date", domain.ErrInvalidTransition)
	}

	sub.Status = domain.StatusExpired
	sub.AppendHistory(domain.ActionExpired, performedBy, nil, now)
	sub.UpdatedAt = now

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}
	s.syncShopStatus(ctx, sub.ShopID, domain.ShopStatusSuspended)
	return sub, nil
}

// paidPlan loads a catalog plan and rejects anything not purchasable.
func (s *LifecycleService) paidPlan(ctx context.Context, planID string) (*domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Type.Paid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPlanType, plan.Type)
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%w: plan %s is not available", domain.ErrValidation, plan.Name)
	}
	return plan, nil
}

// save validates the invariants and persists with a CAS on the loaded
// version. The aggregate passed in must carry the version it was loaded with.
func (s *LifecycleService) save(ctx context.Context, sub *domain.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.subs.Save(ctx, sub, sub.Version)
}

// syncShopStatus keeps the tenant flag aligned with the subscription state.
// Best effort: a failed sync is logged, the billing mutation already stands.
func (s *LifecycleService) syncShopStatus(ctx context.Context, shopID, status string) {
	if err := s.shops.SetStatus(ctx, shopID, status); err != nil {
		log.Printf("[Lifecycle] Failed to set shop %s status to %s: %v", shopID, status, err)
	}
}

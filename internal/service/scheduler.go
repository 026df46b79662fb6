package service

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// Batch job names. These are the values accepted by the cron binary's
// -task flag.
const (
	JobTrialReminders    = "trialReminders"
	JobExpiryReminders   = "expiryReminders"
	JobAutoRenewals      = "autoRenewals"
	JobDeactivateExpired = "deactivateExpired"
	JobAll               = "all"
)

// Summary is the per-run outcome of a batch job. Item failures are counted
// here and never abort the run; only a store outage does.
type Summary struct {
	Job       string `json:"job"`
	Processed int64  `json:"processed"`
	Succeeded int64  `json:"succeeded"`
	Failed    int64  `json:"failed"`
	Skipped   bool   `json:"skipped,omitempty"` // another run holds the lease
}

func (s *Summary) String() string {
	if s.Skipped {
		return fmt.Sprintf("%s: skipped (lease held)", s.Job)
	}
	return fmt.Sprintf("%s: processed=%d succeeded=%d failed=%d", s.Job, s.Processed, s.Succeeded, s.Failed)
}

// JobLocker guards batch jobs against overlapping runs. Acquire returns
// false when another run already holds the lease for the job.
type JobLocker interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

// LifecycleScheduler runs the periodic billing jobs. Each job is a scan over
// due subscriptions followed by per-item work under bounded parallelism;
// every job is idempotent, so a crashed run is simply re-run.
type LifecycleScheduler struct {
	subs       domain.SubscriptionRepository
	shops      domain.ShopRepository
	lifecycle  *LifecycleService
	reconciler *PaymentReconciler
	provider   PaymentProvider
	notifier   domain.Notifier
	locker     JobLocker
	cfg        config.BillingConfig
	now        func() time.Time
}

// NewLifecycleScheduler wires the batch engine.
func NewLifecycleScheduler(
	subs domain.SubscriptionRepository,
	shops domain.ShopRepository,
	lifecycle *LifecycleService,
	reconciler *PaymentReconciler,
	provider PaymentProvider,
	notifier domain.Notifier,
	locker JobLocker,
	cfg config.BillingConfig,
) *LifecycleScheduler {
	return &LifecycleScheduler{
		subs:       subs,
		shops:      shops,
		lifecycle:  lifecycle,
		reconciler: reconciler,
		provider:   provider,
		notifier:   notifier,
		locker:     locker,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Tests use this to pin "now".
func (s *LifecycleScheduler) WithClock(now func() time.Time) *LifecycleScheduler {
	s.now = now
	return s
}

// Run executes one named job. It returns an error only on a fatal condition
// such as the subscription store being unreachable; per-item failures are
// logged and reported through the summary.
func (s *LifecycleScheduler) Run(ctx context.Context, job string) (*Summary, error) {
	switch job {
	case JobTrialReminders, JobExpiryReminders, JobAutoRenewals, JobDeactivateExpired:
	default:
		return nil, fmt.Errorf("%w: unknown job %q", domain.ErrValidation, job)
	}

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, job, s.cfg.JobLeaseTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lease for %s: %w", job, err)
		}
		if !ok {
			log.Printf("[Scheduler] Job %s already running elsewhere, skipping", job)
			return &Summary{Job: job, Skipped: true}, nil
		}
		defer func() {
			if err := s.locker.Release(ctx, job); err != nil {
				log.Printf("[Scheduler] Failed to release lease for %s: %v", job, err)
			}
		}()
	}

	switch job {
	case JobTrialReminders:
		return s.runTrialReminders(ctx)
	case JobExpiryReminders:
		return s.runExpiryReminders(ctx)
	case JobAutoRenewals:
		return s.runAutoRenewals(ctx)
	default:
		return s.runDeactivateExpired(ctx)
	}
}

// RunAll executes every job once, in dependency order: renewals run before
// deactivation so a successful charge saves the subscription from expiry.
func (s *LifecycleScheduler) RunAll(ctx context.Context) ([]*Summary, error) {
	order := []string{JobTrialReminders, JobExpiryReminders, JobAutoRenewals, JobDeactivateExpired}
	summaries := make([]*Summary, 0, len(order))
	for _, job := range order {
		summary, err := s.Run(ctx, job)
		if err != nil {
			return summaries, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *LifecycleScheduler) runTrialReminders(ctx context.Context) (*Summary, error) {
	now := s.now()
	cutoff := now.AddDate(0, 0, s.cfg.TrialReminderDays)
	subs, err := s.subs.FindTrialsEndingBy(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: trial scan failed: %v", domain.ErrStoreUnavailable, err)
	}

	return s.forEach(ctx, JobTrialReminders, subs, func(ctx context.Context, sub *domain.Subscription) error {
		return s.sendReminder(ctx, sub, domain.EventTrialEndingSoon, now)
	})
}

func (s *LifecycleScheduler) runExpiryReminders(ctx context.Context) (*Summary, error) {
	now := s.now()
	cutoff := now.AddDate(0, 0, s.cfg.ExpiryReminderDays)
	subs, err := s.subs.FindExpiringBy(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: expiry scan failed: %v", domain.ErrStoreUnavailable, err)
	}

	return s.forEach(ctx, JobExpiryReminders, subs, func(ctx context.Context, sub *domain.Subscription) error {
		return s.sendReminder(ctx, sub, domain.EventSubscriptionExpiring, now)
	})
}

func (s *LifecycleScheduler) runAutoRenewals(ctx context.Context) (*Summary, error) {
	now := s.now()
	cutoff := now.AddDate(0, 0, s.cfg.RenewalWindowDays)
	subs, err := s.subs.FindRenewalCandidates(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: renewal scan failed: %v", domain.ErrStoreUnavailable, err)
	}

	return s.forEach(ctx, JobAutoRenewals, subs, func(ctx context.Context, sub *domain.Subscription) error {
		return s.renewOne(ctx, sub, now)
	})
}

func (s *LifecycleScheduler) runDeactivateExpired(ctx context.Context) (*Summary, error) {
	now := s.now()
	subs, err := s.subs.FindExpiredActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: expired scan failed: %v", domain.ErrStoreUnavailable, err)
	}

	return s.forEach(ctx, JobDeactivateExpired, subs, func(ctx context.Context, sub *domain.Subscription) error {
		if _, err := s.lifecycle.MarkExpired(ctx, sub.ID, "scheduler"); err != nil {
			return err
		}
		s.notify(ctx, domain.EventSubscriptionExpired, sub.ShopID, map[string]string{
			"subscription_id": sub.ID,
			"plan":            sub.Plan.Name,
		})
		return nil
	})
}

// forEach fans the items out over a bounded worker pool. A panicking item is
// contained and counted as a failure, never brings down the run.
func (s *LifecycleScheduler) forEach(ctx context.Context, job string, subs []*domain.Subscription, fn func(context.Context, *domain.Subscription) error) (*Summary, error) {
	var succeeded, failed int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					atomic.AddInt64(&failed, 1)
					log.Printf("[Scheduler] %s: panic on subscription %s: %v", job, sub.ID, r)
				}
			}()
			if err := fn(gctx, sub); err != nil {
				atomic.AddInt64(&failed, 1)
				log.Printf("[Scheduler] %s: subscription %s failed: %v", job, sub.ID, err)
				return nil
			}
			atomic.AddInt64(&succeeded, 1)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{
		Job:       job,
		Processed: int64(len(subs)),
		Succeeded: atomic.LoadInt64(&succeeded),
		Failed:    atomic.LoadInt64(&failed),
	}
	log.Printf("[Scheduler] %s", summary)
	return summary, nil
}

// sendReminder notifies the shop and flips the reminder flag in the same
// save, so the flag only sticks when delivery was attempted successfully.
func (s *LifecycleScheduler) sendReminder(ctx context.Context, sub *domain.Subscription, eventType string, now time.Time) error {
	if sub.RenewalSettings.ReminderSent {
		return nil
	}

	nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	payload := map[string]string{
		"subscription_id": sub.ID,
		"plan":            sub.Plan.Name,
		"end_date":        sub.Dates.EndDate.Format(time.RFC3339),
		"days_remaining":  fmt.Sprintf("%d", sub.DaysRemaining(now)),
	}
	if err := s.notifier.Notify(nctx, eventType, sub.ShopID, payload); err != nil {
		return fmt.Errorf("%w: reminder delivery failed: %v", domain.ErrTransient, err)
	}

	sub.RenewalSettings.ReminderSent = true
	sub.AppendHistory(domain.ActionReminderSent, "scheduler", map[string]string{"event": eventType}, now)
	sub.UpdatedAt = now
	return s.subs.Save(ctx, sub, sub.Version)
}

// renewOne charges the shop's wallet and reconciles the outcome. Transient
// gateway errors leave the aggregate untouched so a later run retries; a
// decline is recorded against the failure counter.
func (s *LifecycleScheduler) renewOne(ctx context.Context, sub *domain.Subscription, now time.Time) error {
	shop, err := s.shops.GetByID(ctx, sub.ShopID)
	if err != nil {
		return fmt.Errorf("failed to load shop %s: %w", sub.ShopID, err)
	}

	amount := sub.EffectivePrice(now)
	reference := ulid.Make().String()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	result, err := s.provider.Charge(cctx, ChargeRequest{
		Amount:     amount,
		Currency:   sub.Pricing.Currency,
		Reference:  reference,
		PayerPhone: shop.Phone,
	})
	cancel()
	if err != nil {
		return err
	}

	if !result.Success {
		if _, err := s.reconciler.RecordFailure(ctx, sub.ID, result.ResponseMessage); err != nil {
			return fmt.Errorf("failed to record declined charge: %w", err)
		}
		s.notify(ctx, domain.EventRenewalFailed, sub.ShopID, map[string]string{
			"subscription_id": sub.ID,
			"reason":          result.ResponseMessage,
		})
		return nil
	}

	applied, err := s.reconciler.RecordPayment(ctx, sub.ID, PaymentEvidence{
		TransactionID: result.TransactionID,
		Method:        "momo",
		Amount:        amount,
		Currency:      sub.Pricing.Currency,
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile charge %s: %w", result.TransactionID, err)
	}
	s.notify(ctx, domain.EventRenewalSucceeded, sub.ShopID, map[string]string{
		"subscription_id": sub.ID,
		"transaction_id":  applied.TransactionID,
		"new_end_date":    applied.NewEndDate.Format(time.RFC3339),
	})
	return nil
}

// notify delivers a best-effort event. Failures are logged, never bubbled,
// because the state change the event describes is already committed.
func (s *LifecycleScheduler) notify(ctx context.Context, eventType, shopID string, payload map[string]string) {
	nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, eventType, shopID, payload); err != nil {
		log.Printf("[Scheduler] Failed to deliver %s to shop %s: %v", eventType, shopID, err)
	}
}

package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTrialSubscription(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)
	sub := NewTrialSubscription("shop-1", "Starter", now)

	if sub.Status != StatusTrial {
		t.Errorf("status = %q, want %q", sub.Status, StatusTrial)
	}
	if sub.Dates.TrialEndsAt == nil {
		t.Fatal("trial end date not set")
	}
	wantEnd := now.AddDate(0, 0, TrialDurationDays)
	if !sub.Dates.EndDate.Equal(wantEnd) {
		t.Errorf("end date = %v, want %v", sub.Dates.EndDate, wantEnd)
	}
	if !sub.Dates.TrialEndsAt.Equal(sub.Dates.EndDate) {
		t.Errorf("trial end %v should match end date %v", sub.Dates.TrialEndsAt, sub.Dates.EndDate)
	}
	if sub.RenewalSettings.AutoRenew {
		t.Error("trials must not auto-renew")
	}
	if len(sub.History) != 1 || sub.History[0].Action != ActionCreated {
		t.Errorf("history = %+v, want single created entry", sub.History)
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("builder produced invalid aggregate: %v", err)
	}
}

func TestNewPaidSubscription(t *testing.T) {
	now := time.Date(2026, 1, 10, 8, 30, 0, 0, time.UTC)
	plan := &Plan{Name: "Pro Monthly", Type: PlanMonthly, Price: 5000, Currency: DefaultCurrency}

	sub := NewPaidSubscription("shop-1", plan, "momo", now)

	if sub.Status != StatusActive {
		t.Errorf("status = %q, want %q", sub.Status, StatusActive)
	}
	if !sub.Dates.EndDate.Equal(now.AddDate(0, 0, MonthlyDurationDays)) {
		t.Errorf("end date = %v", sub.Dates.EndDate)
	}
	if !sub.RenewalSettings.AutoRenew {
		t.Error("paid subscriptions default to auto-renew")
	}
	if sub.Pricing.BasePrice != 5000 {
		t.Errorf("base price = %d, want 5000", sub.Pricing.BasePrice)
	}
	if err := sub.Validate(); err != nil {
		t.Errorf("builder produced invalid aggregate: %v", err)
	}
}

func TestSubscriptionValidate(t *testing.T) {
	now := time.Now().UTC()

	valid := NewTrialSubscription("shop-1", "Starter", now)
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid aggregate rejected: %v", err)
	}

	endBeforeStart := NewTrialSubscription("shop-1", "Starter", now)
	endBeforeStart.Dates.EndDate = endBeforeStart.Dates.StartDate.AddDate(0, 0, -1)
	if err := endBeforeStart.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("end before start: err = %v, want ErrValidation", err)
	}

	badStatus := NewTrialSubscription("shop-1", "Starter", now)
	badStatus.Status = SubscriptionStatus("frozen")
	if err := badStatus.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("bad status: err = %v, want ErrValidation", err)
	}

	noShop := NewTrialSubscription("", "Starter", now)
	if err := noShop.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("missing shop: err = %v, want ErrValidation", err)
	}
}

func TestHasTransaction(t *testing.T) {
	now := time.Now().UTC()
	sub := NewTrialSubscription("shop-1", "Starter", now)

	if sub.HasTransaction("tx-1") {
		t.Error("fresh subscription should not know tx-1")
	}

	sub.AppendHistory(ActionPaymentSucceeded, "system", map[string]string{"transaction_id": "tx-1"}, now)

	if !sub.HasTransaction("tx-1") {
		t.Error("applied transaction not detected")
	}
	if sub.HasTransaction("tx-2") {
		t.Error("unknown transaction reported as applied")
	}
	if sub.HasTransaction("") {
		t.Error("empty transaction id must never match")
	}
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sub := &Subscription{Dates: SubscriptionDates{StartDate: now.AddDate(0, 0, -10), EndDate: now.AddDate(0, 0, 10)}}

	if got := sub.DaysRemaining(now); got != 10 {
		t.Errorf("DaysRemaining() = %d, want 10", got)
	}

	expired := &Subscription{Dates: SubscriptionDates{StartDate: now.AddDate(0, 0, -40), EndDate: now.AddDate(0, 0, -5)}}
	if got := expired.DaysRemaining(now); got != 0 {
		t.Errorf("DaysRemaining() past end = %d, want 0", got)
	}
}

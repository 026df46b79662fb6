package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

func newReconcilerFixture(now time.Time, threshold int) (*PaymentReconciler, *fakeSubRepo, *fakeShopRepo) {
	subs := newFakeSubRepo()
	shops := newFakeShopRepo(&domain.Shop{ID: "shop-1", Phone: "237670000001"})
	rec := NewPaymentReconciler(subs, shops, threshold).WithClock(fixedClock(now))
	return rec, subs, shops
}

func seedActive(t *testing.T, subs *fakeSubRepo, now time.Time) *domain.Subscription {
	t.Helper()
	plan := &domain.Plan{Name: "Pro Monthly", Type: domain.PlanMonthly, Price: 5000, Currency: domain.DefaultCurrency}
	sub := domain.NewPaidSubscription("shop-1", plan, "momo", now)
	if err := subs.Create(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestRecordPaymentExtendsAndActivates(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, shops := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)
	originalEnd := sub.Dates.EndDate

	res, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{
		TransactionID: "tx-100",
		Method:        "momo",
		Amount:        5000,
		Currency:      domain.DefaultCurrency,
	})
	if err != nil {
		t.Fatalf("RecordPayment() error = %v", err)
	}
	if res.AlreadyApplied {
		t.Error("first application reported as duplicate")
	}
	if !res.NewEndDate.Equal(originalEnd.AddDate(0, 0, 30)) {
		t.Errorf("new end = %v, want stacked on %v", res.NewEndDate, originalEnd)
	}

	stored := subs.get(sub.ID)
	if !stored.Payment.Verified {
		t.Error("payment not marked verified")
	}
	if stored.Payment.LastPaymentDate == nil || !stored.Payment.LastPaymentDate.Equal(now) {
		t.Errorf("last payment date = %v", stored.Payment.LastPaymentDate)
	}
	if stored.Payment.NextPaymentDate == nil || !stored.Payment.NextPaymentDate.Equal(res.NewEndDate) {
		t.Errorf("next payment date = %v", stored.Payment.NextPaymentDate)
	}
	if !stored.HasTransaction("tx-100") {
		t.Error("transaction not recorded in history")
	}
	if shops.statusOf("shop-1") != domain.ShopStatusActive {
		t.Errorf("shop status = %q", shops.statusOf("shop-1"))
	}
}

func TestRecordPaymentIdempotent(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)

	first, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-100", Amount: 5000})
	if err != nil {
		t.Fatal(err)
	}

	// Same webhook delivered again: no second extension, no new history.
	second, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-100", Amount: 5000})
	if err != nil {
		t.Fatalf("duplicate RecordPayment() error = %v", err)
	}
	if !second.AlreadyApplied {
		t.Error("duplicate not flagged")
	}
	if !second.NewEndDate.Equal(first.NewEndDate) {
		t.Errorf("duplicate changed end date: %v vs %v", second.NewEndDate, first.NewEndDate)
	}

	stored := subs.get(sub.ID)
	payments := 0
	for _, h := range stored.History {
		if h.Action == domain.ActionPaymentSucceeded {
			payments++
		}
	}
	if payments != 1 {
		t.Errorf("payment history entries = %d, want 1", payments)
	}

	// A different transaction extends again.
	third, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-101", Amount: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if !third.NewEndDate.Equal(first.NewEndDate.AddDate(0, 0, 30)) {
		t.Errorf("second period not stacked: %v", third.NewEndDate)
	}
}

func TestRecordPaymentRecoversPastDue(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 2)
	sub := seedActive(t, subs, now)

	if _, err := rec.RecordFailure(context.Background(), sub.ID, "insufficient funds"); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.RecordFailure(context.Background(), sub.ID, "insufficient funds"); err != nil {
		t.Fatal(err)
	}
	if got := subs.get(sub.ID); got.Status != domain.StatusPastDue {
		t.Fatalf("status after threshold = %q, want past_due", got.Status)
	}

	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-200", Amount: 5000}); err != nil {
		t.Fatal(err)
	}
	stored := subs.get(sub.ID)
	if stored.Status != domain.StatusActive {
		t.Errorf("status after payment = %q, want active", stored.Status)
	}
	if stored.Payment.FailedPayments != 0 {
		t.Errorf("failed payments = %d, want reset to 0", stored.Payment.FailedPayments)
	}
	if stored.RenewalSettings.RenewalAttempts != 0 {
		t.Errorf("renewal attempts = %d, want reset to 0", stored.RenewalSettings.RenewalAttempts)
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)

	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "", Amount: 5000}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing tx id: err = %v, want ErrValidation", err)
	}
	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-1", Amount: 0}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("zero amount: err = %v, want ErrValidation", err)
	}
	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-1", Amount: 4999}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("underpayment: err = %v, want ErrValidation", err)
	}
	if _, err := rec.RecordPayment(context.Background(), "missing", PaymentEvidence{TransactionID: "tx-1", Amount: 5000}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown sub: err = %v, want ErrNotFound", err)
	}
}

func TestRecordPaymentHonorsDiscount(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)

	stored := subs.get(sub.ID)
	stored.Pricing.Discount = &domain.Discount{Active: true, Type: domain.DiscountFixed, Value: 1000}
	if err := subs.Save(context.Background(), stored, stored.Version); err != nil {
		t.Fatal(err)
	}

	// 4000 covers the discounted price even though the base is 5000.
	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-1", Amount: 4000}); err != nil {
		t.Errorf("discounted payment rejected: %v", err)
	}
}

func TestRecordPaymentRejectsTerminal(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)

	stored := subs.get(sub.ID)
	stored.Status = domain.StatusCanceled
	canceledAt := now
	stored.Dates.CanceledAt = &canceledAt
	if err := subs.Save(context.Background(), stored, stored.Version); err != nil {
		t.Fatal(err)
	}

	if _, err := rec.RecordPayment(context.Background(), sub.ID, PaymentEvidence{TransactionID: "tx-1", Amount: 5000}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("canceled: err = %v, want ErrInvalidTransition", err)
	}
}

func TestRecordFailureThreshold(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)
	sub := seedActive(t, subs, now)

	for i := 1; i <= 2; i++ {
		got, err := rec.RecordFailure(context.Background(), sub.ID, "timeout at wallet")
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.StatusActive {
			t.Errorf("after %d failures status = %q, want still active", i, got.Status)
		}
	}

	got, err := rec.RecordFailure(context.Background(), sub.ID, "timeout at wallet")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusPastDue {
		t.Errorf("after threshold status = %q, want past_due", got.Status)
	}
	if got.Payment.FailedPayments != 3 {
		t.Errorf("failed payments = %d, want 3", got.Payment.FailedPayments)
	}

	failures := 0
	for _, h := range subs.get(sub.ID).History {
		if h.Action == domain.ActionPaymentFailed {
			failures++
		}
	}
	if failures != 3 {
		t.Errorf("failure history entries = %d, want 3", failures)
	}
}

func TestRecordFailureRejectsTrial(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rec, subs, _ := newReconcilerFixture(now, 3)

	trial := domain.NewTrialSubscription("shop-1", "Starter", now)
	if err := subs.Create(context.Background(), trial); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.RecordFailure(context.Background(), trial.ID, "whatever"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

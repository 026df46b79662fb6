package domain

import (
	"testing"
	"time"
)

func TestComputeEndDate(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		planType PlanType
		wantDays int
	}{
		{"trial is 14 days", PlanTrial, 14},
		{"monthly is 30 days", PlanMonthly, 30},
		{"yearly is 365 days", PlanYearly, 365},
		{"unknown falls back to 30 days", PlanType("lifetime"), 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeEndDate(start, tt.planType)
			want := start.AddDate(0, 0, tt.wantDays)
			if !got.Equal(want) {
				t.Errorf("ComputeEndDate() = %v, want %v", got, want)
			}
		})
	}
}

func TestCalculateNewEndDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("future end date stacks", func(t *testing.T) {
		currentEnd := now.AddDate(0, 0, 10)
		got := CalculateNewEndDate(currentEnd, PlanMonthly, now)
		want := currentEnd.AddDate(0, 0, 30)
		if !got.Equal(want) {
			t.Errorf("CalculateNewEndDate() = %v, want %v", got, want)
		}
	})

	t.Run("lapsed subscription restarts from now", func(t *testing.T) {
		currentEnd := now.AddDate(0, 0, -5)
		got := CalculateNewEndDate(currentEnd, PlanYearly, now)
		want := now.AddDate(0, 0, 365)
		if !got.Equal(want) {
			t.Errorf("CalculateNewEndDate() = %v, want %v", got, want)
		}
	})
}

func TestProratedExtensionDays(t *testing.T) {
	// Monthly at 10/unit, yearly at 8/unit, both normalized over 30 days:
	// 10 days remaining carry 10*0.333 = 3.33 of value, worth
	// round(3.33/0.267) = 13 days of the new plan.
	rates := DailyRates{
		PlanMonthly: NormalizedDailyRate(10),
		PlanYearly:  NormalizedDailyRate(8),
	}

	tests := []struct {
		name          string
		oldType       PlanType
		newType       PlanType
		daysRemaining int
		want          int
	}{
		{"monthly to yearly carries value", PlanMonthly, PlanYearly, 10, 13},
		{"same rate is one-to-one", PlanMonthly, PlanMonthly, 10, 10},
		{"zero days remaining", PlanMonthly, PlanYearly, 0, 0},
		{"negative days clamp to zero", PlanMonthly, PlanYearly, -5, 0},
		{"unknown new plan rate yields zero", PlanMonthly, PlanType("lifetime"), 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProratedExtensionDays(tt.oldType, tt.newType, tt.daysRemaining, rates)
			if got != tt.want {
				t.Errorf("ProratedExtensionDays() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyDiscount(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, 0, -1)
	future := now.AddDate(0, 0, 30)

	tests := []struct {
		name      string
		basePrice int64
		discount  *Discount
		want      int64
	}{
		{"nil discount", 5000, nil, 5000},
		{"inactive discount", 5000, &Discount{Active: false, Type: DiscountFixed, Value: 1000}, 5000},
		{"fixed discount", 5000, &Discount{Active: true, Type: DiscountFixed, Value: 1000}, 4000},
		{"percentage discount", 5000, &Discount{Active: true, Type: DiscountPercentage, Value: 25}, 3750},
		{"fixed exceeding price clamps to zero", 5000, &Discount{Active: true, Type: DiscountFixed, Value: 9999}, 0},
		{"negative fixed never raises price", 5000, &Discount{Active: true, Type: DiscountFixed, Value: -500}, 5000},
		{"percentage over 100 clamps to zero", 5000, &Discount{Active: true, Type: DiscountPercentage, Value: 150}, 0},
		{"expired discount ignored", 5000, &Discount{Active: true, Type: DiscountFixed, Value: 1000, ExpiresAt: &past}, 5000},
		{"unexpired discount applies", 5000, &Discount{Active: true, Type: DiscountFixed, Value: 1000, ExpiresAt: &future}, 4000},
		{"unknown type ignored", 5000, &Discount{Active: true, Type: DiscountType("bogus"), Value: 1000}, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyDiscount(tt.basePrice, tt.discount, now)
			if got != tt.want {
				t.Errorf("ApplyDiscount() = %d, want %d", got, tt.want)
			}
			if got < 0 || got > tt.basePrice {
				t.Errorf("ApplyDiscount() = %d outside [0, %d]", got, tt.basePrice)
			}
		})
	}
}

func TestComputeDisplayStatus(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	trialSub := func(endsIn time.Duration) *Subscription {
		ends := now.Add(endsIn)
		return &Subscription{
			Status: StatusTrial,
			Dates:  SubscriptionDates{StartDate: now.AddDate(0, 0, -7), EndDate: ends, TrialEndsAt: &ends},
		}
	}
	activeSub := func(endsIn time.Duration, failed int) *Subscription {
		return &Subscription{
			Status:  StatusActive,
			Payment: PaymentInfo{FailedPayments: failed},
			Dates:   SubscriptionDates{StartDate: now.AddDate(0, 0, -30), EndDate: now.Add(endsIn)},
		}
	}

	tests := []struct {
		name string
		sub  *Subscription
		want DisplayStatus
	}{
		{"fresh trial", trialSub(10 * 24 * time.Hour), DisplayTrial},
		{"trial ending soon", trialSub(2 * 24 * time.Hour), DisplayTrialEndingSoon},
		{"healthy active", activeSub(60*24*time.Hour, 0), DisplayActive},
		{"active expiring soon", activeSub(5*24*time.Hour, 0), DisplayExpiringSoon},
		{"active with failed payments", activeSub(60*24*time.Hour, 2), DisplayPaymentIssue},
		{"past due", &Subscription{Status: StatusPastDue}, DisplayPaymentIssue},
		{"canceled", &Subscription{Status: StatusCanceled}, DisplayCanceled},
		{"expired", &Subscription{Status: StatusExpired}, DisplayExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeDisplayStatus(tt.sub, now); got != tt.want {
				t.Errorf("ComputeDisplayStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

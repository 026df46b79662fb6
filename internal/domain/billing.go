package domain

import (
	"math"
	"time"
)

// Plan durations in days. Unknown plan types fall back to the monthly
// duration rather than failing.
const (
	TrialDurationDays   = 14
	MonthlyDurationDays = 30
	YearlyDurationDays  = 365
)

// Display-status thresholds in days.
const (
	TrialEndingSoonDays = 3
	ExpiringSoonDays    = 7
)

// ComputeEndDate returns the period end for a plan starting at start.
func ComputeEndDate(start time.Time, planType PlanType) time.Time {
	return start.UTC().AddDate(0, 0, PlanDurationDays(planType))
}

// PlanDurationDays returns the billing period length for a plan type.
func PlanDurationDays(planType PlanType) int {
	switch planType {
	case PlanTrial:
		return TrialDurationDays
	case PlanYearly:
		return YearlyDurationDays
	case PlanMonthly:
		return MonthlyDurationDays
	default:
		return MonthlyDurationDays
	}
}

// CalculateNewEndDate stacks one billing period on top of the current end
// date. When the subscription still has time left the extension starts from
// the current end, so paying early never loses days; a lapsed subscription
// restarts from now.
func CalculateNewEndDate(currentEnd time.Time, planType PlanType, now time.Time) time.Time {
	now = now.UTC()
	base := now
	if currentEnd.After(now) {
		base = currentEnd
	}
	return base.AddDate(0, 0, PlanDurationDays(planType))
}

// DailyRates maps plan types to their daily monetary value. The lifecycle
// service derives each rate from the plan's 30-day normalized base price.
type DailyRates map[PlanType]float64

// NormalizedDailyRate converts a base price to its 30-day daily rate.
func NormalizedDailyRate(basePrice int64) float64 {
	return float64(basePrice) / float64(MonthlyDurationDays)
}

// ProratedExtensionDays converts the unused value of the current plan into
// days of the new plan: remainingValue = daysRemaining * oldRate, and the
// result is round(remainingValue / newRate). Never returns negative days; an
// unknown or zero new rate yields 0.
func ProratedExtensionDays(oldType, newType PlanType, daysRemaining int, rates DailyRates) int {
	if daysRemaining <= 0 {
		return 0
	}
	oldRate := rates[oldType]
	newRate := rates[newType]
	if oldRate <= 0 || newRate <= 0 {
		return 0
	}
	remainingValue := float64(daysRemaining) * oldRate
	days := int(math.Round(remainingValue / newRate))
	if days < 0 {
		return 0
	}
	return days
}

// ApplyDiscount returns the price after applying d, clamped to
// [0, basePrice]. Inactive or expired discounts leave the price unchanged.
func ApplyDiscount(basePrice int64, d *Discount, now time.Time) int64 {
	if d == nil || !d.Active {
		return basePrice
	}
	if d.ExpiresAt != nil && now.UTC().After(*d.ExpiresAt) {
		return basePrice
	}

	var price int64
	switch d.Type {
	case DiscountFixed:
		price = basePrice - int64(d.Value)
	case DiscountPercentage:
		price = basePrice - int64(math.Round(float64(basePrice)*d.Value/100))
	default:
		return basePrice
	}

	if price < 0 {
		return 0
	}
	if price > basePrice {
		return basePrice
	}
	return price
}

// DisplayStatus is a derived, read-only classification layered on top of the
// raw lifecycle status. It never feeds back into the aggregate.
type DisplayStatus string

const (
	DisplayTrial           DisplayStatus = "trial"
	DisplayTrialEndingSoon DisplayStatus = "trial_ending_soon"
	DisplayActive          DisplayStatus = "active"
	DisplayExpiringSoon    DisplayStatus = "expiring_soon"
	DisplayPaymentIssue    DisplayStatus = "payment_issue"
	DisplayCanceled        DisplayStatus = "canceled"
	DisplayExpired         DisplayStatus = "expired"
)

// ComputeDisplayStatus classifies a subscription for dashboards.
func ComputeDisplayStatus(sub *Subscription, now time.Time) DisplayStatus {
	now = now.UTC()
	switch sub.Status {
	case StatusTrial:
		if sub.Dates.TrialEndsAt != nil {
			days := int(sub.Dates.TrialEndsAt.Sub(now).Hours() / 24)
			if days <= TrialEndingSoonDays {
				return DisplayTrialEndingSoon
			}
		}
		return DisplayTrial
	case StatusActive:
		if sub.Payment.FailedPayments > 0 {
			return DisplayPaymentIssue
		}
		if sub.DaysRemaining(now) <= ExpiringSoonDays {
			return DisplayExpiringSoon
		}
		return DisplayActive
	case StatusPastDue:
		return DisplayPaymentIssue
	case StatusCanceled:
		return DisplayCanceled
	case StatusExpired:
		return DisplayExpired
	default:
		return DisplayStatus(sub.Status)
	}
}

// Package referral holds the rules for referral codes: validity, discount
// and commission math, and the aggregate bookkeeping applied when a booking
// is paid for or reversed. Every function here is pure; persistence lives in
// the repositories.
package referral

import (
	"strings"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/utils"
)

// NormalizeCode trims and uppercases a code so lookups are case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Status derives the display status of a code at now.
func Status(code models.ReferralCode, now time.Time) models.ReferralStatus {
	switch {
	case !code.IsActive:
		return models.ReferralStatusInactive
	case now.Before(code.StartDate):
		return models.ReferralStatusScheduled
	case now.After(code.ExpirationDate):
		return models.ReferralStatusExpired
	case exhausted(code):
		return models.ReferralStatusExhausted
	}
	return models.ReferralStatusActive
}

func IsValid(code models.ReferralCode, now time.Time) bool {
	return Status(code, now) == models.ReferralStatusActive
}

func exhausted(code models.ReferralCode) bool {
	return code.MaxUsage != nil && code.UsageCount >= *code.MaxUsage
}

func inWindow(code models.ReferralCode, now time.Time) bool {
	return !now.Before(code.StartDate) && !now.After(code.ExpirationDate)
}

// CalculateDiscount returns zero for invalid codes and for orders below the
// code's minimum. The cap applies to percentage discounts only.
func CalculateDiscount(code models.ReferralCode, orderAmount float64, now time.Time) float64 {
	if !IsValid(code, now) || orderAmount < code.MinOrderAmount {
		return 0
	}

	var discount float64
	switch code.DiscountType {
	case models.DiscountTypePercentage:
		discount = utils.Percentage(orderAmount, code.DiscountValue)
		if code.MaxDiscountAmount != nil && discount > *code.MaxDiscountAmount {
			discount = *code.MaxDiscountAmount
		}
	case models.DiscountTypeFixed:
		discount = code.DiscountValue
	}

	if discount < 0 {
		return 0
	}
	if discount > orderAmount {
		return utils.RoundMoney(orderAmount)
	}
	return utils.RoundMoney(discount)
}

// CalculateCommission is computed on the post-discount amount. A fixed
// commission is the flat configured value regardless of the amount.
func CalculateCommission(code models.ReferralCode, finalAmount float64) float64 {
	switch code.CommissionType {
	case models.CommissionTypePercentage:
		return utils.Percentage(finalAmount, code.CommissionValue)
	case models.CommissionTypeFixed:
		return utils.RoundMoney(code.CommissionValue)
	}
	return 0
}

// Quote computes what a booking of orderAmount would get from the code
// without touching its aggregates.
func Quote(code models.ReferralCode, orderAmount float64, now time.Time) models.ReferralUsage {
	discount := CalculateDiscount(code, orderAmount, now)
	final := utils.SubtractMoney(orderAmount, discount)
	return models.ReferralUsage{
		Discount:    discount,
		FinalAmount: final,
		Commission:  CalculateCommission(code, final),
	}
}

// Use quotes orderAmount and records the usage in one step.
func Use(code models.ReferralCode, orderAmount float64, now time.Time) (models.ReferralCode, models.ReferralUsage, error) {
	if !IsValid(code, now) {
		return code, models.ReferralUsage{}, apperrors.InvalidReferral(code.Code, RejectionReason(code, now))
	}
	usage := Quote(code, orderAmount, now)
	updated, err := Record(code, usage, now)
	if err != nil {
		return code, models.ReferralUsage{}, err
	}
	return updated, usage, nil
}

// Record applies an already computed usage to the aggregates. Bookings
// record the discount and commission frozen on the appointment, not a
// fresh quote.
func Record(code models.ReferralCode, usage models.ReferralUsage, now time.Time) (models.ReferralCode, error) {
	if !IsValid(code, now) {
		return code, apperrors.InvalidReferral(code.Code, RejectionReason(code, now))
	}
	code.UsageCount++
	code.TotalReferrals++
	code.SuccessfulReferrals++
	code.TotalDiscountGiven = utils.AddMoney(code.TotalDiscountGiven, usage.Discount)
	code.TotalCommissionEarned = utils.AddMoney(code.TotalCommissionEarned, usage.Commission)
	used := now
	code.LastUsedAt = &used
	return code, nil
}

// Reverse undoes one Record. No aggregate goes below zero.
func Reverse(code models.ReferralCode, discount, commission float64) models.ReferralCode {
	code.UsageCount = decrement(code.UsageCount)
	code.TotalReferrals = decrement(code.TotalReferrals)
	code.SuccessfulReferrals = decrement(code.SuccessfulReferrals)
	code.TotalDiscountGiven = clampedSub(code.TotalDiscountGiven, discount)
	code.TotalCommissionEarned = clampedSub(code.TotalCommissionEarned, commission)
	return code
}

func decrement(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}

func clampedSub(total, amount float64) float64 {
	v := utils.SubtractMoney(total, amount)
	if v < 0 {
		return 0
	}
	return v
}

// RejectionReason explains why an invalid code cannot be used at now.
func RejectionReason(code models.ReferralCode, now time.Time) apperrors.ReferralRejection {
	if !code.IsActive || !inWindow(code, now) {
		return apperrors.ReasonExpired
	}
	return apperrors.ReasonUsageLimitExceeded
}

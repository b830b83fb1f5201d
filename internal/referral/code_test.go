package referral

import (
	"errors"
	"testing"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func activeCode(mutators ...func(*models.ReferralCode)) models.ReferralCode {
	code := models.ReferralCode{
		Code:            "SAVE20",
		DiscountType:    models.DiscountTypePercentage,
		DiscountValue:   20,
		CommissionType:  models.CommissionTypePercentage,
		CommissionValue: 10,
		MaxUsagePerUser: 1,
		StartDate:       now.Add(-24 * time.Hour),
		ExpirationDate:  now.Add(30 * 24 * time.Hour),
		IsActive:        true,
	}
	for _, m := range mutators {
		m(&code)
	}
	return code
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		code models.ReferralCode
		want models.ReferralStatus
	}{
		{"active", activeCode(), models.ReferralStatusActive},
		{"inactive", activeCode(func(c *models.ReferralCode) { c.IsActive = false }), models.ReferralStatusInactive},
		{"not started", activeCode(func(c *models.ReferralCode) { c.StartDate = now.Add(time.Hour) }), models.ReferralStatusScheduled},
		{"expired", activeCode(func(c *models.ReferralCode) { c.ExpirationDate = now.Add(-time.Second) }), models.ReferralStatusExpired},
		{"exhausted", activeCode(func(c *models.ReferralCode) { c.MaxUsage = intPtr(3); c.UsageCount = 3 }), models.ReferralStatusExhausted},
		{"under cap", activeCode(func(c *models.ReferralCode) { c.MaxUsage = intPtr(3); c.UsageCount = 2 }), models.ReferralStatusActive},
		{"boundary start", activeCode(func(c *models.ReferralCode) { c.StartDate = now }), models.ReferralStatusActive},
		{"boundary end", activeCode(func(c *models.ReferralCode) { c.ExpirationDate = now }), models.ReferralStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.code, now); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCalculateDiscount(t *testing.T) {
	tests := []struct {
		name   string
		code   models.ReferralCode
		amount float64
		want   float64
	}{
		{"percentage", activeCode(), 1000, 200},
		{"percentage capped", activeCode(func(c *models.ReferralCode) { c.MaxDiscountAmount = floatPtr(150) }), 1000, 150},
		{"cap above discount", activeCode(func(c *models.ReferralCode) { c.MaxDiscountAmount = floatPtr(500) }), 1000, 200},
		{"fixed", activeCode(func(c *models.ReferralCode) {
			c.DiscountType = models.DiscountTypeFixed
			c.DiscountValue = 50
		}), 300, 50},
		{"fixed ignores cap", activeCode(func(c *models.ReferralCode) {
			c.DiscountType = models.DiscountTypeFixed
			c.DiscountValue = 50
			c.MaxDiscountAmount = floatPtr(10)
		}), 300, 50},
		{"fixed clamped to order", activeCode(func(c *models.ReferralCode) {
			c.DiscountType = models.DiscountTypeFixed
			c.DiscountValue = 500
		}), 300, 300},
		{"percentage over 100 clamped", activeCode(func(c *models.ReferralCode) { c.DiscountValue = 150 }), 400, 400},
		{"below minimum", activeCode(func(c *models.ReferralCode) { c.MinOrderAmount = 500 }), 300, 0},
		{"inactive", activeCode(func(c *models.ReferralCode) { c.IsActive = false }), 1000, 0},
		{"exhausted", activeCode(func(c *models.ReferralCode) { c.MaxUsage = intPtr(1); c.UsageCount = 1 }), 1000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateDiscount(tt.code, tt.amount, now)
			if got != tt.want {
				t.Errorf("CalculateDiscount() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > tt.amount {
				t.Errorf("discount %v outside [0, %v]", got, tt.amount)
			}
		})
	}
}

func TestPercentageDiscountBounds(t *testing.T) {
	capAmount := 75.0
	for _, pct := range []float64{0, 5, 12.5, 33, 50, 99, 100} {
		for _, amount := range []float64{0, 1, 99.99, 250, 1000, 12345.67} {
			code := activeCode(func(c *models.ReferralCode) {
				c.DiscountValue = pct
				c.MaxDiscountAmount = &capAmount
			})
			d := CalculateDiscount(code, amount, now)
			if d > amount {
				t.Errorf("pct=%v amount=%v: discount %v exceeds amount", pct, amount, d)
			}
			if d > capAmount {
				t.Errorf("pct=%v amount=%v: discount %v exceeds cap", pct, amount, d)
			}
		}
	}
}

func TestCalculateCommission(t *testing.T) {
	pct := activeCode()
	if got := CalculateCommission(pct, 800); got != 80 {
		t.Errorf("percentage commission = %v, want 80", got)
	}

	fixed := activeCode(func(c *models.ReferralCode) {
		c.CommissionType = models.CommissionTypeFixed
		c.CommissionValue = 25
	})
	for _, amount := range []float64{0, 100, 10000} {
		if got := CalculateCommission(fixed, amount); got != 25 {
			t.Errorf("fixed commission on %v = %v, want 25", amount, got)
		}
	}
}

func TestQuoteScenario(t *testing.T) {
	usage := Quote(activeCode(), 1000, now)
	if usage.Discount != 200 || usage.FinalAmount != 800 || usage.Commission != 80 {
		t.Errorf("Quote() = %+v, want discount=200 final=800 commission=80", usage)
	}
}

func TestUseAndReverseRoundTrip(t *testing.T) {
	code := activeCode(func(c *models.ReferralCode) { c.MaxUsage = intPtr(10) })
	original := code

	const n = 4
	for i := 0; i < n; i++ {
		var err error
		code, _, err = Use(code, 1000, now)
		if err != nil {
			t.Fatalf("Use() #%d: %v", i, err)
		}
	}
	if code.UsageCount != n || code.TotalReferrals != n || code.SuccessfulReferrals != n {
		t.Fatalf("after %d uses counters = %d/%d/%d", n, code.UsageCount, code.TotalReferrals, code.SuccessfulReferrals)
	}
	if code.TotalDiscountGiven != 800 || code.TotalCommissionEarned != 320 {
		t.Fatalf("totals = %v/%v, want 800/320", code.TotalDiscountGiven, code.TotalCommissionEarned)
	}
	if code.LastUsedAt == nil || !code.LastUsedAt.Equal(now) {
		t.Errorf("LastUsedAt = %v, want %v", code.LastUsedAt, now)
	}

	for i := 0; i < n; i++ {
		code = Reverse(code, 200, 80)
	}
	if code.UsageCount != original.UsageCount || code.TotalDiscountGiven != 0 || code.TotalCommissionEarned != 0 {
		t.Errorf("after reversal = %+v", code)
	}
}

func TestUseOnInvalidCodeDoesNotMutate(t *testing.T) {
	tests := []struct {
		name   string
		code   models.ReferralCode
		reason apperrors.ReferralRejection
	}{
		{"expired", activeCode(func(c *models.ReferralCode) { c.ExpirationDate = now.Add(-time.Hour) }), apperrors.ReasonExpired},
		{"inactive", activeCode(func(c *models.ReferralCode) { c.IsActive = false }), apperrors.ReasonExpired},
		{"exhausted", activeCode(func(c *models.ReferralCode) { c.MaxUsage = intPtr(2); c.UsageCount = 2 }), apperrors.ReasonUsageLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, usage, err := Use(tt.code, 1000, now)
			var ire *apperrors.InvalidReferralError
			if !errors.As(err, &ire) {
				t.Fatalf("expected InvalidReferralError, got %v", err)
			}
			if ire.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", ire.Reason, tt.reason)
			}
			if got.UsageCount != tt.code.UsageCount || got.TotalCommissionEarned != tt.code.TotalCommissionEarned || got.LastUsedAt != nil {
				t.Errorf("aggregates mutated: %+v", got)
			}
			if usage != (models.ReferralUsage{}) {
				t.Errorf("usage = %+v, want zero", usage)
			}
		})
	}
}

func TestReverseNeverNegative(t *testing.T) {
	code := activeCode(func(c *models.ReferralCode) {
		c.UsageCount = 1
		c.TotalReferrals = 1
		c.SuccessfulReferrals = 1
		c.TotalDiscountGiven = 30
		c.TotalCommissionEarned = 20
	})
	code = Reverse(code, 50, 80)
	code = Reverse(code, 50, 80)
	if code.UsageCount != 0 || code.TotalReferrals != 0 || code.SuccessfulReferrals != 0 {
		t.Errorf("counters went negative: %+v", code)
	}
	if code.TotalDiscountGiven != 0 || code.TotalCommissionEarned != 0 {
		t.Errorf("totals went negative: %v/%v", code.TotalDiscountGiven, code.TotalCommissionEarned)
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  save20 "); got != "SAVE20" {
		t.Errorf("NormalizeCode() = %q", got)
	}
}

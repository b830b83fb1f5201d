package referral

import (
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
)

// Request is the caller context a code is validated against. PriorUsage is
// the number of the requester's non-cancelled appointments that already
// carry this code.
type Request struct {
	Code          string
	RequesterID   string
	RequesterRole models.UserRole
	OrderAmount   float64
	PriorUsage    int
}

type Decision struct {
	Referral    *models.ReferralCode `json:"referral,omitempty"`
	Discount    float64              `json:"discount"`
	FinalAmount float64              `json:"final_amount"`
	Commission  float64              `json:"commission"`
}

// Validate checks code against req. A nil code means no code matched.
// Checks run in a fixed order and the first failure is reported.
func Validate(code *models.ReferralCode, req Request, now time.Time) (Decision, error) {
	normalized := NormalizeCode(req.Code)
	if code == nil {
		return Decision{}, apperrors.InvalidReferral(normalized, apperrors.ReasonNotFound)
	}
	if !code.IsActive || !inWindow(*code, now) {
		return Decision{}, apperrors.InvalidReferral(code.Code, apperrors.ReasonExpired)
	}
	if exhausted(*code) {
		return Decision{}, apperrors.InvalidReferral(code.Code, apperrors.ReasonUsageLimitExceeded)
	}
	if req.OrderAmount < code.MinOrderAmount {
		return Decision{}, apperrors.InvalidReferral(code.Code, apperrors.ReasonMinimumAmountNotMet)
	}
	if req.PriorUsage >= perUserLimit(*code) {
		return Decision{}, apperrors.InvalidReferral(code.Code, apperrors.ReasonUserUsageLimitExceeded)
	}
	if !roleEligible(*code, req.RequesterRole) {
		return Decision{}, apperrors.InvalidReferral(code.Code, apperrors.ReasonRoleNotEligible)
	}

	usage := Quote(*code, req.OrderAmount, now)
	return Decision{
		Referral:    code,
		Discount:    usage.Discount,
		FinalAmount: usage.FinalAmount,
		Commission:  usage.Commission,
	}, nil
}

func perUserLimit(code models.ReferralCode) int {
	if code.MaxUsagePerUser <= 0 {
		return 1
	}
	return code.MaxUsagePerUser
}

func roleEligible(code models.ReferralCode, role models.UserRole) bool {
	if len(code.TargetRoles) == 0 {
		return true
	}
	for _, r := range code.TargetRoles {
		if r == role {
			return true
		}
	}
	return false
}

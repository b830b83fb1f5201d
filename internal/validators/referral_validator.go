package validators

import (
	"time"

	"medibook/internal/models"
)

type ReferralCodeConfigRequest struct {
	Description       string    `json:"description" validate:"omitempty,max=255"`
	DiscountType      string    `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue     float64   `json:"discount_value" validate:"gte=0"`
	MaxDiscountAmount *float64  `json:"max_discount_amount" validate:"omitempty,gte=0"`
	MinOrderAmount    float64   `json:"min_order_amount" validate:"gte=0"`
	CommissionType    string    `json:"commission_type" validate:"required,oneof=percentage fixed"`
	CommissionValue   float64   `json:"commission_value" validate:"gte=0"`
	MaxUsage          *int      `json:"max_usage" validate:"omitempty,gte=0"`
	MaxUsagePerUser   int       `json:"max_usage_per_user" validate:"gte=0"`
	StartDate         time.Time `json:"start_date" validate:"required"`
	ExpirationDate    time.Time `json:"expiration_date" validate:"required,gtfield=StartDate"`
	TargetRoles       []string  `json:"target_roles" validate:"omitempty,dive,user_role"`
}

type CreateReferralCodeRequest struct {
	Code    string `json:"code" validate:"required,referral_code"`
	AgentID string `json:"agent_id" validate:"required,object_id"`
	ReferralCodeConfigRequest
}

func ValidateReferralCodeConfig(req *ReferralCodeConfigRequest) ValidationErrors {
	return checkPercentages(req, ValidateStruct(req))
}

func ValidateCreateReferralCode(req *CreateReferralCodeRequest) ValidationErrors {
	return checkPercentages(&req.ReferralCodeConfigRequest, ValidateStruct(req))
}

func checkPercentages(req *ReferralCodeConfigRequest, errors ValidationErrors) ValidationErrors {
	if models.DiscountType(req.DiscountType) == models.DiscountTypePercentage && req.DiscountValue > 100 {
		errors = append(errors, ValidationError{
			Field:   "discount_value",
			Tag:     "lte",
			Message: "Percentage discount cannot exceed 100",
		})
	}
	if models.CommissionType(req.CommissionType) == models.CommissionTypePercentage && req.CommissionValue > 100 {
		errors = append(errors, ValidationError{
			Field:   "commission_value",
			Tag:     "lte",
			Message: "Percentage commission cannot exceed 100",
		})
	}
	return errors
}

// Roles converts validated role names.
func (r *ReferralCodeConfigRequest) Roles() []models.UserRole {
	if len(r.TargetRoles) == 0 {
		return nil
	}
	roles := make([]models.UserRole, len(r.TargetRoles))
	for i, role := range r.TargetRoles {
		roles[i] = models.UserRole(role)
	}
	return roles
}

package validators

import (
	"strings"

	"medibook/internal/models"
)

type CreateUserRequest struct {
	Name            string  `json:"name" validate:"required,min=2,max=100"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"omitempty,phone_number"`
	Role            string  `json:"role" validate:"required,user_role"`
	Specialization  string  `json:"specialization" validate:"omitempty,max=100"`
	ConsultationFee float64 `json:"consultation_fee" validate:"gte=0"`
	CommissionRate  float64 `json:"commission_rate" validate:"gte=0,lte=100"`
	AgentCode       string  `json:"agent_code" validate:"omitempty,referral_code"`
}

type SetFlagRequest struct {
	Value *bool `json:"value" validate:"required"`
}

func ValidateCreateUser(req *CreateUserRequest) ValidationErrors {
	errors := ValidateStruct(req)

	switch models.UserRole(req.Role) {
	case models.UserRoleDoctor:
		if req.ConsultationFee <= 0 {
			errors = append(errors, ValidationError{
				Field:   "consultation_fee",
				Tag:     "required",
				Message: "Doctors need a consultation fee",
			})
		}
	case models.UserRoleAgent:
		if strings.TrimSpace(req.AgentCode) == "" {
			errors = append(errors, ValidationError{
				Field:   "agent_code",
				Tag:     "required",
				Message: "Agents need an agent code",
			})
		}
	}
	return errors
}

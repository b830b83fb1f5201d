package pricing

import (
	"medibook/internal/models"
	"medibook/internal/referral"
	"medibook/internal/utils"
)

// Snapshot is the price frozen onto an appointment at booking.
type Snapshot struct {
	ConsultationFee float64              `json:"consultation_fee"`
	Discount        float64              `json:"discount"`
	FinalAmount     float64              `json:"final_amount"`
	AgentCommission float64              `json:"agent_commission"`
	Referral        *models.ReferralCode `json:"-"`
}

// Price combines baseFee with an accepted referral decision. A nil decision
// means no code was supplied.
func Price(baseFee float64, decision *referral.Decision) Snapshot {
	fee := utils.RoundMoney(baseFee)
	if decision == nil || decision.Referral == nil {
		return Snapshot{ConsultationFee: fee, FinalAmount: fee}
	}

	discount := decision.Discount
	if discount < 0 {
		discount = 0
	}
	if discount > fee {
		discount = fee
	}
	return Snapshot{
		ConsultationFee: fee,
		Discount:        discount,
		FinalAmount:     utils.SubtractMoney(fee, discount),
		AgentCommission: decision.Commission,
		Referral:        decision.Referral,
	}
}

// Apply writes s onto a new appointment.
func Apply(s Snapshot, appt *models.Appointment) {
	appt.ConsultationFee = s.ConsultationFee
	appt.Discount = s.Discount
	appt.FinalAmount = s.FinalAmount
	appt.AgentCommission = s.AgentCommission
	if s.Referral != nil {
		id := s.Referral.ID
		agent := s.Referral.AgentID
		appt.ReferralCode = s.Referral.Code
		appt.ReferralCodeID = &id
		appt.AgentID = &agent
	}
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationCategory string

const (
	NotificationAppointmentConfirmation NotificationCategory = "appointment_confirmation"
	NotificationPaymentConfirmation     NotificationCategory = "payment_confirmation"
	NotificationAppointmentReminder     NotificationCategory = "appointment_reminder"
	NotificationReferralReward          NotificationCategory = "referral_reward"
)

type Notification struct {
	ID          string                 `json:"id"`
	Category    NotificationCategory   `json:"category"`
	RecipientID primitive.ObjectID     `json:"recipient_id"`
	Email       string                 `json:"email,omitempty"`
	Phone       string                 `json:"phone,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
	SendAt      time.Time              `json:"send_at"`
	Attempts    int                    `json:"attempts"`
	CreatedAt   time.Time              `json:"created_at"`
}

type DispatchResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

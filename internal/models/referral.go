package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type DiscountType string
type CommissionType string
type ReferralStatus string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"

	CommissionTypePercentage CommissionType = "percentage"
	CommissionTypeFixed      CommissionType = "fixed"

	ReferralStatusActive    ReferralStatus = "active"
	ReferralStatusInactive  ReferralStatus = "inactive"
	ReferralStatusScheduled ReferralStatus = "scheduled"
	ReferralStatusExpired   ReferralStatus = "expired"
	ReferralStatusExhausted ReferralStatus = "exhausted"
)

// ReferralCode is owned by an agent. Aggregate fields are only changed by
// booking lifecycle events, never set directly.
type ReferralCode struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Code        string             `json:"code" bson:"code"`
	AgentID     primitive.ObjectID `json:"agent_id" bson:"agent_id"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`

	DiscountType      DiscountType `json:"discount_type" bson:"discount_type"`
	DiscountValue     float64      `json:"discount_value" bson:"discount_value"`
	MaxDiscountAmount *float64     `json:"max_discount_amount,omitempty" bson:"max_discount_amount"`
	MinOrderAmount    float64      `json:"min_order_amount" bson:"min_order_amount"`

	CommissionType  CommissionType `json:"commission_type" bson:"commission_type"`
	CommissionValue float64        `json:"commission_value" bson:"commission_value"`

	UsageCount      int  `json:"usage_count" bson:"usage_count"`
	MaxUsage        *int `json:"max_usage,omitempty" bson:"max_usage"`
	MaxUsagePerUser int  `json:"max_usage_per_user" bson:"max_usage_per_user"`

	StartDate      time.Time `json:"start_date" bson:"start_date"`
	ExpirationDate time.Time `json:"expiration_date" bson:"expiration_date"`
	IsActive       bool      `json:"is_active" bson:"is_active"`

	TargetRoles []UserRole `json:"target_roles,omitempty" bson:"target_roles"`

	TotalReferrals        int        `json:"total_referrals" bson:"total_referrals"`
	SuccessfulReferrals   int        `json:"successful_referrals" bson:"successful_referrals"`
	TotalCommissionEarned float64    `json:"total_commission_earned" bson:"total_commission_earned"`
	TotalDiscountGiven    float64    `json:"total_discount_given" bson:"total_discount_given"`
	LastUsedAt            *time.Time `json:"last_used_at,omitempty" bson:"last_used_at"`

	CreatedBy primitive.ObjectID `json:"created_by" bson:"created_by"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// ReferralUsage is the money a single booking attributes to a code.
type ReferralUsage struct {
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"final_amount"`
	Commission  float64 `json:"commission"`
}

// AgentReferralSummary sums the aggregates of every code an agent holds.
type AgentReferralSummary struct {
	AgentID               primitive.ObjectID `json:"agent_id"`
	Codes                 int                `json:"codes"`
	ActiveCodes           int                `json:"active_codes"`
	TotalReferrals        int                `json:"total_referrals"`
	SuccessfulReferrals   int                `json:"successful_referrals"`
	TotalCommissionEarned float64            `json:"total_commission_earned"`
	TotalDiscountGiven    float64            `json:"total_discount_given"`
}

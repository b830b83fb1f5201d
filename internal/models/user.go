package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRole string

const (
	UserRolePatient UserRole = "patient"
	UserRoleDoctor  UserRole = "doctor"
	UserRoleAgent   UserRole = "agent"
	UserRoleAdmin   UserRole = "admin"

	// UserRoleSystem is never stored; it identifies transitions driven by
	// payment callbacks and refunds rather than a person.
	UserRoleSystem UserRole = "system"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRolePatient, UserRoleDoctor, UserRoleAgent, UserRoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name            string             `json:"name" bson:"name"`
	Email           string             `json:"email" bson:"email"`
	Phone           string             `json:"phone" bson:"phone"`
	Role            UserRole           `json:"role" bson:"role"`
	IsActive        bool               `json:"is_active" bson:"is_active"`
	IsApproved      bool               `json:"is_approved" bson:"is_approved"`
	Specialization  string             `json:"specialization,omitempty" bson:"specialization,omitempty"`
	ConsultationFee float64            `json:"consultation_fee" bson:"consultation_fee"`
	CommissionRate  float64            `json:"commission_rate" bson:"commission_rate"`
	AgentCode       string             `json:"agent_code,omitempty" bson:"agent_code,omitempty"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" bson:"updated_at"`
}

// Actor is whoever triggers an operation. ID is zero for system actors.
type Actor struct {
	ID   primitive.ObjectID
	Role UserRole
}

func SystemActor() Actor {
	return Actor{Role: UserRoleSystem}
}

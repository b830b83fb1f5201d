package utils

import "time"

const (
	AppName    = "medibook"
	AppVersion = "1.0.0"

	DefaultCurrency = "INR"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Booking
	DefaultPatientCancelWindow = 2 * time.Hour
	MaxSymptomsLength          = 2000
	MaxReasonLength            = 500
	MaxNotesLength             = 5000

	// Referral codes
	MinReferralCodeLength = 3
	MaxReferralCodeLength = 32
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrMsgInvalidToken     = "invalid token"
	ErrMsgInvalidInput     = "invalid input"
	ErrMsgInternalServer   = "internal server error"
	ErrMsgUnauthorized     = "unauthorized"
	ErrMsgForbidden        = "forbidden"
	ErrMsgValidationFailed = "validation failed"
	ErrMsgTooManyRequests  = "too many requests"
)

// Context keys set by middleware on the gin context.
const (
	ContextKeyUserID    = "user_id"
	ContextKeyUserRole  = "user_role"
	ContextKeyRequestID = "request_id"
)

const HeaderRequestID = "X-Request-ID"

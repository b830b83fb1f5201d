package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("resource not found")
	ErrAlreadyExists        = errors.New("resource already exists")
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("action not permitted for this actor")
	ErrInvalidRefundAmount  = errors.New("refund amount must be greater than zero")
	ErrPaymentNotRefundable = errors.New("payment is not in a refundable state")
	ErrCashAmountMismatch   = errors.New("collected cash does not match the amount due")
	ErrUnsupportedGateway   = errors.New("unsupported payment gateway")
)

type ReferralRejection string

const (
	ReasonNotFound               ReferralRejection = "NotFound"
	ReasonExpired                ReferralRejection = "Expired"
	ReasonUsageLimitExceeded     ReferralRejection = "UsageLimitExceeded"
	ReasonMinimumAmountNotMet    ReferralRejection = "MinimumAmountNotMet"
	ReasonUserUsageLimitExceeded ReferralRejection = "UserUsageLimitExceeded"
	ReasonRoleNotEligible        ReferralRejection = "RoleNotEligible"
)

type InvalidReferralError struct {
	Code   string
	Reason ReferralRejection
}

func (e *InvalidReferralError) Error() string {
	return fmt.Sprintf("referral code %q rejected: %s", e.Code, e.Reason)
}

type DuplicatePaymentError struct {
	AppointmentID string
	ExistingID    string
}

func (e *DuplicatePaymentError) Error() string {
	if e.ExistingID == "" {
		return fmt.Sprintf("appointment %s already has a pending or completed payment", e.AppointmentID)
	}
	return fmt.Sprintf("appointment %s already has a pending or completed payment (%s)", e.AppointmentID, e.ExistingID)
}

type InvalidStateTransitionError struct {
	Current   string
	Attempted string
	Reason    string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s appointment in state %s: %s", e.Attempted, e.Current, e.Reason)
}

// ConcurrentModificationError means a conditional write lost a race. The
// operation may be retried after re-reading current state.
type ConcurrentModificationError struct {
	Resource string
	ID       string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

type SlotUnavailableError struct {
	DoctorID string
	Slot     string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("doctor %s already has an appointment at %s", e.DoctorID, e.Slot)
}

type SignatureVerificationError struct {
	Gateway string
	Reason  string
}

func (e *SignatureVerificationError) Error() string {
	return fmt.Sprintf("%s callback failed verification: %s", e.Gateway, e.Reason)
}

type RefundExceedsAvailableError struct {
	Requested float64
	Available float64
}

func (e *RefundExceedsAvailableError) Error() string {
	return fmt.Sprintf("refund of %.2f exceeds refundable balance %.2f", e.Requested, e.Available)
}

func IsRetryable(err error) bool {
	var cm *ConcurrentModificationError
	return errors.As(err, &cm)
}

func InvalidReferral(code string, reason ReferralRejection) error {
	return &InvalidReferralError{Code: code, Reason: reason}
}

func InvalidTransition(current, attempted, reason string) error {
	return &InvalidStateTransitionError{Current: current, Attempted: attempted, Reason: reason}
}

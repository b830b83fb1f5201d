package handlers

import (
	"errors"
	"net/http"

	"medibook/internal/apperrors"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
)

// respondError translates service errors into the API error envelope. The
// error is attached to the gin context so the request logger records it.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		invalidReferral *apperrors.InvalidReferralError
		validationErrs  validators.ValidationErrors
		slotTaken       *apperrors.SlotUnavailableError
		duplicate       *apperrors.DuplicatePaymentError
		transition      *apperrors.InvalidStateTransitionError
		conflict        *apperrors.ConcurrentModificationError
		signature       *apperrors.SignatureVerificationError
		exceeds         *apperrors.RefundExceedsAvailableError
	)

	switch {
	case errors.As(err, &invalidReferral):
		utils.ErrorResponseWithDetails(c, http.StatusUnprocessableEntity, "INVALID_REFERRAL", err.Error(),
			map[string]string{"reason": string(invalidReferral.Reason), "code": invalidReferral.Code})
	case errors.As(err, &validationErrs):
		utils.ValidationErrorResponse(c, validationErrs.Details())
	case errors.As(err, &slotTaken):
		utils.ConflictResponse(c, "SLOT_UNAVAILABLE", err.Error())
	case errors.As(err, &duplicate):
		utils.ConflictResponse(c, "DUPLICATE_PAYMENT", err.Error())
	case errors.As(err, &transition):
		utils.ErrorResponseWithDetails(c, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error(),
			map[string]string{"current": transition.Current, "attempted": transition.Attempted})
	case errors.As(err, &conflict):
		utils.ConflictResponse(c, "CONCURRENT_MODIFICATION", err.Error())
	case errors.As(err, &signature):
		utils.ErrorResponse(c, http.StatusBadRequest, "SIGNATURE_VERIFICATION_FAILED", err.Error())
	case errors.As(err, &exceeds):
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "REFUND_EXCEEDS_AVAILABLE", err.Error())
	case errors.Is(err, apperrors.ErrForbidden):
		utils.ForbiddenResponse(c, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		utils.NotFoundResponse(c, err.Error())
	case errors.Is(err, apperrors.ErrAlreadyExists):
		utils.ConflictResponse(c, "ALREADY_EXISTS", err.Error())
	case errors.Is(err, apperrors.ErrPaymentNotRefundable):
		utils.ConflictResponse(c, "PAYMENT_NOT_REFUNDABLE", err.Error())
	case errors.Is(err, apperrors.ErrCashAmountMismatch):
		utils.ErrorResponse(c, http.StatusUnprocessableEntity, "CASH_AMOUNT_MISMATCH", err.Error())
	case errors.Is(err, apperrors.ErrInvalidRefundAmount),
		errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrUnsupportedGateway):
		utils.BadRequestResponse(c, err.Error())
	default:
		utils.InternalServerErrorResponse(c)
	}
}

package interfaces

import (
	"context"
	"time"

	"medibook/internal/models"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReferralCodeRepository interface {
	// Create fails with apperrors.ErrAlreadyExists when the code is taken.
	Create(ctx context.Context, code *models.ReferralCode) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.ReferralCode, error)
	GetByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	List(ctx context.Context, params *utils.PaginationParams) ([]*models.ReferralCode, int64, error)
	ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]*models.ReferralCode, error)

	// UpdateConfig writes discount, commission, limit, window and targeting
	// fields. Aggregates are left untouched.
	UpdateConfig(ctx context.Context, code *models.ReferralCode) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error

	// RecordUse increments the aggregates only if the code is still valid
	// at now, checked and written in one atomic step. A code that lost
	// validity yields *apperrors.InvalidReferralError.
	RecordUse(ctx context.Context, id primitive.ObjectID, usage models.ReferralUsage, now time.Time) (*models.ReferralCode, error)
	// Reverse undoes one RecordUse, clamping every aggregate at zero.
	Reverse(ctx context.Context, id primitive.ObjectID, discount, commission float64) (*models.ReferralCode, error)
}

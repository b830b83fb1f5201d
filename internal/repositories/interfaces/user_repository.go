package interfaces

import (
	"context"

	"medibook/internal/models"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	// FindActiveAgentByCode matches the agent code case-insensitively and
	// only returns active agents.
	FindActiveAgentByCode(ctx context.Context, code string) (*models.User, error)
	ListByRole(ctx context.Context, role models.UserRole, params *utils.PaginationParams) ([]*models.User, int64, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) error
	SetApproved(ctx context.Context, id primitive.ObjectID, approved bool) error
}

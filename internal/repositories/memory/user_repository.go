package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type userRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

func NewUserRepository() interfaces.UserRepository {
	return &userRepository{users: make(map[primitive.ObjectID]models.User)}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	agentCode := strings.ToUpper(user.AgentCode)
	for _, u := range r.users {
		if email != "" && strings.ToLower(u.Email) == email {
			return fmt.Errorf("user with email %s: %w", user.Email, apperrors.ErrAlreadyExists)
		}
		if agentCode != "" && u.AgentCode == agentCode {
			return fmt.Errorf("agent code %s: %w", agentCode, apperrors.ErrAlreadyExists)
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.AgentCode != "" {
		user.AgentCode = strings.ToUpper(user.AgentCode)
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return &u, nil
}

func (r *userRepository) FindActiveAgentByCode(ctx context.Context, code string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	for _, u := range r.users {
		if u.Role == models.UserRoleAgent && u.IsActive && u.AgentCode == code {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("active agent %s: %w", code, apperrors.ErrNotFound)
}

func (r *userRepository) ListByRole(ctx context.Context, role models.UserRole, params *utils.PaginationParams) ([]*models.User, int64, error) {
	r.mu.RLock()
	var list []*models.User
	for _, u := range r.users {
		if u.Role == role {
			u := u
			list = append(list, &u)
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return paginate(list, params), int64(len(list)), nil
}

func (r *userRepository) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return r.mutate(id, func(u *models.User) { u.IsActive = active })
}

func (r *userRepository) SetApproved(ctx context.Context, id primitive.ObjectID, approved bool) error {
	return r.mutate(id, func(u *models.User) { u.IsApproved = approved })
}

func (r *userRepository) mutate(id primitive.ObjectID, fn func(*models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

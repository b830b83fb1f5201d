// Package memory implements the repositories in process. Every method that
// the MongoDB implementation performs as a single conditional write runs
// under one lock here, so both stores give the same guarantees.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/referral"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type referralCodeRepository struct {
	mu    sync.RWMutex
	codes map[primitive.ObjectID]models.ReferralCode
}

func NewReferralCodeRepository() interfaces.ReferralCodeRepository {
	return &referralCodeRepository{codes: make(map[primitive.ObjectID]models.ReferralCode)}
}

func cloneCode(c models.ReferralCode) *models.ReferralCode {
	if c.MaxDiscountAmount != nil {
		v := *c.MaxDiscountAmount
		c.MaxDiscountAmount = &v
	}
	if c.MaxUsage != nil {
		v := *c.MaxUsage
		c.MaxUsage = &v
	}
	if c.LastUsedAt != nil {
		v := *c.LastUsedAt
		c.LastUsedAt = &v
	}
	c.TargetRoles = append([]models.UserRole(nil), c.TargetRoles...)
	return &c
}

func (r *referralCodeRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	code.Code = referral.NormalizeCode(code.Code)
	for _, existing := range r.codes {
		if existing.Code == code.Code {
			return fmt.Errorf("referral code %s: %w", code.Code, apperrors.ErrAlreadyExists)
		}
	}
	if code.ID.IsZero() {
		code.ID = primitive.NewObjectID()
	}
	now := time.Now()
	code.CreatedAt = now
	code.UpdatedAt = now
	r.codes[code.ID] = *cloneCode(*code)
	return nil
}

func (r *referralCodeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.ReferralCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, ok := r.codes[id]
	if !ok {
		return nil, fmt.Errorf("referral code %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	return cloneCode(code), nil
}

func (r *referralCodeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized := referral.NormalizeCode(code)
	for _, c := range r.codes {
		if c.Code == normalized {
			return cloneCode(c), nil
		}
	}
	return nil, fmt.Errorf("referral code %s: %w", normalized, apperrors.ErrNotFound)
}

func (r *referralCodeRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.ReferralCode, int64, error) {
	r.mu.RLock()
	all := make([]*models.ReferralCode, 0, len(r.codes))
	for _, c := range r.codes {
		all = append(all, cloneCode(c))
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, params), int64(len(all)), nil
}

func (r *referralCodeRepository) ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]*models.ReferralCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var codes []*models.ReferralCode
	for _, c := range r.codes {
		if c.AgentID == agentID {
			codes = append(codes, cloneCode(c))
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
	return codes, nil
}

func (r *referralCodeRepository) UpdateConfig(ctx context.Context, code *models.ReferralCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[code.ID]
	if !ok {
		return fmt.Errorf("referral code %s: %w", code.ID.Hex(), apperrors.ErrNotFound)
	}
	updated := cloneCode(*code)
	stored.Description = updated.Description
	stored.DiscountType = updated.DiscountType
	stored.DiscountValue = updated.DiscountValue
	stored.MaxDiscountAmount = updated.MaxDiscountAmount
	stored.MinOrderAmount = updated.MinOrderAmount
	stored.CommissionType = updated.CommissionType
	stored.CommissionValue = updated.CommissionValue
	stored.MaxUsage = updated.MaxUsage
	stored.MaxUsagePerUser = updated.MaxUsagePerUser
	stored.StartDate = updated.StartDate
	stored.ExpirationDate = updated.ExpirationDate
	stored.TargetRoles = updated.TargetRoles
	stored.UpdatedAt = time.Now()
	r.codes[code.ID] = stored
	return nil
}

func (r *referralCodeRepository) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[id]
	if !ok {
		return fmt.Errorf("referral code %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	stored.IsActive = active
	stored.UpdatedAt = time.Now()
	r.codes[id] = stored
	return nil
}

func (r *referralCodeRepository) RecordUse(ctx context.Context, id primitive.ObjectID, usage models.ReferralUsage, now time.Time) (*models.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[id]
	if !ok {
		return nil, fmt.Errorf("referral code %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	updated, err := referral.Record(stored, usage, now)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = now
	r.codes[id] = updated
	return cloneCode(updated), nil
}

func (r *referralCodeRepository) Reverse(ctx context.Context, id primitive.ObjectID, discount, commission float64) (*models.ReferralCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.codes[id]
	if !ok {
		return nil, fmt.Errorf("referral code %s: %w", id.Hex(), apperrors.ErrNotFound)
	}
	updated := referral.Reverse(stored, discount, commission)
	updated.UpdatedAt = time.Now()
	r.codes[id] = updated
	return cloneCode(updated), nil
}

func paginate[T any](items []T, params *utils.PaginationParams) []T {
	if params == nil {
		return items
	}
	skip := params.GetSkip()
	if skip >= len(items) {
		return []T{}
	}
	end := skip + params.GetLimit()
	if end > len(items) || params.GetLimit() <= 0 {
		end = len(items)
	}
	return items[skip:end]
}

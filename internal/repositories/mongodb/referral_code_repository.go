package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/referral"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type referralCodeRepository struct {
	collection *mongo.Collection
	cache      services.CacheService
	cacheTTL   time.Duration
}

func NewReferralCodeRepository(db *mongo.Database, cache services.CacheService, cacheTTL time.Duration) interfaces.ReferralCodeRepository {
	return &referralCodeRepository{
		collection: db.Collection(database.ReferralCodesCollection),
		cache:      cache,
		cacheTTL:   cacheTTL,
	}
}

func (r *referralCodeRepository) Create(ctx context.Context, code *models.ReferralCode) error {
	code.ID = primitive.NewObjectID()
	code.Code = referral.NormalizeCode(code.Code)
	code.CreatedAt = time.Now()
	code.UpdatedAt = code.CreatedAt

	if _, err := r.collection.InsertOne(ctx, code); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("referral code %s: %w", code.Code, apperrors.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create referral code: %w", err)
	}
	return nil
}

func (r *referralCodeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.ReferralCode, error) {
	var code models.ReferralCode
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&code); err != nil {
		return nil, notFound("referral code", id.Hex(), err)
	}
	return &code, nil
}

func (r *referralCodeRepository) GetByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := referral.NormalizeCode(code)
	if cached := r.getFromCache(ctx, normalized); cached != nil {
		return cached, nil
	}

	var found models.ReferralCode
	if err := r.collection.FindOne(ctx, bson.M{"code": normalized}).Decode(&found); err != nil {
		return nil, notFound("referral code", normalized, err)
	}
	r.cacheCode(ctx, &found)
	return &found, nil
}

func (r *referralCodeRepository) List(ctx context.Context, params *utils.PaginationParams) ([]*models.ReferralCode, int64, error) {
	filter := params.GetSearchFilter([]string{"code", "description"})

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count referral codes: %w", err)
	}

	cursor, err := r.collection.Find(ctx, filter, params.GetSortOptions())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list referral codes: %w", err)
	}
	defer cursor.Close(ctx)

	var codes []*models.ReferralCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, 0, fmt.Errorf("failed to decode referral codes: %w", err)
	}
	return codes, total, nil
}

func (r *referralCodeRepository) ListByAgent(ctx context.Context, agentID primitive.ObjectID) ([]*models.ReferralCode, error) {
	opts := options.Find().SetSort(bson.D{{Key: "code", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"agent_id": agentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent referral codes: %w", err)
	}
	defer cursor.Close(ctx)

	var codes []*models.ReferralCode
	if err := cursor.All(ctx, &codes); err != nil {
		return nil, fmt.Errorf("failed to decode referral codes: %w", err)
	}
	return codes, nil
}

func (r *referralCodeRepository) UpdateConfig(ctx context.Context, code *models.ReferralCode) error {
	update := bson.M{"$set": bson.M{
		"description":         code.Description,
		"discount_type":       code.DiscountType,
		"discount_value":      code.DiscountValue,
		"max_discount_amount": code.MaxDiscountAmount,
		"min_order_amount":    code.MinOrderAmount,
		"commission_type":     code.CommissionType,
		"commission_value":    code.CommissionValue,
		"max_usage":           code.MaxUsage,
		"max_usage_per_user":  code.MaxUsagePerUser,
		"start_date":          code.StartDate,
		"expiration_date":     code.ExpirationDate,
		"target_roles":        code.TargetRoles,
		"updated_at":          time.Now(),
	}}
	return r.updateOne(ctx, code.ID, update)
}

func (r *referralCodeRepository) SetActive(ctx context.Context, id primitive.ObjectID, active bool) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{"is_active": active, "updated_at": time.Now()}})
}

func (r *referralCodeRepository) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	var updated models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return notFound("referral code", id.Hex(), err)
	}
	r.invalidate(ctx, updated.Code)
	return nil
}

// RecordUse folds the validity check into the update filter so two
// concurrent uses can never push usage_count past max_usage.
func (r *referralCodeRepository) RecordUse(ctx context.Context, id primitive.ObjectID, usage models.ReferralUsage, now time.Time) (*models.ReferralCode, error) {
	filter := bson.M{
		"_id":             id,
		"is_active":       true,
		"start_date":      bson.M{"$lte": now},
		"expiration_date": bson.M{"$gte": now},
		"$or": bson.A{
			bson.M{"max_usage": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$usage_count", "$max_usage"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{
			"usage_count":             1,
			"total_referrals":         1,
			"successful_referrals":    1,
			"total_discount_given":    usage.Discount,
			"total_commission_earned": usage.Commission,
		},
		"$set": bson.M{"last_used_at": now, "updated_at": now},
	}

	var updated models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.InvalidReferral(current.Code, referral.RejectionReason(*current, now))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record referral use: %w", err)
	}
	r.invalidate(ctx, updated.Code)
	return &updated, nil
}

// Reverse runs as a pipeline update so each field is clamped at zero
// server side.
func (r *referralCodeRepository) Reverse(ctx context.Context, id primitive.ObjectID, discount, commission float64) (*models.ReferralCode, error) {
	clamp := func(field string, by interface{}) bson.M {
		return bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$" + field, by}}}}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"usage_count":             clamp("usage_count", 1),
			"total_referrals":         clamp("total_referrals", 1),
			"successful_referrals":    clamp("successful_referrals", 1),
			"total_discount_given":    clamp("total_discount_given", discount),
			"total_commission_earned": clamp("total_commission_earned", commission),
			"updated_at":              time.Now(),
		}}},
	}

	var updated models.ReferralCode
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		return nil, notFound("referral code", id.Hex(), err)
	}
	r.invalidate(ctx, updated.Code)
	return &updated, nil
}

func (r *referralCodeRepository) cacheCode(ctx context.Context, code *models.ReferralCode) {
	if r.cache != nil {
		_ = r.cache.Set(ctx, cacheKey(code.Code), code, r.cacheTTL)
	}
}

func (r *referralCodeRepository) getFromCache(ctx context.Context, code string) *models.ReferralCode {
	if r.cache == nil {
		return nil
	}
	var cached models.ReferralCode
	if err := r.cache.Get(ctx, cacheKey(code), &cached); err != nil {
		return nil
	}
	return &cached
}

func (r *referralCodeRepository) invalidate(ctx context.Context, code string) {
	if r.cache != nil {
		_ = r.cache.Delete(ctx, cacheKey(code))
	}
}

func cacheKey(code string) string {
	return "referral_code:" + code
}

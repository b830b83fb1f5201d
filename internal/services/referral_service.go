package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/referral"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReferralCodeConfig holds the admin-editable part of a code.
type ReferralCodeConfig struct {
	Description       string
	DiscountType      models.DiscountType
	DiscountValue     float64
	MaxDiscountAmount *float64
	MinOrderAmount    float64
	CommissionType    models.CommissionType
	CommissionValue   float64
	MaxUsage          *int
	MaxUsagePerUser   int
	StartDate         time.Time
	ExpirationDate    time.Time
	TargetRoles       []models.UserRole
}

type CreateReferralCodeInput struct {
	Code    string
	AgentID primitive.ObjectID
	ReferralCodeConfig
}

type ReferralService interface {
	// Referral Validation
	ValidateReferral(ctx context.Context, code string, requester models.Actor, orderAmount float64) (*referral.Decision, error)

	// Code Administration
	CreateCode(ctx context.Context, admin models.Actor, input *CreateReferralCodeInput) (*models.ReferralCode, error)
	UpdateCode(ctx context.Context, id primitive.ObjectID, config *ReferralCodeConfig) (*models.ReferralCode, error)
	SetCodeActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.ReferralCode, error)
	GetCode(ctx context.Context, id primitive.ObjectID) (*models.ReferralCode, error)
	ListCodes(ctx context.Context, params *utils.PaginationParams) ([]*models.ReferralCode, int64, error)
	ListAgentCodes(ctx context.Context, agentID primitive.ObjectID) ([]*models.ReferralCode, error)
	GetAgentSummary(ctx context.Context, agentID primitive.ObjectID) (*models.AgentReferralSummary, error)

	// Aggregate Bookkeeping
	RecordAppointmentUse(ctx context.Context, appointment *models.Appointment) (*models.ReferralCode, error)
	ReverseAppointmentUse(ctx context.Context, appointment *models.Appointment)
}

type referralService struct {
	referralRepo    interfaces.ReferralCodeRepository
	appointmentRepo interfaces.AppointmentRepository
	userRepo        interfaces.UserRepository
	logger          *logger.Logger
	maxRetries      int
	defaultPerUser  int
	now             clock
}

func NewReferralService(
	referralRepo interfaces.ReferralCodeRepository,
	appointmentRepo interfaces.AppointmentRepository,
	userRepo interfaces.UserRepository,
	logger *logger.Logger,
	maxRetries int,
	defaultPerUser int,
) ReferralService {
	return &referralService{
		referralRepo:    referralRepo,
		appointmentRepo: appointmentRepo,
		userRepo:        userRepo,
		logger:          logger,
		maxRetries:      maxRetries,
		defaultPerUser:  defaultPerUser,
		now:             systemClock,
	}
}

func (s *referralService) ValidateReferral(ctx context.Context, code string, requester models.Actor, orderAmount float64) (*referral.Decision, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperrors.InvalidReferral("", apperrors.ReasonNotFound)
	}

	stored, err := s.referralRepo.GetByCode(ctx, code)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}

	var prior int
	if stored != nil && !requester.ID.IsZero() {
		prior, err = s.appointmentRepo.CountReferralUsage(ctx, requester.ID, stored.Code)
		if err != nil {
			return nil, fmt.Errorf("failed to count referral usage: %w", err)
		}
	}

	decision, err := referral.Validate(stored, referral.Request{
		Code:          code,
		RequesterID:   requester.ID.Hex(),
		RequesterRole: requester.Role,
		OrderAmount:   orderAmount,
		PriorUsage:    prior,
	}, s.now())
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (s *referralService) CreateCode(ctx context.Context, admin models.Actor, input *CreateReferralCodeInput) (*models.ReferralCode, error) {
	normalized := referral.NormalizeCode(input.Code)
	if normalized == "" {
		return nil, fmt.Errorf("%w: code is required", apperrors.ErrInvalidInput)
	}
	if err := s.checkConfig(&input.ReferralCodeConfig); err != nil {
		return nil, err
	}

	agent, err := s.userRepo.FindByID(ctx, input.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if agent.Role != models.UserRoleAgent || !agent.IsActive {
		return nil, fmt.Errorf("%w: referral codes can only be assigned to active agents", apperrors.ErrInvalidInput)
	}

	code := &models.ReferralCode{
		ID:        primitive.NewObjectID(),
		Code:      normalized,
		AgentID:   agent.ID,
		IsActive:  true,
		CreatedBy: admin.ID,
	}
	applyConfig(code, &input.ReferralCodeConfig, s.defaultPerUser)

	if err := s.referralRepo.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to create referral code: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"referral_code": code.Code,
		"agent_id":      agent.ID.Hex(),
	}).Info("Referral code created")
	return code, nil
}

func (s *referralService) UpdateCode(ctx context.Context, id primitive.ObjectID, config *ReferralCodeConfig) (*models.ReferralCode, error) {
	if err := s.checkConfig(config); err != nil {
		return nil, err
	}

	code, err := s.referralRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral code: %w", err)
	}
	applyConfig(code, config, s.defaultPerUser)

	if err := s.referralRepo.UpdateConfig(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to update referral code: %w", err)
	}
	return s.referralRepo.GetByID(ctx, id)
}

// SetCodeActive toggles a code. Codes are never deleted, so counters stay
// attached to the appointments that produced them.
func (s *referralService) SetCodeActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.ReferralCode, error) {
	if err := s.referralRepo.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("failed to update referral code status: %w", err)
	}
	return s.referralRepo.GetByID(ctx, id)
}

func (s *referralService) GetCode(ctx context.Context, id primitive.ObjectID) (*models.ReferralCode, error) {
	return s.referralRepo.GetByID(ctx, id)
}

func (s *referralService) ListCodes(ctx context.Context, params *utils.PaginationParams) ([]*models.ReferralCode, int64, error) {
	return s.referralRepo.List(ctx, params)
}

func (s *referralService) ListAgentCodes(ctx context.Context, agentID primitive.ObjectID) ([]*models.ReferralCode, error) {
	return s.referralRepo.ListByAgent(ctx, agentID)
}

func (s *referralService) GetAgentSummary(ctx context.Context, agentID primitive.ObjectID) (*models.AgentReferralSummary, error) {
	codes, err := s.referralRepo.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent codes: %w", err)
	}

	now := s.now()
	summary := &models.AgentReferralSummary{AgentID: agentID, Codes: len(codes)}
	for _, c := range codes {
		if referral.Status(*c, now) == models.ReferralStatusActive {
			summary.ActiveCodes++
		}
		summary.TotalReferrals += c.TotalReferrals
		summary.SuccessfulReferrals += c.SuccessfulReferrals
		summary.TotalCommissionEarned = utils.AddMoney(summary.TotalCommissionEarned, c.TotalCommissionEarned)
		summary.TotalDiscountGiven = utils.AddMoney(summary.TotalDiscountGiven, c.TotalDiscountGiven)
	}
	return summary, nil
}

// RecordAppointmentUse counts the appointment's frozen discount and
// commission against its code. The store rejects the write if the code
// stopped being valid since booking.
func (s *referralService) RecordAppointmentUse(ctx context.Context, appointment *models.Appointment) (*models.ReferralCode, error) {
	if appointment.ReferralCodeID == nil {
		return nil, fmt.Errorf("%w: appointment has no referral code", apperrors.ErrInvalidInput)
	}

	code, err := s.referralRepo.RecordUse(ctx, *appointment.ReferralCodeID, models.ReferralUsage{
		Discount:    appointment.Discount,
		FinalAmount: appointment.FinalAmount,
		Commission:  appointment.AgentCommission,
	}, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithAppointmentID(appointment.ID).
		LogReferralEvent(code.Code, "use_recorded", appointment.Discount, appointment.AgentCommission)
	return code, nil
}

// ReverseAppointmentUse undoes RecordAppointmentUse. Callers persist the
// appointment's ReferralReversed flag first, so a failure here can only
// leave counters too high, never reversed twice. Failures are logged.
func (s *referralService) ReverseAppointmentUse(ctx context.Context, appointment *models.Appointment) {
	if appointment.ReferralCodeID == nil {
		return
	}
	log := s.logger.WithContext(ctx).WithAppointmentID(appointment.ID)

	attempts := s.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		code, err := s.referralRepo.Reverse(ctx, *appointment.ReferralCodeID, appointment.Discount, appointment.AgentCommission)
		if err == nil {
			log.LogReferralEvent(code.Code, "use_reversed", appointment.Discount, appointment.AgentCommission)
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	log.WithError(lastErr).WithField("referral_code", appointment.ReferralCode).
		Error("Failed to reverse referral aggregates")
}

func (s *referralService) checkConfig(c *ReferralCodeConfig) error {
	switch c.DiscountType {
	case models.DiscountTypePercentage:
		if c.DiscountValue > 100 {
			return fmt.Errorf("%w: percentage discount cannot exceed 100", apperrors.ErrInvalidInput)
		}
	case models.DiscountTypeFixed:
	default:
		return fmt.Errorf("%w: unknown discount type %q", apperrors.ErrInvalidInput, c.DiscountType)
	}
	switch c.CommissionType {
	case models.CommissionTypePercentage:
		if c.CommissionValue > 100 {
			return fmt.Errorf("%w: percentage commission cannot exceed 100", apperrors.ErrInvalidInput)
		}
	case models.CommissionTypeFixed:
	default:
		return fmt.Errorf("%w: unknown commission type %q", apperrors.ErrInvalidInput, c.CommissionType)
	}
	if c.DiscountValue < 0 || c.CommissionValue < 0 || c.MinOrderAmount < 0 {
		return fmt.Errorf("%w: amounts must not be negative", apperrors.ErrInvalidInput)
	}
	if c.MaxDiscountAmount != nil && *c.MaxDiscountAmount < 0 {
		return fmt.Errorf("%w: max discount amount must not be negative", apperrors.ErrInvalidInput)
	}
	if c.MaxUsage != nil && *c.MaxUsage < 0 {
		return fmt.Errorf("%w: max usage must not be negative", apperrors.ErrInvalidInput)
	}
	if !c.ExpirationDate.After(c.StartDate) {
		return fmt.Errorf("%w: expiration date must be after start date", apperrors.ErrInvalidInput)
	}
	for _, role := range c.TargetRoles {
		if !role.IsValid() {
			return fmt.Errorf("%w: unknown target role %q", apperrors.ErrInvalidInput, role)
		}
	}
	return nil
}

func applyConfig(code *models.ReferralCode, c *ReferralCodeConfig, defaultPerUser int) {
	code.Description = c.Description
	code.DiscountType = c.DiscountType
	code.DiscountValue = c.DiscountValue
	code.MaxDiscountAmount = c.MaxDiscountAmount
	code.MinOrderAmount = c.MinOrderAmount
	code.CommissionType = c.CommissionType
	code.CommissionValue = c.CommissionValue
	code.MaxUsage = c.MaxUsage
	code.MaxUsagePerUser = c.MaxUsagePerUser
	if code.MaxUsagePerUser <= 0 {
		code.MaxUsagePerUser = defaultPerUser
	}
	code.StartDate = c.StartDate
	code.ExpirationDate = c.ExpirationDate
	code.TargetRoles = c.TargetRoles
}

package services

import (
	"context"
	"fmt"
	"strings"

	"medibook/internal/apperrors"
	"medibook/internal/models"
	"medibook/internal/repositories/interfaces"
	"medibook/internal/utils"
	"medibook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateUserInput struct {
	Name            string
	Email           string
	Phone           string
	Role            models.UserRole
	Specialization  string
	ConsultationFee float64
	CommissionRate  float64
	AgentCode       string
}

// UserService is the directory the booking core reads from. Doctors start
// unapproved; everyone else starts approved.
type UserService interface {
	CreateUser(ctx context.Context, input *CreateUserInput) (*models.User, error)
	GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListUsers(ctx context.Context, role models.UserRole, params *utils.PaginationParams) ([]*models.User, int64, error)
	SetDoctorApproval(ctx context.Context, doctorID primitive.ObjectID, approved bool) (*models.User, error)
	SetUserActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.User, error)
}

type userService struct {
	userRepo interfaces.UserRepository
	logger   *logger.Logger
}

func NewUserService(userRepo interfaces.UserRepository, logger *logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger,
	}
}

func (s *userService) CreateUser(ctx context.Context, input *CreateUserInput) (*models.User, error) {
	if !input.Role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", apperrors.ErrInvalidInput, input.Role)
	}
	user := &models.User{
		ID:         primitive.NewObjectID(),
		Name:       strings.TrimSpace(input.Name),
		Email:      utils.NormalizeEmail(input.Email),
		Phone:      utils.NormalizePhone(input.Phone),
		Role:       input.Role,
		IsActive:   true,
		IsApproved: input.Role != models.UserRoleDoctor,
	}

	switch input.Role {
	case models.UserRoleDoctor:
		if input.ConsultationFee <= 0 {
			return nil, fmt.Errorf("%w: doctors need a consultation fee", apperrors.ErrInvalidInput)
		}
		user.Specialization = input.Specialization
		user.ConsultationFee = utils.RoundMoney(input.ConsultationFee)
	case models.UserRoleAgent:
		if strings.TrimSpace(input.AgentCode) == "" {
			return nil, fmt.Errorf("%w: agents need an agent code", apperrors.ErrInvalidInput)
		}
		user.AgentCode = strings.ToUpper(strings.TrimSpace(input.AgentCode))
		user.CommissionRate = input.CommissionRate
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.WithContext(ctx).WithUserID(user.ID).WithField("role", user.Role).Info("User created")
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *userService) ListUsers(ctx context.Context, role models.UserRole, params *utils.PaginationParams) ([]*models.User, int64, error) {
	if !role.IsValid() {
		return nil, 0, fmt.Errorf("%w: unknown role %q", apperrors.ErrInvalidInput, role)
	}
	return s.userRepo.ListByRole(ctx, role, params)
}

func (s *userService) SetDoctorApproval(ctx context.Context, doctorID primitive.ObjectID, approved bool) (*models.User, error) {
	doctor, err := s.userRepo.FindByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if doctor.Role != models.UserRoleDoctor {
		return nil, fmt.Errorf("%w: user is not a doctor", apperrors.ErrInvalidInput)
	}
	if err := s.userRepo.SetApproved(ctx, doctorID, approved); err != nil {
		return nil, fmt.Errorf("failed to update doctor approval: %w", err)
	}
	doctor.IsApproved = approved
	return doctor, nil
}

func (s *userService) SetUserActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.User, error) {
	if err := s.userRepo.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	return s.userRepo.FindByID(ctx, id)
}

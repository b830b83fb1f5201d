package handlers

import (
	"context"

	"medibook/internal/models"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req validators.CreateUserRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateCreateUser(&req)) {
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), &services.CreateUserInput{
		Name:            validators.SanitizeInput(req.Name),
		Email:           req.Email,
		Phone:           req.Phone,
		Role:            models.UserRole(req.Role),
		Specialization:  validators.SanitizeInput(req.Specialization),
		ConsultationFee: req.ConsultationFee,
		CommissionRate:  req.CommissionRate,
		AgentCode:       req.AgentCode,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "User created successfully", user)
}

// GetProfile returns the calling user
func (h *UserHandler) GetProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), actor.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Profile retrieved successfully", user)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := paramObjectID(c, "id", "user")
	if !ok {
		return
	}

	user, err := h.userService.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "User retrieved successfully", user)
}

// ListUsers lists one role's directory, e.g. ?role=doctor
func (h *UserHandler) ListUsers(c *gin.Context) {
	role := models.UserRole(c.DefaultQuery("role", string(models.UserRoleDoctor)))
	params := utils.GetPaginationParams(c, "created_at", "name")

	users, total, err := h.userService.ListUsers(c.Request.Context(), role, params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Users retrieved successfully", users, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

func (h *UserHandler) SetDoctorApproval(c *gin.Context) {
	h.setFlag(c, "doctor", "Doctor approval updated successfully", h.userService.SetDoctorApproval)
}

func (h *UserHandler) SetUserActive(c *gin.Context) {
	h.setFlag(c, "user", "User status updated successfully", h.userService.SetUserActive)
}

type flagSetter func(ctx context.Context, id primitive.ObjectID, value bool) (*models.User, error)

func (h *UserHandler) setFlag(c *gin.Context, label, message string, set flagSetter) {
	userID, ok := paramObjectID(c, "id", label)
	if !ok {
		return
	}

	var req validators.SetFlagRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateStruct(&req)) {
		return
	}

	user, err := set(c.Request.Context(), userID, *req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, message, user)
}

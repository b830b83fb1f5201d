package handlers

import (
	"medibook/internal/models"
	"medibook/internal/services"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReferralHandler struct {
	referralService services.ReferralService
}

func NewReferralHandler(referralService services.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

// CreateCode assigns a new referral code to an agent
func (h *ReferralHandler) CreateCode(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req validators.CreateReferralCodeRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateCreateReferralCode(&req)) {
		return
	}

	code, err := h.referralService.CreateCode(c.Request.Context(), actor, &services.CreateReferralCodeInput{
		Code:               req.Code,
		AgentID:            validators.MustObjectID(req.AgentID),
		ReferralCodeConfig: *referralConfig(&req.ReferralCodeConfigRequest),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Referral code created successfully", code)
}

// UpdateCode replaces a code's terms. Usage aggregates are untouched.
func (h *ReferralHandler) UpdateCode(c *gin.Context) {
	codeID, ok := paramObjectID(c, "id", "referral code")
	if !ok {
		return
	}

	var req validators.ReferralCodeConfigRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateReferralCodeConfig(&req)) {
		return
	}

	code, err := h.referralService.UpdateCode(c.Request.Context(), codeID, referralConfig(&req))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Referral code updated successfully", code)
}

func (h *ReferralHandler) SetCodeActive(c *gin.Context) {
	codeID, ok := paramObjectID(c, "id", "referral code")
	if !ok {
		return
	}

	var req validators.SetFlagRequest
	if !bindJSON(c, &req) || validationFailed(c, validators.ValidateStruct(&req)) {
		return
	}

	code, err := h.referralService.SetCodeActive(c.Request.Context(), codeID, *req.Value)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Referral code updated successfully", code)
}

func (h *ReferralHandler) GetCode(c *gin.Context) {
	codeID, ok := paramObjectID(c, "id", "referral code")
	if !ok {
		return
	}

	code, err := h.referralService.GetCode(c.Request.Context(), codeID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Referral code retrieved successfully", code)
}

func (h *ReferralHandler) ListCodes(c *gin.Context) {
	params := utils.GetPaginationParams(c, "created_at", "code", "expiration_date", "usage_count")
	codes, total, err := h.referralService.ListCodes(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Referral codes retrieved successfully", codes, &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	})
}

// GetAgentCodes is the admin view of one agent's codes
func (h *ReferralHandler) GetAgentCodes(c *gin.Context) {
	agentID, ok := paramObjectID(c, "id", "agent")
	if !ok {
		return
	}
	h.agentCodes(c, agentID)
}

// GetAgentSummary is the admin view of one agent's earnings
func (h *ReferralHandler) GetAgentSummary(c *gin.Context) {
	agentID, ok := paramObjectID(c, "id", "agent")
	if !ok {
		return
	}
	h.agentSummary(c, agentID)
}

func (h *ReferralHandler) GetMyCodes(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.agentCodes(c, actor.ID)
}

func (h *ReferralHandler) GetMySummary(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	h.agentSummary(c, actor.ID)
}

func (h *ReferralHandler) agentCodes(c *gin.Context, agentID primitive.ObjectID) {
	codes, err := h.referralService.ListAgentCodes(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, "Referral codes retrieved successfully", codes, &utils.Meta{Count: len(codes)})
}

func (h *ReferralHandler) agentSummary(c *gin.Context, agentID primitive.ObjectID) {
	summary, err := h.referralService.GetAgentSummary(c.Request.Context(), agentID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Referral summary retrieved successfully", summary)
}

func referralConfig(req *validators.ReferralCodeConfigRequest) *services.ReferralCodeConfig {
	return &services.ReferralCodeConfig{
		Description:       validators.SanitizeInput(req.Description),
		DiscountType:      models.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderAmount:    req.MinOrderAmount,
		CommissionType:    models.CommissionType(req.CommissionType),
		CommissionValue:   req.CommissionValue,
		MaxUsage:          req.MaxUsage,
		MaxUsagePerUser:   req.MaxUsagePerUser,
		StartDate:         req.StartDate,
		ExpirationDate:    req.ExpirationDate,
		TargetRoles:       req.Roles(),
	}
}

package handlers

import (
	"medibook/internal/models"
	"medibook/internal/utils"
	"medibook/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// currentActor reads the identity set by the auth middleware. It writes a
// 401 and returns false when none is present.
func currentActor(c *gin.Context) (models.Actor, bool) {
	userID, exists := c.Get(utils.ContextKeyUserID)
	if !exists {
		utils.UnauthorizedResponse(c, utils.ErrMsgUnauthorized)
		return models.Actor{}, false
	}
	id, ok := userID.(primitive.ObjectID)
	if !ok {
		utils.UnauthorizedResponse(c, "Invalid user ID")
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Role: models.UserRole(c.GetString(utils.ContextKeyUserRole))}, true
}

func paramObjectID(c *gin.Context, name, label string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+label+" ID")
		return primitive.NilObjectID, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := validators.DecodeStrict(c.Request.Body, dst); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return false
	}
	return true
}

// bindOptionalJSON leaves dst untouched when the request has no body.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

func validationFailed(c *gin.Context, errs validators.ValidationErrors) bool {
	if len(errs) == 0 {
		return false
	}
	utils.ValidationErrorResponse(c, errs.Details())
	return true
}

package handlers

import (
	"net/http"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminHandler struct {
	admin *usecase.AdminUseCase
	log   *zap.Logger
}

func NewAdminHandler(admin *usecase.AdminUseCase, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, log: log}
}

type toggleReq struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type activeReq struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *AdminHandler) SetRegistration(c *gin.Context) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "enabled is required")
		return
	}
	if err := h.admin.SetRegistrationEnabled(c.Request.Context(), *req.Enabled); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "registration_enabled": *req.Enabled})
}

func (h *AdminHandler) SetUserActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}
	var req activeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "active is required")
		return
	}
	if err := h.admin.SetUserActive(c.Request.Context(), id, *req.Active); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": id.String(), "active": *req.Active})
}

func (h *AdminHandler) ConfirmPurchase(c *gin.Context) {
	purchase, err := h.admin.ConfirmManualPurchase(c.Request.Context(), c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "purchase": purchaseJSON(purchase)})
}

package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type PurchaseHandler struct {
	ledger     *usecase.PurchaseUseCase
	reconciler *usecase.ReconcileUseCase
	log        *zap.Logger
}

func NewPurchaseHandler(ledger *usecase.PurchaseUseCase, rec *usecase.ReconcileUseCase, log *zap.Logger) *PurchaseHandler {
	return &PurchaseHandler{ledger: ledger, reconciler: rec, log: log}
}

type checkoutReq struct {
	CourseSlug string `json:"course_slug" binding:"required"`
	Provider   string `json:"provider" binding:"required"`
}

type verifyReq struct {
	Reference string `json:"reference" binding:"required"`
}

func (h *PurchaseHandler) Checkout(c *gin.Context) {
	var req checkoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "course_slug and provider are required")
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	res, err := h.ledger.Checkout(c.Request.Context(), p, req.CourseSlug, domain.Provider(req.Provider))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	body := gin.H{"success": true, "purchase": purchaseJSON(res.Purchase)}
	if res.ClientSecret != "" {
		body["client_secret"] = res.ClientSecret
	}
	if res.ApproveURL != "" {
		body["approve_url"] = res.ApproveURL
	}
	c.JSON(http.StatusOK, body)
}

func (h *PurchaseHandler) Verify(c *gin.Context) {
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "reference is required")
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	purchase, err := h.reconciler.Verify(c.Request.Context(), p, req.Reference)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "purchase": purchaseJSON(purchase)})
}

func (h *PurchaseHandler) Status(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	purchase, err := h.ledger.GetStatus(c.Request.Context(), p, c.Param("ref"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "purchase": purchaseJSON(purchase)})
}

func (h *PurchaseHandler) List(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	purchases, err := h.ledger.ListForUser(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	out := make([]gin.H, 0, len(purchases))
	for i := range purchases {
		out = append(out, purchaseJSON(&purchases[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "purchases": out})
}

// Webhook must see the raw body: signatures cover the exact bytes sent.
func (h *PurchaseHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "cannot read body")
		return
	}

	if err := h.reconciler.HandleWebhook(c.Request.Context(), c.Param("provider"), payload, c.Request.Header); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "received": true})
}

func purchaseJSON(p *domain.Purchase) gin.H {
	out := gin.H{
		"id":             p.ID.String(),
		"transaction_id": p.TransactionID,
		"reference":      p.ProviderRef,
		"provider":       p.Provider,
		"status":         p.Status,
		"amount":         p.Amount.StringFixed(2),
		"currency":       p.Currency,
		"created_at":     p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":     p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.Course != nil {
		out["course"] = gin.H{"slug": p.Course.Slug, "name": p.Course.Name}
	}
	return out
}

package handlers

import (
	"net/http"
	"time"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	auth          *usecase.AuthUseCase
	secureCookies bool
	log           *zap.Logger
}

func NewAuthHandler(auth *usecase.AuthUseCase, secureCookies bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookies: secureCookies, log: log}
}

type registerReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email, password and name are required")
		return
	}

	sess, err := h.auth.Register(c.Request.Context(), usecase.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.setSessionCookie(c, sess)
	c.JSON(http.StatusOK, sessionJSON(sess))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required")
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	h.setSessionCookie(c, sess)
	c.JSON(http.StatusOK, sessionJSON(sess))
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, _ := middleware.PrincipalFrom(c)
	user, err := h.auth.Me(c.Request.Context(), p)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, sess *usecase.Session) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, sess.Token, maxAge, "/", "", h.secureCookies, true)
}

func sessionJSON(sess *usecase.Session) gin.H {
	return gin.H{
		"success":    true,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.UTC().Format(time.RFC3339),
		"user":       sess.User,
	}
}

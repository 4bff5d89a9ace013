package handlers

import (
	"net/http"
	"time"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/ratelimit"
	"github.com/waste3d/courseplatform-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LessonHandler struct {
	access   *usecase.AccessUseCase
	progress *usecase.ProgressUseCase
	now      func() time.Time
	log      *zap.Logger
}

func NewLessonHandler(access *usecase.AccessUseCase, progress *usecase.ProgressUseCase, now func() time.Time, log *zap.Logger) *LessonHandler {
	if now == nil {
		now = time.Now
	}
	return &LessonHandler{access: access, progress: progress, now: now, log: log}
}

type progressReq struct {
	ProgressPercent     *int `json:"progress_percent" binding:"required"`
	LastPositionSeconds int  `json:"last_position"`
	Completed           bool `json:"completed"`
}

func (h *LessonHandler) AccessToken(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid lesson id")
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	// клиенты без прокси не делят одно окно "unknown"
	clientKey := ratelimit.ClientIdentifier(c.Request) + ":" + p.UserID.String()
	grant, decision, err := h.access.IssueContentToken(c.Request.Context(), p, lessonID, clientKey)
	middleware.SetRateLimitHeaders(c, decision, h.now())
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      grant.Token,
		"expires_at": grant.ExpiresAt.UTC().Format(time.RFC3339),
		"lesson_id":  grant.LessonID.String(),
		"video_url":  grant.VideoURL,
	})
}

func (h *LessonHandler) Progress(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid lesson id")
		return
	}
	var req progressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "progress_percent is required")
		return
	}

	p, _ := middleware.PrincipalFrom(c)
	progress, err := h.progress.Record(c.Request.Context(), p, domain.ProgressUpdate{
		LessonID:            lessonID,
		ProgressPercent:     *req.ProgressPercent,
		LastPositionSeconds: req.LastPositionSeconds,
		Completed:           req.Completed,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	body := gin.H{
		"success":          true,
		"lesson_id":        progress.LessonID.String(),
		"progress_percent": progress.ProgressPercent,
		"last_position":    progress.LastPositionSeconds,
		"is_completed":     progress.IsCompleted,
	}
	if progress.CompletedAt != nil {
		body["completed_at"] = progress.CompletedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, body)
}

package api

import (
	"context"
	"errors"
	"net/http"

	"rolloutgate/internal/catalog"
	"rolloutgate/internal/dto/req"
	"rolloutgate/internal/dto/resp"
	"rolloutgate/internal/model"
	"rolloutgate/internal/repository"
	"rolloutgate/internal/rollout"
	"rolloutgate/internal/service"

	"github.com/gin-gonic/gin"
)

// FlagProvider is the slice of the evaluator the flag handler needs.
type FlagProvider interface {
	IsEnabled(ctx context.Context, flag catalog.Flag) bool
	IsEnabledForUser(ctx context.Context, flag catalog.Flag, userID string) bool
	Enable(ctx context.Context, flag catalog.Flag) error
	Disable(ctx context.Context, flag catalog.Flag) error
	SetRolloutPercentage(ctx context.Context, flag catalog.Flag, percentage float64) error
	GraduateRollout(ctx context.Context, flag catalog.Flag, target, increment float64) error
	AddUserOverride(ctx context.Context, flag catalog.Flag, userID string, enabled bool) error
	RemoveUserOverride(ctx context.Context, flag catalog.Flag, userID string) error
	GetStatus(ctx context.Context, flag catalog.Flag) (*model.FlagStatus, error)
	GetAllStatuses(ctx context.Context) (map[string]model.FlagStatus, error)
	EstimateImpact(flag catalog.Flag, percentage float64, sampleSize int) rollout.Impact
	DeleteFlag(ctx context.Context, flag catalog.Flag) error
	InitializeDefaultFlags(ctx context.Context) error
	ClearCache()
	Ping(ctx context.Context) error
}

type FlagHandler struct {
	provider FlagProvider
}

func NewFlagHandler(provider FlagProvider) *FlagHandler {
	return &FlagHandler{provider: provider}
}

func (h *FlagHandler) flagFromPath(c *gin.Context) (catalog.Flag, bool) {
	flag, err := catalog.FromKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return 0, false
	}
	return flag, true
}

func (h *FlagHandler) ListStatuses(c *gin.Context) {
	statuses, err := h.provider.GetAllStatuses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	items := make([]resp.FlagStatusItem, 0, len(statuses))
	for _, flag := range catalog.All() {
		if s, ok := statuses[flag.Key()]; ok {
			items = append(items, resp.NewFlagStatusItem(s))
		}
	}
	c.JSON(http.StatusOK, items)
}

func (h *FlagHandler) GetStatus(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	status, err := h.provider.GetStatus(c.Request.Context(), flag)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "flag has no persisted status", "default": flag.DefaultValue()})
		return
	}
	c.JSON(http.StatusOK, resp.NewFlagStatusItem(*status))
}

// Evaluate answers "is this flag active for this user" for debugging and
// operator tooling; business code calls the evaluator in-process instead.
func (h *FlagHandler) Evaluate(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	userID := c.Query("user_id")

	var enabled bool
	if userID == "" {
		enabled = h.provider.IsEnabled(c.Request.Context(), flag)
	} else {
		enabled = h.provider.IsEnabledForUser(c.Request.Context(), flag, userID)
	}
	c.JSON(http.StatusOK, resp.EvaluationResponse{Key: flag.Key(), UserID: userID, Enabled: enabled})
}

func (h *FlagHandler) Enable(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	if err := h.provider.Enable(c.Request.Context(), flag); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "enabled": true})
}

func (h *FlagHandler) Disable(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	if err := h.provider.Disable(c.Request.Context(), flag); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "enabled": false})
}

func (h *FlagHandler) SetPercentage(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	var r req.SetPercentageRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.provider.SetRolloutPercentage(c.Request.Context(), flag, *r.Percentage); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "rollout_percentage": *r.Percentage})
}

func (h *FlagHandler) Graduate(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	var r req.GraduateRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.provider.GraduateRollout(c.Request.Context(), flag, r.Target, r.Increment); err != nil {
		h.writeMutationError(c, err)
		return
	}
	status, err := h.provider.GetStatus(c.Request.Context(), flag)
	if err != nil || status == nil {
		c.JSON(http.StatusOK, gin.H{"key": flag.Key()})
		return
	}
	c.JSON(http.StatusOK, resp.NewFlagStatusItem(*status))
}

func (h *FlagHandler) EstimateImpact(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	var r req.ImpactRequest
	if err := c.ShouldBindQuery(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query params"})
		return
	}
	if r.SampleSize <= 0 {
		r.SampleSize = 1000
	}
	c.JSON(http.StatusOK, h.provider.EstimateImpact(flag, r.Percentage, r.SampleSize))
}

func (h *FlagHandler) AddOverride(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	var r req.OverrideRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.provider.AddUserOverride(c.Request.Context(), flag, r.UserID, *r.Enabled); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "user_id": r.UserID, "enabled": *r.Enabled})
}

func (h *FlagHandler) RemoveOverride(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	if err := h.provider.RemoveUserOverride(c.Request.Context(), flag, userID); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "user_id": userID})
}

func (h *FlagHandler) Delete(c *gin.Context) {
	flag, ok := h.flagFromPath(c)
	if !ok {
		return
	}
	if err := h.provider.DeleteFlag(c.Request.Context(), flag); err != nil {
		h.writeMutationError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FlagHandler) InitializeDefaults(c *gin.Context) {
	if err := h.provider.InitializeDefaultFlags(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"initialized": len(catalog.All())})
}

// ClearCache forces re-evaluation of every flag on the next check, e.g.
// after out-of-band database edits.
func (h *FlagHandler) ClearCache(c *gin.Context) {
	h.provider.ClearCache()
	c.JSON(http.StatusOK, gin.H{"message": "evaluation cache cleared"})
}

func (h *FlagHandler) HealthCheck(c *gin.Context) {
	if err := h.provider.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *FlagHandler) writeMutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrFlagNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPercentage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

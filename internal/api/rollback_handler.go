package api

import (
	"net/http"
	"strconv"

	"rolloutgate/internal/catalog"
	"rolloutgate/internal/dto/req"
	"rolloutgate/internal/service"

	"github.com/gin-gonic/gin"
)

// knownTriggers maps wire names to the built-in automatic rollback triggers.
var knownTriggers = map[string]service.Trigger{
	service.TriggerHighErrorRate.Name:          service.TriggerHighErrorRate,
	service.TriggerPerformanceDegradation.Name: service.TriggerPerformanceDegradation,
	service.TriggerSecurityIncident.Name:       service.TriggerSecurityIncident,
	service.TriggerUserComplaints.Name:         service.TriggerUserComplaints,
}

var knownStrategies = map[string]service.RollbackStrategy{
	string(service.StrategyImmediateDisable): service.StrategyImmediateDisable,
	string(service.StrategyGradualDecrease):  service.StrategyGradualDecrease,
	string(service.StrategyPartialRollback):  service.StrategyPartialRollback,
	string(service.StrategyCanaryOnly):       service.StrategyCanaryOnly,
}

type RollbackHandler struct {
	coordinator *service.RollbackCoordinator
}

func NewRollbackHandler(coordinator *service.RollbackCoordinator) *RollbackHandler {
	return &RollbackHandler{coordinator: coordinator}
}

// Emergency applies an operator-chosen de-escalation strategy. A failed
// rollback is still a 200: the outcome is in the body, and the attempt is
// already on the audit trail.
func (h *RollbackHandler) Emergency(c *gin.Context) {
	flag, err := catalog.FromKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var r req.RollbackRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if r.Target != nil {
		c.JSON(http.StatusOK, h.coordinator.PartialRollback(c.Request.Context(), flag, r.Reason, *r.Target))
		return
	}
	strategy, ok := knownStrategies[r.Strategy]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown rollback strategy: " + r.Strategy})
		return
	}
	c.JSON(http.StatusOK, h.coordinator.EmergencyRollback(c.Request.Context(), flag, r.Reason, strategy))
}

// Automatic maps a monitoring trigger to a strategy via its severity.
func (h *RollbackHandler) Automatic(c *gin.Context) {
	flag, err := catalog.FromKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var r req.AutomaticRollbackRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	trigger, ok := knownTriggers[r.Trigger]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger: " + r.Trigger})
		return
	}
	c.JSON(http.StatusOK, h.coordinator.AutomaticRollback(c.Request.Context(), flag, trigger))
}

// Group rolls back several flags with immediate disable, best effort.
func (h *RollbackHandler) Group(c *gin.Context) {
	var r req.GroupRollbackRequest
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	flags := make([]catalog.Flag, 0, len(r.Keys))
	for _, key := range r.Keys {
		flag, err := catalog.FromKey(key)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		flags = append(flags, flag)
	}
	c.JSON(http.StatusOK, h.coordinator.RollbackGroup(c.Request.Context(), flags, r.Reason))
}

// History returns the in-memory bounded history for one flag.
func (h *RollbackHandler) History(c *gin.Context) {
	flag, err := catalog.FromKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	events := h.coordinator.History(flag.Key())
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "events": events})
}

// AllHistory returns the in-memory history for every flag that has one.
func (h *RollbackHandler) AllHistory(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.AllHistory())
}

// PersistedHistory reads the durable rollback log from the store.
func (h *RollbackHandler) PersistedHistory(c *gin.Context) {
	flag, err := catalog.FromKey(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	logs, err := h.coordinator.PersistedHistory(c.Request.Context(), flag.Key(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": flag.Key(), "logs": logs})
}

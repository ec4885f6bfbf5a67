package service

import (
	"context"
	"fmt"
	"time"

	"rolloutgate/internal/catalog"
	"rolloutgate/internal/history"
	"rolloutgate/internal/metrics"
	"rolloutgate/internal/model"
	"rolloutgate/internal/repository"
	"rolloutgate/pkg/logger"

	"go.uber.org/zap"
)

// RollbackStrategy names a de-escalation procedure.
type RollbackStrategy string

const (
	StrategyImmediateDisable RollbackStrategy = "immediate_disable"
	StrategyGradualDecrease  RollbackStrategy = "gradual_decrease"
	StrategyPartialRollback  RollbackStrategy = "partial_rollback"
	StrategyCanaryOnly       RollbackStrategy = "canary_only"
)

const (
	// historyLimit bounds the in-memory rollback history per flag.
	historyLimit = 100
	// defaultPartialTarget is where a partial rollback lands unless an
	// explicit target is given.
	defaultPartialTarget = 50.0
	// canaryPercentage is the minimal safe exposure kept during investigation.
	canaryPercentage = 5.0
)

func (s RollbackStrategy) Description() string {
	switch s {
	case StrategyImmediateDisable:
		return "Immediately disable the feature"
	case StrategyGradualDecrease:
		return "Gradually decrease rollout percentage"
	case StrategyPartialRollback:
		return "Rollback to a specific percentage"
	case StrategyCanaryOnly:
		return "Rollback to canary deployment only"
	default:
		return "Unknown strategy"
	}
}

// Severity grades a rollback trigger; the worse the signal, the more
// aggressive the chosen strategy.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Strategy maps a severity to the de-escalation applied automatically.
func (s Severity) Strategy() RollbackStrategy {
	switch s {
	case SeverityCritical:
		return StrategyImmediateDisable
	case SeverityHigh:
		return StrategyPartialRollback
	case SeverityMedium:
		return StrategyGradualDecrease
	default:
		return StrategyCanaryOnly
	}
}

// Trigger describes the monitoring signal behind an automatic rollback.
type Trigger struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Common triggers fired by monitors.
var (
	TriggerHighErrorRate          = Trigger{"HIGH_ERROR_RATE", "Error rate exceeded threshold", SeverityHigh}
	TriggerPerformanceDegradation = Trigger{"PERFORMANCE_DEGRADATION", "Performance metrics degraded", SeverityMedium}
	TriggerSecurityIncident       = Trigger{"SECURITY_INCIDENT", "Security vulnerability detected", SeverityCritical}
	TriggerUserComplaints         = Trigger{"USER_COMPLAINTS", "High volume of user complaints", SeverityMedium}
)

// RollbackEvent is one entry of a flag's rollback history.
type RollbackEvent struct {
	FlagKey     string           `json:"flag_key"`
	Reason      string           `json:"reason"`
	Strategy    RollbackStrategy `json:"strategy"`
	Timestamp   time.Time        `json:"timestamp"`
	PerformedBy string           `json:"performed_by"`
}

// RollbackResult reports one rollback attempt. Failures are carried here,
// never raised: the coordinator's entry points do not return errors.
type RollbackResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Event   *RollbackEvent `json:"event,omitempty"`
}

// GroupRollbackResult aggregates a best-effort batch rollback.
type GroupRollbackResult struct {
	AllSuccessful bool             `json:"all_successful"`
	Results       []RollbackResult `json:"results"`
}

func (g GroupRollbackResult) SuccessCount() int {
	n := 0
	for _, r := range g.Results {
		if r.Success {
			n++
		}
	}
	return n
}

func (g GroupRollbackResult) FailureCount() int {
	return len(g.Results) - g.SuccessCount()
}

// RollbackCoordinator applies de-escalation strategies to flags through the
// evaluator's administrative operations and keeps a bounded, queryable audit
// history of every attempt, successful or not.
type RollbackCoordinator struct {
	evaluator *FlagEvaluator
	store     repository.FlagStoreInterface
	history   *history.Log[RollbackEvent]
	observer  metrics.Observer
	now       func() time.Time
}

func NewRollbackCoordinator(evaluator *FlagEvaluator, store repository.FlagStoreInterface, observer metrics.Observer) *RollbackCoordinator {
	if observer == nil {
		observer = metrics.NewNopObserver()
	}
	return &RollbackCoordinator{
		evaluator: evaluator,
		store:     store,
		history:   history.NewLog[RollbackEvent](historyLimit),
		observer:  observer,
		now:       time.Now,
	}
}

// EmergencyRollback applies the named strategy to a flag. The attempt is
// recorded in history and the durable log either way; a failure comes back
// as an unsuccessful result carrying the error message.
func (c *RollbackCoordinator) EmergencyRollback(ctx context.Context, flag catalog.Flag, reason string, strategy RollbackStrategy) RollbackResult {
	logger.Warn("emergency rollback initiated",
		zap.String("key", flag.Key()),
		zap.String("reason", reason),
		zap.String("strategy", string(strategy)))

	event := RollbackEvent{
		FlagKey:     flag.Key(),
		Reason:      reason,
		Strategy:    strategy,
		Timestamp:   c.now(),
		PerformedBy: GetOperator(ctx),
	}

	message, err := c.apply(ctx, flag, strategy)
	c.record(ctx, event)

	if err != nil {
		logger.Error("emergency rollback failed",
			zap.String("key", flag.Key()),
			zap.Error(err))
		return RollbackResult{Success: false, Message: "rollback failed: " + err.Error(), Event: &event}
	}

	c.observer.RecordRollback(string(strategy))
	return RollbackResult{Success: true, Message: message, Event: &event}
}

// PartialRollback rolls a flag back to an explicit percentage instead of the
// default partial target.
func (c *RollbackCoordinator) PartialRollback(ctx context.Context, flag catalog.Flag, reason string, target float64) RollbackResult {
	event := RollbackEvent{
		FlagKey:     flag.Key(),
		Reason:      reason,
		Strategy:    StrategyPartialRollback,
		Timestamp:   c.now(),
		PerformedBy: GetOperator(ctx),
	}

	err := c.evaluator.SetRolloutPercentage(ctx, flag, target)
	c.record(ctx, event)

	if err != nil {
		return RollbackResult{Success: false, Message: "rollback failed: " + err.Error(), Event: &event}
	}
	c.observer.RecordRollback(string(StrategyPartialRollback))
	return RollbackResult{Success: true, Message: fmt.Sprintf("rolled back to %.1f%%", target), Event: &event}
}

// AutomaticRollback picks the strategy from the trigger's severity and
// applies it.
func (c *RollbackCoordinator) AutomaticRollback(ctx context.Context, flag catalog.Flag, trigger Trigger) RollbackResult {
	logger.Warn("automatic rollback triggered",
		zap.String("key", flag.Key()),
		zap.String("trigger", trigger.Name),
		zap.String("severity", string(trigger.Severity)))

	return c.EmergencyRollback(ctx, flag,
		"automatic rollback due to: "+trigger.Description,
		trigger.Severity.Strategy())
}

// RollbackGroup disables every flag in the list, best effort: one failure
// does not stop the rest, and the aggregate succeeds only if every flag did.
func (c *RollbackCoordinator) RollbackGroup(ctx context.Context, flags []catalog.Flag, reason string) GroupRollbackResult {
	logger.Warn("group rollback initiated",
		zap.Int("flags", len(flags)),
		zap.String("reason", reason))

	results := make([]RollbackResult, 0, len(flags))
	allSuccessful := true

	for _, flag := range flags {
		result := c.EmergencyRollback(ctx, flag, reason, StrategyImmediateDisable)
		results = append(results, result)
		if !result.Success {
			allSuccessful = false
		}
	}

	return GroupRollbackResult{AllSuccessful: allSuccessful, Results: results}
}

// History returns the bounded in-memory rollback history for one flag,
// oldest first.
func (c *RollbackCoordinator) History(flagKey string) []RollbackEvent {
	return c.history.Get(flagKey)
}

// AllHistory returns the history for every flag that has one.
func (c *RollbackCoordinator) AllHistory() map[string][]RollbackEvent {
	return c.history.All()
}

// PersistedHistory reads the durable rollback log from the store.
func (c *RollbackCoordinator) PersistedHistory(ctx context.Context, flagKey string, limit int) ([]model.RollbackLog, error) {
	return c.store.ListRollbackLogs(ctx, flagKey, limit)
}

func (c *RollbackCoordinator) apply(ctx context.Context, flag catalog.Flag, strategy RollbackStrategy) (string, error) {
	switch strategy {
	case StrategyImmediateDisable:
		if err := c.evaluator.Disable(ctx, flag); err != nil {
			return "", err
		}
		return "feature flag disabled immediately", nil

	case StrategyGradualDecrease:
		return c.gradualDecrease(ctx, flag)

	case StrategyPartialRollback:
		if err := c.evaluator.SetRolloutPercentage(ctx, flag, defaultPartialTarget); err != nil {
			return "", err
		}
		return fmt.Sprintf("rolled back to %.1f%%", defaultPartialTarget), nil

	case StrategyCanaryOnly:
		if err := c.evaluator.SetRolloutPercentage(ctx, flag, canaryPercentage); err != nil {
			return "", err
		}
		return fmt.Sprintf("rolled back to canary deployment (%.0f%%)", canaryPercentage), nil

	default:
		return "", fmt.Errorf("unknown rollback strategy: %s", strategy)
	}
}

// gradualDecrease steps the percentage down one notch per invocation:
// >50 -> 50, >25 -> 25, >10 -> 10, otherwise disable entirely.
func (c *RollbackCoordinator) gradualDecrease(ctx context.Context, flag catalog.Flag) (string, error) {
	status, err := c.evaluator.GetStatus(ctx, flag)
	if err != nil {
		return "", err
	}
	if status == nil {
		return "", repository.ErrFlagNotFound
	}

	var next float64
	switch current := status.RolloutPercentage; {
	case current > 50:
		next = 50
	case current > 25:
		next = 25
	case current > 10:
		next = 10
	default:
		if err := c.evaluator.Disable(ctx, flag); err != nil {
			return "", err
		}
		return "gradual rollback completed, feature disabled", nil
	}

	if err := c.evaluator.SetRolloutPercentage(ctx, flag, next); err != nil {
		return "", err
	}
	return fmt.Sprintf("gradual rollback stepped down to %.0f%%", next), nil
}

func (c *RollbackCoordinator) record(ctx context.Context, event RollbackEvent) {
	c.history.Append(event.FlagKey, event)

	// Durable logging is best effort; the in-memory trail already has the
	// attempt and a log failure must not mask the rollback outcome.
	if err := c.store.LogRollback(ctx, event.FlagKey, event.Reason, string(event.Strategy), event.PerformedBy, GetTraceID(ctx)); err != nil {
		logger.Warn("failed to persist rollback log",
			zap.String("key", event.FlagKey),
			zap.Error(err))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"

	"rolloutgate/internal/cache"
	"rolloutgate/internal/catalog"
	"rolloutgate/internal/metrics"
	"rolloutgate/internal/model"
	"rolloutgate/internal/repository"
	"rolloutgate/internal/rollout"
	"rolloutgate/pkg/logger"

	"go.uber.org/zap"
)

// ErrInvalidPercentage is returned when a rollout percentage falls outside
// the 0-100 range.
var ErrInvalidPercentage = errors.New("rollout percentage must be between 0 and 100")

// FlagEvaluator decides whether a flag is active for a user and owns the
// administrative operations that mutate flag state. Evaluation is total: it
// always returns a boolean, falling back to the catalog default on any store
// failure, because a flag check gates unrelated business logic and must not
// take it down. Administrative mutations, in contrast, report their errors.
type FlagEvaluator struct {
	store    repository.FlagStoreInterface
	cache    *cache.TTLCache
	observer metrics.Observer
}

func NewFlagEvaluator(store repository.FlagStoreInterface, c *cache.TTLCache, observer metrics.Observer) *FlagEvaluator {
	if observer == nil {
		observer = metrics.NewNopObserver()
	}
	return &FlagEvaluator{
		store:    store,
		cache:    c,
		observer: observer,
	}
}

// IsEnabled evaluates a flag without a user identity.
func (e *FlagEvaluator) IsEnabled(ctx context.Context, flag catalog.Flag) bool {
	return e.IsEnabledForUser(ctx, flag, "")
}

// IsEnabledForUser evaluates a flag for a specific user. Order: cache,
// store, catalog default, global disable, per-user override, rollout
// percentage. The result is cached under the flag key (plus ":userID" when
// present) so repeated checks within the TTL skip the store entirely.
func (e *FlagEvaluator) IsEnabledForUser(ctx context.Context, flag catalog.Flag, userID string) bool {
	cacheKey := flag.Key()
	if userID != "" {
		cacheKey += ":" + userID
	}

	if v, ok := e.cache.Get(cacheKey); ok {
		e.observer.RecordEvaluation(metrics.SourceCache)
		return v
	}

	enabled, source := e.evaluate(ctx, flag, userID)
	e.cache.Set(cacheKey, enabled)
	e.observer.RecordEvaluation(source)

	return enabled
}

func (e *FlagEvaluator) evaluate(ctx context.Context, flag catalog.Flag, userID string) (bool, string) {
	status, err := e.store.GetStatus(ctx, flag.Key())
	if err != nil {
		logger.Error("flag evaluation failed, using default value",
			zap.String("key", flag.Key()),
			zap.Bool("default", flag.DefaultValue()),
			zap.Error(err))
		return flag.DefaultValue(), metrics.SourceDefault
	}

	// Never persisted: the catalog default keeps evaluation working before
	// the store has been seeded.
	if status == nil {
		return flag.DefaultValue(), metrics.SourceDefault
	}

	// A globally disabled flag is off for everyone, overrides included.
	if !status.Enabled {
		return false, metrics.SourceStore
	}

	if userID != "" {
		override, err := e.store.GetUserOverride(ctx, flag.Key(), userID)
		if err != nil {
			logger.Error("override lookup failed, using default value",
				zap.String("key", flag.Key()),
				zap.String("user", userID),
				zap.Error(err))
			return flag.DefaultValue(), metrics.SourceDefault
		}
		if override != nil {
			return *override, metrics.SourceStore
		}
	}

	return rollout.ShouldEnable(flag.Key(), userID, status.RolloutPercentage), metrics.SourceStore
}

// Enable turns a flag fully on (enabled, 100%).
func (e *FlagEvaluator) Enable(ctx context.Context, flag catalog.Flag) error {
	if err := e.store.UpdateFlag(ctx, flag.Key(), true, 100.0, GetOperator(ctx)); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Info("feature flag enabled globally", zap.String("key", flag.Key()))
	return nil
}

// Disable turns a flag fully off for every user.
func (e *FlagEvaluator) Disable(ctx context.Context, flag catalog.Flag) error {
	if err := e.store.UpdateFlag(ctx, flag.Key(), false, 0.0, GetOperator(ctx)); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Info("feature flag disabled globally", zap.String("key", flag.Key()))
	return nil
}

// SetRolloutPercentage changes the rollout width. Out-of-range input is a
// validation error, never clamped.
func (e *FlagEvaluator) SetRolloutPercentage(ctx context.Context, flag catalog.Flag, percentage float64) error {
	if percentage < 0 || percentage > 100 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidPercentage, percentage)
	}
	if err := e.store.UpdateRolloutPercentage(ctx, flag.Key(), percentage, GetOperator(ctx)); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Info("feature flag rollout percentage updated",
		zap.String("key", flag.Key()),
		zap.Float64("percentage", percentage))
	return nil
}

// GraduateRollout advances the percentage toward target by at most
// increment, never overshooting. At or above target it is a no-op, so a
// cron-driven caller can invoke it repeatedly until the target is reached.
func (e *FlagEvaluator) GraduateRollout(ctx context.Context, flag catalog.Flag, target, increment float64) error {
	status, err := e.store.GetStatus(ctx, flag.Key())
	if err != nil {
		return err
	}
	if status == nil {
		return repository.ErrFlagNotFound
	}

	current := status.RolloutPercentage
	if current >= target {
		logger.Debug("feature flag already at or above target percentage",
			zap.String("key", flag.Key()),
			zap.Float64("current", current),
			zap.Float64("target", target))
		return nil
	}

	next := min(current+increment, target)
	if err := e.SetRolloutPercentage(ctx, flag, next); err != nil {
		return err
	}

	logger.Info("feature flag rollout graduated",
		zap.String("key", flag.Key()),
		zap.Float64("from", current),
		zap.Float64("to", next))
	return nil
}

// AddUserOverride pins the flag decision for one user.
func (e *FlagEvaluator) AddUserOverride(ctx context.Context, flag catalog.Flag, userID string, enabled bool) error {
	if err := e.store.AddUserOverride(ctx, flag.Key(), userID, enabled, GetOperator(ctx)); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Info("feature flag user override set",
		zap.String("key", flag.Key()),
		zap.String("user", userID),
		zap.Bool("enabled", enabled))
	return nil
}

func (e *FlagEvaluator) RemoveUserOverride(ctx context.Context, flag catalog.Flag, userID string) error {
	if err := e.store.RemoveUserOverride(ctx, flag.Key(), userID); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Info("feature flag user override removed",
		zap.String("key", flag.Key()),
		zap.String("user", userID))
	return nil
}

// GetStatus returns the persisted state, or (nil, nil) when the flag has
// never been written.
func (e *FlagEvaluator) GetStatus(ctx context.Context, flag catalog.Flag) (*model.FlagStatus, error) {
	return e.store.GetStatus(ctx, flag.Key())
}

func (e *FlagEvaluator) GetAllStatuses(ctx context.Context) (map[string]model.FlagStatus, error) {
	return e.store.GetAllStatuses(ctx)
}

// EstimateImpact simulates a rollout percentage over a synthetic population
// before it is applied to live traffic.
func (e *FlagEvaluator) EstimateImpact(flag catalog.Flag, percentage float64, sampleSize int) rollout.Impact {
	return rollout.CalculateImpact(flag.Key(), percentage, sampleSize)
}

// DeleteFlag removes the persisted record and all of its overrides. The
// catalog entry remains; evaluation falls back to the default.
func (e *FlagEvaluator) DeleteFlag(ctx context.Context, flag catalog.Flag) error {
	if err := e.store.DeleteFlag(ctx, flag.Key()); err != nil {
		return err
	}
	e.invalidate(flag)
	logger.Warn("feature flag deleted", zap.String("key", flag.Key()))
	return nil
}

// InitializeDefaultFlags seeds a status row for every catalog entry that has
// none, at 0% rollout. Safe to run on every boot.
func (e *FlagEvaluator) InitializeDefaultFlags(ctx context.Context) error {
	for _, flag := range catalog.All() {
		status, err := e.store.GetStatus(ctx, flag.Key())
		if err != nil {
			return err
		}
		if status != nil {
			continue
		}
		if err := e.store.CreateFlag(ctx, flag.Key(), flag.Description(), flag.DefaultValue(), 0.0, GetOperator(ctx)); err != nil {
			return err
		}
		logger.Info("initialized default feature flag",
			zap.String("key", flag.Key()),
			zap.Bool("default", flag.DefaultValue()))
	}
	return nil
}

// ClearCache drops every cached decision.
func (e *FlagEvaluator) ClearCache() {
	e.cache.Clear()
	logger.Info("feature flag cache cleared")
}

// Ping reports whether the backing store is reachable.
func (e *FlagEvaluator) Ping(ctx context.Context) error {
	return e.store.PingContext(ctx)
}

func (e *FlagEvaluator) invalidate(flag catalog.Flag) {
	removed := e.cache.InvalidatePrefix(flag.Key())
	e.observer.RecordCacheInvalidation(removed)
}

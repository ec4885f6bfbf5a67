package service

import (
	"context"
	"time"

	"rolloutgate/internal/catalog"
	"rolloutgate/pkg/logger"

	"go.uber.org/zap"
)

// GraduationPlan widens one flag's rollout toward a target in fixed steps.
type GraduationPlan struct {
	FlagKey   string  `mapstructure:"flag_key"`
	Target    float64 `mapstructure:"target"`
	Increment float64 `mapstructure:"increment"`
}

// RolloutGraduator advances configured graduation plans on a fixed cadence,
// e.g. 10% -> 25% -> 50% -> 100% over successive ticks. Plans already at
// their target are no-ops, so the worker can run forever.
type RolloutGraduator struct {
	evaluator *FlagEvaluator
	plans     []GraduationPlan
	interval  time.Duration
}

func NewRolloutGraduator(evaluator *FlagEvaluator, plans []GraduationPlan, interval time.Duration) *RolloutGraduator {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RolloutGraduator{
		evaluator: evaluator,
		plans:     plans,
		interval:  interval,
	}
}

func (g *RolloutGraduator) Run(ctx context.Context) {
	if len(g.plans) == 0 {
		logger.Info("rollout graduator idle, no graduation plans configured")
		return
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	logger.Info("rollout graduator started",
		zap.Duration("interval", g.interval),
		zap.Int("plans", len(g.plans)))

	for {
		select {
		case <-ctx.Done():
			logger.Info("rollout graduator stopped")
			return
		case <-ticker.C:
			g.step(ctx)
		}
	}
}

func (g *RolloutGraduator) step(ctx context.Context) {
	for _, plan := range g.plans {
		flag, err := catalog.FromKey(plan.FlagKey)
		if err != nil {
			logger.Error("graduation plan references unknown flag",
				zap.String("key", plan.FlagKey))
			continue
		}
		if err := g.evaluator.GraduateRollout(ctx, flag, plan.Target, plan.Increment); err != nil {
			logger.Error("rollout graduation step failed",
				zap.String("key", plan.FlagKey),
				zap.Error(err))
		}
	}
}

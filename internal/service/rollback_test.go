package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rolloutgate/internal/catalog"
)

func newTestCoordinator(store *mockFlagStore) *RollbackCoordinator {
	return NewRollbackCoordinator(newTestEvaluator(store), store, nil)
}

func TestSeverityStrategyMapping(t *testing.T) {
	tests := []struct {
		severity Severity
		want     RollbackStrategy
	}{
		{SeverityCritical, StrategyImmediateDisable},
		{SeverityHigh, StrategyPartialRollback},
		{SeverityMedium, StrategyGradualDecrease},
		{SeverityLow, StrategyCanaryOnly},
	}
	for _, tt := range tests {
		if got := tt.severity.Strategy(); got != tt.want {
			t.Errorf("Strategy(%s) = %s, want %s", tt.severity, got, tt.want)
		}
	}
}

func TestEmergencyRollbackImmediateDisable(t *testing.T) {
	ctx := context.Background()
	flag := catalog.AsyncProcessing
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 80)
	c := newTestCoordinator(store)

	result := c.EmergencyRollback(ctx, flag, "error rate spike", StrategyImmediateDisable)
	if !result.Success {
		t.Fatalf("rollback failed: %s", result.Message)
	}

	status := store.statuses[flag.Key()]
	if status.Enabled || status.RolloutPercentage != 0 {
		t.Errorf("flag after immediate disable = enabled:%v %.0f%%, want disabled at 0%%",
			status.Enabled, status.RolloutPercentage)
	}
}

func TestEmergencyRollbackStrategies(t *testing.T) {
	ctx := context.Background()
	flag := catalog.QueryCaching

	tests := []struct {
		name        string
		strategy    RollbackStrategy
		startPct    float64
		wantPct     float64
		wantEnabled bool
	}{
		{"Partial rollback to default target", StrategyPartialRollback, 90, 50, true},
		{"Canary only", StrategyCanaryOnly, 90, 5, true},
		{"Gradual from high", StrategyGradualDecrease, 80, 50, true},
		{"Gradual from mid", StrategyGradualDecrease, 40, 25, true},
		{"Gradual from low", StrategyGradualDecrease, 20, 10, true},
		{"Gradual bottoms out", StrategyGradualDecrease, 8, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockFlagStore()
			store.seed(flag.Key(), true, tt.startPct)
			c := newTestCoordinator(store)

			result := c.EmergencyRollback(ctx, flag, "test", tt.strategy)
			if !result.Success {
				t.Fatalf("rollback failed: %s", result.Message)
			}
			status := store.statuses[flag.Key()]
			if status.RolloutPercentage != tt.wantPct || status.Enabled != tt.wantEnabled {
				t.Errorf("flag = enabled:%v %.0f%%, want enabled:%v %.0f%%",
					status.Enabled, status.RolloutPercentage, tt.wantEnabled, tt.wantPct)
			}
		})
	}
}

func TestEmergencyRollbackUnknownStrategy(t *testing.T) {
	store := newMockFlagStore()
	store.seed(catalog.QueryCaching.Key(), true, 50)
	c := newTestCoordinator(store)

	result := c.EmergencyRollback(context.Background(), catalog.QueryCaching, "test", RollbackStrategy("bogus"))
	if result.Success {
		t.Error("unknown strategy should fail")
	}
}

func TestFailedRollbackIsStillRecorded(t *testing.T) {
	ctx := context.Background()
	flag := catalog.RateLimiting
	// No seeded row: the disable will fail with ErrFlagNotFound.
	store := newMockFlagStore()
	c := newTestCoordinator(store)

	result := c.EmergencyRollback(ctx, flag, "panic button", StrategyImmediateDisable)
	if result.Success {
		t.Fatal("rollback of an unknown flag should fail")
	}
	if len(c.History(flag.Key())) != 1 {
		t.Error("failed attempt missing from in-memory history")
	}
	if len(store.rollbackLogs) != 1 {
		t.Error("failed attempt missing from the durable log")
	}
}

func TestRollbackSurvivesLogFailure(t *testing.T) {
	ctx := context.Background()
	flag := catalog.AsyncProcessing
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 60)
	store.logRollbackErr = errors.New("insert failed")
	c := newTestCoordinator(store)

	result := c.EmergencyRollback(ctx, flag, "test", StrategyImmediateDisable)
	if !result.Success {
		t.Error("a durable-log failure must not fail the rollback itself")
	}
	if len(c.History(flag.Key())) != 1 {
		t.Error("in-memory history should record the attempt regardless")
	}
}

func TestPartialRollbackExplicitTarget(t *testing.T) {
	ctx := context.Background()
	flag := catalog.OptimizedQueries
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 95)
	c := newTestCoordinator(store)

	result := c.PartialRollback(ctx, flag, "latency regression", 30)
	if !result.Success {
		t.Fatalf("rollback failed: %s", result.Message)
	}
	if got := store.percentage(flag.Key()); got != 30 {
		t.Errorf("percentage = %v, want 30", got)
	}

	// Out-of-range target is rejected by the evaluator and surfaces as failure.
	result = c.PartialRollback(ctx, flag, "bad target", 120)
	if result.Success {
		t.Error("out-of-range target should fail")
	}
}

func TestAutomaticRollbackPicksStrategyBySeverity(t *testing.T) {
	ctx := context.Background()
	flag := catalog.NewErrorHandling

	tests := []struct {
		name    string
		trigger Trigger
		wantPct float64
	}{
		{"Critical disables", TriggerSecurityIncident, 0},
		{"High goes to partial target", TriggerHighErrorRate, 50},
		{"Low goes to canary", Trigger{Name: "CANARY_CHECK", Severity: SeverityLow}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockFlagStore()
			store.seed(flag.Key(), true, 90)
			c := newTestCoordinator(store)

			result := c.AutomaticRollback(ctx, flag, tt.trigger)
			if !result.Success {
				t.Fatalf("rollback failed: %s", result.Message)
			}
			if got := store.percentage(flag.Key()); got != tt.wantPct {
				t.Errorf("percentage = %v, want %v", got, tt.wantPct)
			}
		})
	}
}

func TestRollbackGroupBestEffort(t *testing.T) {
	ctx := context.Background()
	store := newMockFlagStore()
	store.seed(catalog.QueryCaching.Key(), true, 50)
	// catalog.RateLimiting has no row, so its disable fails.
	store.seed(catalog.AsyncProcessing.Key(), true, 50)
	c := newTestCoordinator(store)

	group := c.RollbackGroup(ctx, []catalog.Flag{
		catalog.QueryCaching,
		catalog.RateLimiting,
		catalog.AsyncProcessing,
	}, "incident-42")

	if group.AllSuccessful {
		t.Error("group with one failure should not report all successful")
	}
	if group.SuccessCount() != 2 || group.FailureCount() != 1 {
		t.Errorf("success/failure = %d/%d, want 2/1", group.SuccessCount(), group.FailureCount())
	}
	// The failure in the middle must not stop later flags.
	if store.statuses[catalog.AsyncProcessing.Key()].Enabled {
		t.Error("flags after the failing one were not rolled back")
	}
}

func TestHistoryIsBounded(t *testing.T) {
	ctx := context.Background()
	flag := catalog.QueryCaching
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 100)
	c := newTestCoordinator(store)

	for i := 0; i < 150; i++ {
		c.EmergencyRollback(ctx, flag, fmt.Sprintf("attempt-%d", i), StrategyCanaryOnly)
	}

	events := c.History(flag.Key())
	if len(events) != 100 {
		t.Fatalf("history holds %d events, want 100", len(events))
	}
	if events[0].Reason != "attempt-50" || events[99].Reason != "attempt-149" {
		t.Errorf("history window = [%s .. %s], want [attempt-50 .. attempt-149]",
			events[0].Reason, events[99].Reason)
	}
}

func TestRollbackRecordsOperatorAndTrace(t *testing.T) {
	flag := catalog.AsyncProcessing
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 50)
	c := newTestCoordinator(store)

	ctx := WithOperator(context.Background(), &OperatorInfo{UserID: "1001", Name: "oncall", Role: "admin"})
	ctx = WithTraceID(ctx, "trace-abc")

	result := c.EmergencyRollback(ctx, flag, "test", StrategyImmediateDisable)
	if result.Event.PerformedBy != "oncall" {
		t.Errorf("PerformedBy = %q, want %q", result.Event.PerformedBy, "oncall")
	}
	if store.rollbackLogs[0].TraceID != "trace-abc" {
		t.Errorf("TraceID = %q, want %q", store.rollbackLogs[0].TraceID, "trace-abc")
	}
}

func TestPersistedHistory(t *testing.T) {
	ctx := context.Background()
	flag := catalog.QueryCaching
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 100)
	c := newTestCoordinator(store)

	c.EmergencyRollback(ctx, flag, "first", StrategyCanaryOnly)
	c.EmergencyRollback(ctx, flag, "second", StrategyImmediateDisable)

	logs, err := c.PersistedHistory(ctx, flag.Key(), 10)
	if err != nil {
		t.Fatalf("PersistedHistory() error = %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("persisted %d log rows, want 2", len(logs))
	}
}

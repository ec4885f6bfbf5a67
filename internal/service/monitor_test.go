package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rolloutgate/internal/catalog"
	"rolloutgate/internal/model"
)

// recordingAlerter captures alerts for assertions.
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []struct {
		Level AlertLevel
		Title string
	}
}

func (a *recordingAlerter) Alert(level AlertLevel, title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, struct {
		Level AlertLevel
		Title string
	}{level, title})
}

func (a *recordingAlerter) titled(title string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, alert := range a.alerts {
		if alert.Title == title {
			n++
		}
	}
	return n
}

func newTestMonitor(store *mockFlagStore, alerter Alerter, cfg MonitorConfig) *RolloutMonitor {
	return NewRolloutMonitor(newTestEvaluator(store), alerter, nil, cfg)
}

func TestSweepTracksMovement(t *testing.T) {
	ctx := context.Background()
	flag := catalog.QueryCaching
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 10)

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{})

	m.Sweep(ctx)
	metrics := m.Metrics(flag.Key())
	if metrics == nil {
		t.Fatal("flag should be tracked after a sweep")
	}
	if metrics.CurrentPercentage != 10 || metrics.ChangeCount != 0 {
		t.Errorf("metrics = %.0f%% with %d changes, want 10%% with 0", metrics.CurrentPercentage, metrics.ChangeCount)
	}

	store.seed(flag.Key(), true, 25)
	m.Sweep(ctx)
	metrics = m.Metrics(flag.Key())
	if metrics.CurrentPercentage != 25 || metrics.ChangeCount != 1 {
		t.Errorf("metrics = %.0f%% with %d changes, want 25%% with 1", metrics.CurrentPercentage, metrics.ChangeCount)
	}

	// An unchanged percentage is not a change.
	m.Sweep(ctx)
	if metrics = m.Metrics(flag.Key()); metrics.ChangeCount != 1 {
		t.Errorf("ChangeCount = %d after a no-op sweep, want 1", metrics.ChangeCount)
	}
}

func TestRapidChangeAlert(t *testing.T) {
	ctx := context.Background()
	flag := catalog.AsyncProcessing
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 0)

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{RapidChangeCount: 3, RapidChangeWindow: time.Hour})

	for i := 1; i <= 5; i++ {
		store.seed(flag.Key(), true, float64(i*10))
		m.Sweep(ctx)
	}

	if alerter.titled("Rapid feature flag changes detected") == 0 {
		t.Error("expected a rapid-change alert after 5 changes with threshold 3")
	}
}

func TestStuckRolloutAlert(t *testing.T) {
	ctx := context.Background()
	flag := catalog.OptimizedQueries
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 40)

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{StuckAfter: 24 * time.Hour})

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Sweep(ctx)
	if alerter.titled("Stuck feature flag rollout") != 0 {
		t.Fatal("fresh rollout should not be flagged as stuck")
	}

	clock = clock.Add(25 * time.Hour)
	m.Sweep(ctx)
	if alerter.titled("Stuck feature flag rollout") == 0 {
		t.Error("rollout unchanged for 25h should be flagged as stuck")
	}
}

func TestFullyEnabledFlagIsNeverStuck(t *testing.T) {
	ctx := context.Background()
	flag := catalog.RateLimiting
	store := newMockFlagStore()
	store.seed(flag.Key(), true, 100)

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{StuckAfter: 24 * time.Hour})

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Sweep(ctx)
	clock = clock.Add(48 * time.Hour)
	m.Sweep(ctx)

	if alerter.titled("Stuck feature flag rollout") != 0 {
		t.Error("a completed rollout is not a stuck rollout")
	}
}

func TestOverrideCountAlert(t *testing.T) {
	ctx := context.Background()
	flag := catalog.NewErrorHandling
	store := newMockFlagStore()
	store.mu.Lock()
	store.statuses[flag.Key()] = model.FlagStatus{
		Key:               flag.Key(),
		Enabled:           true,
		RolloutPercentage: 50,
		UserOverrideCount: 150,
	}
	store.mu.Unlock()

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{OverrideAlertCount: 100})

	m.Sweep(ctx)
	if alerter.titled("High user override count") == 0 {
		t.Error("expected an override-count alert above the threshold")
	}
}

func TestSweepFailureAlerts(t *testing.T) {
	store := newMockFlagStore()
	store.getStatusErr = errors.New("connection refused")

	alerter := &recordingAlerter{}
	m := newTestMonitor(store, alerter, MonitorConfig{})

	m.Sweep(context.Background())
	if alerter.titled("Feature flag monitoring failed") == 0 {
		t.Error("a failed sweep should raise an alert")
	}
}

func TestMetricsUnknownFlag(t *testing.T) {
	m := newTestMonitor(newMockFlagStore(), &recordingAlerter{}, MonitorConfig{})
	if m.Metrics("never-seen") != nil {
		t.Error("Metrics() for an untracked flag should be nil")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	store := newMockFlagStore()
	m := newTestMonitor(store, &recordingAlerter{}, MonitorConfig{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Run did not stop after context cancellation")
	}
}

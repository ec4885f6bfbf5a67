package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rolloutgate/internal/metrics"
	"rolloutgate/internal/model"
	"rolloutgate/pkg/logger"

	"go.uber.org/zap"
)

// AlertLevel grades a monitoring alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Alerter delivers rollout anomaly alerts. The default implementation logs;
// a deployment can plug in pager or chat delivery instead.
type Alerter interface {
	Alert(level AlertLevel, title, message string)
}

type logAlerter struct{}

// NewLogAlerter returns an Alerter that writes alerts to the process log.
func NewLogAlerter() Alerter {
	return logAlerter{}
}

func (logAlerter) Alert(level AlertLevel, title, message string) {
	fields := []zap.Field{
		zap.String("level", string(level)),
		zap.String("title", title),
	}
	switch level {
	case AlertError, AlertCritical:
		logger.Error(message, fields...)
	case AlertWarning:
		logger.Warn(message, fields...)
	default:
		logger.Info(message, fields...)
	}
}

// RolloutMetrics tracks how one flag's percentage has moved over time.
type RolloutMetrics struct {
	CurrentPercentage float64   `json:"current_percentage"`
	FirstSeen         time.Time `json:"first_seen"`
	LastUpdate        time.Time `json:"last_update"`
	LastChange        time.Time `json:"last_change"`
	ChangeCount       int       `json:"change_count"`
}

// MonitorConfig tunes the sweep cadence and anomaly thresholds.
type MonitorConfig struct {
	Interval time.Duration
	// RapidChangeCount alerts when a flag changed more than this many times
	// with the latest change inside RapidChangeWindow.
	RapidChangeCount  int
	RapidChangeWindow time.Duration
	// StuckAfter alerts when a partial rollout hasn't moved for this long.
	StuckAfter time.Duration
	// OverrideAlertCount alerts when a flag accumulates more overrides than
	// this, usually a sign the percentage is wrong for too many users.
	OverrideAlertCount int
}

func (c *MonitorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.RapidChangeCount <= 0 {
		c.RapidChangeCount = 5
	}
	if c.RapidChangeWindow <= 0 {
		c.RapidChangeWindow = time.Hour
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = 24 * time.Hour
	}
	if c.OverrideAlertCount <= 0 {
		c.OverrideAlertCount = 100
	}
}

// RolloutMonitor periodically scans persisted flag state, tracks per-flag
// rollout movement and raises alerts on anomalies.
type RolloutMonitor struct {
	evaluator *FlagEvaluator
	alerter   Alerter
	observer  metrics.Observer
	cfg       MonitorConfig

	mu      sync.RWMutex
	tracked map[string]*RolloutMetrics

	now func() time.Time
}

func NewRolloutMonitor(evaluator *FlagEvaluator, alerter Alerter, observer metrics.Observer, cfg MonitorConfig) *RolloutMonitor {
	cfg.applyDefaults()
	if alerter == nil {
		alerter = NewLogAlerter()
	}
	if observer == nil {
		observer = metrics.NewNopObserver()
	}
	return &RolloutMonitor{
		evaluator: evaluator,
		alerter:   alerter,
		observer:  observer,
		cfg:       cfg,
		tracked:   make(map[string]*RolloutMetrics),
		now:       time.Now,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (m *RolloutMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	logger.Info("rollout monitor started", zap.Duration("interval", m.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("rollout monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one monitoring pass: refresh per-flag metrics, update gauges,
// check anomalies.
func (m *RolloutMonitor) Sweep(ctx context.Context) {
	statuses, err := m.evaluator.GetAllStatuses(ctx)
	if err != nil {
		logger.Error("rollout monitoring sweep failed", zap.Error(err))
		m.alerter.Alert(AlertError, "Feature flag monitoring failed",
			"failed to read flag statuses: "+err.Error())
		return
	}

	enabled, partial := 0, 0
	for key, status := range statuses {
		if status.Enabled {
			enabled++
		}
		if status.RolloutState() == model.RolloutPartial {
			partial++
		}
		m.update(key, status)
		m.checkAnomalies(key, status)
	}
	m.observer.SetFlagCounts(len(statuses), enabled, partial)
}

// Metrics returns a snapshot of the tracked movement for one flag, or nil if
// it has not been seen yet.
func (m *RolloutMonitor) Metrics(flagKey string) *RolloutMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tracked, ok := m.tracked[flagKey]
	if !ok {
		return nil
	}
	snapshot := *tracked
	return &snapshot
}

func (m *RolloutMonitor) update(key string, status model.FlagStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	tracked, ok := m.tracked[key]
	if !ok {
		tracked = &RolloutMetrics{
			CurrentPercentage: status.RolloutPercentage,
			FirstSeen:         now,
			LastChange:        now,
		}
		m.tracked[key] = tracked
	} else if tracked.CurrentPercentage != status.RolloutPercentage {
		tracked.CurrentPercentage = status.RolloutPercentage
		tracked.ChangeCount++
		tracked.LastChange = now
	}
	tracked.LastUpdate = now
}

func (m *RolloutMonitor) checkAnomalies(key string, status model.FlagStatus) {
	m.mu.RLock()
	tracked, ok := m.tracked[key]
	var snapshot RolloutMetrics
	if ok {
		snapshot = *tracked
	}
	m.mu.RUnlock()
	if !ok {
		return
	}

	now := m.now()

	if snapshot.ChangeCount > m.cfg.RapidChangeCount &&
		now.Sub(snapshot.LastChange) < m.cfg.RapidChangeWindow {
		m.alerter.Alert(AlertWarning, "Rapid feature flag changes detected",
			fmt.Sprintf("feature flag %s has changed %d times recently", key, snapshot.ChangeCount))
	}

	if status.RolloutState() == model.RolloutPartial &&
		now.Sub(snapshot.LastChange) > m.cfg.StuckAfter {
		m.alerter.Alert(AlertInfo, "Stuck feature flag rollout",
			fmt.Sprintf("feature flag %s has been at %.1f%% for over %s",
				key, status.RolloutPercentage, m.cfg.StuckAfter))
	}

	if status.UserOverrideCount > m.cfg.OverrideAlertCount {
		m.alerter.Alert(AlertWarning, "High user override count",
			fmt.Sprintf("feature flag %s has %d user overrides", key, status.UserOverrideCount))
	}
}

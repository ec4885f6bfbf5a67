package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"rolloutgate/internal/rollout"
	v1 "rolloutgate/pkg/api/v1"
	"rolloutgate/pkg/logger"

	"go.uber.org/zap"
)

const defaultRefreshInterval = 30 * time.Second

// GateClient keeps a local snapshot of flag states and answers IsEnabled
// without a network round trip. The snapshot is refreshed on an interval;
// percentage bucketing runs locally with the same hash the server uses, so
// client-side and server-side answers agree for the same flag and user.
//
// Per-user overrides live only on the server. Callers that need them should
// use EvaluateRemote instead.
type GateClient struct {
	addr       string
	token      string
	interval   time.Duration
	httpClient *http.Client

	mu    sync.RWMutex
	flags map[string]v1.FlagState

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*GateClient)

// WithRefreshInterval overrides how often the snapshot is re-fetched.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *GateClient) { c.interval = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *GateClient) { c.httpClient = hc }
}

func NewGateClient(addr, token string, opts ...Option) *GateClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &GateClient{
		addr:       addr,
		token:      token,
		interval:   defaultRefreshInterval,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		flags:      make(map[string]v1.FlagState),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start performs the initial snapshot fetch and launches the refresh loop.
// It fails if the first fetch fails, so a misconfigured client is caught at
// startup rather than silently answering false for everything.
func (c *GateClient) Start() error {
	if err := c.refresh(); err != nil {
		return err
	}
	go c.runRefreshLoop()
	return nil
}

func (c *GateClient) Stop() {
	c.cancel()
}

func (c *GateClient) runRefreshLoop() {
	backoff := c.interval
	for {
		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff + jitter):
		}

		if err := c.refresh(); err != nil {
			logger.Warn("flag snapshot refresh failed", zap.Error(err))
			// Keep serving the stale snapshot; retry on the next tick.
			continue
		}
		backoff = c.interval
	}
}

func (c *GateClient) refresh() error {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.addr+"/v1/flags", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flag snapshot fetch returned status %d", resp.StatusCode)
	}

	var states []v1.FlagState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return err
	}

	next := make(map[string]v1.FlagState, len(states))
	for _, s := range states {
		next[s.Key] = s
	}

	c.mu.Lock()
	c.flags = next
	c.mu.Unlock()
	return nil
}

// IsEnabled evaluates a flag for a user against the local snapshot. Unknown
// flags are off.
func (c *GateClient) IsEnabled(key, userID string) bool {
	c.mu.RLock()
	state, ok := c.flags[key]
	c.mu.RUnlock()

	if !ok || !state.Enabled {
		return false
	}
	return rollout.ShouldEnable(key, userID, state.RolloutPercentage)
}

// State returns the local snapshot of one flag.
func (c *GateClient) State(key string) (v1.FlagState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.flags[key]
	return state, ok
}

// EvaluateRemote asks the server directly, which applies per-user overrides
// the snapshot cannot see.
func (c *GateClient) EvaluateRemote(ctx context.Context, key, userID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/flags/%s/evaluate?user_id=%s", c.addr, key, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("evaluate returned status %d", resp.StatusCode)
	}

	var eval v1.Evaluation
	if err := json.NewDecoder(resp.Body).Decode(&eval); err != nil {
		return false, err
	}
	return eval.Enabled, nil
}

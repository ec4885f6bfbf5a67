package v1

import "time"

// FlagState is the published shape of one feature flag's rollout state, as
// returned by the flags listing endpoints and consumed by the client SDK.
type FlagState struct {
	Key               string    `json:"key"`
	Description       string    `json:"description"`
	Enabled           bool      `json:"enabled"`
	RolloutPercentage float64   `json:"rollout_percentage"`
	RolloutState      string    `json:"rollout_state"`
	LastModified      time.Time `json:"last_modified"`
	LastModifiedBy    string    `json:"last_modified_by"`
	UserOverrideCount int       `json:"user_override_count"`
}

// Evaluation is the answer to "is this flag on for this user".
type Evaluation struct {
	Key     string `json:"key"`
	UserID  string `json:"user_id,omitempty"`
	Enabled bool   `json:"enabled"`
}

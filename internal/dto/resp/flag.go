package resp

import (
	"time"

	"rolloutgate/internal/model"
)

type FlagStatusItem struct {
	Key               string             `json:"key"`
	Description       string             `json:"description"`
	Enabled           bool               `json:"enabled"`
	RolloutPercentage float64            `json:"rollout_percentage"`
	RolloutState      model.RolloutState `json:"rollout_state"`
	LastModified      time.Time          `json:"last_modified"`
	LastModifiedBy    string             `json:"last_modified_by"`
	UserOverrideCount int                `json:"user_override_count"`
}

func NewFlagStatusItem(s model.FlagStatus) FlagStatusItem {
	return FlagStatusItem{
		Key:               s.Key,
		Description:       s.Description,
		Enabled:           s.Enabled,
		RolloutPercentage: s.RolloutPercentage,
		RolloutState:      s.RolloutState(),
		LastModified:      s.LastModified,
		LastModifiedBy:    s.LastModifiedBy,
		UserOverrideCount: s.UserOverrideCount,
	}
}

type EvaluationResponse struct {
	Key     string `json:"key"`
	UserID  string `json:"user_id,omitempty"`
	Enabled bool   `json:"enabled"`
}

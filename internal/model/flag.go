package model

import "time"

// RolloutState describes the effective exposure of a flag.
type RolloutState string

const (
	RolloutDisabled     RolloutState = "disabled"
	RolloutPartial      RolloutState = "partial_rollout"
	RolloutFullyEnabled RolloutState = "fully_enabled"
)

// FlagStatus is the persisted state of a feature flag. A catalog entry
// without a FlagStatus row falls back to its compile-time default.
type FlagStatus struct {
	Key               string    `json:"key" gorm:"primaryKey;size:128"`
	Description       string    `json:"description" gorm:"size:512"`
	Enabled           bool      `json:"enabled"`
	RolloutPercentage float64   `json:"rollout_percentage" gorm:"type:decimal(5,2);default:0"`
	LastModified      time.Time `json:"last_modified"`
	LastModifiedBy    string    `json:"last_modified_by" gorm:"size:64"`
	CreatedAt         time.Time `json:"created_at"`

	// UserOverrideCount is derived from the overrides table, never stored.
	UserOverrideCount int `json:"user_override_count" gorm:"-"`
}

func (FlagStatus) TableName() string { return "feature_flags" }

// RolloutState derives the coarse exposure bucket from enabled + percentage.
func (s FlagStatus) RolloutState() RolloutState {
	if !s.Enabled || s.RolloutPercentage == 0 {
		return RolloutDisabled
	}
	if s.RolloutPercentage == 100 {
		return RolloutFullyEnabled
	}
	return RolloutPartial
}

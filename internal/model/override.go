package model

import "time"

// UserOverride pins a flag decision for a single user, bypassing the rollout
// percentage. Unique per (flag, user); writing again replaces the old value.
type UserOverride struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	FlagKey   string    `json:"flag_key" gorm:"size:128;uniqueIndex:idx_flag_user"`
	UserID    string    `json:"user_id" gorm:"size:128;uniqueIndex:idx_flag_user;index"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by" gorm:"size:64"`
}

func (UserOverride) TableName() string { return "feature_flag_user_overrides" }

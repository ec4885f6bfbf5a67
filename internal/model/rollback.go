package model

import "time"

// RollbackLog is the durable audit record of a rollback attempt. The
// in-memory history kept by the coordinator is bounded; this table is the
// long-term trail.
type RollbackLog struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	FlagKey     string    `json:"flag_key" gorm:"size:128;index"`
	Reason      string    `json:"reason" gorm:"type:text"`
	Strategy    string    `json:"strategy" gorm:"size:32"`
	PerformedBy string    `json:"performed_by" gorm:"size:64"`
	TraceID     string    `json:"trace_id" gorm:"size:36;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

func (RollbackLog) TableName() string { return "feature_flag_rollback_log" }

package req

type SetPercentageRequest struct {
	Percentage *float64 `json:"percentage" binding:"required"`
}

type GraduateRequest struct {
	Target    float64 `json:"target" binding:"required"`
	Increment float64 `json:"increment" binding:"required"`
}

type OverrideRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Enabled *bool  `json:"enabled" binding:"required"`
}

type ImpactRequest struct {
	Percentage float64 `form:"percentage" binding:"required"`
	SampleSize int     `form:"sample_size"`
}

// RollbackRequest selects either a named strategy or, when Target is set, a
// partial rollback to that exact percentage.
type RollbackRequest struct {
	Reason   string   `json:"reason" binding:"required"`
	Strategy string   `json:"strategy"`
	Target   *float64 `json:"target"`
}

type AutomaticRollbackRequest struct {
	Trigger string `json:"trigger" binding:"required"`
}

type GroupRollbackRequest struct {
	Keys   []string `json:"keys" binding:"required,min=1"`
	Reason string   `json:"reason" binding:"required"`
}

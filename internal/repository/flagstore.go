package repository

import (
	"context"
	"errors"
	"time"

	"rolloutgate/internal/model"

	"gorm.io/gorm"
)

// ErrFlagNotFound is returned by mutations that target a key with no
// persisted record. Reads distinguish absence with a (nil, nil) result
// instead, since an unconfigured flag is not an error.
var ErrFlagNotFound = errors.New("feature flag not found")

// FlagStoreInterface is the durable storage contract the rollout engine
// depends on. Implementations own schema and transactional concerns; the
// engine never retries or caches on their behalf beyond its own TTL cache.
type FlagStoreInterface interface {
	// GetStatus returns (nil, nil) when the flag has never been persisted.
	GetStatus(ctx context.Context, key string) (*model.FlagStatus, error)
	GetAllStatuses(ctx context.Context) (map[string]model.FlagStatus, error)
	CreateFlag(ctx context.Context, key, description string, enabled bool, rolloutPercentage float64, actor string) error
	// UpdateFlag and UpdateRolloutPercentage fail with ErrFlagNotFound on
	// unknown keys.
	UpdateFlag(ctx context.Context, key string, enabled bool, rolloutPercentage float64, actor string) error
	UpdateRolloutPercentage(ctx context.Context, key string, rolloutPercentage float64, actor string) error
	// AddUserOverride replaces any existing override for the (flag, user) pair.
	AddUserOverride(ctx context.Context, key, userID string, enabled bool, actor string) error
	RemoveUserOverride(ctx context.Context, key, userID string) error
	// GetUserOverride returns (nil, nil) when no override exists.
	GetUserOverride(ctx context.Context, key, userID string) (*bool, error)
	LogRollback(ctx context.Context, key, reason, strategy, actor, traceID string) error
	ListRollbackLogs(ctx context.Context, key string, limit int) ([]model.RollbackLog, error)
	// DeleteFlag cascades deletion of the flag's overrides.
	DeleteFlag(ctx context.Context, key string) error
	PingContext(ctx context.Context) error
}

// FlagStore is the MySQL implementation of FlagStoreInterface.
type FlagStore struct {
	db *gorm.DB
}

func NewFlagStore(db *gorm.DB) *FlagStore {
	return &FlagStore{db: db}
}

func (r *FlagStore) GetStatus(ctx context.Context, key string) (*model.FlagStatus, error) {
	var status model.FlagStatus
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&status).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var overrides int64
	if err := r.db.WithContext(ctx).Model(&model.UserOverride{}).
		Where("flag_key = ?", key).Count(&overrides).Error; err != nil {
		return nil, err
	}
	status.UserOverrideCount = int(overrides)

	return &status, nil
}

func (r *FlagStore) GetAllStatuses(ctx context.Context) (map[string]model.FlagStatus, error) {
	var statuses []model.FlagStatus
	if err := r.db.WithContext(ctx).Order("`key`").Find(&statuses).Error; err != nil {
		return nil, err
	}

	type overrideCount struct {
		FlagKey string
		Count   int
	}
	var counts []overrideCount
	if err := r.db.WithContext(ctx).Model(&model.UserOverride{}).
		Select("flag_key", "COUNT(*) AS count").
		Group("flag_key").
		Scan(&counts).Error; err != nil {
		return nil, err
	}
	countByKey := make(map[string]int, len(counts))
	for _, c := range counts {
		countByKey[c.FlagKey] = c.Count
	}

	result := make(map[string]model.FlagStatus, len(statuses))
	for _, s := range statuses {
		s.UserOverrideCount = countByKey[s.Key]
		result[s.Key] = s
	}
	return result, nil
}

func (r *FlagStore) CreateFlag(ctx context.Context, key, description string, enabled bool, rolloutPercentage float64, actor string) error {
	status := model.FlagStatus{
		Key:               key,
		Description:       description,
		Enabled:           enabled,
		RolloutPercentage: rolloutPercentage,
		LastModified:      time.Now(),
		LastModifiedBy:    actor,
	}
	return r.db.WithContext(ctx).Create(&status).Error
}

func (r *FlagStore) UpdateFlag(ctx context.Context, key string, enabled bool, rolloutPercentage float64, actor string) error {
	res := r.db.WithContext(ctx).Model(&model.FlagStatus{}).
		Where("`key` = ?", key).
		Updates(map[string]any{
			"enabled":            enabled,
			"rollout_percentage": rolloutPercentage,
			"last_modified":      time.Now(),
			"last_modified_by":   actor,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func (r *FlagStore) UpdateRolloutPercentage(ctx context.Context, key string, rolloutPercentage float64, actor string) error {
	res := r.db.WithContext(ctx).Model(&model.FlagStatus{}).
		Where("`key` = ?", key).
		Updates(map[string]any{
			"rollout_percentage": rolloutPercentage,
			"last_modified":      time.Now(),
			"last_modified_by":   actor,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func (r *FlagStore) AddUserOverride(ctx context.Context, key, userID string, enabled bool, actor string) error {
	// Replace semantics: drop any existing pair first so repeated writes for
	// the same (flag, user) never violate the unique index.
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flag_key = ? AND user_id = ?", key, userID).
			Delete(&model.UserOverride{}).Error; err != nil {
			return err
		}
		return tx.Create(&model.UserOverride{
			FlagKey:   key,
			UserID:    userID,
			Enabled:   enabled,
			CreatedAt: time.Now(),
			CreatedBy: actor,
		}).Error
	})
}

func (r *FlagStore) RemoveUserOverride(ctx context.Context, key, userID string) error {
	return r.db.WithContext(ctx).
		Where("flag_key = ? AND user_id = ?", key, userID).
		Delete(&model.UserOverride{}).Error
}

func (r *FlagStore) GetUserOverride(ctx context.Context, key, userID string) (*bool, error) {
	var override model.UserOverride
	if err := r.db.WithContext(ctx).
		Where("flag_key = ? AND user_id = ?", key, userID).
		First(&override).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &override.Enabled, nil
}

func (r *FlagStore) LogRollback(ctx context.Context, key, reason, strategy, actor, traceID string) error {
	return r.db.WithContext(ctx).Create(&model.RollbackLog{
		FlagKey:     key,
		Reason:      reason,
		Strategy:    strategy,
		PerformedBy: actor,
		TraceID:     traceID,
		CreatedAt:   time.Now(),
	}).Error
}

func (r *FlagStore) ListRollbackLogs(ctx context.Context, key string, limit int) ([]model.RollbackLog, error) {
	var logs []model.RollbackLog
	query := r.db.WithContext(ctx).Where("flag_key = ?", key).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&logs).Error
	return logs, err
}

func (r *FlagStore) DeleteFlag(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flag_key = ?", key).Delete(&model.UserOverride{}).Error; err != nil {
			return err
		}
		res := tx.Where("`key` = ?", key).Delete(&model.FlagStatus{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrFlagNotFound
		}
		return nil
	})
}

func (r *FlagStore) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

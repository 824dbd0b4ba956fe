package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

// GormStore is the database-backed quota store used when Redis is not
// configured. The increment is a single upsert so concurrent runs never lose a
// count.
type GormStore struct {
	db     *db.DB
	window Window
}

func NewGormStore(database *db.DB, window Window) *GormStore {
	return &GormStore{db: database, window: window}
}

func (s *GormStore) Check(ctx context.Context, userID, channel string) (*models.QuotaStatus, error) {
	var q models.RevisionQuota
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND channel = ? AND window_start = ?", userID, channel, s.window.Key()).
		First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.window.status(0), nil
		}
		return nil, fmt.Errorf("quota check: %w", err)
	}
	return s.window.status(q.Count), nil
}

func (s *GormStore) Increment(ctx context.Context, userID, channel string) (int, error) {
	row := &models.RevisionQuota{
		UserID:      userID,
		Channel:     channel,
		WindowStart: s.window.Key(),
		Count:       1,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "channel"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"updated_at": time.Now(),
		}),
	}).Create(row).Error
	if err != nil {
		return 0, fmt.Errorf("quota increment: %w", err)
	}

	var q models.RevisionQuota
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND channel = ? AND window_start = ?", userID, channel, s.window.Key()).
		First(&q).Error
	if err != nil {
		return 0, fmt.Errorf("quota read-back: %w", err)
	}
	return q.Count, nil
}

func (s *GormStore) AcquireRunLock(ctx context.Context, userID, runType string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := &models.RunLock{UserID: userID, RunType: runType, ExpiresAt: now.Add(ttl)}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "run_type"}},
		Where:   clause.Where{Exprs: []clause.Expression{clause.Lt{Column: "run_locks.expires_at", Value: now}}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"expires_at": now.Add(ttl),
		}),
	}).Create(lock)
	if res.Error != nil {
		return false, fmt.Errorf("acquire run lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) ReleaseRunLock(ctx context.Context, userID, runType string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND run_type = ?", userID, runType).
		Delete(&models.RunLock{}).Error
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}

var _ Store = (*GormStore)(nil)

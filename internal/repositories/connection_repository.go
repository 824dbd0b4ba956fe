package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/resaleops/autopilot/internal/db"
	"github.com/resaleops/autopilot/internal/models"
)

type connectionRepository struct {
	db *db.DB
}

func NewConnectionRepository(database *db.DB) ConnectionRepository {
	return &connectionRepository{db: database}
}

func (r *connectionRepository) Get(ctx context.Context, userID, channel string) (*models.ChannelConnection, error) {
	var conn models.ChannelConnection
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND channel = ?", userID, channel).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChannelConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"status":        models.ConnectionActive,
			"updated_at":    time.Now(),
		}).Error
}

func (r *connectionRepository) SetStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&models.ChannelConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

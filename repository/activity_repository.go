package repository

import (
	"context"
	"fmt"

	"Tunehub/model"

	"gorm.io/gorm"
)

const feedLimit = 50

// ActivityRepository records listening activity and builds feeds.
type ActivityRepository interface {
	LogListen(ctx context.Context, userID, songID string) (*model.Activity, error)
	Feed(ctx context.Context, userID string, following []string) ([]*model.Activity, error)
}

type gormActivityRepository struct {
	db *gorm.DB
}

// NewGormActivityRepository creates a gorm-backed ActivityRepository.
func NewGormActivityRepository(db *gorm.DB) ActivityRepository {
	return &gormActivityRepository{db: db}
}

func populated(db *gorm.DB) *gorm.DB {
	return db.
		Preload("User", func(db *gorm.DB) *gorm.DB { return db.Select("id", "full_name", "image_url") }).
		Preload("Song", func(db *gorm.DB) *gorm.DB { return db.Select("id", "title", "artist") })
}

// LogListen stores a listened_to_song activity and returns it with the user
// and song populated.
func (r *gormActivityRepository) LogListen(ctx context.Context, userID, songID string) (*model.Activity, error) {
	activity := &model.Activity{Type: model.ActivityListenedToSong, UserID: userID, SongID: songID}
	if err := r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return nil, fmt.Errorf("failed to log listen: %w", err)
	}

	var out model.Activity
	if err := populated(r.db.WithContext(ctx)).Where("id = ?", activity.ID).First(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to reload activity: %w", err)
	}
	return &out, nil
}

// Feed returns the 50 newest activities of the followed users. The caller's
// own activity is excluded even if they appear in following.
func (r *gormActivityRepository) Feed(ctx context.Context, userID string, following []string) ([]*model.Activity, error) {
	ids := make([]string, 0, len(following))
	for _, id := range following {
		if id != userID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []*model.Activity{}, nil
	}

	var feed []*model.Activity
	err := populated(r.db.WithContext(ctx)).
		Where("user_id IN ?", ids).
		Order("created_at DESC").
		Limit(feedLimit).
		Find(&feed).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load feed: %w", err)
	}
	return feed, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"Tunehub/model"

	"gorm.io/gorm"
)

// Follow actions reported by ToggleFollow.
const (
	FollowActionFollowed   = "followed"
	FollowActionUnfollowed = "unfollowed"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
	Profile(ctx context.Context, externalID string) (*model.User, error)
	Upsert(ctx context.Context, user *model.User) (*model.User, error)
	ListExcept(ctx context.Context, externalID string) ([]*model.User, error)
	ToggleFollow(ctx context.Context, currentExternalID, targetExternalID string) (string, error)
	FollowingIDs(ctx context.Context, userID string) ([]string, error)
	Count(ctx context.Context) (int64, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a gorm-backed UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *gormUserRepository) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Profile loads the user with follow counts and the ids they follow.
func (r *gormUserRepository) Profile(ctx context.Context, externalID string) (*model.User, error) {
	user, err := r.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	follows := func() *gorm.DB { return r.db.WithContext(ctx).Model(&model.Follow{}) }
	if err := follows().Where("follower_id = ?", user.ID).Count(&user.FollowingCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count following: %w", err)
	}
	if err := follows().Where("following_id = ?", user.ID).Count(&user.FollowerCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	if user.Following, err = r.FollowingIDs(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Upsert creates the user on first sign-in and refreshes the profile fields
// on later ones.
func (r *gormUserRepository) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	existing, err := r.FindByExternalID(ctx, user.ExternalID)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", user.ExternalID, err)
		}
		return user, nil
	case err != nil:
		return nil, err
	}

	updates := map[string]interface{}{"full_name": user.FullName, "image_url": user.ImageURL}
	if err := r.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", user.ExternalID, err)
	}
	existing.FullName, existing.ImageURL = user.FullName, user.ImageURL
	return existing, nil
}

// ListExcept returns every user other than the caller.
func (r *gormUserRepository) ListExcept(ctx context.Context, externalID string) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("external_id <> ?", externalID).
		Order("full_name ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ToggleFollow follows target if current does not follow it yet, and
// unfollows otherwise.
func (r *gormUserRepository) ToggleFollow(ctx context.Context, currentExternalID, targetExternalID string) (string, error) {
	if currentExternalID == targetExternalID {
		return "", ErrSelfFollow
	}

	var action string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current, target model.User
		if err := tx.Where("external_id = ?", currentExternalID).First(&current).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Where("external_id = ?", targetExternalID).First(&target).Error; err != nil {
			return notFound(err)
		}

		edge := model.Follow{FollowerID: current.ID, FollowingID: target.ID}
		res := tx.Where("follower_id = ? AND following_id = ?", current.ID, target.ID).Delete(&model.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			action = FollowActionUnfollowed
			return nil
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
		action = FollowActionFollowed
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("failed to toggle follow: %w", err)
	}
	return action, nil
}

// FollowingIDs returns the internal ids userID follows.
func (r *gormUserRepository) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load following for %s: %w", userID, err)
	}
	return ids, nil
}

func (r *gormUserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

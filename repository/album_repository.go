package repository

import (
	"context"
	"fmt"

	"Tunehub/model"

	"gorm.io/gorm"
)

// AlbumUpdate carries the editable album fields. Zero values are left alone.
type AlbumUpdate struct {
	Title       string
	Artist      string
	ReleaseYear int
}

// AlbumRepository defines album operations.
type AlbumRepository interface {
	All(ctx context.Context) ([]*model.Album, error)
	Get(ctx context.Context, id string) (*model.Album, error)
	Create(ctx context.Context, album *model.Album) error
	Update(ctx context.Context, id string, upd AlbumUpdate) (*model.Album, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type gormAlbumRepository struct {
	db *gorm.DB
}

// NewGormAlbumRepository creates a gorm-backed AlbumRepository.
func NewGormAlbumRepository(db *gorm.DB) AlbumRepository {
	return &gormAlbumRepository{db: db}
}

func (r *gormAlbumRepository) All(ctx context.Context) ([]*model.Album, error) {
	var albums []*model.Album
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&albums).Error; err != nil {
		return nil, fmt.Errorf("failed to list albums: %w", err)
	}
	return albums, nil
}

// Get returns the album with its songs.
func (r *gormAlbumRepository) Get(ctx context.Context, id string) (*model.Album, error) {
	var album model.Album
	err := r.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&album).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &album, nil
}

func (r *gormAlbumRepository) Create(ctx context.Context, album *model.Album) error {
	if err := r.db.WithContext(ctx).Create(album).Error; err != nil {
		return fmt.Errorf("failed to create album: %w", err)
	}
	return nil
}

func (r *gormAlbumRepository) Update(ctx context.Context, id string, upd AlbumUpdate) (*model.Album, error) {
	var album model.Album
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&album).Error; err != nil {
		return nil, notFound(err)
	}
	changes := map[string]interface{}{}
	if upd.Title != "" {
		changes["title"], album.Title = upd.Title, upd.Title
	}
	if upd.Artist != "" {
		changes["artist"], album.Artist = upd.Artist, upd.Artist
	}
	if upd.ReleaseYear > 0 {
		changes["release_year"], album.ReleaseYear = upd.ReleaseYear, upd.ReleaseYear
	}
	if len(changes) == 0 {
		return &album, nil
	}
	if err := r.db.WithContext(ctx).Model(&album).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update album %s: %w", id, err)
	}
	return &album, nil
}

// Delete removes the album and every song that belongs to it.
func (r *gormAlbumRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		songs := tx.Model(&model.Song{}).Select("id").Where("album_id = ?", id)
		if err := tx.Where("song_id IN (?)", songs).Delete(&model.SongLike{}).Error; err != nil {
			return fmt.Errorf("failed to delete album likes: %w", err)
		}
		if err := tx.Where("song_id IN (?)", songs).Delete(&model.SongComment{}).Error; err != nil {
			return fmt.Errorf("failed to delete album comments: %w", err)
		}
		if err := tx.Where("album_id = ?", id).Delete(&model.Song{}).Error; err != nil {
			return fmt.Errorf("failed to delete album songs: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&model.Album{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete album %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *gormAlbumRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Album{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count albums: %w", err)
	}
	return n, nil
}

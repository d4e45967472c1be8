package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"Tunehub/model"

	"gorm.io/gorm"
)

const (
	listLimit        = 12
	trendingPoolSize = 100
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// Like actions reported by ToggleLike.
const (
	LikeActionLiked   = "liked"
	LikeActionUnliked = "unliked"
)

// LikeResult is the outcome of ToggleLike.
type LikeResult struct {
	Action     string   `json:"action"`
	LikesCount int      `json:"likesCount"`
	Likes      []string `json:"likes"`
}

// CommentPage is one page of a song's comments, newest first.
type CommentPage struct {
	Comments []*model.SongComment `json:"comments"`
	Page     int                  `json:"page"`
	Limit    int                  `json:"limit"`
	Total    int64                `json:"total"`
}

// SongUpdate carries the editable song fields. Empty fields are left alone.
type SongUpdate struct {
	Title  string
	Artist string
}

// SongRepository defines song catalogue, like and comment operations.
type SongRepository interface {
	All(ctx context.Context) ([]*model.Song, error)
	Featured(ctx context.Context) ([]*model.Song, error)
	MadeForYou(ctx context.Context) ([]*model.Song, error)
	Trending(ctx context.Context) ([]*model.Song, error)
	Get(ctx context.Context, id string) (*model.Song, error)
	Create(ctx context.Context, song *model.Song) error
	Update(ctx context.Context, id string, upd SongUpdate) (*model.Song, error)
	Delete(ctx context.Context, id string) error

	ToggleLike(ctx context.Context, songID, externalID string) (*LikeResult, error)

	ListComments(ctx context.Context, songID string, page, limit int) (*CommentPage, error)
	AddComment(ctx context.Context, songID, userID, text string) (*model.SongComment, int64, error)
	DeleteComment(ctx context.Context, songID, commentID, userID string, isAdmin bool) (int64, error)

	Count(ctx context.Context) (int64, error)
	CountArtists(ctx context.Context) (int64, error)
}

type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository creates a gorm-backed SongRepository.
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

// ClampPage normalises pagination input: page >= 1, 1 <= limit <= 50.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func (r *gormSongRepository) list(ctx context.Context, order string, limit int) ([]*model.Song, error) {
	var songs []*model.Song
	q := r.db.WithContext(ctx).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return songs, nil
}

func (r *gormSongRepository) All(ctx context.Context) ([]*model.Song, error) {
	return r.list(ctx, "created_at DESC", 0)
}

func (r *gormSongRepository) Featured(ctx context.Context) ([]*model.Song, error) {
	return r.list(ctx, "created_at DESC", listLimit)
}

func (r *gormSongRepository) MadeForYou(ctx context.Context) ([]*model.Song, error) {
	return r.list(ctx, "updated_at DESC", listLimit)
}

// Trending ranks the newest songs by like count.
func (r *gormSongRepository) Trending(ctx context.Context) ([]*model.Song, error) {
	pool, err := r.list(ctx, "created_at DESC", trendingPoolSize)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return pool, nil
	}

	ids := make([]string, len(pool))
	for i, s := range pool {
		ids[i] = s.ID
	}
	var counts []struct {
		SongID string
		N      int64
	}
	err = r.db.WithContext(ctx).
		Model(&model.SongLike{}).
		Select("song_id, COUNT(*) AS n").
		Where("song_id IN ?", ids).
		Group("song_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count likes: %w", err)
	}
	byID := make(map[string]int64, len(counts))
	for _, c := range counts {
		byID[c.SongID] = c.N
	}
	for _, s := range pool {
		s.LikesCount = byID[s.ID]
	}

	return RankTrending(pool, listLimit), nil
}

// RankTrending orders songs by like count, keeping recency order between
// equal counts, and keeps the first n.
func RankTrending(songs []*model.Song, n int) []*model.Song {
	ranked := append([]*model.Song(nil), songs...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].LikesCount > ranked[j].LikesCount })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func (r *gormSongRepository) Get(ctx context.Context, id string) (*model.Song, error) {
	var song model.Song
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error; err != nil {
		return nil, notFound(err)
	}
	return &song, nil
}

func (r *gormSongRepository) Create(ctx context.Context, song *model.Song) error {
	if err := r.db.WithContext(ctx).Create(song).Error; err != nil {
		return fmt.Errorf("failed to create song: %w", err)
	}
	return nil
}

func (r *gormSongRepository) Update(ctx context.Context, id string, upd SongUpdate) (*model.Song, error) {
	song, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := map[string]interface{}{}
	if upd.Title != "" {
		changes["title"], song.Title = upd.Title, upd.Title
	}
	if upd.Artist != "" {
		changes["artist"], song.Artist = upd.Artist, upd.Artist
	}
	if len(changes) == 0 {
		return song, nil
	}
	if err := r.db.WithContext(ctx).Model(song).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("failed to update song %s: %w", id, err)
	}
	return song, nil
}

// Delete removes the song together with its likes and comments.
func (r *gormSongRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Song{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete song %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("song_id = ?", id).Delete(&model.SongLike{}).Error; err != nil {
			return err
		}
		return tx.Where("song_id = ?", id).Delete(&model.SongComment{}).Error
	})
}

func (r *gormSongRepository) ToggleLike(ctx context.Context, songID, externalID string) (*LikeResult, error) {
	result := &LikeResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var song model.Song
		if err := tx.Select("id").Where("id = ?", songID).First(&song).Error; err != nil {
			return notFound(err)
		}

		res := tx.Where("song_id = ? AND external_id = ?", songID, externalID).Delete(&model.SongLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			result.Action = LikeActionUnliked
		} else {
			if err := tx.Create(&model.SongLike{SongID: songID, ExternalID: externalID}).Error; err != nil {
				return err
			}
			result.Action = LikeActionLiked
		}

		return tx.Model(&model.SongLike{}).
			Where("song_id = ?", songID).
			Order("created_at ASC").
			Pluck("external_id", &result.Likes).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to toggle like: %w", err)
	}
	if result.Likes == nil {
		result.Likes = []string{}
	}
	result.LikesCount = len(result.Likes)
	return result, nil
}

func (r *gormSongRepository) ListComments(ctx context.Context, songID string, page, limit int) (*CommentPage, error) {
	if _, err := r.Get(ctx, songID); err != nil {
		return nil, err
	}
	page, limit = ClampPage(page, limit)

	out := &CommentPage{Page: page, Limit: limit, Comments: []*model.SongComment{}}
	q := r.db.WithContext(ctx).Model(&model.SongComment{}).Where("song_id = ?", songID)
	if err := q.Count(&out.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("song_id = ?", songID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&out.Comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return out, nil
}

// AddComment stores a trimmed comment and returns it with the new total.
func (r *gormSongRepository) AddComment(ctx context.Context, songID, userID, text string) (*model.SongComment, int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, fmt.Errorf("comment text required")
	}
	if len([]rune(text)) > model.MaxCommentLength {
		text = string([]rune(text)[:model.MaxCommentLength])
	}
	if _, err := r.Get(ctx, songID); err != nil {
		return nil, 0, err
	}

	comment := &model.SongComment{SongID: songID, UserID: userID, Text: text}
	if err := r.db.WithContext(ctx).Create(comment).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to add comment: %w", err)
	}
	if err := r.db.WithContext(ctx).Preload("User").Where("id = ?", comment.ID).First(comment).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to reload comment: %w", err)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.SongComment{}).Where("song_id = ?", songID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return comment, total, nil
}

// DeleteComment removes a comment owned by userID, or any comment when
// isAdmin is set. It returns the remaining comment count.
func (r *gormSongRepository) DeleteComment(ctx context.Context, songID, commentID, userID string, isAdmin bool) (int64, error) {
	var comment model.SongComment
	err := r.db.WithContext(ctx).Where("id = ? AND song_id = ?", commentID, songID).First(&comment).Error
	if err != nil {
		return 0, notFound(err)
	}
	if comment.UserID != userID && !isAdmin {
		return 0, ErrForbidden
	}
	if err := r.db.WithContext(ctx).Delete(&comment).Error; err != nil {
		return 0, fmt.Errorf("failed to delete comment: %w", err)
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&model.SongComment{}).Where("song_id = ?", songID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return total, nil
}

func (r *gormSongRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Song{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count songs: %w", err)
	}
	return n, nil
}

// CountArtists counts distinct artists across songs and albums.
func (r *gormSongRepository) CountArtists(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM (SELECT artist FROM songs UNION SELECT artist FROM albums) AS artists").
		Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count artists: %w", err)
	}
	return n, nil
}

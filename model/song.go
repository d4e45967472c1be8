package model

import "time"

// Song is a playable track hosted on the asset store.
type Song struct {
	Base
	Title      string  `json:"title" gorm:"size:255;not null"`
	Artist     string  `json:"artist" gorm:"size:255;not null;index"`
	AudioURL   string  `json:"audioUrl" gorm:"size:512;not null"`
	ImageURL   string  `json:"imageUrl" gorm:"size:512;not null"`
	Duration   int     `json:"duration" gorm:"not null;default:0"` // seconds
	AlbumID    *string `json:"albumId" gorm:"size:36;index"`
	Lyrics     string  `json:"lyrics" gorm:"type:text"`
	LikesCount int64   `json:"likesCount" gorm:"-"`
}

// TableName 指定表名
func (Song) TableName() string {
	return "songs"
}

// SongLike records that a user (by external id) liked a song.
type SongLike struct {
	SongID     string    `json:"songId" gorm:"primaryKey;size:36"`
	ExternalID string    `json:"externalId" gorm:"primaryKey;size:128"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName 指定表名
func (SongLike) TableName() string {
	return "song_likes"
}

// MaxCommentLength bounds SongComment.Text.
const MaxCommentLength = 500

// SongComment is a comment left on a song.
type SongComment struct {
	Base
	SongID string `json:"songId" gorm:"size:36;index;not null"`
	UserID string `json:"-" gorm:"size:36;not null"`
	User   *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Text   string `json:"text" gorm:"size:500;not null"`
}

// TableName 指定表名
func (SongComment) TableName() string {
	return "song_comments"
}

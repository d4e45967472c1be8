package model

// ActivityListenedToSong is the only activity type recorded today.
const ActivityListenedToSong = "listened_to_song"

// Activity is a feed entry: a user did something with a song.
type Activity struct {
	Base
	Type   string `json:"type" gorm:"size:32;not null"`
	UserID string `json:"-" gorm:"size:36;index;not null"`
	SongID string `json:"-" gorm:"size:36;not null"`
	User   *User  `json:"userId,omitempty" gorm:"foreignKey:UserID"`
	Song   *Song  `json:"songId,omitempty" gorm:"foreignKey:SongID"`
}

// TableName 指定表名
func (Activity) TableName() string {
	return "activities"
}

// Stats summarises the catalogue for the admin dashboard.
type Stats struct {
	TotalSongs   int64 `json:"totalSongs"`
	TotalAlbums  int64 `json:"totalAlbums"`
	TotalUsers   int64 `json:"totalUsers"`
	TotalArtists int64 `json:"totalArtists"`
}

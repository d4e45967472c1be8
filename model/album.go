package model

// Album groups songs by the same artist.
type Album struct {
	Base
	Title       string `json:"title" gorm:"size:255;not null"`
	Artist      string `json:"artist" gorm:"size:255;not null"`
	ImageURL    string `json:"imageUrl" gorm:"size:512;not null"`
	ReleaseYear int    `json:"releaseYear,omitempty"`
	Songs       []Song `json:"songs,omitempty" gorm:"foreignKey:AlbumID"`
}

// TableName 指定表名
func (Album) TableName() string {
	return "albums"
}

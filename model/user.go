package model

// User is a listener account. ExternalID is the identifier issued by the
// identity provider; ID is the internal one used by messages and follows.
type User struct {
	Base
	ExternalID     string   `json:"externalId" gorm:"size:128;uniqueIndex;not null"`
	FullName       string   `json:"fullName" gorm:"size:200;not null"`
	ImageURL       string   `json:"imageUrl" gorm:"size:512"`
	FollowingCount int64    `json:"followingCount" gorm:"-"`
	FollowerCount  int64    `json:"followerCount" gorm:"-"`
	Following      []string `json:"following,omitempty" gorm:"-"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// Follow is one edge of the follow graph, stored by internal ids.
type Follow struct {
	FollowerID  string `json:"followerId" gorm:"primaryKey;size:36"`
	FollowingID string `json:"followingId" gorm:"primaryKey;size:36;index"`
}

// TableName 指定表名
func (Follow) TableName() string {
	return "follows"
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries the internal id and timestamps shared by every stored record.
// Internal ids are UUID strings assigned on insert.
type Base struct {
	ID        string    `json:"_id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{}, &Follow{}, &Message{}, &Album{}, &Song{}, &SongLike{}, &SongComment{}, &Activity{},
	}
}

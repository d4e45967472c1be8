package repository

import (
	"context"
	"fmt"

	"Tunehub/model"

	"gorm.io/gorm"
)

// MessageRepository stores direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *model.Message) error
	Conversation(ctx context.Context, userA, userB string) ([]*model.Message, error)
}

type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a gorm-backed MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

// CreateMessage inserts msg. The id and timestamps are filled in on success.
func (r *gormMessageRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// Conversation returns both directions of the exchange between two internal
// ids, oldest first.
func (r *gormMessageRepository) Conversation(ctx context.Context, userA, userB string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", userA, userB, userB, userA).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return messages, nil
}

// UserMessages joins user lookups with message storage. It is what the relay
// persists direct messages through.
type UserMessages struct {
	UserRepository
	MessageRepository
}

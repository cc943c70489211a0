package storage

import (
	"context"

	"gorm.io/gorm"

	"moodlink/internal/models"
)

// DirectMessageRepository 定义了私信数据操作的接口。
type DirectMessageRepository interface {
	Create(ctx context.Context, message *models.DirectMessage) error
	// ListByPair 返回规范化 pair 的消息线程，按 (created_at, id) 升序，
	// 即从最旧到最新。limit <= 0 表示不限制。
	ListByPair(ctx context.Context, userLow, userHigh uint, limit, offset int) ([]*models.DirectMessage, error)
	// DeleteByPair 删除 pair 的全部消息，返回删除的行数。空线程删除不算错误。
	DeleteByPair(ctx context.Context, userLow, userHigh uint) (int64, error)
}

// gormDirectMessageRepository 使用 GORM 实现 DirectMessageRepository。
type gormDirectMessageRepository struct {
	db *gorm.DB
}

// NewGormDirectMessageRepository 创建一个新的基于 GORM 的 DirectMessageRepository。
func NewGormDirectMessageRepository(db *gorm.DB) DirectMessageRepository {
	return &gormDirectMessageRepository{db: db}
}

// Create 在数据库中创建一条新的私信记录。
func (r *gormDirectMessageRepository) Create(ctx context.Context, message *models.DirectMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// ListByPair 通过 pair 键检索消息线程，支持分页。
func (r *gormDirectMessageRepository) ListByPair(ctx context.Context, userLow, userHigh uint, limit, offset int) ([]*models.DirectMessage, error) {
	var messages []*models.DirectMessage
	query := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", userLow, userHigh).
		Order("created_at ASC, id ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteByPair 批量删除 pair 的消息。硬删除：清空历史是不可逆操作。
func (r *gormDirectMessageRepository) DeleteByPair(ctx context.Context, userLow, userHigh uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Unscoped().
		Where("user_low_id = ? AND user_high_id = ?", userLow, userHigh).
		Delete(&models.DirectMessage{})
	return result.RowsAffected, result.Error
}

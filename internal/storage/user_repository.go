package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"moodlink/internal/models"
)

// UserRepository defines the read surface of the identity directory, plus the
// presence flag maintained by the notification server. Profile management
// itself lives outside this service.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error // 仅供 seed 工具使用
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error)
	ListCandidates(ctx context.Context, excludeUserID uint, mood string, limit int) ([]*models.UserBasicInfo, error)
	SetPresence(ctx context.Context, userID uint, online bool) error
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err // Handles gorm.ErrRecordNotFound as well
	}
	return &user, nil
}

// GetByUsername retrieves a user by their username.
func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetBasicInfoByID retrieves minimal public user info by ID.
func (r *gormUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	var basicInfo models.UserBasicInfo
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "username", "display_name", "avatar_url", "current_mood", "is_online").
		Where("id = ?", id).
		First(&basicInfo).Error
	if err != nil {
		return nil, err
	}
	return &basicInfo, nil
}

// GetMultipleBasicInfoByIDs retrieves minimal public user info for a list of user IDs.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	var basicInfos []*models.UserBasicInfo
	if len(userIDs) == 0 {
		return basicInfos, nil // Return empty slice if no IDs are provided
	}

	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "username", "display_name", "avatar_url", "current_mood", "is_online").
		Where("id IN ?", userIDs).
		Find(&basicInfos).Error

	if err != nil {
		return nil, err
	}
	return basicInfos, nil
}

// ListCandidates 返回目录中除 excludeUserID 之外的用户，mood 非空时做等值过滤。
// 结果顺序就是目录顺序，不做额外排序承诺。
func (r *gormUserRepository) ListCandidates(ctx context.Context, excludeUserID uint, mood string, limit int) ([]*models.UserBasicInfo, error) {
	var candidates []*models.UserBasicInfo

	query := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("id", "username", "display_name", "avatar_url", "current_mood", "is_online").
		Where("id != ?", excludeUserID)
	if mood != "" {
		query = query.Where("current_mood = ?", mood)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&candidates).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return candidates, nil // 空结果不是错误
		}
		return nil, err
	}
	return candidates, nil
}

// SetPresence updates the user's online flag and last-seen timestamp.
func (r *gormUserRepository) SetPresence(ctx context.Context, userID uint, online bool) error {
	updates := map[string]interface{}{"is_online": online}
	if !online {
		updates["last_seen_at"] = time.Now()
	}
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

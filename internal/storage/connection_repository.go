package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"moodlink/internal/models"
)

// ConnectionRepository defines the interface for connection data operations.
// All pair lookups expect the canonical (low, high) order; callers normalize
// via models.CanonicalPair.
type ConnectionRepository interface {
	Create(ctx context.Context, conn *models.Connection) error
	GetByID(ctx context.Context, connectionID uint) (*models.Connection, error)
	FindByPair(ctx context.Context, userLow, userHigh uint) (*models.Connection, error)
	// MarkAccepted flips a pending connection to accepted. The status guard in
	// the WHERE clause makes concurrent double-accepts lose cleanly; the
	// returned count tells the caller whether this call won.
	MarkAccepted(ctx context.Context, connectionID uint, acceptedAt time.Time) (int64, error)
	ListPendingFor(ctx context.Context, userID uint) ([]models.Connection, error)
	ListAcceptedFor(ctx context.Context, userID uint) ([]models.Connection, error)
	CountPendingFor(ctx context.Context, userID uint) (int64, error)
	ListRequestedBy(ctx context.Context, userID uint) ([]models.Connection, error)
}

type gormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GORM-based ConnectionRepository.
func NewGormConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &gormConnectionRepository{db: db}
}

// Create inserts a new connection record. It assumes EnsureCanonicalOrder has
// been called; the unique index on the pair surfaces races as
// gorm.ErrDuplicatedKey.
func (r *gormConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	return r.db.WithContext(ctx).Create(conn).Error
}

// GetByID retrieves a connection by its ID.
func (r *gormConnectionRepository) GetByID(ctx context.Context, connectionID uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).First(&conn, connectionID).Error
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// FindByPair looks up the single connection record for a canonical pair.
// 没有记录时返回 (nil, nil)，这在调用方不算错误。
func (r *gormConnectionRepository) FindByPair(ctx context.Context, userLow, userHigh uint) (*models.Connection, error) {
	var conn models.Connection
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", userLow, userHigh).
		First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

// MarkAccepted updates status and accepted_at, guarded on status=pending.
func (r *gormConnectionRepository) MarkAccepted(ctx context.Context, connectionID uint, acceptedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ? AND status = ?", connectionID, models.ConnectionStatusPending).
		Updates(map[string]interface{}{
			"status":      models.ConnectionStatusAccepted,
			"accepted_at": acceptedAt,
		})
	return result.RowsAffected, result.Error
}

// ListPendingFor returns incoming pending requests, i.e. connections where
// the user is a member but did not initiate.
func (r *gormConnectionRepository) ListPendingFor(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ? AND requested_by != ?",
			userID, userID, models.ConnectionStatusPending, userID).
		Order("created_at ASC").
		Find(&conns).Error
	return conns, err
}

// ListAcceptedFor returns all accepted connections the user is a member of.
func (r *gormConnectionRepository) ListAcceptedFor(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ?",
			userID, userID, models.ConnectionStatusAccepted).
		Find(&conns).Error
	return conns, err
}

// CountPendingFor counts incoming pending requests for the badge.
func (r *gormConnectionRepository) CountPendingFor(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("(user_low_id = ? OR user_high_id = ?) AND status = ? AND requested_by != ?",
			userID, userID, models.ConnectionStatusPending, userID).
		Count(&count).Error
	return count, err
}

// ListRequestedBy returns every connection (pending or accepted) the user
// initiated. Discovery uses this for the requested annotation in one query
// instead of a per-candidate lookup.
func (r *gormConnectionRepository) ListRequestedBy(ctx context.Context, userID uint) ([]models.Connection, error) {
	var conns []models.Connection
	err := r.db.WithContext(ctx).
		Where("requested_by = ?", userID).
		Find(&conns).Error
	return conns, err
}

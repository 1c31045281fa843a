package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripmate/internal/models"
)

// EngagementRepository 定义了互动事件持久化与计数的接口。
// 事件由 Kafka 消费者写入；聚合器只读。
type EngagementRepository interface {
	// CreateIgnoreConflict 以 EventID 去重：重复投递的事件落为无操作。
	CreateIgnoreConflict(ctx context.Context, event *models.EngagementEvent) error
	// CountLikesCommentsSince 统计他人对该用户内容的点赞/评论数。
	CountLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time) (int64, error)
	ListLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time, limit int) ([]models.EngagementEvent, error)
}

type gormEngagementRepository struct {
	db *gorm.DB
}

// NewGormEngagementRepository creates a new GORM-based EngagementRepository.
func NewGormEngagementRepository(db *gorm.DB) EngagementRepository {
	return &gormEngagementRepository{db: db}
}

func (r *gormEngagementRepository) CreateIgnoreConflict(ctx context.Context, event *models.EngagementEvent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(event).Error
}

// CountLikesCommentsSince 排除自己给自己点的赞，以及已停用账号产生的事件。
func (r *gormEngagementRepository) CountLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.EngagementEvent{}).
		Joins("JOIN users ON users.id = engagement_events.actor_id AND users.deactivated = ?", false).
		Where("engagement_events.target_user_id = ? AND engagement_events.actor_id <> ?", targetUserID, targetUserID).
		Where("engagement_events.type IN ?", []models.EngagementEventType{models.EngagementLike, models.EngagementComment})
	if since != nil {
		query = query.Where("engagement_events.created_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *gormEngagementRepository) ListLikesCommentsSince(ctx context.Context, targetUserID uint, since *time.Time, limit int) ([]models.EngagementEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.EngagementEvent{}).
		Joins("JOIN users ON users.id = engagement_events.actor_id AND users.deactivated = ?", false).
		Where("engagement_events.target_user_id = ? AND engagement_events.actor_id <> ?", targetUserID, targetUserID).
		Where("engagement_events.type IN ?", []models.EngagementEventType{models.EngagementLike, models.EngagementComment})
	if since != nil {
		query = query.Where("engagement_events.created_at > ?", *since)
	}
	var events []models.EngagementEvent
	err := query.Order("engagement_events.created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

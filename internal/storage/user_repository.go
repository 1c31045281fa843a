package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
)

// UserRepository defines the interface for user data operations.
// 用户由账号服务创建和维护；这里只读取，以及更新通知游标和 dismissed 标记。
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error)
	// FindCandidates 返回可进入发现页的用户：未停用、已完成引导、
	// 不在排除列表中。每次调用随机排序，不保证跨调用的稳定分页。
	FindCandidates(ctx context.Context, viewerID uint, excludeIDs []uint, offset, limit int) ([]*models.User, error)
	SetLastCheckedAt(ctx context.Context, userID uint, t time.Time) error
	SetVerificationDismissed(ctx context.Context, userID uint) error
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
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

// GetBasicInfoByID retrieves the public basic info of an active user.
// 已停用的用户视为不存在。
func (r *gormUserRepository) GetBasicInfoByID(ctx context.Context, id uint) (*models.UserBasicInfo, error) {
	var info models.UserBasicInfo
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("id", "username", "nickname", "avatar_url").
		Where("id = ? AND deactivated = ?", id, false).
		First(&info).Error
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// GetMultipleBasicInfoByIDs retrieves basic info for a set of users,
// silently skipping deactivated accounts.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []uint) ([]*models.UserBasicInfo, error) {
	if len(userIDs) == 0 {
		return []*models.UserBasicInfo{}, nil
	}
	var infos []*models.UserBasicInfo
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("id", "username", "nickname", "avatar_url").
		Where("id IN ? AND deactivated = ?", userIDs, false).
		Find(&infos).Error
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// FindCandidates returns discoverable users in random order.
func (r *gormUserRepository) FindCandidates(ctx context.Context, viewerID uint, excludeIDs []uint, offset, limit int) ([]*models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id <> ?", viewerID).
		Where("deactivated = ?", false).
		Where("onboarding_completed = ?", true)
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}

	var users []*models.User
	err := query.Order("RANDOM()").Offset(offset).Limit(limit).Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetLastCheckedAt moves the user's notification cursor.
func (r *gormUserRepository) SetLastCheckedAt(ctx context.Context, userID uint, t time.Time) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_checked_at", t).Error
}

// SetVerificationDismissed marks the verification-outcome card as dismissed.
func (r *gormUserRepository) SetVerificationDismissed(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("verification_dismissed", true).Error
}

package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripmate/internal/models"
)

// FollowRepository defines the interface for follow edge data operations.
type FollowRepository interface {
	Create(ctx context.Context, edge *models.FollowEdge) error
	// CreateIgnoreConflict inserts an edge and treats "row already exists"
	// as success. Used by the match-acceptance cascade, which must be
	// idempotent against pre-existing follows.
	CreateIgnoreConflict(ctx context.Context, edge *models.FollowEdge) error
	// GetEdge 查找一条有向边。未找到返回 (nil, nil)。
	GetEdge(ctx context.Context, followerID, followingID uint) (*models.FollowEdge, error)
	Accept(ctx context.Context, edgeID uint) error
	// DeleteEdge removes the edge for the ordered pair if its status
	// matches, returning the number of rows removed.
	DeleteEdge(ctx context.Context, followerID, followingID uint, status models.FollowStatus) (int64, error)
	SetDismissedByFollower(ctx context.Context, followerID, followingID uint) error
	AreMutualFollowers(ctx context.Context, userIDA, userIDB uint) (bool, error)
	// FollowedIDs 返回 follower 指向的所有用户ID（任意状态）。
	FollowedIDs(ctx context.Context, followerID uint) ([]uint, error)
	ListByFollower(ctx context.Context, followerID uint, status models.FollowStatus) ([]models.FollowEdge, error)
	ListByFollowing(ctx context.Context, followingID uint, status models.FollowStatus) ([]models.FollowEdge, error)
	CountPendingIncomingSince(ctx context.Context, userID uint, since *time.Time) (int64, error)
	CountAcceptedOutgoingSince(ctx context.Context, followerID uint, since *time.Time) (int64, error)
}

type gormFollowRepository struct {
	db *gorm.DB
}

// NewGormFollowRepository creates a new GORM-based FollowRepository.
func NewGormFollowRepository(db *gorm.DB) FollowRepository {
	return &gormFollowRepository{db: db}
}

func (r *gormFollowRepository) Create(ctx context.Context, edge *models.FollowEdge) error {
	return r.db.WithContext(ctx).Create(edge).Error
}

func (r *gormFollowRepository) CreateIgnoreConflict(ctx context.Context, edge *models.FollowEdge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(edge).Error
}

// GetEdge looks up the directed edge (follower -> following).
func (r *gormFollowRepository) GetEdge(ctx context.Context, followerID, followingID uint) (*models.FollowEdge, error) {
	var edge models.FollowEdge
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // No edge is not an error in this context
		}
		return nil, err
	}
	return &edge, nil
}

// Accept flips the edge to accepted and clears the follower's dismissal
// flag, so the "request accepted" card shows up again for this acceptance.
func (r *gormFollowRepository) Accept(ctx context.Context, edgeID uint) error {
	return r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("id = ?", edgeID).
		Updates(map[string]interface{}{
			"status":                models.FollowStatusAccepted,
			"dismissed_by_follower": false,
		}).Error
}

func (r *gormFollowRepository) DeleteEdge(ctx context.Context, followerID, followingID uint, status models.FollowStatus) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, status).
		Delete(&models.FollowEdge{})
	return result.RowsAffected, result.Error
}

// SetDismissedByFollower is idempotent: dismissing an already dismissed
// edge is a no-op, not an error.
func (r *gormFollowRepository) SetDismissedByFollower(ctx context.Context, followerID, followingID uint) error {
	return r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("follower_id = ? AND following_id = ? AND status = ?", followerID, followingID, models.FollowStatusAccepted).
		Update("dismissed_by_follower", true).Error
}

// AreMutualFollowers reports whether both directed accepted edges exist.
func (r *gormFollowRepository) AreMutualFollowers(ctx context.Context, userIDA, userIDB uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("((follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)) AND status = ?",
			userIDA, userIDB, userIDB, userIDA, models.FollowStatusAccepted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 2, nil
}

func (r *gormFollowRepository) FollowedIDs(ctx context.Context, followerID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Where("follower_id = ?", followerID).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListByFollower lists edges originating from the follower, excluding
// edges pointing at deactivated accounts.
func (r *gormFollowRepository) ListByFollower(ctx context.Context, followerID uint, status models.FollowStatus) ([]models.FollowEdge, error) {
	var edges []models.FollowEdge
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Joins("JOIN users ON users.id = follow_edges.following_id AND users.deactivated = ?", false).
		Where("follow_edges.follower_id = ? AND follow_edges.status = ?", followerID, status).
		Order("follow_edges.updated_at DESC").
		Find(&edges).Error
	return edges, err
}

// ListByFollowing lists edges pointing at the user, excluding edges from
// deactivated accounts.
func (r *gormFollowRepository) ListByFollowing(ctx context.Context, followingID uint, status models.FollowStatus) ([]models.FollowEdge, error) {
	var edges []models.FollowEdge
	err := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Joins("JOIN users ON users.id = follow_edges.follower_id AND users.deactivated = ?", false).
		Where("follow_edges.following_id = ? AND follow_edges.status = ?", followingID, status).
		Order("follow_edges.created_at DESC").
		Find(&edges).Error
	return edges, err
}

func (r *gormFollowRepository) CountPendingIncomingSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Joins("JOIN users ON users.id = follow_edges.follower_id AND users.deactivated = ?", false).
		Where("follow_edges.following_id = ? AND follow_edges.status = ?", userID, models.FollowStatusPending)
	if since != nil {
		query = query.Where("follow_edges.created_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *gormFollowRepository) CountAcceptedOutgoingSince(ctx context.Context, followerID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.FollowEdge{}).
		Joins("JOIN users ON users.id = follow_edges.following_id AND users.deactivated = ?", false).
		Where("follow_edges.follower_id = ? AND follow_edges.status = ? AND follow_edges.dismissed_by_follower = ?",
			followerID, models.FollowStatusAccepted, false)
	if since != nil {
		query = query.Where("follow_edges.updated_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
)

// MatchRepository defines the interface for match data operations.
// 所有方法都假定传入的用户对已经过 models.SortPair 规范化。
type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	// GetByPair 查找 canonical 对的配对行。未找到返回 (nil, nil)。
	GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Match, error)
	GetByID(ctx context.Context, matchID uint) (*models.Match, error)
	// AcceptPending flips a pending row to accepted and clears both
	// dismissal flags so the "it's a match" card shows on both sides.
	AcceptPending(ctx context.Context, matchID uint) error
	// MarkRejected overwrites the row's status and records the dismisser
	// as the new initiator, restarting the cooldown window.
	MarkRejected(ctx context.Context, matchID uint, dismisserID uint) error
	// ReopenPending 把冷却期后的 rejected 行覆盖回 pending。
	ReopenPending(ctx context.Context, matchID uint, initiatorID uint) error
	SetDismissed(ctx context.Context, matchID uint, lowSide bool) error
	// ExcludedPairIDs 返回与 viewer 存在配对行、且应从发现页排除的
	// 对方用户ID。例外：initiatedBy 不是 viewer 且早于 cutoff 的
	// rejected 行不排除（冷却期已过，可再次出现在对方的发现页）。
	ExcludedPairIDs(ctx context.Context, viewerID uint, rejectedCutoff time.Time) ([]uint, error)
	ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.Match, error)
	CountAcceptedSince(ctx context.Context, userID uint, since *time.Time) (int64, error)
}

type gormMatchRepository struct {
	db *gorm.DB
}

// NewGormMatchRepository creates a new GORM-based MatchRepository.
func NewGormMatchRepository(db *gorm.DB) MatchRepository {
	return &gormMatchRepository{db: db}
}

func (r *gormMatchRepository) Create(ctx context.Context, match *models.Match) error {
	match.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).Create(match).Error
}

func (r *gormMatchRepository) GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).
		Where("user_id_low = ? AND user_id_high = ?", userIDLow, userIDHigh).
		First(&match).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &match, nil
}

func (r *gormMatchRepository) GetByID(ctx context.Context, matchID uint) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).First(&match, matchID).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

func (r *gormMatchRepository) AcceptPending(ctx context.Context, matchID uint) error {
	return r.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchStatusPending).
		Updates(map[string]interface{}{
			"status":                 models.MatchStatusAccepted,
			"dismissed_by_side_low":  false,
			"dismissed_by_side_high": false,
		}).Error
}

func (r *gormMatchRepository) MarkRejected(ctx context.Context, matchID uint, dismisserID uint) error {
	return r.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ?", matchID).
		Updates(map[string]interface{}{
			"status":       models.MatchStatusRejected,
			"initiated_by": dismisserID,
		}).Error
}

func (r *gormMatchRepository) ReopenPending(ctx context.Context, matchID uint, initiatorID uint) error {
	return r.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchStatusRejected).
		Updates(map[string]interface{}{
			"status":       models.MatchStatusPending,
			"initiated_by": initiatorID,
		}).Error
}

func (r *gormMatchRepository) SetDismissed(ctx context.Context, matchID uint, lowSide bool) error {
	column := "dismissed_by_side_high"
	if lowSide {
		column = "dismissed_by_side_low"
	}
	return r.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status = ?", matchID, models.MatchStatusAccepted).
		Update(column, true).Error
}

func (r *gormMatchRepository) ExcludedPairIDs(ctx context.Context, viewerID uint, rejectedCutoff time.Time) ([]uint, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).Model(&models.Match{}).
		Where("user_id_low = ? OR user_id_high = ?", viewerID, viewerID).
		Where("NOT (status = ? AND initiated_by <> ? AND updated_at < ?)",
			models.MatchStatusRejected, viewerID, rejectedCutoff).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.OtherSide(viewerID))
	}
	return ids, nil
}

// ListAcceptedInvolving lists accepted matches for the user, newest first,
// excluding pairs whose other side has been deactivated.
func (r *gormMatchRepository) ListAcceptedInvolving(ctx context.Context, userID uint) ([]models.Match, error) {
	var matches []models.Match
	err := r.db.WithContext(ctx).Model(&models.Match{}).
		Joins("JOIN users ON users.id = (CASE WHEN matches.user_id_low = ? THEN matches.user_id_high ELSE matches.user_id_low END) AND users.deactivated = ?", userID, false).
		Where("(matches.user_id_low = ? OR matches.user_id_high = ?) AND matches.status = ?",
			userID, userID, models.MatchStatusAccepted).
		Order("matches.updated_at DESC").
		Find(&matches).Error
	return matches, err
}

func (r *gormMatchRepository) CountAcceptedSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Match{}).
		Where("status = ?", models.MatchStatusAccepted).
		Where("(user_id_low = ? AND dismissed_by_side_low = ?) OR (user_id_high = ? AND dismissed_by_side_high = ?)",
			userID, false, userID, false)
	if since != nil {
		query = query.Where("updated_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

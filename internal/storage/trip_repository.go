package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tripmate/internal/models"
)

// TripRepository defines the interface for trip directory and roster
// operations. Trip CRUD 属于行程服务；这里只做容量判断需要的读取，
// 以及成员与人数计数的维护。
type TripRepository interface {
	GetTripByID(ctx context.Context, tripID uint) (*models.Trip, error)
	// GetTripByIDForUpdate reads the trip row under a row-level lock.
	// 只在事务内调用；并发的接受操作在这一行上串行化。
	GetTripByIDForUpdate(ctx context.Context, tripID uint) (*models.Trip, error)
	// IncrementGroupSize 由数据库原子求值，调用方不得读-改-写。
	IncrementGroupSize(ctx context.Context, tripID uint) error
	// DecrementGroupSizeFloored 下限为零，计数永不为负。
	DecrementGroupSizeFloored(ctx context.Context, tripID uint) error

	// AddMember inserts a membership row, treating "already a member" as
	// success so retried accepts stay idempotent.
	AddMember(ctx context.Context, member *models.TripMember) error
	// GetMember 未找到返回 (nil, nil)。
	GetMember(ctx context.Context, tripID, userID uint) (*models.TripMember, error)
	// RemoveMember 删除成员行。最后一个 owner 行在这里被独立挡下，
	// 不依赖服务层的角色检查。
	RemoveMember(ctx context.Context, tripID, userID uint) error
}

type gormTripRepository struct {
	db *gorm.DB
}

// NewGormTripRepository creates a new GORM-based TripRepository.
func NewGormTripRepository(db *gorm.DB) TripRepository {
	return &gormTripRepository{db: db}
}

func (r *gormTripRepository) GetTripByID(ctx context.Context, tripID uint) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).First(&trip, tripID).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *gormTripRepository) GetTripByIDForUpdate(ctx context.Context, tripID uint) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&trip, tripID).Error
	if err != nil {
		return nil, err
	}
	return &trip, nil
}

func (r *gormTripRepository) IncrementGroupSize(ctx context.Context, tripID uint) error {
	return r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ?", tripID).
		Update("current_group_size", gorm.Expr("current_group_size + 1")).Error
}

func (r *gormTripRepository) DecrementGroupSizeFloored(ctx context.Context, tripID uint) error {
	return r.db.WithContext(ctx).Model(&models.Trip{}).
		Where("id = ?", tripID).
		Update("current_group_size", gorm.Expr("GREATEST(current_group_size - 1, 0)")).Error
}

func (r *gormTripRepository) AddMember(ctx context.Context, member *models.TripMember) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(member).Error
}

func (r *gormTripRepository) GetMember(ctx context.Context, tripID, userID uint) (*models.TripMember, error) {
	var member models.TripMember
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (r *gormTripRepository) RemoveMember(ctx context.Context, tripID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		Where("NOT (role = ? AND (SELECT COUNT(*) FROM trip_members o WHERE o.trip_id = ? AND o.role = ?) <= 1)",
			models.TripRoleOwner, tripID, models.TripRoleOwner).
		Delete(&models.TripMember{}).Error
}

// TripRequestRepository defines the interface for trip join request data
// operations.
type TripRequestRepository interface {
	Create(ctx context.Context, request *models.TripRequest) error
	GetByID(ctx context.Context, requestID uint) (*models.TripRequest, error)
	// GetByPair 查找 (tripID, userID) 的请求行，任意状态。未找到返回 (nil, nil)。
	GetByPair(ctx context.Context, tripID, userID uint) (*models.TripRequest, error)
	UpdateStatus(ctx context.Context, requestID uint, status models.TripRequestStatus) error
	SetDismissed(ctx context.Context, requestID uint) error
	ListPendingForTrip(ctx context.Context, tripID uint) ([]models.TripRequest, error)
	// ListPendingForOwner 列出用户所拥有行程上的待处理请求。
	ListPendingForOwner(ctx context.Context, ownerID uint) ([]models.TripRequest, error)
	ListOutgoing(ctx context.Context, userID uint) ([]models.TripRequest, error)
	CountPendingForOwnerSince(ctx context.Context, ownerID uint, since *time.Time) (int64, error)
	CountResolvedOutgoingSince(ctx context.Context, userID uint, since *time.Time) (int64, error)
}

type gormTripRequestRepository struct {
	db *gorm.DB
}

// NewGormTripRequestRepository creates a new GORM-based TripRequestRepository.
func NewGormTripRequestRepository(db *gorm.DB) TripRequestRepository {
	return &gormTripRequestRepository{db: db}
}

func (r *gormTripRequestRepository) Create(ctx context.Context, request *models.TripRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *gormTripRequestRepository) GetByID(ctx context.Context, requestID uint) (*models.TripRequest, error) {
	var request models.TripRequest
	err := r.db.WithContext(ctx).First(&request, requestID).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *gormTripRequestRepository) GetByPair(ctx context.Context, tripID, userID uint) (*models.TripRequest, error) {
	var request models.TripRequest
	err := r.db.WithContext(ctx).
		Where("trip_id = ? AND user_id = ?", tripID, userID).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *gormTripRequestRepository) UpdateStatus(ctx context.Context, requestID uint, status models.TripRequestStatus) error {
	return r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Where("id = ?", requestID).
		Update("status", status).Error
}

func (r *gormTripRequestRepository) SetDismissed(ctx context.Context, requestID uint) error {
	return r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Where("id = ?", requestID).
		Update("dismissed", true).Error
}

func (r *gormTripRequestRepository) ListPendingForTrip(ctx context.Context, tripID uint) ([]models.TripRequest, error) {
	var requests []models.TripRequest
	err := r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Joins("JOIN users ON users.id = trip_requests.user_id AND users.deactivated = ?", false).
		Where("trip_requests.trip_id = ? AND trip_requests.status = ?", tripID, models.TripRequestStatusPending).
		Order("trip_requests.created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormTripRequestRepository) ListPendingForOwner(ctx context.Context, ownerID uint) ([]models.TripRequest, error) {
	var requests []models.TripRequest
	err := r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Joins("JOIN trips ON trips.id = trip_requests.trip_id AND trips.owner_id = ?", ownerID).
		Joins("JOIN users ON users.id = trip_requests.user_id AND users.deactivated = ?", false).
		Where("trip_requests.status = ?", models.TripRequestStatusPending).
		Order("trip_requests.created_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormTripRequestRepository) ListOutgoing(ctx context.Context, userID uint) ([]models.TripRequest, error) {
	var requests []models.TripRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&requests).Error
	return requests, err
}

func (r *gormTripRequestRepository) CountPendingForOwnerSince(ctx context.Context, ownerID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Joins("JOIN trips ON trips.id = trip_requests.trip_id AND trips.owner_id = ?", ownerID).
		Joins("JOIN users ON users.id = trip_requests.user_id AND users.deactivated = ?", false).
		Where("trip_requests.status = ?", models.TripRequestStatusPending)
	if since != nil {
		query = query.Where("trip_requests.created_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

func (r *gormTripRequestRepository) CountResolvedOutgoingSince(ctx context.Context, userID uint, since *time.Time) (int64, error) {
	query := r.db.WithContext(ctx).Model(&models.TripRequest{}).
		Where("user_id = ? AND dismissed = ?", userID, false).
		Where("status IN ?", []models.TripRequestStatus{models.TripRequestStatusAccepted, models.TripRequestStatusRejected})
	if since != nil {
		query = query.Where("updated_at > ?", *since)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

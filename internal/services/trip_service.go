package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
	"tripmate/internal/storage"
)

var (
	ErrTripNotFound         = errors.New("行程不存在")
	ErrTripRequestExists    = errors.New("已对该行程提交过加入请求")
	ErrAlreadyTripMember    = errors.New("已经是该行程的成员")
	ErrTripFull             = errors.New("行程人数已满")
	ErrNotTripOwner         = errors.New("您不是该行程的发起人")
	ErrTripRequestNotFound  = errors.New("加入请求不存在")
	ErrTripRequestResolved  = errors.New("该加入请求已被处理")
	ErrInvalidRequestStatus = errors.New("无效的目标状态")
	ErrNotTripMember        = errors.New("您不是该行程的成员")
	ErrNotRequester         = errors.New("您不是该加入请求的发起者")
	ErrOwnerCannotLeave     = errors.New("发起人不能退出自己的行程")
)

// TripMembershipService 管理加入行程请求的生命周期和成员名册。
// 容量检查在接受路径上于事务内对行程行加锁后复查，保证并发接受
// 不会把名册挤爆；离开路径的递减以零为下限。
type TripMembershipService interface {
	RequestJoin(ctx context.Context, tripID, userID uint, message string) (*models.TripRequest, error)
	// ResolveRequest 由行程发起人把 pending 请求转为
	// accepted/rejected/expired。accepted 触发入册级联。
	ResolveRequest(ctx context.Context, requestID, actorID uint, newStatus models.TripRequestStatus) error
	Leave(ctx context.Context, tripID, userID uint) error

	ListRequestsForTrip(ctx context.Context, tripID, actorID uint) ([]*models.TripRequestWithUser, error)
	ListOutgoingRequests(ctx context.Context, userID uint) ([]models.TripRequest, error)
	// DismissResolvedNotice 关闭"请求已被处理"卡片。仅请求者本人可调。
	DismissResolvedNotice(ctx context.Context, requestID, userID uint) error
}

type tripMembershipService struct {
	txm         storage.TransactionManager
	tripRepo    storage.TripRepository
	requestRepo storage.TripRequestRepository
	userRepo    storage.UserRepository
	engagement  EngagementService
}

// NewTripMembershipService creates a new TripMembershipService instance.
func NewTripMembershipService(
	txm storage.TransactionManager,
	tripRepo storage.TripRepository,
	requestRepo storage.TripRequestRepository,
	userRepo storage.UserRepository,
	engagement EngagementService,
) TripMembershipService {
	return &tripMembershipService{
		txm:         txm,
		tripRepo:    tripRepo,
		requestRepo: requestRepo,
		userRepo:    userRepo,
		engagement:  engagement,
	}
}

// RequestJoin inserts a pending request after the capacity precheck.
// 同一用户对同一行程只允许一行请求，任何状态都算占位——
// 被处理过的请求不允许重新回到 pending。
func (s *tripMembershipService) RequestJoin(ctx context.Context, tripID, userID uint, message string) (*models.TripRequest, error) {
	trip, err := s.tripRepo.GetTripByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("检索行程失败: %w", err)
	}

	prior, err := s.requestRepo.GetByPair(ctx, tripID, userID)
	if err != nil {
		return nil, fmt.Errorf("检查现有请求失败: %w", err)
	}
	if prior != nil {
		return nil, ErrTripRequestExists
	}

	member, err := s.tripRepo.GetMember(ctx, tripID, userID)
	if err != nil {
		return nil, fmt.Errorf("检查成员资格失败: %w", err)
	}
	if member != nil {
		return nil, ErrAlreadyTripMember
	}

	if trip.IsFull() {
		return nil, ErrTripFull
	}

	request := &models.TripRequest{
		TripID:  tripID,
		UserID:  userID,
		Status:  models.TripRequestStatusPending,
		Message: message,
	}
	if err := s.requestRepo.Create(ctx, request); err != nil {
		return nil, fmt.Errorf("创建加入请求失败: %w", err)
	}
	return request, nil
}

// ResolveRequest transitions a request out of pending. Acceptance runs as
// one transaction: lock the trip row, re-check capacity, add the member,
// bump the counter, flip the request. Any step failing rolls it all back.
func (s *tripMembershipService) ResolveRequest(ctx context.Context, requestID, actorID uint, newStatus models.TripRequestStatus) error {
	switch newStatus {
	case models.TripRequestStatusAccepted, models.TripRequestStatusRejected, models.TripRequestStatusExpired:
	default:
		return ErrInvalidRequestStatus
	}

	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTripRequestNotFound
		}
		return fmt.Errorf("检索加入请求失败: %w", err)
	}

	trip, err := s.tripRepo.GetTripByID(ctx, request.TripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTripNotFound
		}
		return fmt.Errorf("检索行程失败: %w", err)
	}
	if trip.OwnerID != actorID {
		return ErrNotTripOwner
	}

	if request.Status != models.TripRequestStatusPending && newStatus != models.TripRequestStatusExpired {
		return ErrTripRequestResolved
	}

	if newStatus != models.TripRequestStatusAccepted {
		if err := s.requestRepo.UpdateStatus(ctx, requestID, newStatus); err != nil {
			return fmt.Errorf("更新请求状态失败: %w", err)
		}
		return nil
	}

	txErr := s.txm.Do(ctx, func(repos storage.Repositories) error {
		// 行级锁让并发的接受在这一行上串行化；容量复查必须在锁内，
		// 因为自请求创建以来名册可能已经变化。
		lockedTrip, err := repos.Trips.GetTripByIDForUpdate(ctx, request.TripID)
		if err != nil {
			return fmt.Errorf("锁定行程失败: %w", err)
		}
		if lockedTrip.IsFull() {
			return ErrTripFull
		}

		member := &models.TripMember{
			TripID:   request.TripID,
			UserID:   request.UserID,
			Role:     models.TripRoleMember,
			JoinedAt: time.Now(),
		}
		// "已经是成员"视为成功而不是失败，重试的接受保持幂等。
		if err := repos.Trips.AddMember(ctx, member); err != nil {
			return fmt.Errorf("添加行程成员失败: %w", err)
		}

		if err := repos.Trips.IncrementGroupSize(ctx, request.TripID); err != nil {
			return fmt.Errorf("更新行程人数失败: %w", err)
		}

		if err := repos.TripRequests.UpdateStatus(ctx, requestID, models.TripRequestStatusAccepted); err != nil {
			return fmt.Errorf("更新请求状态失败: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	if err := s.engagement.Emit(ctx, models.EngagementJoinedTrip, request.UserID, trip.OwnerID, "trip", trip.ID); err != nil {
		log.Printf("Error emitting joined_trip event for trip %d, user %d: %v", trip.ID, request.UserID, err)
	}
	return nil
}

// Leave removes the membership and decrements the roster counter,
// floored at zero. Owners must transfer or delete the trip, not leave it.
func (s *tripMembershipService) Leave(ctx context.Context, tripID, userID uint) error {
	trip, err := s.tripRepo.GetTripByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTripNotFound
		}
		return fmt.Errorf("检索行程失败: %w", err)
	}

	member, err := s.tripRepo.GetMember(ctx, tripID, userID)
	if err != nil {
		return fmt.Errorf("检查成员资格失败: %w", err)
	}
	if member == nil {
		return ErrNotTripMember
	}
	if member.Role == models.TripRoleOwner {
		return ErrOwnerCannotLeave
	}

	txErr := s.txm.Do(ctx, func(repos storage.Repositories) error {
		// 最后一个 owner 行由 RemoveMember 在存储层独立兜底。
		if err := repos.Trips.RemoveMember(ctx, tripID, userID); err != nil {
			return fmt.Errorf("移除行程成员失败: %w", err)
		}
		if err := repos.Trips.DecrementGroupSizeFloored(ctx, tripID); err != nil {
			return fmt.Errorf("更新行程人数失败: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	if err := s.engagement.Emit(ctx, models.EngagementLeftTrip, userID, trip.OwnerID, "trip", trip.ID); err != nil {
		log.Printf("Error emitting left_trip event for trip %d, user %d: %v", tripID, userID, err)
	}
	return nil
}

// ListRequestsForTrip is the owner-facing view of pending requests.
func (s *tripMembershipService) ListRequestsForTrip(ctx context.Context, tripID, actorID uint) ([]*models.TripRequestWithUser, error) {
	trip, err := s.tripRepo.GetTripByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTripNotFound
		}
		return nil, fmt.Errorf("检索行程失败: %w", err)
	}
	if trip.OwnerID != actorID {
		return nil, ErrNotTripOwner
	}

	requests, err := s.requestRepo.ListPendingForTrip(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("获取加入请求失败: %w", err)
	}

	result := make([]*models.TripRequestWithUser, 0, len(requests))
	for _, req := range requests {
		requester, err := s.userRepo.GetBasicInfoByID(ctx, req.UserID)
		if err != nil {
			log.Printf("Error fetching requester info for trip request %d: %v", req.ID, err)
			continue
		}
		result = append(result, &models.TripRequestWithUser{TripRequest: req, Requester: requester})
	}
	return result, nil
}

func (s *tripMembershipService) ListOutgoingRequests(ctx context.Context, userID uint) ([]models.TripRequest, error) {
	requests, err := s.requestRepo.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取已发出的加入请求失败: %w", err)
	}
	return requests, nil
}

func (s *tripMembershipService) DismissResolvedNotice(ctx context.Context, requestID, userID uint) error {
	request, err := s.requestRepo.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTripRequestNotFound
		}
		return fmt.Errorf("检索加入请求失败: %w", err)
	}
	if request.UserID != userID {
		return ErrNotRequester
	}

	if err := s.requestRepo.SetDismissed(ctx, requestID); err != nil {
		return fmt.Errorf("关闭请求通知失败: %w", err)
	}
	return nil
}

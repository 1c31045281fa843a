package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
	"tripmate/internal/storage"
)

var ErrNotificationUserGone = errors.New("用户不存在")

const feedSubQueryLimit = 50

// NotificationService 是纯读侧的通知聚合器。它不拥有任何生命周期
// 状态，只对各来源表做"晚于游标且仍然相关"的计数和列举；唯一的
// 写入是移动游标和翻各类 dismissed 标记。游标和 dismissed 是正交的
// 两个轴：查看过通知不会隐藏未 dismiss 的卡片。
type NotificationService interface {
	UnreadCount(ctx context.Context, userID uint) (*models.UnreadBreakdown, error)
	// Feed 返回按时间倒序的通知条目，不受游标过滤（游标只管未读数）。
	Feed(ctx context.Context, userID uint, limit int) ([]models.NotificationItem, error)
	// MarkRead 把游标移到现在。不清除任何 dismissed 标记。
	MarkRead(ctx context.Context, userID uint) error
	DismissVerificationNotice(ctx context.Context, userID uint) error
}

type notificationService struct {
	userRepo       storage.UserRepository
	followRepo     storage.FollowRepository
	matchRepo      storage.MatchRepository
	requestRepo    storage.TripRequestRepository
	engagementRepo storage.EngagementRepository
}

// NewNotificationService creates a new NotificationService instance.
func NewNotificationService(
	userRepo storage.UserRepository,
	followRepo storage.FollowRepository,
	matchRepo storage.MatchRepository,
	requestRepo storage.TripRequestRepository,
	engagementRepo storage.EngagementRepository,
) NotificationService {
	return &notificationService{
		userRepo:       userRepo,
		followRepo:     followRepo,
		matchRepo:      matchRepo,
		requestRepo:    requestRepo,
		engagementRepo: engagementRepo,
	}
}

// UnreadCount sums the independently computed per-source sub-counts of
// rows newer than the user's cursor.
func (s *notificationService) UnreadCount(ctx context.Context, userID uint) (*models.UnreadBreakdown, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationUserGone
		}
		return nil, fmt.Errorf("检索用户失败: %w", err)
	}
	cursor := user.LastCheckedAt

	breakdown := &models.UnreadBreakdown{}

	// 1. 认证结果是二元的：有结果、晚于游标、未被 dismiss 才算 1。
	if user.VerificationStatus != models.VerificationNone &&
		user.VerifiedAt != nil && !user.VerificationDismissed &&
		after(*user.VerifiedAt, cursor) {
		breakdown.Verification = 1
	}

	tripIncoming, err := s.requestRepo.CountPendingForOwnerSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计待处理加入请求失败: %w", err)
	}
	breakdown.TripRequestsIncoming = int(tripIncoming)

	tripResolved, err := s.requestRepo.CountResolvedOutgoingSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计已处理加入请求失败: %w", err)
	}
	breakdown.TripRequestsResolved = int(tripResolved)

	followRequests, err := s.followRepo.CountPendingIncomingSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计待处理关注请求失败: %w", err)
	}
	breakdown.FollowRequests = int(followRequests)

	followsAccepted, err := s.followRepo.CountAcceptedOutgoingSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计已接受关注失败: %w", err)
	}
	breakdown.FollowsAccepted = int(followsAccepted)

	engagement, err := s.engagementRepo.CountLikesCommentsSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计互动事件失败: %w", err)
	}
	breakdown.Engagement = int(engagement)

	matchesAccepted, err := s.matchRepo.CountAcceptedSince(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("统计配对成功失败: %w", err)
	}
	breakdown.MatchesAccepted = int(matchesAccepted)

	return breakdown, nil
}

// Feed assembles the reverse-chronological notification feed. Each source
// contributes its own variant type; dismissed items are hidden here even
// though the cursor-based unread count treats dismissal independently.
func (s *notificationService) Feed(ctx context.Context, userID uint, limit int) ([]models.NotificationItem, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationUserGone
		}
		return nil, fmt.Errorf("检索用户失败: %w", err)
	}
	if limit <= 0 {
		limit = feedSubQueryLimit
	}

	items := []models.NotificationItem{}

	if user.VerificationStatus != models.VerificationNone &&
		user.VerifiedAt != nil && !user.VerificationDismissed {
		items = append(items, models.VerificationNotice{
			Status:    user.VerificationStatus,
			DecidedAt: *user.VerifiedAt,
		})
	}

	incoming, err := s.requestRepo.ListPendingForOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取待处理加入请求失败: %w", err)
	}
	for _, req := range incoming {
		items = append(items, models.TripRequestIncomingNotice{
			Request:   req,
			Requester: s.basicInfo(ctx, req.UserID),
		})
	}

	outgoing, err := s.requestRepo.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取已发出加入请求失败: %w", err)
	}
	for _, req := range outgoing {
		if req.Dismissed || (req.Status != models.TripRequestStatusAccepted && req.Status != models.TripRequestStatusRejected) {
			continue
		}
		items = append(items, models.TripRequestResolvedNotice{Request: req})
	}

	pendingFollows, err := s.followRepo.ListByFollowing(ctx, userID, models.FollowStatusPending)
	if err != nil {
		return nil, fmt.Errorf("获取待处理关注请求失败: %w", err)
	}
	for _, edge := range pendingFollows {
		items = append(items, models.FollowRequestNotice{
			Edge:      edge,
			Requester: s.basicInfo(ctx, edge.FollowerID),
		})
	}

	acceptedFollows, err := s.followRepo.ListByFollower(ctx, userID, models.FollowStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("获取已接受关注失败: %w", err)
	}
	for _, edge := range acceptedFollows {
		if edge.DismissedByFollower {
			continue
		}
		items = append(items, models.FollowAcceptedNotice{
			Edge: edge,
			Peer: s.basicInfo(ctx, edge.FollowingID),
		})
	}

	events, err := s.engagementRepo.ListLikesCommentsSince(ctx, userID, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("获取互动事件失败: %w", err)
	}
	for _, event := range events {
		items = append(items, models.EngagementNotice{
			Event: event,
			Actor: s.basicInfo(ctx, event.ActorID),
		})
	}

	matches, err := s.matchRepo.ListAcceptedInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取配对列表失败: %w", err)
	}
	for _, match := range matches {
		if match.DismissedBy(userID) {
			continue
		}
		items = append(items, models.MatchAcceptedNotice{
			Match: match,
			Peer:  s.basicInfo(ctx, match.OtherSide(userID)),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].OccurredAt().After(items[j].OccurredAt())
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// MarkRead moves the cursor only; dismissal flags stay untouched.
func (s *notificationService) MarkRead(ctx context.Context, userID uint) error {
	if err := s.userRepo.SetLastCheckedAt(ctx, userID, time.Now()); err != nil {
		return fmt.Errorf("更新通知游标失败: %w", err)
	}
	return nil
}

func (s *notificationService) DismissVerificationNotice(ctx context.Context, userID uint) error {
	if err := s.userRepo.SetVerificationDismissed(ctx, userID); err != nil {
		return fmt.Errorf("关闭认证通知失败: %w", err)
	}
	return nil
}

func (s *notificationService) basicInfo(ctx context.Context, userID uint) *models.UserBasicInfo {
	info, err := s.userRepo.GetBasicInfoByID(ctx, userID)
	if err != nil {
		log.Printf("Error fetching basic info for user %d in notification feed: %v", userID, err)
		return nil
	}
	return info
}

// after reports whether t is newer than the cursor; a nil cursor means
// the user never checked notifications, so everything is new.
func after(t time.Time, cursor *time.Time) bool {
	return cursor == nil || t.After(*cursor)
}

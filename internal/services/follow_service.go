package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"tripmate/internal/models"
	"tripmate/internal/storage"
)

var (
	ErrFollowSelf         = errors.New("不能关注自己")
	ErrFollowTargetGone   = errors.New("目标用户不存在")
	ErrFollowEdgeExists   = errors.New("关注关系或请求已存在")
	ErrFollowEdgeNotFound = errors.New("关注请求不存在或已被处理")
	ErrNotFollowingTarget = errors.New("尚未关注该用户")
)

// FollowRequestOutcome 区分发送关注请求的两种成功结果。
type FollowRequestOutcome string

const (
	// FollowOutcomePending 已创建待处理请求，等待对方接受。
	FollowOutcomePending FollowRequestOutcome = "pending"
	// FollowOutcomeAutoAccepted 对方此前已有指向自己的待处理请求，
	// 双向自动接受（互相关注达成）。
	FollowOutcomeAutoAccepted FollowRequestOutcome = "auto_accepted"
)

// FollowService defines the interface for follow edge lifecycle operations.
type FollowService interface {
	// SendRequest 从 follower 向 target 发起关注请求。若此时已存在
	// target -> follower 的待处理请求，则自动双向接受而不是新建。
	SendRequest(ctx context.Context, followerID, targetID uint) (FollowRequestOutcome, error)
	// Accept 由 target 接受 follower 的待处理请求。
	Accept(ctx context.Context, followerID, targetID uint) error
	// Reject 由 target 删除 follower 的待处理请求。
	Reject(ctx context.Context, followerID, targetID uint) error
	// Cancel 由 follower 撤回自己的待处理请求。
	Cancel(ctx context.Context, followerID, targetID uint) error
	// Unfollow 由 follower 删除一条已接受的关注边。
	Unfollow(ctx context.Context, followerID, targetID uint) error
	// Status 从 viewer 的视角观察与 subject 的关注关系。
	// viewerID 为 0（未认证）时恒返回 not_following。
	Status(ctx context.Context, viewerID, subjectID uint) (models.RelationshipStatus, error)
	// DismissAcceptedNotice 关闭"对方接受了你的关注"卡片。幂等。
	DismissAcceptedNotice(ctx context.Context, followerID, targetID uint) error

	ListFollowers(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error)
	ListFollowing(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error)
	ListPendingIncoming(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error)
}

type followService struct {
	txm        storage.TransactionManager
	followRepo storage.FollowRepository
	userRepo   storage.UserRepository
	convoRepo  storage.ConversationRepository
	engagement EngagementService
}

// NewFollowService creates a new FollowService instance.
func NewFollowService(
	txm storage.TransactionManager,
	followRepo storage.FollowRepository,
	userRepo storage.UserRepository,
	convoRepo storage.ConversationRepository,
	engagement EngagementService,
) FollowService {
	return &followService{
		txm:        txm,
		followRepo: followRepo,
		userRepo:   userRepo,
		convoRepo:  convoRepo,
		engagement: engagement,
	}
}

// SendRequest validates the pair and either inserts a pending edge or
// auto-resolves a reciprocal pending request into mutual follows.
func (s *followService) SendRequest(ctx context.Context, followerID, targetID uint) (FollowRequestOutcome, error) {
	if followerID == targetID {
		return "", ErrFollowSelf
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrFollowTargetGone
		}
		return "", fmt.Errorf("检查目标用户时出错: %w", err)
	}
	if target.Deactivated {
		return "", ErrFollowTargetGone
	}

	existing, err := s.followRepo.GetEdge(ctx, followerID, targetID)
	if err != nil {
		return "", fmt.Errorf("检查现有关注边时出错: %w", err)
	}
	if existing != nil {
		return "", ErrFollowEdgeExists
	}

	reciprocal, err := s.followRepo.GetEdge(ctx, targetID, followerID)
	if err != nil {
		return "", fmt.Errorf("检查反向关注边时出错: %w", err)
	}

	if reciprocal != nil && reciprocal.Status == models.FollowStatusPending {
		// 自动互相接受：对方的 pending 边翻到 accepted，同时把本方向
		// 直接以 accepted 插入，绝不留下第二条 pending。
		txErr := s.txm.Do(ctx, func(repos storage.Repositories) error {
			if err := repos.Follows.Accept(ctx, reciprocal.ID); err != nil {
				return fmt.Errorf("接受反向关注请求失败: %w", err)
			}
			newEdge := &models.FollowEdge{
				FollowerID:  followerID,
				FollowingID: targetID,
				Status:      models.FollowStatusAccepted,
			}
			if err := repos.Follows.CreateIgnoreConflict(ctx, newEdge); err != nil {
				return fmt.Errorf("创建互相关注边失败: %w", err)
			}
			return nil
		})
		if txErr != nil {
			return "", txErr
		}

		s.upgradeConversationIfMutual(ctx, followerID, targetID)
		s.emitFollow(ctx, targetID, followerID)
		s.emitFollow(ctx, followerID, targetID)
		log.Printf("Follow request %d -> %d auto-resolved into mutual follows", followerID, targetID)
		return FollowOutcomeAutoAccepted, nil
	}

	edge := &models.FollowEdge{
		FollowerID:  followerID,
		FollowingID: targetID,
		Status:      models.FollowStatusPending,
	}
	if err := s.followRepo.Create(ctx, edge); err != nil {
		return "", fmt.Errorf("创建关注请求失败: %w", err)
	}
	return FollowOutcomePending, nil
}

// Accept flips a pending edge to accepted. The caller must be the target
// of the edge; the handler layer passes the authenticated user as targetID.
func (s *followService) Accept(ctx context.Context, followerID, targetID uint) error {
	edge, err := s.followRepo.GetEdge(ctx, followerID, targetID)
	if err != nil {
		return fmt.Errorf("检索关注请求失败: %w", err)
	}
	if edge == nil || edge.Status != models.FollowStatusPending {
		return ErrFollowEdgeNotFound
	}

	if err := s.followRepo.Accept(ctx, edge.ID); err != nil {
		return fmt.Errorf("接受关注请求失败: %w", err)
	}

	s.upgradeConversationIfMutual(ctx, followerID, targetID)
	s.emitFollow(ctx, followerID, targetID)
	return nil
}

// Reject deletes the pending edge. The caller must be the target.
func (s *followService) Reject(ctx context.Context, followerID, targetID uint) error {
	return s.deletePending(ctx, followerID, targetID)
}

// Cancel deletes the pending edge. The caller must be the follower.
func (s *followService) Cancel(ctx context.Context, followerID, targetID uint) error {
	return s.deletePending(ctx, followerID, targetID)
}

func (s *followService) deletePending(ctx context.Context, followerID, targetID uint) error {
	affected, err := s.followRepo.DeleteEdge(ctx, followerID, targetID, models.FollowStatusPending)
	if err != nil {
		return fmt.Errorf("删除关注请求失败: %w", err)
	}
	if affected == 0 {
		return ErrFollowEdgeNotFound
	}
	return nil
}

// Unfollow deletes an accepted edge only.
func (s *followService) Unfollow(ctx context.Context, followerID, targetID uint) error {
	affected, err := s.followRepo.DeleteEdge(ctx, followerID, targetID, models.FollowStatusAccepted)
	if err != nil {
		return fmt.Errorf("取消关注失败: %w", err)
	}
	if affected == 0 {
		return ErrNotFollowingTarget
	}
	return nil
}

// Status derives the relationship by checking both directions.
func (s *followService) Status(ctx context.Context, viewerID, subjectID uint) (models.RelationshipStatus, error) {
	if viewerID == 0 {
		return models.RelationshipNotFollowing, nil
	}
	if viewerID == subjectID {
		return models.RelationshipSelf, nil
	}

	outgoing, err := s.followRepo.GetEdge(ctx, viewerID, subjectID)
	if err != nil {
		return "", fmt.Errorf("检查关注边失败: %w", err)
	}
	if outgoing != nil {
		if outgoing.Status == models.FollowStatusAccepted {
			return models.RelationshipFollowing, nil
		}
		return models.RelationshipPendingOutgoing, nil
	}

	incoming, err := s.followRepo.GetEdge(ctx, subjectID, viewerID)
	if err != nil {
		return "", fmt.Errorf("检查反向关注边失败: %w", err)
	}
	if incoming != nil && incoming.Status == models.FollowStatusPending {
		return models.RelationshipPendingIncoming, nil
	}
	return models.RelationshipNotFollowing, nil
}

// DismissAcceptedNotice 对已经 dismissed 的边重复调用不报错。
func (s *followService) DismissAcceptedNotice(ctx context.Context, followerID, targetID uint) error {
	if err := s.followRepo.SetDismissedByFollower(ctx, followerID, targetID); err != nil {
		return fmt.Errorf("关闭关注通知失败: %w", err)
	}
	return nil
}

func (s *followService) ListFollowers(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error) {
	edges, err := s.followRepo.ListByFollowing(ctx, userID, models.FollowStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("获取粉丝列表失败: %w", err)
	}
	return s.enrichEdges(ctx, edges, func(e models.FollowEdge) uint { return e.FollowerID })
}

func (s *followService) ListFollowing(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error) {
	edges, err := s.followRepo.ListByFollower(ctx, userID, models.FollowStatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("获取关注列表失败: %w", err)
	}
	return s.enrichEdges(ctx, edges, func(e models.FollowEdge) uint { return e.FollowingID })
}

func (s *followService) ListPendingIncoming(ctx context.Context, userID uint) ([]*models.FollowEdgeWithUser, error) {
	edges, err := s.followRepo.ListByFollowing(ctx, userID, models.FollowStatusPending)
	if err != nil {
		return nil, fmt.Errorf("获取待处理关注请求失败: %w", err)
	}
	return s.enrichEdges(ctx, edges, func(e models.FollowEdge) uint { return e.FollowerID })
}

func (s *followService) enrichEdges(ctx context.Context, edges []models.FollowEdge, sideOf func(models.FollowEdge) uint) ([]*models.FollowEdgeWithUser, error) {
	result := make([]*models.FollowEdgeWithUser, 0, len(edges))
	for _, edge := range edges {
		info, err := s.userRepo.GetBasicInfoByID(ctx, sideOf(edge))
		if err != nil {
			// 对方账号刚被停用；跳过而不是让整个列表失败。
			log.Printf("Error fetching basic info for user %d on edge %d: %v", sideOf(edge), edge.ID, err)
			continue
		}
		result = append(result, &models.FollowEdgeWithUser{FollowEdge: edge, User: info})
	}
	return result, nil
}

// upgradeConversationIfMutual 是接受关注后的次级级联：互相关注达成时
// 把既有的 request 级会话升到 active。失败只记日志。
func (s *followService) upgradeConversationIfMutual(ctx context.Context, userIDA, userIDB uint) {
	mutual, err := s.followRepo.AreMutualFollowers(ctx, userIDA, userIDB)
	if err != nil {
		log.Printf("Error checking mutual follow for %d and %d: %v", userIDA, userIDB, err)
		return
	}
	if !mutual {
		return
	}

	low, high := models.SortPair(userIDA, userIDB)
	convo, err := s.convoRepo.GetByPair(ctx, low, high)
	if err != nil {
		log.Printf("Error looking up conversation for pair (%d, %d): %v", low, high, err)
		return
	}
	if convo == nil || convo.Status == models.ConversationActive {
		return
	}
	if err := s.convoRepo.UpgradeToActive(ctx, convo.ID); err != nil {
		log.Printf("Error upgrading conversation %d to active: %v", convo.ID, err)
	}
}

func (s *followService) emitFollow(ctx context.Context, followerID, followingID uint) {
	if err := s.engagement.Emit(ctx, models.EngagementFollow, followerID, followingID, "user", followingID); err != nil {
		log.Printf("Error emitting follow event %d -> %d: %v", followerID, followingID, err)
	}
}

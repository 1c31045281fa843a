package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/config"
	"tripmate/internal/models"
	"tripmate/internal/storage"
)

var (
	ErrMatchSelf        = errors.New("不能与自己配对")
	ErrMatchPeerGone    = errors.New("对方用户不存在")
	ErrMatchNotFound    = errors.New("配对不存在")
	ErrNotPartyToMatch  = errors.New("您不是此配对的参与方")
	ErrMatchNotAccepted = errors.New("配对尚未成功，无法关闭通知")
)

// MatchService defines the interface for swipe-style pairwise matching.
type MatchService interface {
	// CreateOrAdvance 推进配对状态机。首次滑动创建 pending；对方随后
	// 滑动则原子地翻到 accepted 并触发级联（双向关注 + 会话升级）。
	// 重复滑动幂等地返回当前状态。
	CreateOrAdvance(ctx context.Context, initiatorID, otherID uint) (*models.Match, error)
	// Reject 拒绝与对方配对。对 accepted 行是无操作（不能借拒绝解除
	// 配对）；否则覆盖为 rejected 并把拒绝者记为新的 initiatedBy。
	Reject(ctx context.Context, dismisserID, dismissedID uint) (*models.Match, error)
	// PotentialCandidates 返回发现页候选人。每次调用随机排序。
	PotentialCandidates(ctx context.Context, viewerID uint, offset, limit int) ([]*models.User, error)
	// DismissAcceptedNotice 关闭本方的"配对成功"卡片。仅对 accepted 行有效。
	DismissAcceptedNotice(ctx context.Context, matchID, userID uint) error
	ListAccepted(ctx context.Context, userID uint) ([]*models.MatchWithPeer, error)
}

type matchService struct {
	txm        storage.TransactionManager
	matchRepo  storage.MatchRepository
	followRepo storage.FollowRepository
	userRepo   storage.UserRepository
	convoRepo  storage.ConversationRepository
	engagement EngagementService
	socialCfg  config.SocialConfig
}

// NewMatchService creates a new MatchService instance.
func NewMatchService(
	txm storage.TransactionManager,
	matchRepo storage.MatchRepository,
	followRepo storage.FollowRepository,
	userRepo storage.UserRepository,
	convoRepo storage.ConversationRepository,
	engagement EngagementService,
	socialCfg config.SocialConfig,
) MatchService {
	return &matchService{
		txm:        txm,
		matchRepo:  matchRepo,
		followRepo: followRepo,
		userRepo:   userRepo,
		convoRepo:  convoRepo,
		engagement: engagement,
		socialCfg:  socialCfg,
	}
}

// CreateOrAdvance drives the match state machine for the canonical pair.
func (s *matchService) CreateOrAdvance(ctx context.Context, initiatorID, otherID uint) (*models.Match, error) {
	if initiatorID == otherID {
		return nil, ErrMatchSelf
	}

	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMatchPeerGone
		}
		return nil, fmt.Errorf("检查对方用户时出错: %w", err)
	}
	if other.Deactivated {
		return nil, ErrMatchPeerGone
	}

	low, high := models.SortPair(initiatorID, otherID)
	match, err := s.matchRepo.GetByPair(ctx, low, high)
	if err != nil {
		return nil, fmt.Errorf("检索配对失败: %w", err)
	}

	if match == nil {
		match = &models.Match{
			UserIDLow:   low,
			UserIDHigh:  high,
			Status:      models.MatchStatusPending,
			InitiatedBy: initiatorID,
		}
		if err := s.matchRepo.Create(ctx, match); err != nil {
			return nil, fmt.Errorf("创建配对失败: %w", err)
		}
		return match, nil
	}

	switch match.Status {
	case models.MatchStatusPending:
		if match.InitiatedBy == initiatorID {
			// 幂等重发：同一发起者重复滑动，状态不变。
			return match, nil
		}
		// 双方都表达了兴趣：核心状态转移在事务内提交。
		txErr := s.txm.Do(ctx, func(repos storage.Repositories) error {
			return repos.Matches.AcceptPending(ctx, match.ID)
		})
		if txErr != nil {
			return nil, fmt.Errorf("接受配对失败: %w", txErr)
		}
		match.Status = models.MatchStatusAccepted
		match.DismissedBySideLow = false
		match.DismissedBySideHigh = false

		// 次级级联在核心转移提交之后尽力而为地执行，失败只记日志，
		// 不影响配对已成功这一事实。
		s.cascadeAcceptance(ctx, match)
		return match, nil

	case models.MatchStatusAccepted:
		// accepted 是终态；重复调用幂等返回。
		return match, nil

	case models.MatchStatusRejected, models.MatchStatusExpired:
		if match.Status == models.MatchStatusRejected {
			if match.InitiatedBy == initiatorID {
				// 拒绝方自己的滑动不能复活这一对，只有被拒一方可以。
				return match, nil
			}
			if time.Since(match.UpdatedAt) < s.socialCfg.MatchRejectCooldown {
				// 冷却期内不允许重新发起，原状态原样返回。
				return match, nil
			}
		}
		if err := s.matchRepo.ReopenPending(ctx, match.ID, initiatorID); err != nil {
			return nil, fmt.Errorf("重新发起配对失败: %w", err)
		}
		match.Status = models.MatchStatusPending
		match.InitiatedBy = initiatorID
		return match, nil
	}

	return match, nil
}

// cascadeAcceptance performs the secondary effects of a mutual match:
// reciprocal accepted follow edges (idempotent against existing follows)
// and the conversation tier upgrade.
func (s *matchService) cascadeAcceptance(ctx context.Context, match *models.Match) {
	edges := []models.FollowEdge{
		{FollowerID: match.UserIDLow, FollowingID: match.UserIDHigh, Status: models.FollowStatusAccepted},
		{FollowerID: match.UserIDHigh, FollowingID: match.UserIDLow, Status: models.FollowStatusAccepted},
	}
	for i := range edges {
		if err := s.followRepo.CreateIgnoreConflict(ctx, &edges[i]); err != nil {
			log.Printf("Error creating reciprocal follow %d -> %d for match %d: %v",
				edges[i].FollowerID, edges[i].FollowingID, match.ID, err)
		}
	}

	convo, err := s.convoRepo.GetByPair(ctx, match.UserIDLow, match.UserIDHigh)
	if err != nil {
		log.Printf("Error looking up conversation for match %d: %v", match.ID, err)
	} else if convo != nil && convo.Status == models.ConversationRequest {
		if err := s.convoRepo.UpgradeToActive(ctx, convo.ID); err != nil {
			log.Printf("Error upgrading conversation %d after match %d: %v", convo.ID, match.ID, err)
		}
	}

	for _, target := range []uint{match.UserIDLow, match.UserIDHigh} {
		if err := s.engagement.Emit(ctx, models.EngagementMatchAccepted, match.OtherSide(target), target, "match", match.ID); err != nil {
			log.Printf("Error emitting match_accepted event for match %d, target %d: %v", match.ID, target, err)
		}
	}
}

// Reject marks the pair as rejected, restarting the cooldown window with
// the dismisser as the recorded initiator.
func (s *matchService) Reject(ctx context.Context, dismisserID, dismissedID uint) (*models.Match, error) {
	if dismisserID == dismissedID {
		return nil, ErrMatchSelf
	}

	low, high := models.SortPair(dismisserID, dismissedID)
	match, err := s.matchRepo.GetByPair(ctx, low, high)
	if err != nil {
		return nil, fmt.Errorf("检索配对失败: %w", err)
	}

	if match == nil {
		match = &models.Match{
			UserIDLow:   low,
			UserIDHigh:  high,
			Status:      models.MatchStatusRejected,
			InitiatedBy: dismisserID,
		}
		if err := s.matchRepo.Create(ctx, match); err != nil {
			return nil, fmt.Errorf("记录配对拒绝失败: %w", err)
		}
		return match, nil
	}

	if match.Status == models.MatchStatusAccepted {
		// 不能通过拒绝解除已成功的配对。
		return match, nil
	}

	if err := s.matchRepo.MarkRejected(ctx, match.ID, dismisserID); err != nil {
		return nil, fmt.Errorf("记录配对拒绝失败: %w", err)
	}
	match.Status = models.MatchStatusRejected
	match.InitiatedBy = dismisserID
	return match, nil
}

// PotentialCandidates excludes self, followed users, and any pair with an
// existing match row. The exception is a rejected row older than the
// cooldown that the viewer did not initiate: that peer resurfaces.
func (s *matchService) PotentialCandidates(ctx context.Context, viewerID uint, offset, limit int) ([]*models.User, error) {
	if limit <= 0 || limit > s.socialCfg.CandidatePageSize {
		limit = s.socialCfg.CandidatePageSize
	}
	if offset < 0 {
		offset = 0
	}

	followedIDs, err := s.followRepo.FollowedIDs(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("获取已关注用户失败: %w", err)
	}

	cutoff := time.Now().Add(-s.socialCfg.MatchRejectCooldown)
	matchedIDs, err := s.matchRepo.ExcludedPairIDs(ctx, viewerID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("获取已配对用户失败: %w", err)
	}

	seen := make(map[uint]struct{}, len(followedIDs)+len(matchedIDs))
	excludeIDs := make([]uint, 0, len(followedIDs)+len(matchedIDs))
	for _, id := range append(followedIDs, matchedIDs...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		excludeIDs = append(excludeIDs, id)
	}

	candidates, err := s.userRepo.FindCandidates(ctx, viewerID, excludeIDs, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("获取候选人失败: %w", err)
	}
	return candidates, nil
}

// DismissAcceptedNotice sets the caller's side flag on an accepted match.
func (s *matchService) DismissAcceptedNotice(ctx context.Context, matchID, userID uint) error {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMatchNotFound
		}
		return fmt.Errorf("检索配对失败: %w", err)
	}
	if !match.Involves(userID) {
		return ErrNotPartyToMatch
	}
	if match.Status != models.MatchStatusAccepted {
		return ErrMatchNotAccepted
	}

	if err := s.matchRepo.SetDismissed(ctx, matchID, match.UserIDLow == userID); err != nil {
		return fmt.Errorf("关闭配对通知失败: %w", err)
	}
	return nil
}

func (s *matchService) ListAccepted(ctx context.Context, userID uint) ([]*models.MatchWithPeer, error) {
	matches, err := s.matchRepo.ListAcceptedInvolving(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取配对列表失败: %w", err)
	}

	result := make([]*models.MatchWithPeer, 0, len(matches))
	for _, m := range matches {
		peer, err := s.userRepo.GetBasicInfoByID(ctx, m.OtherSide(userID))
		if err != nil {
			log.Printf("Error fetching peer info for match %d: %v", m.ID, err)
			continue
		}
		result = append(result, &models.MatchWithPeer{Match: m, Peer: peer})
	}
	return result, nil
}

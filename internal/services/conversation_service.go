package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
	"tripmate/internal/storage"
)

var (
	ErrConversationSelf     = errors.New("不能与自己创建私聊会话")
	ErrConversationNotFound = errors.New("会话不存在")
	ErrNotConversationParty = errors.New("您不是此会话的参与方")
	ErrEmptyMessage         = errors.New("消息内容不能为空")
	ErrMessageRecipientGone = errors.New("接收用户不存在")
)

// ConversationLists 是会话列表的分组结果：正常聊天与消息请求。
// 只有最后一条消息来自对方的 request 级会话才会出现在 Requests 里；
// 自己单方面发出的请求会话对发送者显示在 Chats 中。
type ConversationLists struct {
	Chats    []*models.ConversationPreview `json:"chats"`
	Requests []*models.ConversationPreview `json:"requests"`
}

// ConversationService 管理私聊会话的隐私分级与消息收发。
// 会话在首次发消息或配对成功时惰性创建，初始分级取决于创建那一刻
// 双方是否互相关注；request -> active 的升级是单向的。
type ConversationService interface {
	GetOrCreate(ctx context.Context, userIDA, userIDB uint) (*models.Conversation, bool, error)
	// Send 发送一条私信。conversationID 为 nil 时按 (sender, recipient)
	// 解析或创建会话。若会话仍是 request 级，发送时在同一事务内复查
	// 互相关注并按需升级。
	Send(ctx context.Context, senderID, recipientID uint, conversationID *uint, content string) (*models.Message, error)
	MarkRead(ctx context.Context, conversationID, userID uint) error
	// GetMessages 返回消息并隐式标记已读。
	GetMessages(ctx context.Context, conversationID, userID uint, limit, offset int) ([]models.Message, error)
	ListConversations(ctx context.Context, userID uint, limit, offset int) (*ConversationLists, error)
}

type conversationService struct {
	txm        storage.TransactionManager
	convoRepo  storage.ConversationRepository
	followRepo storage.FollowRepository
	userRepo   storage.UserRepository
}

// NewConversationService creates a new ConversationService instance.
func NewConversationService(
	txm storage.TransactionManager,
	convoRepo storage.ConversationRepository,
	followRepo storage.FollowRepository,
	userRepo storage.UserRepository,
) ConversationService {
	return &conversationService{
		txm:        txm,
		convoRepo:  convoRepo,
		followRepo: followRepo,
		userRepo:   userRepo,
	}
}

// GetOrCreate returns the canonical-pair conversation, creating it with a
// tier derived from mutual-follow state at this instant. The second return
// value reports whether the conversation was newly created.
func (s *conversationService) GetOrCreate(ctx context.Context, userIDA, userIDB uint) (*models.Conversation, bool, error) {
	if userIDA == userIDB {
		return nil, false, ErrConversationSelf
	}

	low, high := models.SortPair(userIDA, userIDB)
	convo, err := s.convoRepo.GetByPair(ctx, low, high)
	if err != nil {
		return nil, false, fmt.Errorf("查找会话失败: %w", err)
	}
	if convo != nil {
		return convo, false, nil
	}

	mutual, err := s.followRepo.AreMutualFollowers(ctx, low, high)
	if err != nil {
		return nil, false, fmt.Errorf("检查互相关注状态失败: %w", err)
	}
	status := models.ConversationRequest
	if mutual {
		status = models.ConversationActive
	}

	convo = &models.Conversation{
		UserIDLow:  low,
		UserIDHigh: high,
		Status:     status,
	}
	if err := s.convoRepo.Create(ctx, convo); err != nil {
		// 唯一索引上的并发竞争：另一个请求刚创建了同一对的会话。
		existing, lookupErr := s.convoRepo.GetByPair(ctx, low, high)
		if lookupErr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("创建会话失败: %w", err)
	}
	return convo, true, nil
}

// Send records the message, bumps the conversation preview pointer, and
// provably un-reads the recipient's side by nulling their lastReadAt.
func (s *conversationService) Send(ctx context.Context, senderID, recipientID uint, conversationID *uint, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	var convo *models.Conversation
	if conversationID != nil {
		found, err := s.convoRepo.GetByID(ctx, *conversationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrConversationNotFound
			}
			return nil, fmt.Errorf("检索会话失败: %w", err)
		}
		if !found.Involves(senderID) {
			return nil, ErrNotConversationParty
		}
		convo = found
		recipientID = convo.OtherSide(senderID)
	} else {
		recipient, err := s.userRepo.GetByID(ctx, recipientID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrMessageRecipientGone
			}
			return nil, fmt.Errorf("检查接收用户时出错: %w", err)
		}
		if recipient.Deactivated {
			return nil, ErrMessageRecipientGone
		}
		found, _, err := s.GetOrCreate(ctx, senderID, recipientID)
		if err != nil {
			return nil, err
		}
		convo = found
	}

	message := &models.Message{
		ConversationID: convo.ID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         time.Now(),
	}

	txErr := s.txm.Do(ctx, func(repos storage.Repositories) error {
		if convo.Status == models.ConversationRequest {
			// 升级检查和消息写入在同一事务内，避免检查与写入之间
			// 的丢失更新：关注刚达成互相时，这条消息必须落在 active 里。
			mutual, err := repos.Follows.AreMutualFollowers(ctx, convo.UserIDLow, convo.UserIDHigh)
			if err != nil {
				return fmt.Errorf("检查互相关注状态失败: %w", err)
			}
			if mutual {
				if err := repos.Conversations.UpgradeToActive(ctx, convo.ID); err != nil {
					return fmt.Errorf("升级会话失败: %w", err)
				}
				convo.Status = models.ConversationActive
			}
		}

		if err := repos.Conversations.CreateMessage(ctx, message); err != nil {
			return fmt.Errorf("保存消息失败: %w", err)
		}
		if err := repos.Conversations.RecordMessage(ctx, convo, message.ID, recipientID); err != nil {
			return fmt.Errorf("更新会话状态失败: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return message, nil
}

// MarkRead sets the caller's lastReadAt to now.
func (s *conversationService) MarkRead(ctx context.Context, conversationID, userID uint) error {
	convo, err := s.convoRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("检索会话失败: %w", err)
	}
	if !convo.Involves(userID) {
		return ErrNotConversationParty
	}

	if err := s.convoRepo.SetLastReadAt(ctx, convo, userID, time.Now()); err != nil {
		return fmt.Errorf("标记已读失败: %w", err)
	}
	return nil
}

// GetMessages lists messages newest-first and implicitly marks them read.
func (s *conversationService) GetMessages(ctx context.Context, conversationID, userID uint, limit, offset int) ([]models.Message, error) {
	convo, err := s.convoRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("检索会话失败: %w", err)
	}
	if !convo.Involves(userID) {
		return nil, ErrNotConversationParty
	}

	if limit <= 0 {
		limit = 50
	}
	messages, err := s.convoRepo.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("获取消息失败: %w", err)
	}

	if err := s.convoRepo.SetLastReadAt(ctx, convo, userID, time.Now()); err != nil {
		log.Printf("Error marking conversation %d read for user %d: %v", conversationID, userID, err)
	}
	return messages, nil
}

// ListConversations splits the viewer's conversations into chats and
// message requests.
func (s *conversationService) ListConversations(ctx context.Context, userID uint, limit, offset int) (*ConversationLists, error) {
	if limit <= 0 {
		limit = 50
	}
	conversations, err := s.convoRepo.ListInvolving(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("获取会话列表失败: %w", err)
	}

	lists := &ConversationLists{
		Chats:    []*models.ConversationPreview{},
		Requests: []*models.ConversationPreview{},
	}
	for _, convo := range conversations {
		peer, err := s.userRepo.GetBasicInfoByID(ctx, convo.OtherSide(userID))
		if err != nil {
			log.Printf("Error fetching peer info for conversation %d: %v", convo.ID, err)
			continue
		}

		var lastMessage *models.Message
		if convo.LastMessageID != nil {
			msg, err := s.convoRepo.GetMessageByID(ctx, *convo.LastMessageID)
			if err != nil {
				log.Printf("Error fetching last message %d for conversation %d: %v", *convo.LastMessageID, convo.ID, err)
			} else {
				lastMessage = msg
			}
		}

		preview := &models.ConversationPreview{
			Conversation: convo,
			Peer:         peer,
			LastMessage:  lastMessage,
		}

		if convo.Status == models.ConversationRequest &&
			lastMessage != nil && lastMessage.SenderID != userID {
			lists.Requests = append(lists.Requests, preview)
		} else {
			lists.Chats = append(lists.Chats, preview)
		}
	}
	return lists, nil
}

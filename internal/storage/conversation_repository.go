package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"tripmate/internal/models"
)

// ConversationRepository 定义了会话与私信数据操作的接口。
// 传入的用户对必须已经过 models.SortPair 规范化。
type ConversationRepository interface {
	Create(ctx context.Context, conversation *models.Conversation) error
	GetByID(ctx context.Context, conversationID uint) (*models.Conversation, error)
	// GetByPair 查找 canonical 对的会话。未找到返回 (nil, nil)。
	GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Conversation, error)
	// UpgradeToActive 只会把 request 升到 active；对 active 行是无操作。
	UpgradeToActive(ctx context.Context, conversationID uint) error
	// RecordMessage 更新 LastMessageID 并把接收方的 lastReadAt 置空，
	// 发送方自己的 lastReadAt 保持不变。
	RecordMessage(ctx context.Context, conversation *models.Conversation, messageID uint, recipientID uint) error
	SetLastReadAt(ctx context.Context, conversation *models.Conversation, userID uint, t time.Time) error
	// ListInvolving 列出用户参与的会话，对方未停用，最近更新在前。
	ListInvolving(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error)

	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessageByID(ctx context.Context, messageID uint) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error)
}

// gormConversationRepository 使用 GORM 实现 ConversationRepository。
type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建一个新的基于 GORM 的 ConversationRepository。
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	conversation.EnsureCanonicalOrder()
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *gormConversationRepository) GetByID(ctx context.Context, conversationID uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).First(&conversation, conversationID).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) GetByPair(ctx context.Context, userIDLow, userIDHigh uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id_low = ? AND user_id_high = ?", userIDLow, userIDHigh).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// UpgradeToActive 的 WHERE 条件同时限定 status，保证分级单调：
// 已经 active 的行不会被改写，也永远不会回到 request。
func (r *gormConversationRepository) UpgradeToActive(ctx context.Context, conversationID uint) error {
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND status = ?", conversationID, models.ConversationRequest).
		Update("status", models.ConversationActive).Error
}

func (r *gormConversationRepository) RecordMessage(ctx context.Context, conversation *models.Conversation, messageID uint, recipientID uint) error {
	updates := map[string]interface{}{
		"last_message_id": messageID,
	}
	if conversation.UserIDLow == recipientID {
		updates["last_read_at_low"] = nil
	} else {
		updates["last_read_at_high"] = nil
	}
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversation.ID).
		Updates(updates).Error
}

func (r *gormConversationRepository) SetLastReadAt(ctx context.Context, conversation *models.Conversation, userID uint, t time.Time) error {
	column := "last_read_at_high"
	if conversation.UserIDLow == userID {
		column = "last_read_at_low"
	}
	return r.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversation.ID).
		Update(column, t).Error
}

func (r *gormConversationRepository) ListInvolving(ctx context.Context, userID uint, limit, offset int) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := r.db.WithContext(ctx).Model(&models.Conversation{}).
		Joins("JOIN users ON users.id = (CASE WHEN conversations.user_id_low = ? THEN conversations.user_id_high ELSE conversations.user_id_low END) AND users.deactivated = ?", userID, false).
		Where("conversations.user_id_low = ? OR conversations.user_id_high = ?", userID, userID).
		Order("conversations.updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&conversations).Error
	return conversations, err
}

func (r *gormConversationRepository) CreateMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *gormConversationRepository) GetMessageByID(ctx context.Context, messageID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).First(&message, messageID).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *gormConversationRepository) ListMessages(ctx context.Context, conversationID uint, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC").
		Limit(limit).Offset(offset).
		Find(&messages).Error
	return messages, err
}

package models

import "time"

// ConversationStatus 定义会话的隐私分级。
type ConversationStatus string

const (
	// ConversationRequest 双方尚未互相关注，会话以"消息请求"的形式展示。
	ConversationRequest ConversationStatus = "request"
	// ConversationActive 双方互相关注（或配对成功），是正常聊天。
	// 升级是单向的：active 永远不会退回 request。
	ConversationActive ConversationStatus = "active"
)

// Conversation 代表两个用户之间的私聊会话（无序对，canonical 存储）。
type Conversation struct {
	BaseModel
	UserIDLow  uint               `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"userIdLow"`
	UserIDHigh uint               `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"userIdHigh"`
	Status     ConversationStatus `gorm:"type:varchar(20);not null;default:'request';index" json:"status"`

	// LastMessageID 可用于快速获取最后一条消息以供预览。
	LastMessageID *uint `gorm:"index" json:"lastMessageId,omitempty"`

	// 每一侧各自的最后阅读时间。收到新消息时接收方被重置为 null，
	// 因此"有未读"等价于 LastReadAt 为 null 且 LastMessageID 非空。
	LastReadAtLow  *time.Time `json:"lastReadAtLow,omitempty"`
	LastReadAtHigh *time.Time `json:"lastReadAtHigh,omitempty"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// TableName 指定 Conversation 模型的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// EnsureCanonicalOrder swaps the pair so that UserIDLow < UserIDHigh.
// It must be called before creating a Conversation record.
func (c *Conversation) EnsureCanonicalOrder() {
	if c.UserIDLow > c.UserIDHigh {
		c.UserIDLow, c.UserIDHigh = c.UserIDHigh, c.UserIDLow
	}
}

// Involves reports whether the given user is a party to the conversation.
func (c *Conversation) Involves(userID uint) bool {
	return c.UserIDLow == userID || c.UserIDHigh == userID
}

// OtherSide returns the opposite user of the pair.
func (c *Conversation) OtherSide(userID uint) uint {
	if c.UserIDLow == userID {
		return c.UserIDHigh
	}
	return c.UserIDLow
}

// LastReadAtFor returns the lastReadAt pointer of the given side.
func (c *Conversation) LastReadAtFor(userID uint) *time.Time {
	if c.UserIDLow == userID {
		return c.LastReadAtLow
	}
	return c.LastReadAtHigh
}

// Message 代表会话中的一条私信。
type Message struct {
	BaseModel
	ConversationID uint      `gorm:"index;not null" json:"conversationId"`
	SenderID       uint      `gorm:"index;not null" json:"senderId"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	SentAt         time.Time `gorm:"not null" json:"sentAt"`

	Sender User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// TableName 指定 Message 模型的表名。
func (Message) TableName() string {
	return "messages"
}

// ConversationPreview is a DTO for the conversation list: the conversation,
// the other party, and the last message if any.
type ConversationPreview struct {
	Conversation
	Peer        *UserBasicInfo `json:"peer"`
	LastMessage *Message       `json:"lastMessage,omitempty"`
}

package models

import "encoding/json"

// EngagementEventType 定义互动事件流中允许出现的事件类型（封闭集合）。
type EngagementEventType string

const (
	EngagementFollow        EngagementEventType = "follow"
	EngagementMatchAccepted EngagementEventType = "match_accepted"
	EngagementJoinedTrip    EngagementEventType = "joined_trip"
	EngagementLeftTrip      EngagementEventType = "left_trip"
	// like / comment 由社区动态服务生产，本核心只消费并计数。
	EngagementLike    EngagementEventType = "like"
	EngagementComment EngagementEventType = "comment"
)

// EngagementEvent 是互动事件在库中的持久化形式。
// 事件经由 Kafka 到达（见 internal/kafka/handlers），EventID 用于去重：
// 重复投递的消息会因唯一索引落为无操作。
type EngagementEvent struct {
	BaseModel
	EventID string              `gorm:"type:varchar(36);uniqueIndex;not null" json:"eventId"`
	Type    EngagementEventType `gorm:"type:varchar(30);not null;index" json:"type"`

	ActorID uint `gorm:"not null;index" json:"actorId"`
	// TargetUserID 是事件的受益/受通知方，例如被关注者、帖子作者。
	TargetUserID uint `gorm:"not null;index" json:"targetUserId"`

	// 关联实体，例如 trip/post/match。
	EntityType string `gorm:"type:varchar(30)" json:"entityType,omitempty"`
	EntityID   uint   `json:"entityId,omitempty"`

	PayloadRaw json.RawMessage `gorm:"type:jsonb" json:"payload,omitempty"`
}

// TableName 指定 EngagementEvent 模型的表名。
func (EngagementEvent) TableName() string {
	return "engagement_events"
}

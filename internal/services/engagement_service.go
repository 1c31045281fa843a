package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"tripmate/internal/config"
	"tripmate/internal/kafka"
	"tripmate/internal/models"
	"tripmate/internal/storage"
)

// EngagementEventMessage 是互动事件在 Kafka 上的线格式。
// EventID 随消息生成，消费侧以它去重，重复投递落为无操作。
type EngagementEventMessage struct {
	EventID      string                     `json:"eventId"`
	Type         models.EngagementEventType `json:"type"`
	ActorID      uint                       `json:"actorId"`
	TargetUserID uint                       `json:"targetUserId"`
	EntityType   string                     `json:"entityType,omitempty"`
	EntityID     uint                       `json:"entityId,omitempty"`
	Payload      json.RawMessage            `json:"payload,omitempty"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// EngagementService 是互动事件流的出入口。
// Emit 在关注被接受、配对成功、加入/离开行程时作为副作用调用；
// Record 由 Kafka 消费者调用，把事件落库供通知聚合器计数。
type EngagementService interface {
	Emit(ctx context.Context, eventType models.EngagementEventType, actorID, targetUserID uint, entityType string, entityID uint) error
	Record(ctx context.Context, msg *EngagementEventMessage) (*models.EngagementEvent, error)
}

type engagementService struct {
	engagementRepo storage.EngagementRepository
	producer       kafka.MessageProducer
	kafkaConfig    config.KafkaConfig
}

// NewEngagementService creates a new EngagementService instance.
func NewEngagementService(
	engagementRepo storage.EngagementRepository,
	producer kafka.MessageProducer,
	cfg config.KafkaConfig,
) EngagementService {
	return &engagementService{
		engagementRepo: engagementRepo,
		producer:       producer,
		kafkaConfig:    cfg,
	}
}

// Emit publishes an engagement event to the engagement topic.
// 调用方把它当作 fire-and-log 的次级级联：失败只记日志，
// 不得让主状态变更回滚。
func (s *engagementService) Emit(ctx context.Context, eventType models.EngagementEventType, actorID, targetUserID uint, entityType string, entityID uint) error {
	event := EngagementEventMessage{
		EventID:      uuid.NewString(),
		Type:         eventType,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		EntityType:   entityType,
		EntityID:     entityID,
		Timestamp:    time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化互动事件失败: %w", err)
	}

	topic := s.kafkaConfig.EngagementTopic
	key := []byte(fmt.Sprintf("%d", targetUserID))

	if err := s.producer.SendMessage(ctx, topic, key, payload); err != nil {
		log.Printf("Error producing engagement event %s (%s) to topic %s: %v", event.EventID, eventType, topic, err)
		return fmt.Errorf("发送互动事件到处理队列失败: %w", err)
	}
	return nil
}

// Record persists a consumed engagement event. Idempotent: a message
// redelivered with the same EventID is a no-op.
func (s *engagementService) Record(ctx context.Context, msg *EngagementEventMessage) (*models.EngagementEvent, error) {
	event := &models.EngagementEvent{
		EventID:      msg.EventID,
		Type:         msg.Type,
		ActorID:      msg.ActorID,
		TargetUserID: msg.TargetUserID,
		EntityType:   msg.EntityType,
		EntityID:     msg.EntityID,
		PayloadRaw:   msg.Payload,
	}
	if err := s.engagementRepo.CreateIgnoreConflict(ctx, event); err != nil {
		return nil, fmt.Errorf("保存互动事件失败: %w", err)
	}
	return event, nil
}
